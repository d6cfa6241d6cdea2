package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const gatewayTimeout = 30 * time.Second

// Gateway is a Store backed by a pinning service speaking the usual REST
// shape: multipart file pinning, JSON pinning with a display name, public
// retrieval by cid, and signed time-limited URLs.
type Gateway struct {
	base  string
	token string
	http  *http.Client
}

// GatewayOption configures the Gateway.
type GatewayOption func(*Gateway)

// WithGatewayHTTPClient overrides the HTTP client.
func WithGatewayHTTPClient(hc *http.Client) GatewayOption {
	return func(g *Gateway) { g.http = hc }
}

// NewGateway creates a client for the pinning service at base,
// authenticating with the bearer token.
func NewGateway(base, token string, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		base:  base,
		token: token,
		http:  &http.Client{Timeout: gatewayTimeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var _ Store = (*Gateway)(nil)

type pinResponse struct {
	CID string `json:"cid"`
}

type signedURLRequest struct {
	CID     string `json:"cid"`
	Expires int64  `json:"expires"`
}

type signedURLResponse struct {
	URL string `json:"url"`
}

func (g *Gateway) Put(ctx context.Context, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "blob")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var pinned pinResponse
	if err := g.do(ctx, http.MethodPost, "/pinning/file", mw.FormDataContentType(), &body, &pinned); err != nil {
		return "", err
	}
	if err := ValidateCID(pinned.CID); err != nil {
		return "", err
	}
	return pinned.CID, nil
}

func (g *Gateway) PutJSON(ctx context.Context, v any, name string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"content": v,
		"name":    name + ".json",
	})
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	var pinned pinResponse
	if err := g.do(ctx, http.MethodPost, "/pinning/json", "application/json", bytes.NewReader(payload), &pinned); err != nil {
		return "", err
	}
	if err := ValidateCID(pinned.CID); err != nil {
		return "", err
	}
	return pinned.CID, nil
}

func (g *Gateway) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ValidateCID(id); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.base+"/ipfs/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	g.authorize(req)
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return data, nil
}

func (g *Gateway) SignedURL(ctx context.Context, id string, ttl time.Duration) (string, error) {
	if err := ValidateCID(id); err != nil {
		return "", err
	}
	payload, err := json.Marshal(signedURLRequest{CID: id, Expires: int64(ttl.Seconds())})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	var signed signedURLResponse
	if err := g.do(ctx, http.MethodPost, "/signed_urls", "application/json", bytes.NewReader(payload), &signed); err != nil {
		return "", err
	}
	return signed.URL, nil
}

func (g *Gateway) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, g.base+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", contentType)
	g.authorize(req)

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrTransport, err)
	}
	return nil
}

func (g *Gateway) authorize(req *http.Request) {
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
}
