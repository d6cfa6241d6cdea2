// Package rpc talks JSON-RPC 2.0 to a remote ownership-contract endpoint.
// Reads go straight over HTTP; state-changing methods are encoded as a
// contract payload and routed through the signing provider, which is the
// only component allowed to authorize them.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"provenly.org/internal/ledger"
	"provenly.org/internal/wallet"
)

const defaultTimeout = 15 * time.Second

// Client implements ledger.Client against a JSON-RPC endpoint.
type Client struct {
	endpoint string
	contract wallet.Account
	provider wallet.Provider
	http     *http.Client
	nextID   atomic.Int64
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the contract deployed at contractAddr, reachable
// via the JSON-RPC endpoint. State-changing sends are signed by provider.
func New(endpoint string, contractAddr wallet.Account, provider wallet.Provider, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		contract: contractAddr,
		provider: provider,
		http:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ledger.Client = (*Client)(nil)

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int64     `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	To     wallet.Account `json:"to"`
	Method string         `json:"method"`
	Args   []any          `json:"args"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server error codes, following the JSON-RPC 2.0 reserved range.
const (
	codeReverted = -32000
	codeNotFound = -32001
)

// Call invokes a read-only contract method.
func (c *Client) Call(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  "contract_call",
		Params:  rpcParams{To: c.contract, Method: method, Args: args},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ledger.ErrTransport, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ledger.ErrTransport, resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ledger.ErrTransport, err)
	}
	if decoded.Error != nil {
		return nil, mapRPCError(decoded.Error)
	}
	return decoded.Result, nil
}

// Send encodes the method invocation as a contract payload and hands it to
// the signing provider. The returned handle only proves submission; the
// caller must re-read contract state to observe the effect.
func (c *Client) Send(ctx context.Context, from wallet.Account, method string, args ...any) (wallet.TxHandle, error) {
	if from.IsZero() {
		return "", wallet.ErrNotConnected
	}
	if args == nil {
		args = []any{}
	}
	payload, err := json.Marshal(rpcParams{To: c.contract, Method: method, Args: args})
	if err != nil {
		return "", fmt.Errorf("%w: encode payload: %v", ledger.ErrTransport, err)
	}
	return c.provider.SubmitTransaction(ctx, c.contract, from, payload)
}

func mapRPCError(e *rpcError) error {
	switch e.Code {
	case codeReverted:
		reason := strings.TrimPrefix(e.Message, "execution reverted: ")
		return ledger.Revert(reason)
	case codeNotFound:
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, e.Message)
	default:
		return fmt.Errorf("%w: rpc error %d: %s", ledger.ErrTransport, e.Code, e.Message)
	}
}
