package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"provenly.org/internal/identity"
	"provenly.org/internal/ledger"
	"provenly.org/internal/ledger/inmemory"
	"provenly.org/internal/provenance"
	"provenly.org/internal/registry"
	"provenly.org/internal/session"
	"provenly.org/internal/storage"
	"provenly.org/internal/transfer"
	"provenly.org/internal/wallet"
)

const (
	adminAddr = "0xAD01"
	brandAddr = "0xB101"
	buyerAddr = "0xC201"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	node    *inmemory.Ledger
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("PROVENLY_SESSION_SECRET", "test-secret")
	session.ResetSecretForTests()
	t.Cleanup(session.ResetSecretForTests)

	node := inmemory.New(adminAddr)
	contract := ledger.NewContract(node)
	store := storage.NewMemory()
	identities := identity.NewService(contract)

	api := New(Services{
		Identity:   identities,
		Registry:   registry.NewPipeline(contract, store),
		Transfer:   transfer.NewMachine(contract),
		Provenance: provenance.NewReader(contract, identities),
		Watcher:    node,
	}, ReadyProbe{}, "test", time.Hour)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		node:    node,
		t:       t,
	}
}

// grantBrand registers the identity and brand role directly on the node.
func (c *apiClient) grantBrand(addr wallet.Account, name string) {
	c.t.Helper()
	ctx := context.Background()
	contract := ledger.NewContract(c.node)
	if err := identity.NewService(contract).Register(ctx, addr, name); err != nil {
		c.t.Fatalf("register identity: %v", err)
	}
	if _, err := contract.RegisterBrand(ctx, adminAddr, addr); err != nil {
		c.t.Fatalf("grant brand: %v", err)
	}
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) obtainToken(addr, name string) string {
	c.t.Helper()
	resp := c.post("/v1/session", map[string]any{
		"address": addr,
		"name":    name,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected session status: %d", resp.StatusCode)
	}
	var payload sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode session response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return payload.Token
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func bearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestSessionLoginAndIdentity(t *testing.T) {
	api := newTestAPI(t)

	token := api.obtainToken(buyerAddr, "Robin")
	if token == "" {
		t.Fatal("expected token")
	}

	resp := api.get("/v1/identities/"+buyerAddr, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	id := decode[map[string]any](t, resp)
	if id["name"] != "Robin" {
		t.Fatalf("unexpected identity: %v", id)
	}

	// Repeat login with the registered name succeeds.
	resp = api.post("/v1/session", map[string]any{"address": buyerAddr, "name": "Robin"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("repeat login status: %d", resp.StatusCode)
	}

	// A different name against the same address is rejected.
	resp = api.post("/v1/session", map[string]any{"address": buyerAddr, "name": "Someone Else"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for name mismatch, got %d", resp.StatusCode)
	}
}

func TestAssetRegistrationFlow(t *testing.T) {
	api := newTestAPI(t)
	api.grantBrand(brandAddr, "Acme Leather")
	token := api.obtainToken(brandAddr, "Acme Leather")

	resp := api.post("/v1/assets", map[string]any{
		"name":        "Weekender Bag",
		"description": "Full-grain leather.",
		"images":      [][]byte{[]byte("front"), []byte("side")},
	}, bearerHeader(token))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if resp.Header.Get("Location") == "" {
		t.Fatal("missing Location header")
	}
	created := decode[map[string]any](t, resp)
	assetID := created["asset_id"].(string)
	if created["metadata_cid"] == "" {
		t.Fatal("missing metadata cid")
	}

	resp = api.get("/v1/assets/"+assetID, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("detail status: %d", resp.StatusCode)
	}
	detail := decode[map[string]any](t, resp)
	urls := detail["image_urls"].([]any)
	if len(urls) != 2 {
		t.Fatalf("expected 2 image urls, got %d", len(urls))
	}

	resp = api.get("/v1/accounts/"+brandAddr+"/assets", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("user assets status: %d", resp.StatusCode)
	}
	owned := decode[map[string]any](t, resp)
	assets := owned["assets"].([]any)
	if len(assets) != 1 || assets[0].(string) != assetID {
		t.Fatalf("unexpected owned assets: %v", assets)
	}
}

func TestAssetRegistrationRequiresBrand(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken(buyerAddr, "Robin")

	resp := api.post("/v1/assets", map[string]any{
		"name":   "Fake Bag",
		"images": [][]byte{},
	}, bearerHeader(token))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	var errBody map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody["stage"] != "authorize" {
		t.Fatalf("expected authorize stage, got %v", errBody["stage"])
	}
}

func TestTransferFlow(t *testing.T) {
	api := newTestAPI(t)
	api.grantBrand(brandAddr, "Acme Leather")
	brandToken := api.obtainToken(brandAddr, "Acme Leather")
	buyerToken := api.obtainToken(buyerAddr, "Robin")

	resp := api.post("/v1/assets", map[string]any{
		"name":   "Weekender Bag",
		"images": [][]byte{[]byte("front")},
	}, bearerHeader(brandToken))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status: %d", resp.StatusCode)
	}
	assetID := decode[map[string]any](t, resp)["asset_id"].(string)

	// The recipient cannot confirm before anything is pending.
	resp = api.post("/v1/assets/"+assetID+"/confirm", nil, bearerHeader(buyerToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 before initiation, got %d", resp.StatusCode)
	}

	resp = api.post("/v1/assets/"+assetID+"/transfer", map[string]any{
		"recipient": buyerAddr,
	}, bearerHeader(brandToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("initiate status: %d", resp.StatusCode)
	}

	resp = api.get("/v1/assets/"+assetID+"/status", nil, nil)
	st := decode[map[string]any](t, resp)
	if st["pending"] == nil {
		t.Fatal("expected pending transfer")
	}

	// Only the recipient may confirm.
	resp = api.post("/v1/assets/"+assetID+"/confirm", nil, bearerHeader(brandToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for initiator confirm, got %d", resp.StatusCode)
	}

	resp = api.post("/v1/assets/"+assetID+"/confirm", nil, bearerHeader(buyerToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm status: %d", resp.StatusCode)
	}

	resp = api.get("/v1/assets/"+assetID+"/history", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status: %d", resp.StatusCode)
	}
	hist := decode[map[string]any](t, resp)
	entries := hist["entries"].([]any)
	if len(entries) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(entries))
	}
	last := entries[1].(map[string]any)
	if last["owner_name"] != "Robin" {
		t.Fatalf("unexpected final owner: %v", last)
	}
}

func TestAPIEnforcesSession(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/assets", map[string]any{"name": "X"}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp2 := api.post("/v1/assets", map[string]any{"name": "X"},
		map[string]string{"Authorization": "Bearer not-a-token"})
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp2.StatusCode)
	}
}

func TestHealthAndInfo(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status: %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["service"] != "provenly-api" {
		t.Fatalf("unexpected service: %v", body)
	}

	resp = api.get("/readyz", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status: %d", resp.StatusCode)
	}
}

func TestUnknownAssetReturns404(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/v1/assets/no-such-asset", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
