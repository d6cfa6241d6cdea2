// Package httpapi is the HTTP surface over the registration and transfer
// workflows. Handlers never hold workflow state: each request resolves its
// acting account from the session token and the services re-read the
// ledger before acting.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"provenly.org/internal/identity"
	"provenly.org/internal/ledger"
	"provenly.org/internal/obs"
	"provenly.org/internal/provenance"
	"provenly.org/internal/registry"
	"provenly.org/internal/session"
	"provenly.org/internal/storage"
	"provenly.org/internal/transfer"
	"provenly.org/internal/wallet"
)

// ReadyProbe checks the optional archive connection.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Services bundles the workflow dependencies the API serves.
type Services struct {
	Identity   *identity.Service
	Registry   *registry.Pipeline
	Transfer   *transfer.Machine
	Provenance *provenance.Reader
	Watcher    ledger.Watcher
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	sessionTTL time.Duration
	svc        Services
}

func New(svc Services, rp ReadyProbe, version string, sessionTTL time.Duration) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		sessionTTL: sessionTTL,
		svc:        svc,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/session", a.handleSession)
	a.mux.HandleFunc("/v1/identities/", a.handleIdentityResource)
	a.mux.HandleFunc("/v1/assets", a.handleAssetsCollection)
	a.mux.HandleFunc("/v1/assets/", a.handleAssetResource)
	a.mux.HandleFunc("/v1/accounts/", a.handleAccountResource)
	a.mux.HandleFunc("/v1/events/transfers", a.StreamTransfers)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.withSession(a.mux))
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "provenly-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "provenly-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps workflow errors onto HTTP statuses. Stage failures
// from the registration pipeline keep their stage in the payload so a
// client can show which step failed.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if stage, ok := registry.FailedStage(err); ok {
		code := domainStatus(errors.Unwrap(err))
		payload := map[string]any{
			"error": err.Error(),
			"stage": string(stage),
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, code, payload)
		return
	}
	writeError(w, r, domainStatus(err), err.Error())
}

func domainStatus(err error) int {
	switch {
	case isBadRequest(err):
		return http.StatusBadRequest
	case isUnauthorized(err):
		return http.StatusUnauthorized
	case isForbidden(err):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case isConflict(err):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrTransport), errors.Is(err, storage.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isBadRequest(err error) bool {
	return errors.Is(err, identity.ErrEmptyName) ||
		errors.Is(err, transfer.ErrInvalidRecipient) ||
		errors.Is(err, storage.ErrBadCID)
}

func isUnauthorized(err error) bool {
	return errors.Is(err, session.ErrInvalidToken) ||
		errors.Is(err, identity.ErrNameMismatch) ||
		errors.Is(err, wallet.ErrNotConnected)
}

func isForbidden(err error) bool {
	return errors.Is(err, registry.ErrNotAuthorized) ||
		errors.Is(err, transfer.ErrNotOwner) ||
		errors.Is(err, transfer.ErrNotInitiator) ||
		errors.Is(err, transfer.ErrNotRecipient) ||
		errors.Is(err, transfer.ErrNotParticipant)
}

func isConflict(err error) bool {
	return errors.Is(err, identity.ErrAlreadyRegistered) ||
		errors.Is(err, transfer.ErrAlreadyPending) ||
		errors.Is(err, transfer.ErrNoPendingTransfer) ||
		errors.Is(err, wallet.ErrUserRejected) ||
		ledger.IsRevert(err)
}
