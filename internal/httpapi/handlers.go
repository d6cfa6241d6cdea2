package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"provenly.org/internal/audit"
	"provenly.org/internal/obs"
	"provenly.org/internal/session"
	"provenly.org/internal/wallet"
)

type sessionRequest struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

type sessionResponse struct {
	Token    string         `json:"token"`
	Address  wallet.Account `json:"address"`
	Name     string         `json:"name"`
	IsBrand  bool           `json:"is_brand"`
	ExpiresS int64          `json:"expires_in_seconds"`
}

type registerAssetRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Images      [][]byte `json:"images"`
}

type transferRequest struct {
	Recipient string `json:"recipient"`
}

// handleSession implements login: an unregistered address is registered
// under the presented name, a registered one must present its exact name.
// On success the caller gets a bearer token bound to the address.
func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	addr := wallet.Account(req.Address)
	if addr.IsZero() {
		writeError(w, r, http.StatusBadRequest, "address is required")
		return
	}

	id, err := a.svc.Identity.Login(r.Context(), addr, req.Name)
	obs.CountWorkflowOp(audit.ActionIdentityLogin, err)
	if err != nil {
		audit.Log(r.Context(), audit.ActionIdentityLogin, err, map[string]string{"address": addr.Normalize().String()})
		handleDomainError(w, r, err)
		return
	}

	token, err := session.Issue(addr, a.sessionTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "session issue failed")
		return
	}

	audit.Log(session.ContextWithAccount(r.Context(), addr), audit.ActionIdentityLogin, nil, map[string]string{
		"name": id.Name,
	})
	writeJSON(w, http.StatusOK, sessionResponse{
		Token:    token,
		Address:  id.Address,
		Name:     id.Name,
		IsBrand:  id.IsBrand,
		ExpiresS: int64(a.sessionTTL.Seconds()),
	})
}

func (a *API) handleIdentityResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	addr := wallet.Account(strings.TrimPrefix(r.URL.Path, "/v1/identities/"))
	if addr.IsZero() || strings.Contains(addr.String(), "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, err := a.svc.Identity.Resolve(r.Context(), addr)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (a *API) handleAssetsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	acting, ok := session.AccountFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "session required")
		return
	}

	var req registerAssetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}

	asset, err := a.svc.Registry.Register(r.Context(), acting, req.Name, req.Description, req.Images)
	obs.CountWorkflowOp(audit.ActionAssetRegister, err)
	audit.Log(r.Context(), audit.ActionAssetRegister, err, map[string]string{
		"name":   req.Name,
		"images": strconv.Itoa(len(req.Images)),
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Location", "/v1/assets/"+asset.ID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"asset_id":     asset.ID,
		"name":         asset.Name,
		"description":  asset.Description,
		"metadata_cid": asset.MetadataCID,
		"registrant":   asset.Registrant,
		"tx":           asset.Tx,
	})
}

// handleAssetResource routes /v1/assets/{id} and its sub-resources.
func (a *API) handleAssetResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/assets/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, rest, _ := strings.Cut(path, "/")
	if id == "" || strings.Contains(rest, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch rest {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getAssetDetail(w, r, id)
	case "history":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getAssetHistory(w, r, id)
	case "status":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getTransferStatus(w, r, id)
	case "transfer", "cancel", "confirm", "decline":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.postTransferAction(w, r, id, rest)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getAssetDetail(w http.ResponseWriter, r *http.Request, assetID string) {
	detail, err := a.svc.Registry.Detail(r.Context(), assetID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset":      detail.Record,
		"metadata":   detail.Metadata,
		"image_urls": detail.ImageURLs,
	})
}

func (a *API) getAssetHistory(w http.ResponseWriter, r *http.Request, assetID string) {
	entries, err := a.svc.Provenance.AnnotatedHistory(r.Context(), assetID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset_id": assetID,
		"entries":  entries,
	})
}

func (a *API) getTransferStatus(w http.ResponseWriter, r *http.Request, assetID string) {
	st, err := a.svc.Transfer.Status(r.Context(), assetID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset_id": st.AssetID,
		"owner":    st.Owner,
		"pending":  st.Pending,
	})
}

func (a *API) postTransferAction(w http.ResponseWriter, r *http.Request, assetID, action string) {
	acting, ok := session.AccountFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "session required")
		return
	}

	var (
		tx       wallet.TxHandle
		err      error
		auditKey string
	)
	switch action {
	case "transfer":
		var req transferRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		tx, err = a.svc.Transfer.Initiate(r.Context(), acting, assetID, wallet.Account(req.Recipient))
		auditKey = audit.ActionTransferInitiate
	case "cancel":
		tx, err = a.svc.Transfer.Cancel(r.Context(), acting, assetID)
		auditKey = audit.ActionTransferCancel
	case "confirm":
		tx, err = a.svc.Transfer.Confirm(r.Context(), acting, assetID)
		auditKey = audit.ActionTransferConfirm
	case "decline":
		tx, err = a.svc.Transfer.Decline(r.Context(), acting, assetID)
		auditKey = audit.ActionTransferDecline
	}

	obs.CountWorkflowOp(auditKey, err)
	audit.Log(r.Context(), auditKey, err, map[string]string{"asset_id": assetID})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset_id": assetID,
		"tx":       tx,
	})
}

// handleAccountResource serves /v1/accounts/{address}/assets.
func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	addrRaw, rest, _ := strings.Cut(path, "/")
	if addrRaw == "" || rest != "assets" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ids, err := a.svc.Registry.UserAssets(r.Context(), wallet.Account(addrRaw))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": wallet.Account(addrRaw).Normalize(),
		"assets":  ids,
	})
}
