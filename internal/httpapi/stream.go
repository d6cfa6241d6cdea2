package httpapi

import (
	"encoding/json"
	"net/http"
)

// StreamTransfers pushes completed ownership transfers as Server-Sent
// Events. An asset_id query parameter narrows the stream to one asset.
func (a *API) StreamTransfers(w http.ResponseWriter, r *http.Request) {
	if a.svc.Watcher == nil {
		http.Error(w, "streaming disabled", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, err := a.svc.Watcher.WatchTransfers(r.Context(), r.URL.Query().Get("asset_id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for rec := range ch {
		payload, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
