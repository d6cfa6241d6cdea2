// Package audit emits append-only JSON records for the operations that
// change ownership state. The records complement the on-ledger history:
// the ledger says what happened, the audit trail says who asked for it
// through this service.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"provenly.org/internal/session"
)

// Action names recorded in the trail.
const (
	ActionIdentityLogin    = "identity.login"
	ActionIdentityRegister = "identity.register"
	ActionAssetRegister    = "asset.register"
	ActionTransferInitiate = "transfer.initiate"
	ActionTransferCancel   = "transfer.cancel"
	ActionTransferConfirm  = "transfer.confirm"
	ActionTransferDecline  = "transfer.decline"
)

// Event is a single audit record.
type Event struct {
	Time    time.Time         `json:"ts"`
	Actor   string            `json:"actor,omitempty"`
	Action  string            `json:"action"`
	Outcome string            `json:"outcome"`
	Details map[string]string `json:"details,omitempty"`
}

var (
	mu  sync.Mutex
	out io.Writer = os.Stdout
	now           = time.Now
)

// SetOutput redirects the trail, primarily for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// Log records one event. The actor is taken from the session bound to the
// context when present.
func Log(ctx context.Context, action string, err error, details map[string]string) {
	ev := Event{
		Time:    now().UTC(),
		Action:  action,
		Outcome: "ok",
		Details: details,
	}
	if err != nil {
		ev.Outcome = "error"
		if ev.Details == nil {
			ev.Details = map[string]string{}
		}
		ev.Details["error"] = err.Error()
	}
	if actor, ok := session.AccountFromContext(ctx); ok {
		ev.Actor = actor.Normalize().String()
	}

	data, marshalErr := json.Marshal(ev)
	if marshalErr != nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	out.Write(append(data, '\n'))
}
