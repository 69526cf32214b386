// Package audit emits one structured event per authentication outcome.
package audit

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Action names an audited operation.
type Action string

const (
	ActionRegister       Action = "register"
	ActionLogin          Action = "login"
	ActionFederatedLogin Action = "federated_login"
	ActionPasswordChange Action = "password_change"
	ActionProfileUpdate  Action = "profile_update"
)

// Event represents an audit log event.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	Action     Action    `json:"action"`
	IdentityID string    `json:"identityId,omitempty"`
	Origin     string    `json:"origin,omitempty"`
	Success    bool      `json:"success"`
	Reason     string    `json:"reason,omitempty"` // public error code when the action failed
}

var (
	mu          sync.RWMutex
	auditLogger = newLogger(os.Stdout)
)

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Str("log", "audit").Logger()
}

// SetOutput redirects audit events, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	auditLogger = newLogger(w)
}

// Log records an audit event. Reason must never carry emails, passwords or tokens.
func Log(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	mu.RLock()
	logger := auditLogger
	mu.RUnlock()

	ev := logger.Log().
		Time("timestamp", e.Timestamp).
		Str("action", string(e.Action)).
		Bool("success", e.Success)
	if e.IdentityID != "" {
		ev = ev.Str("identityId", e.IdentityID)
	}
	if e.Origin != "" {
		ev = ev.Str("origin", e.Origin)
	}
	if e.Reason != "" {
		ev = ev.Str("reason", e.Reason)
	}
	ev.Msg("audit")
}
