package realtime

import "time"

// Kind identifies the type of a notification event.
type Kind string

const (
	KindNewDeviceLogin     Kind = "new-device-login"
	KindSessionEnded       Kind = "session-ended"
	KindSessionsEnded      Kind = "sessions-ended"
	KindSuspiciousActivity Kind = "suspicious-activity"
	KindPasswordChanged    Kind = "password-changed"
	KindPasswordReset      Kind = "password-reset"
)

// Event is a transient notification pushed to a user's open connections.
// Events are best-effort, at-least-once hints: the session store remains the
// state of record, and consumers must tolerate duplicates.
type Event struct {
	Kind      Kind           `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	EmittedAt time.Time      `json:"emitted_at"`
}
