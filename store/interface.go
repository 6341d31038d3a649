package store

import "time"

// DeviceSession represents one (user, device, ip) pairing considered logged in.
// This is the storage-level copy of the main Session type to avoid circular imports.
type DeviceSession struct {
	UserID     string
	DeviceID   string // client-supplied identifier, "unknown" when absent
	IP         string
	UserAgent  string
	Browser    string
	OS         string
	DeviceType string
	LoginTime  time.Time
	LastActive time.Time
	LogoutTime *time.Time // set only on explicit or forced end, never on inactivity
	IsActive   bool
}

// SessionStore defines the interface for device-session storage backends.
// Implementations must be safe for concurrent use and must serialize writes
// to the same (user_id, device_id, ip) tuple: two racing Save calls for one
// tuple must leave exactly one active row.
type SessionStore interface {
	// Save upserts a session keyed by (UserID, DeviceID, IP). If a row for the
	// tuple exists its fingerprint fields and LastActive are refreshed in
	// place and it is marked active; otherwise a new active row is created.
	Save(session *DeviceSession) error

	// End marks the active session for the exact tuple inactive with the given
	// logout time. Ending an already-inactive or missing session is a no-op;
	// the bool reports whether a row was actually ended.
	End(userID, deviceID, ip string, at time.Time) (bool, error)

	// EndDevice marks every active session for the user's device inactive,
	// across all IPs. Returns the number of rows ended (0 is not an error).
	EndDevice(userID, deviceID string, at time.Time) (int, error)

	// EndAll marks every active session for the user inactive.
	// Returns the number of rows ended (0 is not an error).
	EndAll(userID string, at time.Time) (int, error)

	// FindActive returns all active sessions for a user, ordered by
	// LastActive descending (most recently active first).
	FindActive(userID string) ([]*DeviceSession, error)

	// FindRecent returns all sessions, across users and regardless of active
	// state, whose LoginTime is at or after since. Used by anomaly scans.
	FindRecent(since time.Time) ([]*DeviceSession, error)

	// Close releases any resources held by the store.
	Close() error
}
