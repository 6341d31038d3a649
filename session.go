package vigil

import "time"

// Device type classifications.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceUnknown = "unknown"
)

// UnknownDeviceID is the key component used for sessions whose client
// supplied no device identifier. Sessions from unidentified devices sharing
// an IP collapse into one row; the IP in the composite key bounds how far.
const UnknownDeviceID = "unknown"

// DeviceFingerprint is the derived, best-effort descriptor of a connecting
// device. DeviceID is client-supplied and used as a stable key across a
// session's requests; it is not trusted as unique.
type DeviceFingerprint struct {
	IP         string    `json:"ip"`
	UserAgent  string    `json:"user_agent"`
	DeviceID   string    `json:"device_id,omitempty"`
	DeviceType string    `json:"device_type"`
	Browser    string    `json:"browser"`
	OS         string    `json:"os"`
	ObservedAt time.Time `json:"observed_at"`
}

// Session is a tracked record of one (user, device, ip) pairing considered
// logged in until explicitly ended. Sessions do not expire by timeout.
type Session struct {
	UserID      string            `json:"user_id"`
	Fingerprint DeviceFingerprint `json:"fingerprint"`
	LoginTime   time.Time         `json:"login_time"`
	LastActive  time.Time         `json:"last_active"`
	LogoutTime  *time.Time        `json:"logout_time,omitempty"`
	IsActive    bool              `json:"is_active"`
}

// Location contains geographic location derived from an IP address.
type Location struct {
	IP        string  `json:"ip"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TrackResult is returned from TrackSession with session info and alerts.
type TrackResult struct {
	// Session is the tracked session, refreshed or newly created.
	Session *Session `json:"session"`

	// Created is true if this call created a new session (a login from a
	// tuple with no active session) rather than refreshing an existing one.
	Created bool `json:"created"`

	// IsNewLocation is true if GeoIP is configured and the new session's IP
	// resolves far from the user's most recent prior session.
	IsNewLocation bool `json:"is_new_location"`

	// PreviousLocation is the prior session's location for comparison.
	// Only set if IsNewLocation is true.
	PreviousLocation *Location `json:"previous_location,omitempty"`

	// ActiveSessions contains all active sessions for this user,
	// most recently active first.
	ActiveSessions []*Session `json:"active_sessions"`
}

// SuspiciousLoginReport flags a user with logins from an unusually high
// number of distinct network locations. Computed fresh on every scan,
// never cached.
type SuspiciousLoginReport struct {
	UserID    string     `json:"user_id"`
	UniqueIPs int        `json:"unique_ips"`
	IPDetails []IPDetail `json:"ip_details"`
}

// IPDetail is the per-location breakdown of a suspicious-login report.
// City and Country are filled in only when GeoIP is configured.
type IPDetail struct {
	IP           string `json:"ip"`
	SessionCount int    `json:"session_count"`
	City         string `json:"city,omitempty"`
	Country      string `json:"country,omitempty"`
}
