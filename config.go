package vigil

import (
	"go.uber.org/zap"

	"github.com/matterhq/vigil/realtime"
	"github.com/matterhq/vigil/store"
)

// Config contains configuration options for Vigil.
type Config struct {
	// SessionStore is the storage backend for device sessions.
	// Default: SQLite store (creates vigil.db in current directory).
	SessionStore store.SessionStore

	// DatabasePath is the path for the default SQLite database.
	// Only used if SessionStore is nil.
	// Default: "vigil.db".
	DatabasePath string

	// Gateway is the realtime delivery gateway. If nil, one is created with
	// EventBuffer and BufferLimit below. The gateway is owned by the Vigil
	// instance either way: Close stops it.
	Gateway *realtime.Gateway

	// EventBuffer holds notifications for users with no open connection.
	// Only used if Gateway is nil.
	// Default: in-memory buffer. Use realtime.RedisBuffer to keep buffered
	// notifications across restarts.
	EventBuffer realtime.EventBuffer

	// BufferLimit is the maximum number of notifications buffered per user.
	// Only used if Gateway is nil.
	// Default: realtime.DefaultBufferLimit.
	BufferLimit int

	// SuspiciousIPThreshold is the number of distinct source IPs within the
	// scan window a user may have before being flagged. The comparison is
	// strict: exactly the threshold is not flagged.
	// Default: 3.
	SuspiciousIPThreshold int

	// ScanWindowDays is the default anomaly-scan window.
	// Default: 7.
	ScanWindowDays int

	// GeoIPDatabasePath is the path to a MaxMind GeoLite2-City.mmdb file.
	// Optional; enables location detail on notifications and reports.
	// Download from: https://dev.maxmind.com/geoip/geolite2-free-geolocation-data
	GeoIPDatabasePath string

	// NewLocationThresholdKM is the distance threshold in kilometers for
	// flagging a new-device login as coming from a new location.
	// Only used when GeoIPDatabasePath is set.
	// Default: 100 km.
	NewLocationThresholdKM float64

	// Logger receives swallowed delivery failures and diagnostics.
	// Default: no-op logger.
	Logger *zap.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DatabasePath:           "vigil.db",
		BufferLimit:            realtime.DefaultBufferLimit,
		SuspiciousIPThreshold:  DefaultSuspiciousIPThreshold,
		ScanWindowDays:         DefaultScanWindowDays,
		NewLocationThresholdKM: 100,
	}
}

// applyDefaults fills in default values for zero-value fields.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.DatabasePath == "" {
		c.DatabasePath = defaults.DatabasePath
	}
	if c.BufferLimit <= 0 {
		c.BufferLimit = defaults.BufferLimit
	}
	if c.SuspiciousIPThreshold <= 0 {
		c.SuspiciousIPThreshold = defaults.SuspiciousIPThreshold
	}
	if c.ScanWindowDays <= 0 {
		c.ScanWindowDays = defaults.ScanWindowDays
	}
	if c.NewLocationThresholdKM <= 0 {
		c.NewLocationThresholdKM = defaults.NewLocationThresholdKM
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}
