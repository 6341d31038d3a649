package vigil

import (
	"fmt"
	"time"

	"github.com/matterhq/vigil/realtime"
	"github.com/matterhq/vigil/store"
)

// Vigil tracks device sessions for authenticated users and pushes security
// notifications to their open connections through the realtime gateway.
type Vigil struct {
	config   Config
	sessions store.SessionStore
	gateway  *realtime.Gateway
	detector *Detector
	geoip    *GeoIPReader
}

// New creates a new Vigil instance with the given configuration.
// If SessionStore is not provided, a SQLite store is used (creates vigil.db).
// If Gateway is not provided, one is created with the configured buffer.
func New(cfg Config) (*Vigil, error) {
	cfg.applyDefaults()

	v := &Vigil{
		config: cfg,
	}

	// Initialize session store (default: SQLite)
	if cfg.SessionStore != nil {
		v.sessions = cfg.SessionStore
	} else {
		sqliteStore, err := store.NewSQLite(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("vigil: failed to initialize SQLite store: %w", err)
		}
		v.sessions = sqliteStore
	}

	// Initialize realtime gateway
	if cfg.Gateway != nil {
		v.gateway = cfg.Gateway
	} else {
		v.gateway = realtime.NewGateway(realtime.Options{
			Buffer:      cfg.EventBuffer,
			BufferLimit: cfg.BufferLimit,
			Logger:      cfg.Logger,
		})
	}

	// Initialize GeoIP reader if path is provided
	if cfg.GeoIPDatabasePath != "" {
		geoip, err := NewGeoIPReader(cfg.GeoIPDatabasePath)
		if err != nil {
			return nil, fmt.Errorf("vigil: failed to initialize GeoIP: %w", err)
		}
		v.geoip = geoip
	}

	v.detector = NewDetector(v.sessions, cfg.SuspiciousIPThreshold, v.geoip)

	return v, nil
}

// Close releases all resources held by Vigil, draining pending notifications.
// Should be called when the application shuts down.
func (v *Vigil) Close() error {
	var errs []error

	if v.gateway != nil {
		if err := v.gateway.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if v.sessions != nil {
		if err := v.sessions.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if v.geoip != nil {
		if err := v.geoip.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("vigil: errors during close: %v", errs)
	}
	return nil
}

// Gateway returns the realtime gateway, for registering client connections.
func (v *Vigil) Gateway() *realtime.Gateway {
	return v.gateway
}

// TrackSession records an authenticated request from the fingerprinted device.
//
// The identity of "a device" is the composite (userID, deviceID, ip) tuple:
// the client-supplied device identifier is optional and untrusted, so the IP
// is kept in the key as the fallback discriminator. A changed IP with the
// same deviceID starts a new session, biasing toward over-notifying rather
// than silently merging logins from different locations.
//
// If an active session for the tuple exists, its fingerprint and LastActive
// are refreshed in place. Otherwise a new session is created and, when the
// user already has other active sessions, a new-device-login notification is
// emitted to them. A first login creates silently.
func (v *Vigil) TrackSession(userID string, fp DeviceFingerprint) (*TrackResult, error) {
	deviceID := fp.DeviceID
	if deviceID == "" {
		deviceID = UnknownDeviceID
	}

	active, err := v.sessions.FindActive(userID)
	if err != nil {
		return nil, fmt.Errorf("vigil: failed to get active sessions: %w", err)
	}

	var existing *store.DeviceSession
	for _, s := range active {
		if s.DeviceID == deviceID && s.IP == fp.IP {
			existing = s
			break
		}
	}

	now := time.Now()
	row := &store.DeviceSession{
		UserID:     userID,
		DeviceID:   deviceID,
		IP:         fp.IP,
		UserAgent:  fp.UserAgent,
		Browser:    fp.Browser,
		OS:         fp.OS,
		DeviceType: fp.DeviceType,
		LoginTime:  now,
		LastActive: now,
		IsActive:   true,
	}
	if existing != nil {
		row.LoginTime = existing.LoginTime
	}

	if err := v.sessions.Save(row); err != nil {
		return nil, fmt.Errorf("vigil: failed to save session: %w", err)
	}

	result := &TrackResult{
		Session: storeToSession(row),
		Created: existing == nil,
	}

	// Rebuild the active list with the tracked session at the front.
	result.ActiveSessions = append(result.ActiveSessions, result.Session)
	for _, s := range active {
		if s.DeviceID == deviceID && s.IP == fp.IP {
			continue
		}
		result.ActiveSessions = append(result.ActiveSessions, storeToSession(s))
	}

	if result.Created && len(active) > 0 {
		payload := map[string]any{
			"ip":          fp.IP,
			"device_id":   deviceID,
			"device_type": fp.DeviceType,
			"browser":     fp.Browser,
			"os":          fp.OS,
			"login_time":  now,
		}

		if v.geoip != nil {
			curr := v.geoip.LookupWithFallback(fp.IP)
			prev := v.geoip.LookupWithFallback(active[0].IP)
			if curr.City != "" {
				payload["city"] = curr.City
				payload["country"] = curr.Country
			}
			if IsNewLocation(prev, curr, v.config.NewLocationThresholdKM) {
				result.IsNewLocation = true
				result.PreviousLocation = &prev
				payload["new_location"] = true
			}
		}

		v.notify(userID, realtime.KindNewDeviceLogin, payload)
	}

	return result, nil
}

// EndSession marks the user's active sessions for the device inactive, across
// all IPs, and emits a session-ended notification. If deviceID is empty, all
// of the user's sessions are ended instead. Ending nothing is a no-op.
// Returns the number of sessions ended.
func (v *Vigil) EndSession(userID, deviceID string) (int, error) {
	if deviceID == "" {
		return v.EndAllSessions(userID)
	}

	ended, err := v.sessions.EndDevice(userID, deviceID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("vigil: failed to end session: %w", err)
	}

	if ended > 0 {
		v.notify(userID, realtime.KindSessionEnded, map[string]any{
			"device_id": deviceID,
			"ended":     ended,
		})
	}

	return ended, nil
}

// EndAllSessions marks every active session for the user inactive and emits
// one sessions-ended notification. Returns the number of sessions ended.
func (v *Vigil) EndAllSessions(userID string) (int, error) {
	ended, err := v.sessions.EndAll(userID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("vigil: failed to end sessions: %w", err)
	}

	if ended > 0 {
		v.notify(userID, realtime.KindSessionsEnded, map[string]any{
			"ended": ended,
		})
	}

	return ended, nil
}

// EndAllOtherSessions ends every active session whose device differs from
// currentDeviceID and emits one sessions-ended notification with the count.
// It acts on a single snapshot of the active-session list, so a concurrent
// TrackSession for the current device cannot be caught by this call.
func (v *Vigil) EndAllOtherSessions(userID, currentDeviceID string) (int, error) {
	active, err := v.sessions.FindActive(userID)
	if err != nil {
		return 0, fmt.Errorf("vigil: failed to get active sessions: %w", err)
	}

	now := time.Now()
	ended := 0
	for _, s := range active {
		if s.DeviceID == currentDeviceID {
			continue
		}
		ok, err := v.sessions.End(s.UserID, s.DeviceID, s.IP, now)
		if err != nil {
			return ended, fmt.Errorf("vigil: failed to end session: %w", err)
		}
		if ok {
			ended++
		}
	}

	if ended > 0 {
		v.notify(userID, realtime.KindSessionsEnded, map[string]any{
			"ended":          ended,
			"kept_device_id": currentDeviceID,
		})
	}

	return ended, nil
}

// PasswordChanged ends all of the user's sessions after a password change and
// emits a password-changed notification. Returns an error if the sessions
// could not be invalidated, so the caller can refuse to complete the change.
func (v *Vigil) PasswordChanged(userID string) (int, error) {
	return v.endAllForReason(userID, realtime.KindPasswordChanged)
}

// PasswordReset ends all of the user's sessions after a password reset and
// emits a password-reset notification.
func (v *Vigil) PasswordReset(userID string) (int, error) {
	return v.endAllForReason(userID, realtime.KindPasswordReset)
}

// AccountDeleted ends all of the user's sessions when their account is
// deleted. Session rows are retained for audit history.
func (v *Vigil) AccountDeleted(userID string) (int, error) {
	ended, err := v.sessions.EndAll(userID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("vigil: failed to end sessions: %w", err)
	}

	if ended > 0 {
		v.notify(userID, realtime.KindSessionsEnded, map[string]any{
			"ended":  ended,
			"reason": "account-deleted",
		})
	}

	return ended, nil
}

func (v *Vigil) endAllForReason(userID string, kind realtime.Kind) (int, error) {
	ended, err := v.sessions.EndAll(userID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("vigil: failed to end sessions: %w", err)
	}

	v.notify(userID, kind, map[string]any{
		"sessions_ended": ended,
	})

	return ended, nil
}

// ActiveSessions returns all active sessions for a user, most recently
// active first.
func (v *Vigil) ActiveSessions(userID string) ([]*Session, error) {
	storeSessions, err := v.sessions.FindActive(userID)
	if err != nil {
		return nil, fmt.Errorf("vigil: failed to list sessions: %w", err)
	}

	sessions := make([]*Session, len(storeSessions))
	for i, s := range storeSessions {
		sessions[i] = storeToSession(s)
	}

	return sessions, nil
}

// ScanSuspicious runs an anomaly scan over sessions created within the last
// windowDays days (0 uses the configured default). The scan only computes;
// pushing suspicious-activity notifications is the caller's decision.
func (v *Vigil) ScanSuspicious(windowDays int) ([]SuspiciousLoginReport, error) {
	if windowDays <= 0 {
		windowDays = v.config.ScanWindowDays
	}
	return v.detector.Scan(windowDays)
}

// notify hands an event to the gateway. Emission is fire-and-forget: a
// stalled or unreachable connection never fails the session operation that
// triggered the notification.
func (v *Vigil) notify(userID string, kind realtime.Kind, payload map[string]any) {
	v.gateway.EmitToUser(userID, realtime.Event{
		Kind:      kind,
		Payload:   payload,
		EmittedAt: time.Now(),
	})
}

// storeToSession converts a store.DeviceSession to a public Session.
func storeToSession(s *store.DeviceSession) *Session {
	return &Session{
		UserID: s.UserID,
		Fingerprint: DeviceFingerprint{
			IP:         s.IP,
			UserAgent:  s.UserAgent,
			DeviceID:   s.DeviceID,
			DeviceType: s.DeviceType,
			Browser:    s.Browser,
			OS:         s.OS,
			ObservedAt: s.LastActive,
		},
		LoginTime:  s.LoginTime,
		LastActive: s.LastActive,
		LogoutTime: s.LogoutTime,
		IsActive:   s.IsActive,
	}
}
