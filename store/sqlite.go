package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements SessionStore using SQLite.
// It uses the pure Go modernc.org/sqlite driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite session store.
// The database file is created if it doesn't exist.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS device_sessions (
		user_id     TEXT NOT NULL,
		device_id   TEXT NOT NULL,
		ip          TEXT NOT NULL,
		user_agent  TEXT,
		browser     TEXT,
		os          TEXT,
		device_type TEXT,
		login_time  DATETIME NOT NULL,
		last_active DATETIME NOT NULL,
		logout_time DATETIME,
		is_active   INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (user_id, device_id, ip)
	);

	CREATE INDEX IF NOT EXISTS idx_device_sessions_user_active
		ON device_sessions (user_id, is_active, last_active);

	CREATE INDEX IF NOT EXISTS idx_device_sessions_login_time
		ON device_sessions (login_time);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: failed to create schema: %w", err)
	}
	return nil
}

// Save upserts a session keyed by (user_id, device_id, ip). The composite
// primary key makes this atomic: two racing saves for the same tuple collapse
// into one row. A save against an ended row reactivates it as a fresh login.
func (s *SQLiteStore) Save(session *DeviceSession) error {
	query := `
	INSERT INTO device_sessions (
		user_id, device_id, ip, user_agent, browser, os, device_type,
		login_time, last_active, logout_time, is_active
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, 1)
	ON CONFLICT (user_id, device_id, ip) DO UPDATE SET
		user_agent  = excluded.user_agent,
		browser     = excluded.browser,
		os          = excluded.os,
		device_type = excluded.device_type,
		login_time  = CASE WHEN device_sessions.is_active = 0
			THEN excluded.login_time ELSE device_sessions.login_time END,
		last_active = MAX(device_sessions.last_active, excluded.last_active),
		logout_time = NULL,
		is_active   = 1
	`

	_, err := s.db.Exec(query,
		session.UserID,
		session.DeviceID,
		session.IP,
		session.UserAgent,
		session.Browser,
		session.OS,
		session.DeviceType,
		session.LoginTime,
		session.LastActive,
	)

	if err != nil {
		return fmt.Errorf("sqlite: failed to save session: %w", err)
	}
	return nil
}

// End marks the active session for the exact tuple inactive.
func (s *SQLiteStore) End(userID, deviceID, ip string, at time.Time) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE device_sessions SET is_active = 0, logout_time = ?
		 WHERE user_id = ? AND device_id = ? AND ip = ? AND is_active = 1`,
		at, userID, deviceID, ip,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// EndDevice marks every active session for the user's device inactive.
func (s *SQLiteStore) EndDevice(userID, deviceID string, at time.Time) (int, error) {
	res, err := s.db.Exec(
		`UPDATE device_sessions SET is_active = 0, logout_time = ?
		 WHERE user_id = ? AND device_id = ? AND is_active = 1`,
		at, userID, deviceID,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to end device sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to read affected rows: %w", err)
	}
	return int(n), nil
}

// EndAll marks every active session for the user inactive.
func (s *SQLiteStore) EndAll(userID string, at time.Time) (int, error) {
	res, err := s.db.Exec(
		`UPDATE device_sessions SET is_active = 0, logout_time = ?
		 WHERE user_id = ? AND is_active = 1`,
		at, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to end sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to read affected rows: %w", err)
	}
	return int(n), nil
}

// FindActive returns all active sessions for a user, most recently active first.
func (s *SQLiteStore) FindActive(userID string) ([]*DeviceSession, error) {
	query := `
	SELECT user_id, device_id, ip, user_agent, browser, os, device_type,
		   login_time, last_active, logout_time, is_active
	FROM device_sessions
	WHERE user_id = ? AND is_active = 1
	ORDER BY last_active DESC
	`

	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows, "sqlite")
}

// FindRecent returns all sessions across users created at or after since.
func (s *SQLiteStore) FindRecent(since time.Time) ([]*DeviceSession, error) {
	query := `
	SELECT user_id, device_id, ip, user_agent, browser, os, device_type,
		   login_time, last_active, logout_time, is_active
	FROM device_sessions
	WHERE login_time >= ?
	ORDER BY login_time DESC
	`

	rows, err := s.db.Query(query, since)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query recent sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows, "sqlite")
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// collectSessions scans all rows into DeviceSession values.
func collectSessions(rows *sql.Rows, backend string) ([]*DeviceSession, error) {
	var sessions []*DeviceSession
	for rows.Next() {
		session, err := scanSession(rows, backend)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: error iterating sessions: %w", backend, err)
	}

	return sessions, nil
}

func scanSession(rows *sql.Rows, backend string) (*DeviceSession, error) {
	var session DeviceSession
	var logout sql.NullTime
	err := rows.Scan(
		&session.UserID,
		&session.DeviceID,
		&session.IP,
		&session.UserAgent,
		&session.Browser,
		&session.OS,
		&session.DeviceType,
		&session.LoginTime,
		&session.LastActive,
		&logout,
		&session.IsActive,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to scan session: %w", backend, err)
	}
	if logout.Valid {
		t := logout.Time
		session.LogoutTime = &t
	}
	return &session, nil
}
