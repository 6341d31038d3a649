package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore implements SessionStore using MySQL.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQL creates a new MySQL session store from an open database handle.
func NewMySQL(db *sql.DB) (*MySQLStore, error) {
	if err := createMySQLSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

// NewMySQLFromDSN creates a new MySQL session store from a DSN.
// The DSN format is: user:password@tcp(host:port)/database
func NewMySQLFromDSN(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn+"?parseTime=true")
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: failed to connect: %w", err)
	}

	return NewMySQL(db)
}

func createMySQLSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS device_sessions (
		user_id     VARCHAR(255) NOT NULL,
		device_id   VARCHAR(255) NOT NULL,
		ip          VARCHAR(45) NOT NULL,
		user_agent  TEXT,
		browser     VARCHAR(100),
		os          VARCHAR(100),
		device_type VARCHAR(20),
		login_time  TIMESTAMP NOT NULL,
		last_active TIMESTAMP NOT NULL,
		logout_time TIMESTAMP NULL DEFAULT NULL,
		is_active   TINYINT(1) NOT NULL DEFAULT 1,

		PRIMARY KEY (user_id, device_id, ip),
		INDEX idx_device_sessions_user_active (user_id, is_active, last_active),
		INDEX idx_device_sessions_login_time (login_time)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("mysql: failed to create schema: %w", err)
	}
	return nil
}

// Save upserts a session keyed by (user_id, device_id, ip). The composite
// primary key resolves racing saves for the same tuple into one row.
func (s *MySQLStore) Save(session *DeviceSession) error {
	query := `
	INSERT INTO device_sessions (
		user_id, device_id, ip, user_agent, browser, os, device_type,
		login_time, last_active, logout_time, is_active
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, 1)
	ON DUPLICATE KEY UPDATE
		user_agent  = VALUES(user_agent),
		browser     = VALUES(browser),
		os          = VALUES(os),
		device_type = VALUES(device_type),
		login_time  = IF(is_active = 0, VALUES(login_time), login_time),
		last_active = GREATEST(last_active, VALUES(last_active)),
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
		return fmt.Errorf("mysql: failed to save session: %w", err)
	}
	return nil
}

// End marks the active session for the exact tuple inactive.
func (s *MySQLStore) End(userID, deviceID, ip string, at time.Time) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE device_sessions SET is_active = 0, logout_time = ?
		 WHERE user_id = ? AND device_id = ? AND ip = ? AND is_active = 1`,
		at, userID, deviceID, ip,
	)
	if err != nil {
		return false, fmt.Errorf("mysql: failed to end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mysql: failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// EndDevice marks every active session for the user's device inactive.
func (s *MySQLStore) EndDevice(userID, deviceID string, at time.Time) (int, error) {
	res, err := s.db.Exec(
		`UPDATE device_sessions SET is_active = 0, logout_time = ?
		 WHERE user_id = ? AND device_id = ? AND is_active = 1`,
		at, userID, deviceID,
	)
	if err != nil {
		return 0, fmt.Errorf("mysql: failed to end device sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mysql: failed to read affected rows: %w", err)
	}
	return int(n), nil
}

// EndAll marks every active session for the user inactive.
func (s *MySQLStore) EndAll(userID string, at time.Time) (int, error) {
	res, err := s.db.Exec(
		`UPDATE device_sessions SET is_active = 0, logout_time = ?
		 WHERE user_id = ? AND is_active = 1`,
		at, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("mysql: failed to end sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mysql: failed to read affected rows: %w", err)
	}
	return int(n), nil
}

// FindActive returns all active sessions for a user, most recently active first.
func (s *MySQLStore) FindActive(userID string) ([]*DeviceSession, error) {
	query := `
	SELECT user_id, device_id, ip, user_agent, browser, os, device_type,
		   login_time, last_active, logout_time, is_active
	FROM device_sessions
	WHERE user_id = ? AND is_active = 1
	ORDER BY last_active DESC
	`

	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to query sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows, "mysql")
}

// FindRecent returns all sessions across users created at or after since.
func (s *MySQLStore) FindRecent(since time.Time) ([]*DeviceSession, error) {
	query := `
	SELECT user_id, device_id, ip, user_agent, browser, os, device_type,
		   login_time, last_active, logout_time, is_active
	FROM device_sessions
	WHERE login_time >= ?
	ORDER BY login_time DESC
	`

	rows, err := s.db.Query(query, since)
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to query recent sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows, "mysql")
}

// Close closes the database connection.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
