package store

import (
	"sort"
	"sync"
	"time"
)

// MemorySessionStore implements SessionStore using an in-memory map.
// This is useful for testing but not recommended for production.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[sessionKey]*DeviceSession
	byUser   map[string]map[sessionKey]bool // userID -> set of keys
}

type sessionKey struct {
	userID   string
	deviceID string
	ip       string
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[sessionKey]*DeviceSession),
		byUser:   make(map[string]map[sessionKey]bool),
	}
}

// Save upserts a session keyed by (UserID, DeviceID, IP).
func (s *MemorySessionStore) Save(session *DeviceSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey{session.UserID, session.DeviceID, session.IP}

	if existing, ok := s.sessions[key]; ok {
		existing.UserAgent = session.UserAgent
		existing.Browser = session.Browser
		existing.OS = session.OS
		existing.DeviceType = session.DeviceType
		if !existing.IsActive {
			// Reactivated tuple counts as a fresh login.
			existing.LoginTime = session.LoginTime
			existing.LogoutTime = nil
			existing.IsActive = true
		}
		if session.LastActive.After(existing.LastActive) {
			existing.LastActive = session.LastActive
		}
		return nil
	}

	copied := *session
	s.sessions[key] = &copied

	if s.byUser[session.UserID] == nil {
		s.byUser[session.UserID] = make(map[sessionKey]bool)
	}
	s.byUser[session.UserID][key] = true

	return nil
}

// End marks the active session for the exact tuple inactive.
func (s *MemorySessionStore) End(userID, deviceID, ip string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionKey{userID, deviceID, ip}]
	if !ok || !session.IsActive {
		return false, nil
	}
	endSession(session, at)
	return true, nil
}

// EndDevice marks every active session for the user's device inactive.
func (s *MemorySessionStore) EndDevice(userID, deviceID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ended := 0
	for key := range s.byUser[userID] {
		session := s.sessions[key]
		if session != nil && session.IsActive && session.DeviceID == deviceID {
			endSession(session, at)
			ended++
		}
	}
	return ended, nil
}

// EndAll marks every active session for the user inactive.
func (s *MemorySessionStore) EndAll(userID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ended := 0
	for key := range s.byUser[userID] {
		session := s.sessions[key]
		if session != nil && session.IsActive {
			endSession(session, at)
			ended++
		}
	}
	return ended, nil
}

// FindActive returns all active sessions for a user, most recently active first.
func (s *MemorySessionStore) FindActive(userID string) ([]*DeviceSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*DeviceSession
	for key := range s.byUser[userID] {
		session := s.sessions[key]
		if session != nil && session.IsActive {
			copied := *session
			active = append(active, &copied)
		}
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].LastActive.After(active[j].LastActive)
	})

	return active, nil
}

// FindRecent returns all sessions across users created at or after since.
func (s *MemorySessionStore) FindRecent(since time.Time) ([]*DeviceSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recent []*DeviceSession
	for _, session := range s.sessions {
		if !session.LoginTime.Before(since) {
			copied := *session
			recent = append(recent, &copied)
		}
	}

	sort.Slice(recent, func(i, j int) bool {
		return recent[i].LoginTime.After(recent[j].LoginTime)
	})

	return recent, nil
}

// Close is a no-op for the memory store.
func (s *MemorySessionStore) Close() error {
	return nil
}

func endSession(session *DeviceSession, at time.Time) {
	session.IsActive = false
	logout := at
	session.LogoutTime = &logout
}
