package store

import (
	"testing"
	"time"
)

// backends covered by the shared behavior tests. MySQL is excluded since it
// needs a running server; its queries mirror the SQLite ones.
func testStores(t *testing.T) map[string]SessionStore {
	t.Helper()

	sqlite, err := NewSQLite(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}

	return map[string]SessionStore{
		"memory": NewMemorySessionStore(),
		"sqlite": sqlite,
	}
}

func newSession(userID, deviceID, ip string, at time.Time) *DeviceSession {
	return &DeviceSession{
		UserID:     userID,
		DeviceID:   deviceID,
		IP:         ip,
		UserAgent:  "Mozilla/5.0",
		Browser:    "Chrome",
		OS:         "Windows",
		DeviceType: "desktop",
		LoginTime:  at,
		LastActive: at,
		IsActive:   true,
	}
}

func TestSaveUpsertsOnCompositeKey(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			base := time.Now().Truncate(time.Second)

			if err := s.Save(newSession("user123", "dev-1", "10.0.0.1", base)); err != nil {
				t.Fatalf("Failed to save: %v", err)
			}

			// Same tuple again: refresh, not duplicate.
			refreshed := newSession("user123", "dev-1", "10.0.0.1", base.Add(time.Minute))
			refreshed.Browser = "Firefox"
			if err := s.Save(refreshed); err != nil {
				t.Fatalf("Failed to refresh: %v", err)
			}

			active, err := s.FindActive("user123")
			if err != nil {
				t.Fatalf("Failed to find active: %v", err)
			}
			if len(active) != 1 {
				t.Fatalf("Expected 1 active row for the tuple, got %d", len(active))
			}
			if active[0].Browser != "Firefox" {
				t.Errorf("Fingerprint not refreshed: %s", active[0].Browser)
			}
			if !active[0].LastActive.After(active[0].LoginTime) {
				t.Error("LastActive should advance while LoginTime stays")
			}

			// Different IP, same device: a separate row.
			if err := s.Save(newSession("user123", "dev-1", "10.0.0.2", base.Add(2*time.Minute))); err != nil {
				t.Fatalf("Failed to save second tuple: %v", err)
			}
			active, _ = s.FindActive("user123")
			if len(active) != 2 {
				t.Errorf("Expected 2 rows for distinct tuples, got %d", len(active))
			}
		})
	}
}

func TestFindActiveOrderedByLastActive(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			base := time.Now().Truncate(time.Second)
			s.Save(newSession("user123", "dev-old", "10.0.0.1", base.Add(-2*time.Hour)))
			s.Save(newSession("user123", "dev-new", "10.0.0.2", base))
			s.Save(newSession("user123", "dev-mid", "10.0.0.3", base.Add(-time.Hour)))

			active, err := s.FindActive("user123")
			if err != nil {
				t.Fatalf("Failed to find active: %v", err)
			}
			if len(active) != 3 {
				t.Fatalf("Expected 3 rows, got %d", len(active))
			}

			want := []string{"dev-new", "dev-mid", "dev-old"}
			for i, deviceID := range want {
				if active[i].DeviceID != deviceID {
					t.Errorf("Position %d: got %s, want %s", i, active[i].DeviceID, deviceID)
				}
			}
		})
	}
}

func TestEndIsIdempotent(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			base := time.Now().Truncate(time.Second)
			s.Save(newSession("user123", "dev-1", "10.0.0.1", base))

			ended, err := s.End("user123", "dev-1", "10.0.0.1", base.Add(time.Minute))
			if err != nil {
				t.Fatalf("Failed to end: %v", err)
			}
			if !ended {
				t.Error("First end should report a row ended")
			}

			// Ending again, or ending something absent, is a no-op.
			ended, err = s.End("user123", "dev-1", "10.0.0.1", base.Add(2*time.Minute))
			if err != nil {
				t.Fatalf("Repeated end errored: %v", err)
			}
			if ended {
				t.Error("Repeated end should be a no-op")
			}

			ended, err = s.End("user123", "dev-missing", "10.0.0.9", base)
			if err != nil {
				t.Fatalf("Ending missing session errored: %v", err)
			}
			if ended {
				t.Error("Ending a missing session should be a no-op")
			}
		})
	}
}

func TestEndAllSetsLogoutTimeAndRetainsRows(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			base := time.Now().Truncate(time.Second)
			s.Save(newSession("user123", "dev-1", "10.0.0.1", base))
			s.Save(newSession("user123", "dev-2", "10.0.0.2", base))
			s.Save(newSession("other", "dev-3", "10.0.0.3", base))

			n, err := s.EndAll("user123", base.Add(time.Minute))
			if err != nil {
				t.Fatalf("Failed to end all: %v", err)
			}
			if n != 2 {
				t.Errorf("Expected 2 rows ended, got %d", n)
			}

			active, _ := s.FindActive("user123")
			if len(active) != 0 {
				t.Errorf("Expected no active rows, got %d", len(active))
			}
			active, _ = s.FindActive("other")
			if len(active) != 1 {
				t.Errorf("Other user's session should be untouched")
			}

			// Ended rows are retained with logout time set.
			recent, err := s.FindRecent(base.Add(-time.Minute))
			if err != nil {
				t.Fatalf("Failed to find recent: %v", err)
			}
			found := 0
			for _, row := range recent {
				if row.UserID == "user123" {
					found++
					if row.IsActive {
						t.Error("Ended row still active")
					}
					if row.LogoutTime == nil {
						t.Error("Ended row has no logout time")
					}
				}
			}
			if found != 2 {
				t.Errorf("Expected 2 retained rows, got %d", found)
			}
		})
	}
}

func TestEndDeviceAcrossIPs(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			base := time.Now().Truncate(time.Second)
			s.Save(newSession("user123", "dev-1", "10.0.0.1", base))
			s.Save(newSession("user123", "dev-1", "10.0.0.2", base))
			s.Save(newSession("user123", "dev-2", "10.0.0.3", base))

			n, err := s.EndDevice("user123", "dev-1", base.Add(time.Minute))
			if err != nil {
				t.Fatalf("Failed to end device: %v", err)
			}
			if n != 2 {
				t.Errorf("Expected 2 rows ended for the device, got %d", n)
			}

			active, _ := s.FindActive("user123")
			if len(active) != 1 || active[0].DeviceID != "dev-2" {
				t.Errorf("Expected only dev-2 to survive, got %+v", active)
			}
		})
	}
}

func TestSaveReactivatesEndedTuple(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			base := time.Now().Truncate(time.Second)
			s.Save(newSession("user123", "dev-1", "10.0.0.1", base))
			s.End("user123", "dev-1", "10.0.0.1", base.Add(time.Minute))

			relogin := base.Add(time.Hour)
			if err := s.Save(newSession("user123", "dev-1", "10.0.0.1", relogin)); err != nil {
				t.Fatalf("Failed to reactivate: %v", err)
			}

			active, err := s.FindActive("user123")
			if err != nil {
				t.Fatalf("Failed to find active: %v", err)
			}
			if len(active) != 1 {
				t.Fatalf("Expected 1 active row, got %d", len(active))
			}
			if !active[0].LoginTime.Equal(relogin) {
				t.Errorf("Reactivation should reset LoginTime, got %v", active[0].LoginTime)
			}
			if active[0].LogoutTime != nil {
				t.Error("Reactivated row should have no logout time")
			}
		})
	}
}

func TestFindRecentWindow(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			now := time.Now().Truncate(time.Second)
			s.Save(newSession("user-a", "dev-1", "10.0.0.1", now.AddDate(0, 0, -30)))
			s.Save(newSession("user-b", "dev-2", "10.0.0.2", now.AddDate(0, 0, -1)))
			s.Save(newSession("user-c", "dev-3", "10.0.0.3", now))

			recent, err := s.FindRecent(now.AddDate(0, 0, -7))
			if err != nil {
				t.Fatalf("Failed to find recent: %v", err)
			}
			if len(recent) != 2 {
				t.Fatalf("Expected 2 rows in window, got %d", len(recent))
			}
			for _, row := range recent {
				if row.UserID == "user-a" {
					t.Error("Row outside the window returned")
				}
			}
		})
	}
}
