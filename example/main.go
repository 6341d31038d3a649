package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/matterhq/vigil"
	"github.com/matterhq/vigil/realtime"
)

var v *vigil.Vigil

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Option 1: Zero-config (SQLite + in-memory event buffer)
	// Just works out of the box - creates vigil.db automatically
	v, err = vigil.New(vigil.Config{
		Logger: logger,
		// Optional: path to MaxMind GeoLite2-City.mmdb for location detail
		// on notifications and suspicious-login reports.
		// GeoIPDatabasePath: "./GeoLite2-City.mmdb",
	})
	if err != nil {
		log.Fatalf("Failed to initialize Vigil: %v", err)
	}
	defer v.Close()

	// Option 2: Production config (MySQL + Redis-backed event buffer)
	// Uncomment to use:
	/*
		mysqlStore, err := store.NewMySQLFromDSN("user:password@tcp(localhost:3306)/vigil")
		if err != nil {
			log.Fatalf("Failed to connect to MySQL: %v", err)
		}

		buffer, err := realtime.NewRedisBufferFromConfig(realtime.RedisConfig{
			Addr: "localhost:6379",
		})
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}

		v, err = vigil.New(vigil.Config{
			SessionStore: mysqlStore,
			EventBuffer:  buffer,
			Logger:       logger,
		})
	*/

	http.HandleFunc("/track", trackHandler)
	http.HandleFunc("/sessions", sessionsHandler)
	http.HandleFunc("/sessions/end", endSessionHandler)
	http.HandleFunc("/sessions/end-others", endOthersHandler)
	http.HandleFunc("/password-changed", passwordChangedHandler)
	http.HandleFunc("/ws", wsHandler)
	http.HandleFunc("/admin/suspicious", suspiciousHandler)

	fmt.Println("Vigil example server on :8080")
	fmt.Println("Endpoints:")
	fmt.Println("  POST /track?user_id=xxx                   - Track an authenticated request")
	fmt.Println("  GET  /sessions?user_id=xxx                - List active sessions")
	fmt.Println("  POST /sessions/end?user_id=xxx&device_id= - End a device's sessions (all if omitted)")
	fmt.Println("  POST /sessions/end-others?user_id=xxx&device_id=yyy - End all other sessions")
	fmt.Println("  POST /password-changed?user_id=xxx        - Force-end sessions after a password change")
	fmt.Println("  GET  /ws?user_id=xxx&admin=true|false     - Realtime notification channel")
	fmt.Println("  GET  /admin/suspicious?days=7             - Suspicious-login reports")

	log.Fatal(http.ListenAndServe(":8080", nil))
}

// identity simulates the excluded authentication layer: in production the
// verified user identity and role come from the session/authn middleware,
// never from the query string.
func identity(r *http.Request) (userID string, admin bool) {
	return r.URL.Query().Get("user_id"), r.URL.Query().Get("admin") == "true"
}

func trackHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _ := identity(r)
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	fp := vigil.ExtractFingerprint(r)

	result, err := v.TrackSession(userID, fp)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to track session: %v", err), http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"session":         result.Session,
		"created":         result.Created,
		"active_sessions": result.ActiveSessions,
	}

	if result.IsNewLocation {
		response["warning"] = "new_location_detected"
		response["previous_location"] = result.PreviousLocation
	}

	writeJSON(w, response)
}

func sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _ := identity(r)
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	sessions, err := v.ActiveSessions(userID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list sessions: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"user_id":  userID,
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func endSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _ := identity(r)
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	ended, err := v.EndSession(userID, r.URL.Query().Get("device_id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to end sessions: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{"ended": ended})
}

func endOthersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _ := identity(r)
	deviceID := r.URL.Query().Get("device_id")
	if userID == "" || deviceID == "" {
		http.Error(w, "user_id and device_id required", http.StatusBadRequest)
		return
	}

	ended, err := v.EndAllOtherSessions(userID, deviceID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to end other sessions: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{"ended": ended, "kept_device_id": deviceID})
}

func passwordChangedHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _ := identity(r)
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	// If sessions cannot be invalidated, the password-change flow must not
	// be confirmed; surface the failure to the caller.
	ended, err := v.PasswordChanged(userID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to invalidate sessions: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{"sessions_ended": ended})
}

var upgrader = realtime.Upgrader()

func wsHandler(w http.ResponseWriter, r *http.Request) {
	userID, admin := identity(r)
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn := realtime.NewWSConn(ws)
	gateway := v.Gateway()
	gateway.Register(userID, admin, conn)
	defer func() {
		gateway.Unregister(userID, conn)
		conn.Close()
	}()

	// Consume client frames so pings and close frames are processed; the
	// channel is push-only from the server's side.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func suspiciousHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	reports, err := v.ScanSuspicious(days)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to scan: %v", err), http.StatusInternalServerError)
		return
	}

	// The detector only computes; pushing alerts is this endpoint's call.
	gateway := v.Gateway()
	for _, report := range reports {
		ev := realtime.Event{
			Kind: realtime.KindSuspiciousActivity,
			Payload: map[string]any{
				"user_id":    report.UserID,
				"unique_ips": report.UniqueIPs,
				"ip_details": report.IPDetails,
			},
			EmittedAt: time.Now(),
		}
		gateway.EmitToUser(report.UserID, ev)
		gateway.BroadcastAdmin(ev)
	}

	writeJSON(w, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}

func writeJSON(w http.ResponseWriter, payload map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
