package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn is one logical client connection capable of receiving events.
// Implementations must be safe for use from the gateway's dispatch goroutine
// concurrently with their own read loops.
type Conn interface {
	// WriteEvent delivers a single event to the client.
	WriteEvent(ev Event) error
}

// WSConn adapts a gorilla WebSocket connection to the Conn interface.
// A per-connection mutex serializes writes, since gorilla connections
// support at most one concurrent writer.
type WSConn struct {
	id           string
	conn         *websocket.Conn
	mu           sync.Mutex
	writeTimeout time.Duration
}

// NewWSConn wraps a WebSocket connection for use with the gateway.
func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{
		id:           uuid.NewString(),
		conn:         conn,
		writeTimeout: 10 * time.Second,
	}
}

// ID returns the connection's unique identifier, used for logging.
func (c *WSConn) ID() string {
	return c.id
}

// WriteEvent sends the event to the client as a JSON text message.
// A write deadline bounds how long a stalled client can hold up delivery.
func (c *WSConn) WriteEvent(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(ev)
}

// Close closes the underlying WebSocket connection.
func (c *WSConn) Close() error {
	return c.conn.Close()
}

// Upgrader returns a WebSocket upgrader for gateway endpoints.
func Upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}
