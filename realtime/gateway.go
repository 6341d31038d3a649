package realtime

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBufferLimit bounds the per-user offline event buffer.
	DefaultBufferLimit = 50

	// DefaultQueueSize bounds the gateway's pending-event queue.
	DefaultQueueSize = 256
)

// Options configures a Gateway.
type Options struct {
	// Buffer holds events for users with no open connection.
	// Default: in-memory buffer.
	Buffer EventBuffer

	// BufferLimit is the maximum number of events buffered per user.
	// Default: DefaultBufferLimit.
	BufferLimit int

	// QueueSize is the capacity of the pending-event queue. Emission never
	// blocks the caller; events beyond this capacity are dropped and logged.
	// Default: DefaultQueueSize.
	QueueSize int

	// Logger receives delivery failures and drop notices.
	// Default: no-op logger.
	Logger *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.Buffer == nil {
		o.Buffer = NewMemoryBuffer()
	}
	if o.BufferLimit <= 0 {
		o.BufferLimit = DefaultBufferLimit
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Gateway maps user identities to their currently-open connections and
// delivers events addressed to a user to every one of them. Events for users
// with no open connection are buffered and flushed on the next registration.
//
// A single dispatch goroutine consumes the event queue, so events for a given
// user reach each connection in emission order. A delivery failure is logged
// and never surfaces to the emitter.
type Gateway struct {
	log         *zap.Logger
	buffer      EventBuffer
	bufferLimit int

	mu    sync.RWMutex
	users map[string]*userEntry

	events  chan targetedEvent
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// targetedEvent addresses an event to one user, or to all admin connections
// when userID is empty.
type targetedEvent struct {
	userID string
	event  Event
}

type userEntry struct {
	mu    sync.Mutex
	conns map[Conn]struct{}
	admin bool
}

// NewGateway creates a Gateway and starts its dispatch goroutine.
// Call Close to drain pending events and stop it.
func NewGateway(opts Options) *Gateway {
	opts.applyDefaults()

	g := &Gateway{
		log:         opts.Logger,
		buffer:      opts.Buffer,
		bufferLimit: opts.BufferLimit,
		users:       make(map[string]*userEntry),
		events:      make(chan targetedEvent, opts.QueueSize),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}

	go g.run()

	return g
}

// Register adds a connection for the user and synchronously re-delivers any
// events buffered since the user's last connection, oldest first. Only events
// handed to the connection leave the buffer.
func (g *Gateway) Register(userID string, admin bool, c Conn) {
	entry := g.entry(userID)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.admin = admin

	buffered, err := g.buffer.Drain(userID)
	if err != nil {
		g.log.Warn("failed to drain buffered events",
			zap.String("user_id", userID),
			zap.Error(err))
	}
	for i, ev := range buffered {
		if err := c.WriteEvent(ev); err != nil {
			g.log.Warn("failed to replay buffered events",
				zap.String("user_id", userID),
				zap.String("kind", string(ev.Kind)),
				zap.Error(err))
			// Only delivered events leave the buffer; the rest wait for
			// the next registration.
			for _, rest := range buffered[i:] {
				g.bufferEvent(userID, rest)
			}
			break
		}
	}

	entry.conns[c] = struct{}{}
}

// Unregister removes one of the user's connections. The user remains
// addressable: events emitted after the last connection is removed are
// buffered for the next registration.
func (g *Gateway) Unregister(userID string, c Conn) {
	g.mu.RLock()
	entry := g.users[userID]
	g.mu.RUnlock()
	if entry == nil {
		return
	}

	entry.mu.Lock()
	delete(entry.conns, c)
	entry.mu.Unlock()
}

// EmitToUser queues the event for delivery to every open connection of the
// user, or for buffering if none is open. The call never blocks: if the
// gateway's queue is full the event is dropped and logged.
func (g *Gateway) EmitToUser(userID string, ev Event) {
	g.emit(targetedEvent{userID: userID, event: ev})
}

// BroadcastAdmin queues the event for delivery to every connection belonging
// to a user registered with an elevated role.
func (g *Gateway) BroadcastAdmin(ev Event) {
	g.emit(targetedEvent{event: ev})
}

func (g *Gateway) emit(t targetedEvent) {
	if t.event.EmittedAt.IsZero() {
		t.event.EmittedAt = time.Now()
	}

	select {
	case <-g.done:
		g.log.Warn("gateway closed, dropping event",
			zap.String("user_id", t.userID),
			zap.String("kind", string(t.event.Kind)))
		return
	default:
	}

	select {
	case g.events <- t:
	default:
		g.log.Warn("event queue full, dropping event",
			zap.String("user_id", t.userID),
			zap.String("kind", string(t.event.Kind)))
	}
}

// Close drains the pending-event queue, stops the dispatch goroutine and
// closes the buffer.
func (g *Gateway) Close() error {
	g.once.Do(func() {
		close(g.done)
	})
	<-g.stopped
	return g.buffer.Close()
}

func (g *Gateway) run() {
	defer close(g.stopped)

	for {
		select {
		case t := <-g.events:
			g.deliver(t)
		case <-g.done:
			// Drain whatever was queued before shutdown.
			for {
				select {
				case t := <-g.events:
					g.deliver(t)
				default:
					return
				}
			}
		}
	}
}

func (g *Gateway) deliver(t targetedEvent) {
	if t.userID == "" {
		g.deliverAdmin(t.event)
		return
	}

	g.mu.RLock()
	entry := g.users[t.userID]
	g.mu.RUnlock()

	if entry == nil {
		g.bufferEvent(t.userID, t.event)
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if len(entry.conns) == 0 {
		g.bufferEvent(t.userID, t.event)
		return
	}

	for c := range entry.conns {
		if err := c.WriteEvent(t.event); err != nil {
			g.log.Warn("failed to deliver event",
				zap.String("user_id", t.userID),
				zap.String("kind", string(t.event.Kind)),
				zap.Error(err))
		}
	}
}

func (g *Gateway) deliverAdmin(ev Event) {
	g.mu.RLock()
	entries := make(map[string]*userEntry, len(g.users))
	for userID, entry := range g.users {
		entries[userID] = entry
	}
	g.mu.RUnlock()

	for userID, entry := range entries {
		entry.mu.Lock()
		if entry.admin {
			for c := range entry.conns {
				if err := c.WriteEvent(ev); err != nil {
					g.log.Warn("failed to deliver admin event",
						zap.String("user_id", userID),
						zap.String("kind", string(ev.Kind)),
						zap.Error(err))
				}
			}
		}
		entry.mu.Unlock()
	}
}

func (g *Gateway) bufferEvent(userID string, ev Event) {
	if err := g.buffer.Append(userID, ev, g.bufferLimit); err != nil {
		g.log.Warn("failed to buffer event",
			zap.String("user_id", userID),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err))
	}
}

// entry returns the user's entry, creating it if needed.
func (g *Gateway) entry(userID string) *userEntry {
	g.mu.RLock()
	entry := g.users[userID]
	g.mu.RUnlock()
	if entry != nil {
		return entry
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if entry = g.users[userID]; entry == nil {
		entry = &userEntry{conns: make(map[Conn]struct{})}
		g.users[userID] = entry
	}
	return entry
}
