package realtime

import "sync"

// EventBuffer holds events addressed to users with no open connection until
// their next registration. Buffers are bounded per user; the oldest events
// are dropped first once the bound is exceeded. Implementations must be safe
// for concurrent use.
type EventBuffer interface {
	// Append adds an event to the user's buffer, evicting the oldest entries
	// so that at most limit events are retained.
	Append(userID string, ev Event, limit int) error

	// Drain returns and clears the user's buffered events in emission order.
	Drain(userID string) ([]Event, error)

	// Close releases any resources held by the buffer.
	Close() error
}

// MemoryBuffer implements EventBuffer using an in-memory map.
type MemoryBuffer struct {
	mu     sync.Mutex
	events map[string][]Event
}

// NewMemoryBuffer creates a new in-memory event buffer.
func NewMemoryBuffer() *MemoryBuffer {
	return &MemoryBuffer{
		events: make(map[string][]Event),
	}
}

// Append adds an event to the user's buffer, dropping the oldest beyond limit.
func (b *MemoryBuffer) Append(userID string, ev Event, limit int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	buffered := append(b.events[userID], ev)
	if limit > 0 && len(buffered) > limit {
		buffered = buffered[len(buffered)-limit:]
	}
	b.events[userID] = buffered
	return nil
}

// Drain returns and clears the user's buffered events in emission order.
func (b *MemoryBuffer) Drain(userID string) ([]Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buffered := b.events[userID]
	delete(b.events, userID)
	return buffered, nil
}

// Close is a no-op for the memory buffer.
func (b *MemoryBuffer) Close() error {
	return nil
}
