// Package notify is the fire-and-forget notification channel the engine
// publishes lifecycle events on.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Event names published by the engine.
const (
	EventMemoryStored   = "memory stored"
	EventQueryCompleted = "query completed"
	EventMemoryCleanup  = "memory cleanup"
)

// Event is a named notification with a free-form payload.
type Event struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
	At      time.Time      `json:"at"`
}

// Publisher accepts events without acknowledging them.
type Publisher interface {
	Publish(ev Event)
}

// Discard drops every event.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(Event) {}

// Bus is a buffered in-process Publisher.
type Bus struct {
	events  chan Event
	closed  bool
	dropped atomic.Uint64
	mu      sync.RWMutex
}

const publishTimeout = 100 * time.Millisecond

// NewBus returns a bus holding up to buffer undelivered events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 100
	}
	return &Bus{events: make(chan Event, buffer)}
}

// Publish enqueues ev, dropping it if the buffer stays full past a short timeout.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	select {
	case b.events <- ev:
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.events <- ev:
		case <-timer.C:
			b.dropped.Inc()
		}
	}
}

// Subscribe blocks for the next event. It returns false once the bus is
// closed and drained or ctx is done.
func (b *Bus) Subscribe(ctx context.Context) (Event, bool) {
	select {
	case ev, ok := <-b.events:
		if !ok {
			return Event{}, false
		}
		return ev, true
	case <-ctx.Done():
		return Event{}, false
	}
}

// Close stops accepting events.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.events)
}

// Dropped returns the number of events discarded on a full buffer.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
