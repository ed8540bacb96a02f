package peers

import (
	"sync"
	"time"

	"github.com/sheerbytes/bytebridge/pkg/protocol"
)

// outboxSize bounds the envelopes queued for one connection.
const outboxSize = 256

// connection holds the outbox of one live websocket.
type connection struct {
	send chan protocol.Envelope
	done chan struct{}
}

// Hub tracks live rendezvous connections by connection id. Each connection gets a
// writer goroutine so envelopes queued for it are written in order and never
// concurrently.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*connection
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]*connection),
	}
}

// Add registers a connection. send performs the actual write; once it fails the
// writer stops consuming. The returned remove function unregisters the connection
// and waits briefly for its writer to drain.
func (h *Hub) Add(connID string, send func(env protocol.Envelope) error) (remove func()) {
	c := &connection{
		send: make(chan protocol.Envelope, outboxSize),
		done: make(chan struct{}),
	}

	go func() {
		defer close(c.done)
		for env := range c.send {
			if err := send(env); err != nil {
				return
			}
		}
	}()

	h.mu.Lock()
	if old, exists := h.conns[connID]; exists {
		close(old.send)
	}
	h.conns[connID] = c
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if h.conns[connID] != c {
				h.mu.Unlock()
				return
			}
			delete(h.conns, connID)
			close(c.send)
			h.mu.Unlock()

			select {
			case <-c.done:
			case <-time.After(1 * time.Second):
			}
		})
	}
}

// SendTo queues env for connID. It returns false when the connection is unknown or
// its outbox is full; a full outbox drops the envelope rather than blocking the caller.
func (h *Hub) SendTo(connID string, env protocol.Envelope) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, exists := h.conns[connID]
	if !exists {
		return false
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
