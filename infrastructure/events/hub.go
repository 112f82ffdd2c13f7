// Package events fans out competition state-change notifications to the
// in-process listeners (status streams) and, optionally, to other replicas
// over NATS.
package events

import (
	"context"
	"sync"

	"github.com/ahrav/gavel-arena/internal/ports"
)

var (
	_ ports.EventPublisher  = (*Hub)(nil)
	_ ports.EventSubscriber = (*Hub)(nil)
)

// Hub delivers events to local subscribers synchronously. Subscribers must
// not block; stream connections hand events to a buffered channel.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]func(ports.Event)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]func(ports.Event))}
}

// Publish delivers ev to every current subscriber.
func (h *Hub) Publish(_ context.Context, ev ports.Event) error {
	h.mu.RLock()
	fns := make([]func(ports.Event), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
	return nil
}

// Subscribe registers fn. The returned function is safe to call more than
// once.
func (h *Hub) Subscribe(fn func(ports.Event)) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
