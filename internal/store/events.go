package store

import (
	"sync"

	"github.com/tinfoilsh/tinfoil-chat-sub004/models"
)

// eventHub fans store change events out to subscribers. Delivery is
// best-effort: publishing never blocks the mutation path, so a subscriber
// that stops draining its channel drops events rather than stalling saves.
type eventHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan models.ChangeEvent
}

const subscriberBuffer = 16

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[int]chan models.ChangeEvent)}
}

func (h *eventHub) subscribe() (<-chan models.ChangeEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan models.ChangeEvent, subscriberBuffer)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}

	return ch, cancel
}

func (h *eventHub) publish(event models.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- event:
		default: // slow subscriber, drop
		}
	}
}
