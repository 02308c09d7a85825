// Package events fans stock events out to live subscribers.
package events

import (
	"sync"

	"sorbo/backend/internal/domain"
)

const subscriberBuffer = 16

// Hub delivers each published event to every subscriber. A subscriber whose
// buffer is full misses the event instead of blocking the publisher.
type Hub struct {
	mu      sync.RWMutex
	nextID  int
	subs    map[int]chan domain.StockEvent
	dropped int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan domain.StockEvent)}
}

// Subscribe returns the event channel and a cancel func that closes it.
func (h *Hub) Subscribe() (<-chan domain.StockEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan domain.StockEvent, subscriberBuffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

func (h *Hub) Publish(event domain.StockEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.dropped++
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped counts deliveries skipped because a subscriber was full.
func (h *Hub) Dropped() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
