package notifications

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/bloomcart/bloomcart-backend/pkg/logger"
)

// Event is the payload pushed to live back-office subscribers.
type Event struct {
	NotificationID uuid.UUID  `json:"notification_id"`
	OrderID        *uuid.UUID `json:"order_id,omitempty"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
}

const subscriberBuffer = 16

// Hub fans notification events out to in-process subscribers. A subscriber
// that falls behind its buffer loses events rather than blocking publishers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]chan Event
	logg   *logger.Logger
	closed bool
}

// NewHub builds an empty hub.
func NewHub(logg *logger.Logger) *Hub {
	return &Hub{
		subs: map[uuid.UUID]chan Event{},
		logg: logg,
	}
}

// Subscribe registers a new listener. The returned cancel function must be
// called when the listener goes away.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	id := uuid.New()
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking.
func (h *Hub) Publish(ctx context.Context, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
			if h.logg != nil {
				h.logg.Warn(ctx, "dropping notification event for slow subscriber")
			}
		}
	}
}

// Close tears down every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// SubscriberCount reports how many listeners are attached.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
