// Package broadcast implements the many-to-many pub/sub bus between the
// session task (and HTTP handlers) and connected browser sockets. It is
// lossy under slow consumers by design: a subscriber that cannot keep up
// drops messages rather than stalling the producer.
package broadcast

import (
	"sync"

	"github.com/rs/zerolog"
)

// Event is one message pushed to every current subscriber. Kind names the
// event (trade_opened, trade_update, trade_result, lot_status,
// auto_trade_status, decision, history_marker); Payload carries its JSON-serializable
// body.
type Event struct {
	Kind    string
	Payload interface{}
}

// Subscriber is a bounded mailbox for one connected browser socket.
type Subscriber struct {
	ch chan Event
}

// Events returns the channel the subscriber should range over.
func (s *Subscriber) Events() <-chan Event { return s.ch }

const subscriberBuffer = 64

// Hub is the broadcast sink. The zero value is not usable; construct
// with NewHub.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]bool
	log         zerolog.Logger
}

// NewHub constructs an empty Hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]bool),
		log:         log.With().Str("component", "broadcast_hub").Logger(),
	}
}

// Register adds a new subscriber and returns it; the caller must
// Unregister it when the browser socket disconnects.
func (h *Hub) Register() *Subscriber {
	sub := &Subscriber{ch: make(chan Event, subscriberBuffer)}
	h.mu.Lock()
	h.subscribers[sub] = true
	h.mu.Unlock()
	return sub
}

// Unregister removes a subscriber and closes its channel.
func (h *Hub) Unregister(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.ch)
	}
}

// Broadcast fans an event out to every current subscriber. Slow
// consumers drop the message instead of blocking the producer.
func (h *Hub) Broadcast(kind string, payload interface{}) {
	ev := Event{Kind: kind, Payload: payload}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers {
		select {
		case sub.ch <- ev:
		default:
			h.log.Warn().Str("kind", kind).Msg("subscriber too slow, dropping broadcast event")
		}
	}
}

// SubscriberCount reports how many subscribers are currently registered.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
