package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// Handler receives published events. Handlers run on their own goroutine
// and must not block for long.
type Handler func(event *Event)

// SubscriptionID identifies a subscription for Unsubscribe
type SubscriptionID uint64

type subscription struct {
	handler Handler
	id      SubscriptionID
}

// Bus fans events out to subscribers
type Bus struct {
	subscribers map[EventType][]subscription
	log         zerolog.Logger
	mu          sync.RWMutex
	nextID      SubscriptionID
}

// NewBus creates an empty bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[EventType][]subscription),
		log:         log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers handler for eventType
func (b *Bus) Subscribe(eventType EventType, handler Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{handler: handler, id: b.nextID})
	return b.nextID
}

// Unsubscribe removes a subscription from every event type
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		kept := subs[:0]
		for _, s := range subs {
			if s.id != id {
				kept = append(kept, s)
			}
		}
		b.subscribers[eventType] = kept
	}
}

// Emit delivers event to every subscriber of its type asynchronously
func (b *Bus) Emit(event *Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subscribers[event.Type]))
	copy(subs, b.subscribers[event.Type])
	b.mu.RUnlock()

	for _, s := range subs {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error().
						Interface("panic", r).
						Str("event_type", string(event.Type)).
						Msg("Event handler panicked")
				}
			}()
			h(event)
		}(s.handler)
	}
}

// SubscriberCount returns the number of handlers for eventType
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}
