package events

import (
	"sync"
	"time"
)

// Handler receives published events. Handlers run on the publishing goroutine
// and must not block.
type Handler func(event *Event)

// Bus fans events out to subscribers by type
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[EventType]map[int]Handler
}

// NewBus creates an empty event bus
func NewBus() *Bus {
	return &Bus{handlers: make(map[EventType]map[int]Handler)}
}

// Subscribe registers handler for the given types (all types when none are
// given) and returns a function that removes the subscription.
func (b *Bus) Subscribe(handler Handler, types ...EventType) (unsubscribe func()) {
	if len(types) == 0 {
		types = AllTypes
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	for _, t := range types {
		if b.handlers[t] == nil {
			b.handlers[t] = make(map[int]Handler)
		}
		b.handlers[t][id] = handler
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for _, t := range types {
				delete(b.handlers[t], id)
			}
		})
	}
}

// Publish delivers an event to every subscriber of its type
func (b *Bus) Publish(module string, data EventData) *Event {
	event := &Event{
		Type:      data.EventType(),
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.Type]))
	for _, h := range b.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	return event
}

// Subscribers returns the number of subscriptions for an event type
func (b *Bus) Subscribers(t EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[t])
}
