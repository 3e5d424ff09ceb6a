package core

import "sync"

// Handler consumes one published event. Handlers run synchronously on the
// publisher's goroutine, so implementations must be fast and must not block.
type Handler func(Event)

// Subscription identifies one registered handler so it can be removed later.
// Per-run forwarding wiring holds these handles and tears them down when the
// run ends.
type Subscription struct {
	eventType EventType
	id        uint64
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus is a per-agent publish/subscribe registry for lifecycle events.
// Handlers for a type run in subscription order. All methods are safe for
// concurrent use; Publish holds no lock while invoking handlers, so handlers
// may publish to other buses (the forwarding case) without deadlocking.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[EventType][]subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: map[EventType][]subscriber{}}
}

// Subscribe registers a handler for one event type and returns its handle.
func (b *Bus) Subscribe(eventType EventType, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[eventType] = append(b.subs[eventType], subscriber{id: b.nextID, handler: h})
	return Subscription{eventType: eventType, id: b.nextID}
}

// Unsubscribe removes a previously registered handler. Unknown handles are
// ignored so teardown is idempotent.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[sub.eventType]
	for i := range list {
		if list[i].id == sub.id {
			b.subs[sub.eventType] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to every handler subscribed to its type.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	list := b.subs[e.Type]
	handlers := make([]Handler, len(list))
	for i, s := range list {
		handlers[i] = s.handler
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}
