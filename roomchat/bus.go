package roomchat

import (
	"sync"

	"github.com/rs/zerolog"
)

// Handler receives events published on the Bus.
type Handler func(Event)

type subscription struct {
	id int
	fn Handler
}

// Bus is a typed publish/subscribe registry. Publish is synchronous and
// invokes handlers in registration order; a panicking handler is isolated
// so the rest still run. Events with no subscribers are dropped.
type Bus struct {
	log zerolog.Logger

	mu     sync.Mutex
	nextID int
	subs   map[EventType][]subscription
}

// NewBus creates an empty bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		log:  log,
		subs: make(map[EventType][]subscription),
	}
}

// Subscribe registers a handler for one event type and returns its release
// func. Releasing twice is safe.
func (b *Bus) Subscribe(t EventType, fn Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[t]
		for i, s := range list {
			if s.id == id {
				b.subs[t] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to every handler registered for its type.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	list := make([]subscription, len(b.subs[ev.Type]))
	copy(list, b.subs[ev.Type])
	b.mu.Unlock()

	for _, s := range list {
		b.invoke(s, ev)
	}
}

func (b *Bus) invoke(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("event_type", string(ev.Type)).
				Msg("event handler panicked")
		}
	}()
	s.fn(ev)
}

// Clear removes every subscription. Used on full client teardown.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.subs = make(map[EventType][]subscription)
	b.mu.Unlock()
}
