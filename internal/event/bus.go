package event

import (
	"sync"

	"github.com/rs/zerolog"
)

// Type enumerates application-wide session events.
type Type string

const (
	TypeLogin          Type = "login"
	TypeLogout         Type = "logout"
	TypeUnauthorized   Type = "unauthorized"
	TypeSessionExpired Type = "session_expired"
	TypeRefreshUser    Type = "refresh_user"
)

// Event is a broadcast notification. Payload is optional and event-specific.
type Event struct {
	Type    Type
	Payload any
}

// Bus is a typed publish/subscribe bus decoupling session state transitions
// from the components that react to them (cache clearing, UI redirects).
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]subscription
	nextID int
	log    zerolog.Logger
}

type subscription struct {
	types map[Type]bool // nil means all types
	ch    chan Event
}

// NewBus creates an event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[int]subscription),
		log:  log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a listener for the given event types (all types if none
// given). It returns the receive channel and an unsubscribe function.
func (b *Bus) Subscribe(types ...Type) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var filter map[Type]bool
	if len(types) > 0 {
		filter = make(map[Type]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
	}

	id := b.nextID
	b.nextID++

	// Buffered so a slow consumer does not block publishers.
	ch := make(chan Event, 16)
	b.subs[id] = subscription{types: filter, ch: ch}

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub.ch)
		}
	}
	return ch, unsubscribe
}

// Publish broadcasts an event to all matching subscribers. Delivery is
// non-blocking: if a subscriber's buffer is full the event is dropped for
// that subscriber and logged.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, sub := range b.subs {
		if sub.types != nil && !sub.types[evt.Type] {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.log.Warn().Int("subscriber", id).Str("event", string(evt.Type)).
				Msg("Subscriber buffer full, event dropped")
		}
	}
}

// Emit is shorthand for Publish with no payload.
func (b *Bus) Emit(t Type) {
	b.Publish(Event{Type: t})
}
