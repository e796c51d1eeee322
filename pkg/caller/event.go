package caller

import (
	"sync"
	"time"
)

// EventKind identifies the type of bus activity event.
type EventKind string

const (
	EventServicesListed EventKind = "services_listed"
	EventNodeFetched    EventKind = "node_fetched"
	EventNodeFailed     EventKind = "node_failed"
	EventCallDone       EventKind = "call_done"
	EventPropertyRead   EventKind = "property_read"
	EventPropertyWrote  EventKind = "property_wrote"
	EventSignal         EventKind = "signal"
	EventCancelled      EventKind = "cancelled"
	EventError          EventKind = "error"
)

// Event is an immutable notification of orchestrator activity.
type Event struct {
	Kind      EventKind
	ID        uint64
	Service   string
	Path      string
	Timestamp time.Time
	Data      any
}

// Subscription receives events from an EventBus.
type Subscription struct {
	C  <-chan Event
	ch chan Event
}

// EventBus fans out events to all active subscribers. It is safe for
// concurrent use.
type EventBus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewEventBus creates an EventBus ready for use.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe creates a new subscription with the given channel buffer size.
// The caller should read from sub.C and eventually call Unsubscribe.
func (b *EventBus) Subscribe(bufSize int) *Subscription {
	ch := make(chan Event, bufSize)
	sub := &Subscription{C: ch, ch: ch}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (b *EventBus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Publish sends an event to all subscribers. If a subscriber's buffer is full
// the event is dropped for that subscriber to prevent slow consumers from
// stalling the workers.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
		}
	}
}
