package telegraph

import (
	"context"
	"sync"
)

// subscriberBuffer is the per-subscriber queue depth. A subscriber that
// falls this far behind loses events; clients catch up through ListSince.
const subscriberBuffer = 64

// Broker is an in-process pub/sub hub. The HTTP event stream subscribes to
// it; the rest of the process publishes through Notify.
type Broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscription
	closed bool
}

type subscription struct {
	ch     chan Event
	filter func(Event) bool
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]*subscription)}
}

// Subscribe registers a subscriber. A nil filter receives every event. The
// returned cancel func unregisters it and closes the channel; it is safe to
// call more than once.
func (b *Broker) Subscribe(filter func(Event) bool) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = &subscription{ch: ch, filter: filter}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if s, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
		})
	}
}

// Notify implements Notifier. It never blocks; full subscribers miss the event.
func (b *Broker) Notify(_ context.Context, e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if s.filter != nil && !s.filter(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close unregisters and closes every subscriber. Later subscriptions get a
// closed channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.ch)
	}
}

// SessionFilter matches events about one session.
func SessionFilter(sessionID string) func(Event) bool {
	return func(e Event) bool { return e.SessionID == sessionID }
}
