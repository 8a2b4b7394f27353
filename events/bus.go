package events

import (
	"sync"

	"pillar-api/types"
)

const subscriptionBuffer = 256

// Subscription is one listener's handle on the bus. Events are read from
// Events(); the channel is closed when the subscription is removed.
type Subscription struct {
	id int
	ch chan types.SyncEvent
}

// Events returns the channel this subscription receives on.
func (s *Subscription) Events() <-chan types.SyncEvent {
	return s.ch
}

// Bus is the in-process sync event hub. It is constructed once at boot and
// passed by reference to everything that publishes or listens. Events are
// fanned out synchronously to every current subscriber; nothing is buffered
// beyond each subscriber's channel and nothing is persisted. An event
// published while nobody listens is dropped, which is fine because clients
// re-fetch full state after any gap.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*Subscription
	nextID int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]*Subscription)}
}

// Subscribe registers a new listener. The caller must Unsubscribe when done;
// a listener left behind after its connection closed is a leak.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &Subscription{id: b.nextID, ch: make(chan types.SyncEvent, subscriptionBuffer)}
	b.subs[s.id] = s
	return s
}

// Unsubscribe removes a listener and closes its channel. Safe to call more
// than once.
func (b *Bus) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s.id]; ok {
		delete(b.subs, s.id)
		close(s.ch)
	}
}

// Publish delivers the event to every current subscriber. Delivery into a
// full subscriber channel is dropped rather than blocking the publisher;
// a client that slow has already lost ordering and will re-fetch.
func (b *Bus) Publish(e types.SyncEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		select {
		case s.ch <- e:
		default:
		}
	}
}

// Len reports the number of registered listeners.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
