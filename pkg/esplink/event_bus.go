package esplink

import (
	"fmt"
	"sync"
)

type subscription struct {
	id       uint64
	listener Listener
}

// EventBus fans decoded events out to every registered listener, in
// subscription order.
type EventBus struct {
	mu     sync.RWMutex
	subs   []*subscription
	nextID uint64
	log    *Logger
}

// NewEventBus constructs a ready EventBus.
func NewEventBus(log *Logger) *EventBus {
	if log == nil {
		log = DefaultLogger()
	}
	return &EventBus{log: log.WithComponent("event_bus")}
}

// Subscribe registers l and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (b *EventBus) Subscribe(l Listener) func() {
	if l == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	s := &subscription{id: b.nextID, listener: l}
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(s.id) })
	}
}

// SubscribeHandlers registers a per-type handler set.
func (b *EventBus) SubscribeHandlers(h Handlers) func() {
	return b.Subscribe(h.Listener())
}

func (b *EventBus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Broadcast delivers e to the listeners registered when the call started.
// Subscribing or unsubscribing from inside a listener only affects later
// broadcasts. A panicking listener is logged and skipped.
func (b *EventBus) Broadcast(e Event) {
	if e == nil {
		return
	}
	b.mu.RLock()
	snapshot := make([]*subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.RUnlock()

	for _, s := range snapshot {
		b.deliver(s, e)
	}
}

func (b *EventBus) deliver(s *subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithField("listener", s.id).
				WithField("event", string(e.EventType())).
				WithError(fmt.Errorf("%v", r)).
				Error("Listener panicked")
		}
	}()
	s.listener(e)
}

// Len returns the current subscriber count.
func (b *EventBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
