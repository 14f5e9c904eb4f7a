// Package events carries collection change notifications between the local
// store, the replication engine and any UI-facing listener.
package events

import "sync"

// Topic names a change stream.
type Topic string

const (
	TopicUsers   Topic = "users"
	TopicBatches Topic = "batches"
	TopicOrders  Topic = "orders"
	TopicConfig  Topic = "config"
)

// Origin tells listeners where a change came from.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
	// OriginReset marks the re-seed after a local reset. It is never replicated.
	OriginReset Origin = "reset"
)

// Event is a payload-free change notification; listeners re-read the store.
type Event struct {
	Topic  Topic  `json:"topic"`
	Origin Origin `json:"origin"`
}

// Handler reacts to an event. Handlers run on the publisher's goroutine and
// must tolerate duplicate or out-of-order delivery.
type Handler func(Event)

type subscription struct {
	id int
	fn Handler
}

// Bus is an in-process publish/subscribe hub keyed by topic.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Topic][]subscription
}

// NewBus builds an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers fn for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[topic]
		for i, s := range list {
			if s.id == id {
				b.subs[topic] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// SubscribeAll registers fn on every topic.
func (b *Bus) SubscribeAll(fn Handler) func() {
	topics := []Topic{TopicUsers, TopicBatches, TopicOrders, TopicConfig}
	cancels := make([]func(), 0, len(topics))
	for _, t := range topics {
		cancels = append(cancels, b.Subscribe(t, fn))
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

// Publish delivers evt to every handler subscribed to its topic.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	list := make([]subscription, len(b.subs[evt.Topic]))
	copy(list, b.subs[evt.Topic])
	b.mu.RUnlock()

	for _, s := range list {
		s.fn(evt)
	}
}
