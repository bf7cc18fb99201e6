// Package event provides the live publish channel for session output using watermill.
//
// Delivery is at-most-once and best-effort: subscribers present at publish time
// receive the event, absent subscribers miss it, and nothing is buffered for
// replay. Durable history lives in the log store, not here.
package event

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/agentboard-ai/agentboard/internal/logging"
)

// Topic is the watermill topic all events are mirrored onto.
const Topic = "agentboard.events"

// queueSize bounds each subscription's delivery queue. A subscriber that
// falls this far behind starts losing events rather than stalling publishers.
const queueSize = 64

// Subscriber is a function that receives published events.
type Subscriber func(e Event)

// delivery is one queued event. done, when non-nil, is closed after the
// subscriber has run, so PublishSync can wait.
type delivery struct {
	e    Event
	done chan struct{}
}

// subscription owns an ordered delivery queue drained by a single goroutine,
// so events published for one session reach the subscriber in publish order
// while a slow subscriber never blocks the publishing session.
type subscription struct {
	id uint64
	fn Subscriber

	queue    chan delivery
	stop     chan struct{}
	stopOnce sync.Once
}

func newSubscription(id uint64, fn Subscriber) *subscription {
	s := &subscription{
		id:    id,
		fn:    fn,
		queue: make(chan delivery, queueSize),
		stop:  make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *subscription) drain() {
	for {
		select {
		case <-s.stop:
			return
		case d := <-s.queue:
			s.fn(d.e)
			if d.done != nil {
				close(d.done)
			}
		}
	}
}

// halt stops the drainer; queued events not yet delivered are dropped.
func (s *subscription) halt() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// enqueue queues an event without blocking. A full queue drops the event.
func (s *subscription) enqueue(e Event) {
	select {
	case s.queue <- delivery{e: e}:
	case <-s.stop:
	default:
		logging.Warn().Str("sessionKey", e.SessionKey).Str("type", string(e.Type)).
			Msg("subscriber queue full, dropping event")
	}
}

// deliverSync queues an event and waits for the subscriber to run it. It goes
// through the same queue as enqueue so sync and async publishes for one
// session cannot reorder.
func (s *subscription) deliverSync(e Event) {
	done := make(chan struct{})
	select {
	case s.queue <- delivery{e: e, done: done}:
		select {
		case <-done:
		case <-s.stop:
		}
	case <-s.stop:
	}
}

// Bus fans session events out to live subscribers. Subscriptions are scoped to
// a session key or global. Each Bus instance is owned by whoever constructs it;
// there is no package-level singleton.
type Bus struct {
	mu sync.RWMutex

	// Watermill pub/sub infrastructure for potential middleware or a
	// distributed backend later.
	pubsub *gochannel.GoChannel

	// Direct subscriber tracking preserves type information on delivery.
	byKey  map[string][]*subscription
	global []*subscription

	nextID uint64
	closed bool
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		byKey: make(map[string][]*subscription),
	}
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers a subscriber for events of one session key.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(sessionKey string, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	sub := newSubscription(b.newID(), fn)
	b.byKey[sessionKey] = append(b.byKey[sessionKey], sub)

	return func() {
		b.unsubscribe(sessionKey, sub.id)
	}
}

// SubscribeAll registers a subscriber for events of every session.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	sub := newSubscription(b.newID(), fn)
	b.global = append(b.global, sub)

	return func() {
		b.unsubscribeGlobal(sub.id)
	}
}

func (b *Bus) unsubscribe(sessionKey string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.byKey[sessionKey]
	for i, sub := range subs {
		if sub.id == id {
			sub.halt()
			b.byKey[sessionKey] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.byKey[sessionKey]) == 0 {
		delete(b.byKey, sessionKey)
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.global {
		if sub.id == id {
			sub.halt()
			b.global = append(b.global[:i], b.global[i+1:]...)
			break
		}
	}
}

// Publish queues an event for the session's subscribers and returns without
// waiting for delivery. Events published for one session reach each
// subscriber in publish order.
func (b *Bus) Publish(e Event) {
	for _, sub := range b.collect(e.SessionKey) {
		sub.enqueue(e)
	}
	b.bridge(e)
}

// PublishSync queues an event and returns after every subscriber has run it.
func (b *Bus) PublishSync(e Event) {
	for _, sub := range b.collect(e.SessionKey) {
		sub.deliverSync(e)
	}
	b.bridge(e)
}

// bridge mirrors the event onto the watermill topic for external consumers.
func (b *Bus) bridge(e Event) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", string(e.Type))
	msg.Metadata.Set("key", e.SessionKey)
	_ = b.pubsub.Publish(Topic, msg)
}

// collect snapshots the subscriptions for a key under the read lock.
func (b *Bus) collect(sessionKey string) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	subs := make([]*subscription, 0, len(b.byKey[sessionKey])+len(b.global))
	subs = append(subs, b.byKey[sessionKey]...)
	subs = append(subs, b.global...)
	return subs
}

// Close closes the bus and drops all subscribers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	for _, subs := range b.byKey {
		for _, sub := range subs {
			sub.halt()
		}
	}
	for _, sub := range b.global {
		sub.halt()
	}
	b.byKey = make(map[string][]*subscription)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}

// PubSub returns the underlying watermill GoChannel. Every published event
// is mirrored onto Topic as a JSON message, so a consumer subscribed here
// sees the same stream as the in-process subscribers.
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}
