// internal/bus/bus.go
//
// The event bus is itself a capability: the host registers one shared Bus
// export and everything else (tick loop, tasks, dashboard) resolves it.
// Delivery is fan-out over buffered per-subscriber channels with
// drop-oldest overflow, so a slow subscriber cannot stall a publisher.

package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TopicTick is the topic the tick loop publishes its heartbeat on.
const TopicTick = "tick"

const defaultSubscriberCapacity = 64

// Event is one bus notification.
type Event struct {
	ID      string
	Topic   string
	At      time.Time
	Payload any
}

// Option customizes Bus construction.
type Option func(*Bus)

// WithSubscriberCapacity overrides the buffered channel size per subscriber.
func WithSubscriberCapacity(capacity int) Option {
	return func(b *Bus) {
		if capacity > 0 {
			b.channelSize = capacity
		}
	}
}

// WithLogger injects a logger for drop diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(b *Bus) {
		if log != nil {
			b.log = log
		}
	}
}

// Bus routes events to topic subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
	channelSize int
	closed      bool
	log         *slog.Logger
}

// Subscription is an active topic subscription.
type Subscription struct {
	Events <-chan Event
	cancel func()
}

// Close terminates the subscription. Idempotent.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// New constructs a bus with sane defaults.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscribers: map[string]map[*subscriber]struct{}{},
		channelSize: defaultSubscriberCapacity,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Subscribe registers for events on one topic.
func (b *Bus) Subscribe(topic string) Subscription {
	sub := newSubscriber(b.channelSize, b.log)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return Subscription{Events: sub.channel()}
	}
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = map[*subscriber]struct{}{}
	}
	b.subscribers[topic][sub] = struct{}{}
	b.mu.Unlock()
	return Subscription{
		Events: sub.channel(),
		cancel: func() {
			b.removeSubscriber(topic, sub)
		},
	}
}

// Publish stamps the event (ID, At) when unset and fans it out to every
// subscriber of its topic. Publish never blocks on slow subscribers.
func (b *Bus) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]*subscriber, 0, len(b.subscribers[event.Topic]))
	for sub := range b.subscribers[event.Topic] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()
	for _, sub := range subs {
		sub.deliver(event)
	}
}

// Close shuts the bus down and closes every subscriber channel. Idempotent.
// Bus satisfies io.Closer so a shared bus export is disposed with its engine.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var subs []*subscriber
	for _, topicSubs := range b.subscribers {
		for sub := range topicSubs {
			subs = append(subs, sub)
		}
	}
	b.subscribers = map[string]map[*subscriber]struct{}{}
	b.mu.Unlock()
	for _, sub := range subs {
		sub.close()
	}
	return nil
}

func (b *Bus) removeSubscriber(topic string, sub *subscriber) {
	b.mu.Lock()
	if subs := b.subscribers[topic]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subscribers, topic)
		}
	}
	b.mu.Unlock()
	sub.close()
}

type subscriber struct {
	ch      chan Event
	log     *slog.Logger
	closed  bool
	closeMu sync.Mutex
}

func newSubscriber(capacity int, log *slog.Logger) *subscriber {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	return &subscriber{ch: make(chan Event, capacity), log: log}
}

func (s *subscriber) channel() <-chan Event {
	return s.ch
}

func (s *subscriber) deliver(event Event) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
	default:
		select {
		case dropped := <-s.ch:
			if s.log != nil {
				s.log.Warn("bus: dropped event", "topic", dropped.Topic, "reason", "queue overflow")
			}
		default:
		}
		s.ch <- event
	}
}

func (s *subscriber) close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
