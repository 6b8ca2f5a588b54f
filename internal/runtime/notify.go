package runtime

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gantryhost/gantry/internal/capability"
)

// ChangeKind classifies an export-changed notification.
type ChangeKind int

const (
	// ExportRemoved reports an export that disappeared from the index.
	ExportRemoved ChangeKind = iota
	// ExportAdded reports an export that appeared in the index.
	ExportAdded
)

func (k ChangeKind) String() string {
	switch k {
	case ExportRemoved:
		return "removed"
	case ExportAdded:
		return "added"
	default:
		return fmt.Sprintf("change(%d)", int(k))
	}
}

// Notification wraps one export identity change. Within a single delta the
// runtime publishes every removal before any addition.
type Notification struct {
	Kind   ChangeKind
	Export capability.Export
}

// Subscription is an active export-changed subscription.
type Subscription struct {
	Events <-chan Notification
	cancel func()
}

// Close terminates the subscription. Idempotent.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

const notifyCapacity = 64

// broadcaster fans notifications out to buffered subscriber channels with
// drop-oldest overflow, mirroring the event bus's delivery discipline.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[*notifySub]struct{}
	closed bool
	log    *slog.Logger
}

type notifySub struct {
	ch     chan Notification
	closed bool
}

func newBroadcaster(log *slog.Logger) *broadcaster {
	return &broadcaster{subs: map[*notifySub]struct{}{}, log: log}
}

func (b *broadcaster) subscribe() Subscription {
	sub := &notifySub{ch: make(chan Notification, notifyCapacity)}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return Subscription{Events: sub.ch}
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return Subscription{
		Events: sub.ch,
		cancel: func() { b.remove(sub) },
	}
}

func (b *broadcaster) publish(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			select {
			case dropped := <-sub.ch:
				b.log.Warn("runtime: dropped notification", "kind", dropped.Kind.String(), "key", dropped.Export.Key().String())
			default:
			}
			sub.ch <- n
		}
	}
}

func (b *broadcaster) remove(sub *notifySub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	sub.closed = true
	close(sub.ch)
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		sub.closed = true
		close(sub.ch)
	}
	b.subs = map[*notifySub]struct{}{}
}
