// internal/loop/loop.go
//
// The loop turns wall-clock time into a broadcast: one Tick on the event
// bus per interval, for as long as the loop is running. Subscribers
// throttle themselves; the loop applies no back-pressure of its own.

package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gantryhost/gantry/internal/bus"
)

// DefaultInterval is the tick cadence.
const DefaultInterval = time.Second

// ErrAlreadyStarted reports a second Start call. Starting twice is a
// programmer error, not an operational condition: a loop runs once and a
// stopped loop stays stopped.
var ErrAlreadyStarted = errors.New("loop: already started")

// State is the loop lifecycle position.
type State int32

const (
	StateNotStarted State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Publisher is the slice of the event bus the loop needs.
type Publisher interface {
	Publish(bus.Event)
}

// Tick is the payload carried by each heartbeat event.
type Tick struct {
	Seq uint64
}

// Option customizes Loop construction.
type Option func(*Loop)

// WithInterval overrides the tick cadence.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithLogger injects a logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// Loop publishes Ticks on a fixed cadence. Transitions are NotStarted ->
// Running exactly once and Running -> Stopped at most once; Stopped is
// terminal.
type Loop struct {
	publisher Publisher
	interval  time.Duration
	log       *slog.Logger

	state atomic.Int32
	done  chan struct{}
}

// New builds a loop over the given publisher.
func New(publisher Publisher, opts ...Option) *Loop {
	l := &Loop{
		publisher: publisher,
		interval:  DefaultInterval,
		log:       slog.Default(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Start launches the timer goroutine. The optional ctx stops the loop when
// cancelled, with the same effect as an explicit Stop: future ticks cease,
// in-flight subscriber work is not interrupted. Any second Start —
// including after Stop — returns ErrAlreadyStarted.
func (l *Loop) Start(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(StateNotStarted), int32(StateRunning)) {
		return fmt.Errorf("%w (state %s)", ErrAlreadyStarted, l.State())
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go l.run(ctx)
	l.log.Debug("loop: started", "interval", l.interval)
	return nil
}

// MustStart panics on Start failure, for composition roots where a double
// start can only be a bug.
func (l *Loop) MustStart(ctx context.Context) {
	if err := l.Start(ctx); err != nil {
		panic(err)
	}
}

// Stop transitions to Stopped and releases the timer. The first call wins;
// every later call is a no-op. After Stop returns, no new tick will be
// published.
func (l *Loop) Stop() {
	if l.state.CompareAndSwap(int32(StateRunning), int32(StateStopped)) ||
		l.state.CompareAndSwap(int32(StateNotStarted), int32(StateStopped)) {
		close(l.done)
		l.log.Debug("loop: stopped")
	}
}

// State returns the loop's lifecycle position.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	var seq uint64
	for {
		select {
		case <-l.done:
			return
		case <-ctx.Done():
			l.Stop()
			return
		case at := <-ticker.C:
			if !l.enabled(ctx) {
				return
			}
			seq++
			l.publisher.Publish(bus.Event{
				Topic:   bus.TopicTick,
				At:      at,
				Payload: Tick{Seq: seq},
			})
		}
	}
}

// enabled is the publication predicate: still running, and not cancelled.
func (l *Loop) enabled(ctx context.Context) bool {
	return l.State() == StateRunning && ctx.Err() == nil
}
