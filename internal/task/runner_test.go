package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gantryhost/gantry/internal/bus"
	"github.com/gantryhost/gantry/internal/capability"
)

// recordingTask counts its own runs.
type recordingTask struct {
	name  string
	every int
	fail  error

	mu   sync.Mutex
	runs int
}

func (r *recordingTask) Name() string    { return r.name }
func (r *recordingTask) EveryTicks() int { return r.every }

func (r *recordingTask) OnTick(context.Context) error {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()
	return r.fail
}

func (r *recordingTask) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

// taskResolver serves a fixed task set for the tick contract.
type taskResolver struct {
	tasks []any
}

func (t *taskResolver) Resolve(capability.Contract) (any, bool, error) {
	return nil, false, nil
}

func (t *taskResolver) ResolveWhere(capability.Contract, capability.Predicate) (any, bool, error) {
	return nil, false, nil
}

func (t *taskResolver) ResolveAll(contract capability.Contract) ([]any, error) {
	if contract != capability.ContractTask {
		return nil, nil
	}
	return t.tasks, nil
}

func (t *taskResolver) ResolveAllWhere(contract capability.Contract, _ capability.Predicate) ([]any, error) {
	return t.ResolveAll(contract)
}

func publishTicks(b *bus.Bus, n int) {
	for i := 0; i < n; i++ {
		b.Publish(bus.Event{Topic: bus.TopicTick})
	}
}

func waitRuns(t *testing.T, task *recordingTask, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if task.count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d runs, got %d", want, task.count())
}

func TestRunnerDrivesEveryTick(t *testing.T) {
	b := bus.New()
	defer b.Close()
	task := &recordingTask{name: "beat", every: 1}
	runner := NewRunner(&taskResolver{tasks: []any{task}}, b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	// Give the runner time to subscribe before the first publish.
	time.Sleep(20 * time.Millisecond)
	publishTicks(b, 3)
	waitRuns(t, task, 3)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop on context cancellation")
	}
}

func TestRunnerHonoursCadence(t *testing.T) {
	b := bus.New()
	defer b.Close()
	slow := &recordingTask{name: "slow", every: 3}
	fast := &recordingTask{name: "fast", every: 0}
	runner := NewRunner(&taskResolver{tasks: []any{slow, fast}}, b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	time.Sleep(20 * time.Millisecond)
	publishTicks(b, 6)
	waitRuns(t, fast, 6)
	waitRuns(t, slow, 2)
}

func TestRunnerSurvivesTaskErrors(t *testing.T) {
	b := bus.New()
	defer b.Close()
	failing := &recordingTask{name: "flaky", every: 1, fail: errors.New("boom")}
	healthy := &recordingTask{name: "steady", every: 1}
	runner := NewRunner(&taskResolver{tasks: []any{failing, healthy}}, b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	time.Sleep(20 * time.Millisecond)
	publishTicks(b, 2)
	waitRuns(t, failing, 2)
	waitRuns(t, healthy, 2)
}

func TestRunnerStopsWhenBusCloses(t *testing.T) {
	b := bus.New()
	runner := NewRunner(&taskResolver{}, b, nil)

	done := make(chan struct{})
	go func() {
		runner.Run(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	b.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop when the bus closed")
	}
}

func TestCommandTaskRequiresDispatcher(t *testing.T) {
	task := NewCommandTask("beat", 1, "echo", &taskResolver{})
	if err := task.OnTick(context.Background()); err == nil {
		t.Fatalf("expected missing dispatcher to fail")
	}
}
