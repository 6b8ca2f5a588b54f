// internal/task/task.go
//
// Scheduled tasks consume the tick heartbeat. The loop applies no
// per-subscriber throttling, so each task declares how many ticks to let
// pass between runs and the runner enforces it on the consumer side.

package task

import (
	"context"
	"fmt"

	"github.com/gantryhost/gantry/internal/capability"
)

// Task is the contract every scheduled task export implements.
type Task interface {
	Name() string
	// EveryTicks is the task's own cadence in ticks. Values <= 1 run on
	// every tick.
	EveryTicks() int
	OnTick(ctx context.Context) error
}

// dispatcher is the slice of the command dispatcher a command task needs.
type dispatcher interface {
	Dispatch(ctx context.Context, name string, args ...string) (string, error)
}

// CommandTask runs a named command on a tick cadence. It keeps the resolver
// handle rather than a resolved dispatcher, re-querying on every tick so a
// swapped dispatcher (or command) takes effect without rebuilding the task.
type CommandTask struct {
	name     string
	every    int
	command  string
	resolver capability.Resolver
}

// NewCommandTask builds a task that dispatches command every `every` ticks.
func NewCommandTask(name string, every int, command string, resolver capability.Resolver) *CommandTask {
	return &CommandTask{name: name, every: every, command: command, resolver: resolver}
}

// Name implements Task.
func (t *CommandTask) Name() string {
	return t.name
}

// EveryTicks implements Task.
func (t *CommandTask) EveryTicks() int {
	return t.every
}

// OnTick implements Task.
func (t *CommandTask) OnTick(ctx context.Context) error {
	instance, ok, err := t.resolver.Resolve(capability.ContractDispatcher)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("task: %s: no command dispatcher available", t.name)
	}
	d, ok := instance.(dispatcher)
	if !ok {
		return fmt.Errorf("task: %s: dispatcher export is %T", t.name, instance)
	}
	if _, err := d.Dispatch(ctx, t.command); err != nil {
		return fmt.Errorf("task: %s: %w", t.name, err)
	}
	return nil
}
