package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gantryhost/gantry/internal/bus"
	"github.com/gantryhost/gantry/internal/capability"
)

// Runner subscribes to the tick topic and drives every task export. Tasks
// are re-resolved on each tick, so exports added or removed by a plugin
// refresh take effect at the next tick without restarting the runner.
type Runner struct {
	resolver capability.Resolver
	bus      *bus.Bus
	log      *slog.Logger
}

// NewRunner wires a runner to the resolver and bus.
func NewRunner(resolver capability.Resolver, b *bus.Bus, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{resolver: resolver, bus: b, log: log}
}

// Run consumes ticks until ctx is cancelled or the bus closes. Task errors
// are logged and never stop the runner.
func (r *Runner) Run(ctx context.Context) {
	sub := r.bus.Subscribe(bus.TopicTick)
	defer sub.Close()
	var ticks uint64
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Events:
			if !ok {
				return
			}
			ticks++
			r.dispatchAll(ctx, ticks)
		}
	}
}

func (r *Runner) dispatchAll(ctx context.Context, ticks uint64) {
	instances, err := r.resolver.ResolveAll(capability.ContractTask)
	if err != nil {
		r.log.Warn("task: resolve tasks", "error", err)
	}
	for _, instance := range instances {
		t, ok := instance.(Task)
		if !ok {
			r.log.Warn("task: export is not a Task", "type", fmt.Sprintf("%T", instance))
			continue
		}
		every := t.EveryTicks()
		if every > 1 && ticks%uint64(every) != 0 {
			continue
		}
		if err := t.OnTick(ctx); err != nil {
			r.log.Warn("task: tick failed", "task", t.Name(), "error", err)
		}
	}
}
