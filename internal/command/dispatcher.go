package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gantryhost/gantry/internal/capability"
)

// Dispatcher resolves commands by declared name at dispatch time, so a
// command dropped into the plugin directory is callable as soon as its
// export lands and stops being callable the moment it is removed.
type Dispatcher struct {
	resolver capability.Resolver
	log      *slog.Logger
}

// NewDispatcher wires a dispatcher to the live resolver.
func NewDispatcher(resolver capability.Resolver, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{resolver: resolver, log: log}
}

// Dispatch runs the command named name. Absence of the command is reported
// as ErrUnknownCommand; an ambiguous name is a configuration defect and the
// resolver's error propagates untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args ...string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("command: name is required")
	}
	instance, ok, err := d.resolver.ResolveWhere(capability.ContractCommand, capability.WithName(trimmed))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, trimmed)
	}
	cmd, ok := instance.(Command)
	if !ok {
		return "", fmt.Errorf("command: export named %s is %T, not a Command", trimmed, instance)
	}
	d.log.Debug("command: dispatch", "name", trimmed, "args", len(args))
	return cmd.Run(ctx, args...)
}
