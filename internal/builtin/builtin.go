// internal/builtin/builtin.go
//
// The host binary's own capability exports. These seed the static catalog:
// the event bus, the logger, the command dispatcher, and a greeter used to
// prove end-to-end composition.

package builtin

import (
	"fmt"
	"log/slog"

	"github.com/gantryhost/gantry/internal/bus"
	"github.com/gantryhost/gantry/internal/capability"
	"github.com/gantryhost/gantry/internal/command"
)

// Greeter is the demonstration contract the host implements.
type Greeter interface {
	Greet(name string) string
}

type hostGreeter struct{}

func (hostGreeter) Greet(name string) string {
	if name == "" {
		name = "world"
	}
	return fmt.Sprintf("hello, %s", name)
}

// Exports returns the static catalog contents. The bus and logger are
// pre-built singletons owned by the caller; the dispatcher is constructed
// lazily so it can capture the live resolver.
func Exports(log *slog.Logger, b *bus.Bus) []capability.Export {
	return []capability.Export{
		{
			Contract: capability.ContractEventBus,
			Provider: "host-bus",
			Policy:   capability.PolicyShared,
			Metadata: capability.Metadata{capability.NameKey: "host-bus"},
			Factory: func(capability.Resolver) (any, error) {
				return b, nil
			},
		},
		{
			Contract: capability.ContractLogger,
			Provider: "host-logger",
			Policy:   capability.PolicyShared,
			Metadata: capability.Metadata{capability.NameKey: "host-logger"},
			Factory: func(capability.Resolver) (any, error) {
				return log, nil
			},
		},
		{
			Contract: capability.ContractDispatcher,
			Provider: "host-dispatcher",
			Policy:   capability.PolicyShared,
			Metadata: capability.Metadata{capability.NameKey: "host-dispatcher"},
			Factory: func(r capability.Resolver) (any, error) {
				return command.NewDispatcher(r, log), nil
			},
		},
		{
			Contract: capability.ContractGreeter,
			Provider: "host-greeter",
			Policy:   capability.PolicyShared,
			Metadata: capability.Metadata{capability.NameKey: "host-greeter"},
			Factory: func(capability.Resolver) (any, error) {
				return hostGreeter{}, nil
			},
		},
	}
}
