package builtin

import (
	"log/slog"
	"testing"

	"github.com/gantryhost/gantry/internal/bus"
	"github.com/gantryhost/gantry/internal/capability"
)

func TestExportsAreWellFormed(t *testing.T) {
	b := bus.New()
	defer b.Close()
	static, err := capability.NewStatic(Exports(slog.Default(), b)...)
	if err != nil {
		t.Fatalf("static catalog: %v", err)
	}
	exports := static.Exports()
	if len(exports) == 0 {
		t.Fatalf("expected builtin exports")
	}
	seen := make(map[capability.Contract]bool)
	for _, export := range exports {
		if err := export.Validate(); err != nil {
			t.Fatalf("export %s: %v", export.Key(), err)
		}
		if export.Policy != capability.PolicyShared {
			t.Fatalf("builtins are host singletons, got %q for %s", export.Policy, export.Key())
		}
		seen[export.Contract] = true
	}
	for _, contract := range []capability.Contract{
		capability.ContractEventBus,
		capability.ContractLogger,
		capability.ContractDispatcher,
		capability.ContractGreeter,
	} {
		if !seen[contract] {
			t.Fatalf("missing builtin for %s", contract)
		}
	}
}

func TestHostGreeter(t *testing.T) {
	b := bus.New()
	defer b.Close()
	var greeter Greeter
	for _, export := range Exports(slog.Default(), b) {
		if export.Contract != capability.ContractGreeter {
			continue
		}
		instance, err := export.Factory(nil)
		if err != nil {
			t.Fatalf("greeter factory: %v", err)
		}
		g, ok := instance.(Greeter)
		if !ok {
			t.Fatalf("expected a Greeter, got %T", instance)
		}
		greeter = g
	}
	if greeter == nil {
		t.Fatalf("no greeter export")
	}
	if got := greeter.Greet("crew"); got != "hello, crew" {
		t.Fatalf("unexpected greeting %q", got)
	}
	if got := greeter.Greet(""); got != "hello, world" {
		t.Fatalf("unexpected default greeting %q", got)
	}
}
