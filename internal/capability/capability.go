// internal/capability/capability.go
//
// This package defines the vocabulary the rest of the runtime composes with:
// contracts name abstract capabilities, exports provide implementations of
// them, and catalogs are the sources exports come from.

package capability

import (
	"fmt"
	"strings"
)

// Contract names an abstract capability other components depend on.
type Contract string

// Well-known contracts provided by the host binary. Plugins may export
// implementations of these or introduce contracts of their own.
const (
	ContractLogger     Contract = "logger"
	ContractEventBus   Contract = "event-bus"
	ContractCommand    Contract = "command"
	ContractTask       Contract = "task"
	ContractDispatcher Contract = "command-dispatcher"
	ContractGreeter    Contract = "greeter"
)

// Policy controls how often an export's factory runs.
type Policy string

const (
	// PolicyShared builds one instance per engine and reuses it for every
	// resolution until the export disappears or the engine is disposed.
	PolicyShared Policy = "shared"
	// PolicyPerResolve builds a fresh instance on every resolution.
	PolicyPerResolve Policy = "per-resolve"
)

// ParsePolicy maps manifest spellings onto a Policy. Empty input defaults
// to shared, matching the common case of capability singletons.
func ParsePolicy(raw string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(PolicyShared):
		return PolicyShared, nil
	case string(PolicyPerResolve), "nonshared", "non-shared":
		return PolicyPerResolve, nil
	default:
		return "", fmt.Errorf("capability: unknown policy %q", raw)
	}
}

// Metadata carries free-form export annotations used for filtered resolution.
type Metadata map[string]string

// NameKey is the metadata key conventionally holding an export's declared
// name, so dispatchers can resolve "the command named X".
const NameKey = "name"

// Get returns the value for key, tolerating a nil map.
func (m Metadata) Get(key string) string {
	if m == nil {
		return ""
	}
	return m[key]
}

// Clone returns an independent copy of the metadata map.
func (m Metadata) Clone() Metadata {
	if len(m) == 0 {
		return nil
	}
	clone := make(Metadata, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// Predicate filters exports by metadata during resolution.
type Predicate func(Metadata) bool

// WithName matches exports whose metadata name equals name.
func WithName(name string) Predicate {
	return func(m Metadata) bool {
		return m.Get(NameKey) == name
	}
}

// Resolver is the query surface of the composition engine. Factories receive
// one so constructor parameters resolve recursively, and may retain it to
// re-query a dependency on each use instead of pinning the value bound at
// construction time.
type Resolver interface {
	// Resolve returns the single instance for contract. Absence is not an
	// error: zero exports yields (nil, false, nil). Two or more exports
	// without a predicate yield an *AmbiguousExportError.
	Resolve(contract Contract) (any, bool, error)
	// ResolveWhere narrows by metadata. Zero matches yields
	// (nil, false, nil); more than one yields an *AmbiguousExportError.
	ResolveWhere(contract Contract, pred Predicate) (any, bool, error)
	// ResolveAll instantiates every export of contract. Per-export
	// construction failures are joined into the returned error and do not
	// suppress the surviving instances.
	ResolveAll(contract Contract) ([]any, error)
	// ResolveAllWhere is ResolveAll restricted by a metadata predicate.
	ResolveAllWhere(contract Contract, pred Predicate) ([]any, error)
}

// Factory constructs an export's instance. Dependencies are resolved through
// the supplied Resolver.
type Factory func(Resolver) (any, error)

// Composable is implemented by objects that are not themselves exports but
// want capabilities wired into them after construction.
type Composable interface {
	Compose(Resolver) error
}

// Export is one implementation of a contract, contributed by either the host
// binary or a file in the watched plugin directory.
type Export struct {
	Contract Contract
	// Provider identifies the implementation within its origin.
	Provider string
	// Origin is "builtin" for host exports or the source file path for
	// directory exports.
	Origin   string
	Policy   Policy
	Metadata Metadata
	Factory  Factory
}

// Key is an export's identity: the unit deltas and the shared-instance cache
// are keyed on.
type Key struct {
	Contract Contract
	Provider string
	Origin   string
}

// Key returns the export's identity.
func (e Export) Key() Key {
	return Key{Contract: e.Contract, Provider: e.Provider, Origin: e.Origin}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s@%s", k.Contract, k.Provider, k.Origin)
}

// Validate ensures the export can participate in composition.
func (e Export) Validate() error {
	if strings.TrimSpace(string(e.Contract)) == "" {
		return fmt.Errorf("capability: contract is required")
	}
	if strings.TrimSpace(e.Provider) == "" {
		return fmt.Errorf("capability: provider is required for contract %s", e.Contract)
	}
	if strings.TrimSpace(e.Origin) == "" {
		return fmt.Errorf("capability: origin is required for %s/%s", e.Contract, e.Provider)
	}
	if e.Policy != PolicyShared && e.Policy != PolicyPerResolve {
		return fmt.Errorf("capability: %s has invalid policy %q", e.Key(), e.Policy)
	}
	if e.Factory == nil {
		return fmt.Errorf("capability: %s has no factory", e.Key())
	}
	return nil
}
