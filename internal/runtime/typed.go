package runtime

import (
	"fmt"

	"github.com/gantryhost/gantry/internal/capability"
)

// Resolve is the typed single-resolution helper. Absence stays a normal
// result ((zero, false, nil)); a resolved instance of the wrong type is an
// error, since it means the contract's exports disagree about what the
// contract is.
func Resolve[T any](r capability.Resolver, contract capability.Contract) (T, bool, error) {
	var zero T
	instance, ok, err := r.Resolve(contract)
	if err != nil || !ok {
		return zero, false, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, false, fmt.Errorf("runtime: contract %s resolved to %T, want %T", contract, instance, zero)
	}
	return typed, true, nil
}

// ResolveNamed resolves the export of contract whose metadata name is name.
func ResolveNamed[T any](r capability.Resolver, contract capability.Contract, name string) (T, bool, error) {
	var zero T
	instance, ok, err := r.ResolveWhere(contract, capability.WithName(name))
	if err != nil || !ok {
		return zero, false, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, false, fmt.Errorf("runtime: contract %s (name %s) resolved to %T, want %T", contract, name, instance, zero)
	}
	return typed, true, nil
}
