package plugins

import (
	"fmt"
	"strings"

	"github.com/gantryhost/gantry/internal/capability"
	"github.com/gantryhost/gantry/internal/command"
	"github.com/gantryhost/gantry/internal/task"
)

// Manifest is the on-disk schema of a plugin file: a list of export
// definitions contributed by one origin.
//
// The struct is intentionally narrow so the runtime can validate plugin
// metadata before wiring anything into the composition engine.
type Manifest struct {
	Exports []Definition `json:"exports" yaml:"exports"`
}

// Definition describes one export. Exactly one of Command, Task, or
// Construct decides how instances are built: Command and Task definitions
// construct host types directly, Construct names a function inside the
// same interpreted Go plugin file.
type Definition struct {
	Contract  string            `json:"contract" yaml:"contract"`
	Provider  string            `json:"provider" yaml:"provider"`
	Policy    string            `json:"policy,omitempty" yaml:"policy,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Command   *CommandSpec      `json:"command,omitempty" yaml:"command,omitempty"`
	Task      *TaskSpec         `json:"task,omitempty" yaml:"task,omitempty"`
	Construct string            `json:"construct,omitempty" yaml:"construct,omitempty"`
}

// CommandSpec declares a shell command export.
type CommandSpec struct {
	Exec string   `json:"exec" yaml:"exec"`
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`
}

// TaskSpec declares a scheduled task export that dispatches a command on a
// tick cadence.
type TaskSpec struct {
	EveryTicks int    `json:"every_ticks" yaml:"every_ticks"`
	Command    string `json:"command" yaml:"command"`
}

// Normalized returns a trimmed copy of the definition.
func (d Definition) Normalized() Definition {
	clone := Definition{
		Contract:  strings.TrimSpace(d.Contract),
		Provider:  strings.TrimSpace(d.Provider),
		Policy:    strings.TrimSpace(d.Policy),
		Construct: strings.TrimSpace(d.Construct),
	}
	if len(d.Metadata) > 0 {
		clone.Metadata = make(map[string]string, len(d.Metadata))
		for key, value := range d.Metadata {
			trimmed := strings.TrimSpace(key)
			if trimmed == "" {
				continue
			}
			clone.Metadata[trimmed] = strings.TrimSpace(value)
		}
	}
	if d.Command != nil {
		spec := CommandSpec{Exec: strings.TrimSpace(d.Command.Exec)}
		if len(d.Command.Args) > 0 {
			spec.Args = append([]string{}, d.Command.Args...)
		}
		clone.Command = &spec
	}
	if d.Task != nil {
		spec := TaskSpec{EveryTicks: d.Task.EveryTicks, Command: strings.TrimSpace(d.Task.Command)}
		clone.Task = &spec
	}
	return clone
}

// Validate ensures the definition is well-formed.
func (d Definition) Validate() error {
	normalized := d.Normalized()
	if normalized.Contract == "" {
		return fmt.Errorf("plugin: contract is required")
	}
	if normalized.Provider == "" {
		return fmt.Errorf("plugin: provider is required for contract %s", normalized.Contract)
	}
	if _, err := capability.ParsePolicy(normalized.Policy); err != nil {
		return fmt.Errorf("plugin: %s/%s: %w", normalized.Contract, normalized.Provider, err)
	}
	kinds := 0
	if normalized.Command != nil {
		kinds++
		if normalized.Command.Exec == "" {
			return fmt.Errorf("plugin: %s/%s: command exec is required", normalized.Contract, normalized.Provider)
		}
	}
	if normalized.Task != nil {
		kinds++
		if normalized.Task.Command == "" {
			return fmt.Errorf("plugin: %s/%s: task command is required", normalized.Contract, normalized.Provider)
		}
		if normalized.Task.EveryTicks < 0 {
			return fmt.Errorf("plugin: %s/%s: task every_ticks must be >= 0", normalized.Contract, normalized.Provider)
		}
	}
	if normalized.Construct != "" {
		kinds++
	}
	if kinds != 1 {
		return fmt.Errorf("plugin: %s/%s: exactly one of command, task, construct is required", normalized.Contract, normalized.Provider)
	}
	return nil
}

// name returns the export's declared name: the metadata name when present,
// the provider otherwise.
func (d Definition) name() string {
	if name := d.Metadata[capability.NameKey]; name != "" {
		return name
	}
	return d.Provider
}

// export turns a validated definition into a capability export. For
// construct definitions the caller supplies the factory bound to the
// interpreted plugin; command and task definitions build host types.
func (d Definition) export(origin string, construct capability.Factory) (capability.Export, error) {
	normalized := d.Normalized()
	if err := normalized.Validate(); err != nil {
		return capability.Export{}, err
	}
	policy, err := capability.ParsePolicy(normalized.Policy)
	if err != nil {
		return capability.Export{}, err
	}
	metadata := capability.Metadata{capability.NameKey: normalized.name()}
	for key, value := range normalized.Metadata {
		metadata[key] = value
	}
	export := capability.Export{
		Contract: capability.Contract(normalized.Contract),
		Provider: normalized.Provider,
		Origin:   origin,
		Policy:   policy,
		Metadata: metadata,
	}
	switch {
	case normalized.Command != nil:
		spec := *normalized.Command
		name := normalized.name()
		export.Factory = func(capability.Resolver) (any, error) {
			return command.NewExec(name, spec.Exec, spec.Args...), nil
		}
	case normalized.Task != nil:
		spec := *normalized.Task
		name := normalized.name()
		export.Factory = func(r capability.Resolver) (any, error) {
			return task.NewCommandTask(name, spec.EveryTicks, spec.Command, r), nil
		}
	default:
		if construct == nil {
			return capability.Export{}, fmt.Errorf("plugin: %s/%s: construct %s is only valid in Go plugin files", normalized.Contract, normalized.Provider, normalized.Construct)
		}
		export.Factory = construct
	}
	return export, nil
}
