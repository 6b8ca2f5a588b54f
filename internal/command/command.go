// internal/command/command.go
//
// Shell commands are plain capability exports: each one carries its declared
// name in export metadata, and the dispatcher finds "the command named X"
// with a metadata-filtered resolution. The composition core never needs to
// know what a command is.

package command

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Command is the contract every shell command export implements.
type Command interface {
	Name() string
	Run(ctx context.Context, args ...string) (string, error)
}

// Exec runs a host binary with a fixed base argv.
type Exec struct {
	name string
	bin  string
	args []string
}

// NewExec builds a command named name that runs bin with args prepended to
// any invocation arguments.
func NewExec(name, bin string, args ...string) *Exec {
	return &Exec{name: name, bin: bin, args: append([]string{}, args...)}
}

// Name implements Command.
func (e *Exec) Name() string {
	return e.name
}

// Run implements Command. Output is the combined stdout/stderr.
func (e *Exec) Run(ctx context.Context, args ...string) (string, error) {
	argv := append(append([]string{}, e.args...), args...)
	out, err := exec.CommandContext(ctx, e.bin, argv...).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("command: run %s: %w", e.name, err)
	}
	return string(out), nil
}

// ErrUnknownCommand reports a dispatch for a name no export declares.
var ErrUnknownCommand = errors.New("command: unknown command")
