// plugins/symbols.go
//
// Host symbols exposed to interpreted plugin files. A value built inside
// the interpreter satisfies a host interface only when the interpreter
// knows how to wrap it, so every contract interface a construct
// constructor may return is published here together with its wrapper
// type. Constructors must declare the host interface as their return
// type; an instance returned as a bare interpreted struct stays opaque
// to host code.

package plugins

import (
	"context"
	"reflect"

	"github.com/gantryhost/gantry/internal/builtin"
	"github.com/gantryhost/gantry/internal/command"
	"github.com/gantryhost/gantry/internal/task"
)

// Symbols is keyed the way the interpreter expects: import path plus a
// trailing package name segment.
var Symbols = map[string]map[string]reflect.Value{
	"github.com/gantryhost/gantry/internal/builtin/builtin": {
		"Greeter":  reflect.ValueOf((*builtin.Greeter)(nil)),
		"_Greeter": reflect.ValueOf((*wrapGreeter)(nil)),
	},
	"github.com/gantryhost/gantry/internal/command/command": {
		"Command":  reflect.ValueOf((*command.Command)(nil)),
		"_Command": reflect.ValueOf((*wrapCommand)(nil)),
	},
	"github.com/gantryhost/gantry/internal/task/task": {
		"Task":  reflect.ValueOf((*task.Task)(nil)),
		"_Task": reflect.ValueOf((*wrapTask)(nil)),
	},
}

// wrapGreeter is the interface wrapper for builtin.Greeter. The IValue/W*
// field layout is the interpreter's wrapping convention.
type wrapGreeter struct {
	IValue interface{}
	WGreet func(name string) string
}

func (w wrapGreeter) Greet(name string) string { return w.WGreet(name) }

// wrapCommand is the interface wrapper for command.Command.
type wrapCommand struct {
	IValue interface{}
	WName  func() string
	WRun   func(ctx context.Context, args ...string) (string, error)
}

func (w wrapCommand) Name() string { return w.WName() }

func (w wrapCommand) Run(ctx context.Context, args ...string) (string, error) {
	return w.WRun(ctx, args...)
}

// wrapTask is the interface wrapper for task.Task.
type wrapTask struct {
	IValue      interface{}
	WName       func() string
	WEveryTicks func() int
	WOnTick     func(ctx context.Context) error
}

func (w wrapTask) Name() string { return w.WName() }

func (w wrapTask) EveryTicks() int { return w.WEveryTicks() }

func (w wrapTask) OnTick(ctx context.Context) error { return w.WOnTick(ctx) }
