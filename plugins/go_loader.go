package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"gopkg.in/yaml.v3"

	"github.com/gantryhost/gantry/internal/capability"
)

const goExportsFuncName = "Exports"

// LoadGoFile interprets one Go plugin file and derives its exports. The
// file must define Exports() ([]map[string]any[, error]); each descriptor
// follows the manifest schema and may name an in-file constructor via
// "construct". Constructors take no arguments and return the instance
// (optionally with an error). For the instance to be usable by host code
// the constructor must declare a host contract interface from Symbols as
// its return type; the interpreter wraps the interpreted value at that
// boundary.
func LoadGoFile(path string) ([]capability.Export, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("plugin: %s is empty", path)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("plugin: load stdlib symbols for %s: %w", path, err)
	}
	if err := i.Use(Symbols); err != nil {
		return nil, fmt.Errorf("plugin: load host symbols for %s: %w", path, err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("plugin: interpret %s: %w", path, err)
	}
	fnValue, err := i.Eval(goExportsFuncName)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s must define %s() ([]map[string]any, error): %w", path, goExportsFuncName, err)
	}
	descriptors, err := invokeExportsFunc(fnValue)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	origin := filepath.Clean(path)
	exports := make([]capability.Export, 0, len(descriptors))
	for idx, raw := range descriptors {
		payload, err := yaml.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("plugin: %s export[%d]: %w", path, idx, err)
		}
		var def Definition
		if err := yaml.Unmarshal(payload, &def); err != nil {
			return nil, fmt.Errorf("plugin: %s export[%d]: %w", path, idx, err)
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("plugin: %s export[%d]: %w", path, idx, err)
		}
		var construct capability.Factory
		if name := def.Normalized().Construct; name != "" {
			construct, err = bindConstructor(i, path, name)
			if err != nil {
				return nil, fmt.Errorf("plugin: %s export[%d]: %w", path, idx, err)
			}
		}
		export, err := def.export(origin, construct)
		if err != nil {
			return nil, fmt.Errorf("plugin: %s export[%d]: %w", path, idx, err)
		}
		exports = append(exports, export)
	}
	return exports, nil
}

func invokeExportsFunc(value reflect.Value) ([]map[string]any, error) {
	if !value.IsValid() {
		return nil, fmt.Errorf("missing %s function", goExportsFuncName)
	}
	if value.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", goExportsFuncName)
	}
	results := value.Call(nil)
	if len(results) == 0 || len(results) > 2 {
		return nil, fmt.Errorf("%s must return ([]map[string]any[, error])", goExportsFuncName)
	}
	if len(results) == 2 {
		if !results[1].IsNil() {
			if e, ok := results[1].Interface().(error); ok && e != nil {
				return nil, e
			}
			return nil, fmt.Errorf("%s returned non-error second value", goExportsFuncName)
		}
	}
	descriptors, ok := results[0].Interface().([]map[string]any)
	if ok {
		return descriptors, nil
	}
	if results[0].Kind() == reflect.Slice {
		out := make([]map[string]any, results[0].Len())
		for i := 0; i < results[0].Len(); i++ {
			entry, ok := results[0].Index(i).Interface().(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s[%d] is not map[string]any", goExportsFuncName, i)
			}
			out[i] = entry
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s must return []map[string]any", goExportsFuncName)
}

// bindConstructor resolves a constructor symbol inside the interpreted file
// and adapts it into a capability factory. The interpreter outlives the
// factory on purpose: per-resolve exports call back into it on every
// resolution.
func bindConstructor(i *interp.Interpreter, path, name string) (capability.Factory, error) {
	fnValue, err := i.Eval(name)
	if err != nil {
		return nil, fmt.Errorf("constructor %s: %w", name, err)
	}
	if !fnValue.IsValid() || fnValue.Kind() != reflect.Func {
		return nil, fmt.Errorf("constructor %s is not a function", name)
	}
	if fnValue.Type().NumIn() != 0 {
		return nil, fmt.Errorf("constructor %s must take no arguments", name)
	}
	if out := fnValue.Type().NumOut(); out == 0 || out > 2 {
		return nil, fmt.Errorf("constructor %s must return (instance[, error])", name)
	}
	return func(capability.Resolver) (any, error) {
		results := fnValue.Call(nil)
		if len(results) == 2 && !results[1].IsNil() {
			if e, ok := results[1].Interface().(error); ok && e != nil {
				return nil, fmt.Errorf("constructor %s: %w", name, e)
			}
			return nil, fmt.Errorf("constructor %s returned non-error second value", name)
		}
		return results[0].Interface(), nil
	}, nil
}
