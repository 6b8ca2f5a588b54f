package runtime

import (
	"fmt"
	"sync"
)

// The process-wide runtime. It is created lazily on first Default call
// from the options installed by Configure, and torn down explicitly with
// CloseDefault.
var (
	defaultMu      sync.Mutex
	defaultOpts    *Options
	defaultRuntime *Runtime
)

// Configure installs the options the lazy default runtime will be built
// with. Calling Configure after the default runtime exists is a programmer
// error.
func Configure(opts Options) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRuntime != nil {
		return fmt.Errorf("runtime: default runtime already built")
	}
	defaultOpts = &opts
	return nil
}

// Default returns the process-wide runtime, building it on first access.
func Default() (*Runtime, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRuntime != nil {
		return defaultRuntime, nil
	}
	if defaultOpts == nil {
		return nil, fmt.Errorf("runtime: Configure must run before Default")
	}
	r, err := New(*defaultOpts)
	if err != nil {
		return nil, err
	}
	defaultRuntime = r
	return r, nil
}

// CloseDefault disposes the default runtime if it was ever built. The next
// Default call after CloseDefault builds a fresh one.
func CloseDefault() error {
	defaultMu.Lock()
	r := defaultRuntime
	defaultRuntime = nil
	defaultMu.Unlock()
	if r == nil {
		return nil
	}
	return r.Close()
}
