// internal/runtime/runtime.go
//
// The Runtime is the composition root the rest of the application talks
// to. It owns the composition engine, the static and directory catalogs,
// and the change feed, and it republishes every index delta as an
// export-changed notification stream.

package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gantryhost/gantry/internal/capability"
	"github.com/gantryhost/gantry/internal/compose"
	"github.com/gantryhost/gantry/internal/plugindir"
	"github.com/gantryhost/gantry/internal/watch"
)

// Options configures a Runtime.
type Options struct {
	// Dir is the watched plugin directory. It must exist.
	Dir string
	// Pattern filters plugin file names; defaults to plugindir.DefaultPattern.
	Pattern string
	// Settle is the quiet window before a changed plugin file is reloaded.
	Settle time.Duration
	// Builtins are the exports the host binary contributes.
	Builtins []capability.Export
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Runtime aggregates the catalogs behind one thread-safe resolver and owns
// the hot-reload pipeline for its lifetime.
type Runtime struct {
	log     *slog.Logger
	engine  *compose.Engine
	static  *capability.Static
	plugins *plugindir.Catalog
	feed    *watch.Feed
	notify  *broadcaster

	workerDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// New builds a runtime: it composes the builtins with the current plugin
// directory contents, starts the change feed, and begins serializing
// refreshes onto one worker. Notifications report only deltas observed
// after construction.
func New(opts Options) (*Runtime, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	pattern := opts.Pattern
	if pattern == "" {
		pattern = plugindir.DefaultPattern
	}
	static, err := capability.NewStatic(opts.Builtins...)
	if err != nil {
		return nil, fmt.Errorf("runtime: builtins: %w", err)
	}
	catalog, err := plugindir.New(opts.Dir, pattern, log)
	if err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}

	r := &Runtime{
		log:        log,
		engine:     compose.New(log),
		static:     static,
		plugins:    catalog,
		notify:     newBroadcaster(log),
		workerDone: make(chan struct{}),
	}

	if err := catalog.Refresh(); err != nil {
		return nil, fmt.Errorf("runtime: initial refresh: %w", err)
	}
	r.engine.Rebuild(static, catalog)

	feedOpts := []watch.Option{watch.WithLogger(log)}
	if opts.Settle > 0 {
		feedOpts = append(feedOpts, watch.WithSettle(opts.Settle))
	}
	feed, err := watch.New(opts.Dir, pattern, feedOpts...)
	if err != nil {
		r.engine.Close()
		return nil, fmt.Errorf("runtime: %w", err)
	}
	r.feed = feed

	go r.worker()
	log.Info("runtime: composed", "dir", opts.Dir, "exports", len(r.engine.Exports()))
	return r, nil
}

// worker consumes feed events one at a time, which is what serializes
// refreshes: at most one refresh runs, and a resolution racing it sees
// either the previous index or the next.
func (r *Runtime) worker() {
	defer close(r.workerDone)
	for event := range r.feed.Events() {
		switch event.Kind {
		case watch.Ready, watch.Removed:
			r.refresh(event)
		default:
			// Created/Changed are intermediate; the settle window decides
			// when the file is worth loading.
		}
	}
}

func (r *Runtime) refresh(event watch.Event) {
	r.log.Debug("runtime: refresh", "path", event.Path, "event", event.Kind.String())
	if err := r.plugins.Refresh(); err != nil {
		r.log.Warn("runtime: refresh failed", "path", event.Path, "error", err)
		return
	}
	delta := r.engine.Rebuild(r.static, r.plugins)
	if delta.Empty() {
		return
	}
	for _, export := range delta.Removed {
		r.notify.publish(Notification{Kind: ExportRemoved, Export: export})
	}
	for _, export := range delta.Added {
		r.notify.publish(Notification{Kind: ExportAdded, Export: export})
	}
	r.log.Info("runtime: exports changed", "removed", len(delta.Removed), "added", len(delta.Added))
}

// Resolve implements capability.Resolver.
func (r *Runtime) Resolve(contract capability.Contract) (any, bool, error) {
	return r.engine.Resolve(contract)
}

// ResolveWhere implements capability.Resolver.
func (r *Runtime) ResolveWhere(contract capability.Contract, pred capability.Predicate) (any, bool, error) {
	return r.engine.ResolveWhere(contract, pred)
}

// ResolveAll implements capability.Resolver.
func (r *Runtime) ResolveAll(contract capability.Contract) ([]any, error) {
	return r.engine.ResolveAll(contract)
}

// ResolveAllWhere implements capability.Resolver.
func (r *Runtime) ResolveAllWhere(contract capability.Contract, pred capability.Predicate) ([]any, error) {
	return r.engine.ResolveAllWhere(contract, pred)
}

// ComposeInto wires capabilities into an unmanaged object.
func (r *Runtime) ComposeInto(target any) error {
	return r.engine.ComposeInto(target)
}

// Exports returns the current composition index contents.
func (r *Runtime) Exports() []capability.Export {
	return r.engine.Exports()
}

// Subscribe returns the export-changed notification stream.
func (r *Runtime) Subscribe() Subscription {
	return r.notify.subscribe()
}

// Close tears the runtime down: the watch stops first (no further feed
// events), the refresh worker drains, subscribers are closed, and finally
// the engine disposes its shared instances. Idempotent and safe from any
// goroutine; an in-progress refresh completes before the engine closes.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		var errs error
		errs = errors.Join(errs, r.feed.Close())
		<-r.workerDone
		r.notify.close()
		errs = errors.Join(errs, r.engine.Close())
		r.closeErr = errs
		r.log.Info("runtime: closed")
	})
	return r.closeErr
}
