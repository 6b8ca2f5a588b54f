// internal/compose/engine.go
//
// The composition engine aggregates every catalog into one queryable index
// of contract -> exports. The index is copy-on-write: Rebuild publishes a
// complete replacement, so resolutions racing a catalog refresh observe
// either the previous or the next index, never a mix.

package compose

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gantryhost/gantry/internal/capability"
)

// Engine aggregates catalogs and answers resolution queries.
type Engine struct {
	log *slog.Logger

	index atomic.Pointer[index]

	mu     sync.Mutex
	shared map[capability.Key]*sharedEntry
	closed atomic.Bool
}

type index struct {
	byContract map[capability.Contract][]capability.Export
	byKey      map[capability.Key]capability.Export
}

// sharedEntry builds a shared instance exactly once, outside the engine
// lock so factories may resolve their own dependencies recursively.
type sharedEntry struct {
	once sync.Once
	val  any
	err  error
}

// Delta is the difference between two successive indexes, keyed on export
// identity. Removed always precedes Added when the delta is published.
type Delta struct {
	Removed []capability.Export
	Added   []capability.Export
}

// Empty reports whether the delta carries no changes.
func (d Delta) Empty() bool {
	return len(d.Removed) == 0 && len(d.Added) == 0
}

// New returns an engine with an empty index.
func New(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		log:    log,
		shared: map[capability.Key]*sharedEntry{},
	}
	e.index.Store(&index{
		byContract: map[capability.Contract][]capability.Export{},
		byKey:      map[capability.Key]capability.Export{},
	})
	return e
}

// Rebuild replaces the index with the aggregation of the given catalogs and
// returns the identity delta against the previous index. Cached shared
// instances whose export survives keep their identity; instances whose
// export vanished are closed, since nothing can reach them again.
func (e *Engine) Rebuild(catalogs ...capability.Catalog) Delta {
	if e.closed.Load() {
		return Delta{}
	}
	next := &index{
		byContract: map[capability.Contract][]capability.Export{},
		byKey:      map[capability.Key]capability.Export{},
	}
	for _, catalog := range catalogs {
		for _, export := range catalog.Exports() {
			if err := export.Validate(); err != nil {
				e.log.Warn("compose: skipping invalid export", "error", err)
				continue
			}
			key := export.Key()
			if _, dup := next.byKey[key]; dup {
				e.log.Warn("compose: skipping duplicate export", "key", key.String())
				continue
			}
			next.byKey[key] = export
			next.byContract[export.Contract] = append(next.byContract[export.Contract], export)
		}
	}

	e.mu.Lock()
	prev := e.index.Load()
	delta := diff(prev, next)
	evicted := make(map[capability.Key]*sharedEntry)
	for _, removed := range delta.Removed {
		key := removed.Key()
		if entry, ok := e.shared[key]; ok {
			delete(e.shared, key)
			evicted[key] = entry
		}
	}
	e.index.Store(next)
	e.mu.Unlock()

	// Closing happens outside the lock: an in-flight factory build may
	// recursively resolve and needs the lock to finish.
	for key, entry := range evicted {
		e.closeInstance(key, entry)
	}
	return delta
}

func diff(prev, next *index) Delta {
	var delta Delta
	for key, export := range prev.byKey {
		if _, still := next.byKey[key]; !still {
			delta.Removed = append(delta.Removed, export)
		}
	}
	for key, export := range next.byKey {
		if _, had := prev.byKey[key]; !had {
			delta.Added = append(delta.Added, export)
		}
	}
	sortExports(delta.Removed)
	sortExports(delta.Added)
	return delta
}

func sortExports(exports []capability.Export) {
	sort.Slice(exports, func(i, j int) bool {
		return exports[i].Key().String() < exports[j].Key().String()
	})
}

// Resolve implements capability.Resolver. With zero exports for the contract
// it returns (nil, false, nil): absence is a normal condition. With two or
// more exports it returns an *AmbiguousExportError rather than picking one;
// callers needing disambiguation must use ResolveWhere.
func (e *Engine) Resolve(contract capability.Contract) (any, bool, error) {
	return e.resolveOne(contract, nil)
}

// ResolveWhere implements capability.Resolver. Zero matches degrade to
// absence; more than one match is a configuration defect reported as an
// *AmbiguousExportError.
func (e *Engine) ResolveWhere(contract capability.Contract, pred capability.Predicate) (any, bool, error) {
	return e.resolveOne(contract, pred)
}

func (e *Engine) resolveOne(contract capability.Contract, pred capability.Predicate) (any, bool, error) {
	if e.closed.Load() {
		return nil, false, ErrClosed
	}
	matches := e.match(contract, pred)
	switch len(matches) {
	case 0:
		return nil, false, nil
	case 1:
		instance, err := e.instantiate(matches[0])
		if err != nil {
			return nil, false, err
		}
		return instance, true, nil
	default:
		ambiguous := &AmbiguousExportError{Contract: contract}
		for _, export := range matches {
			ambiguous.Matches = append(ambiguous.Matches, export.Key())
		}
		return nil, false, ambiguous
	}
}

// ResolveAll implements capability.Resolver. Every export is instantiated
// independently; one broken export never suppresses the others.
func (e *Engine) ResolveAll(contract capability.Contract) ([]any, error) {
	return e.ResolveAllWhere(contract, nil)
}

// ResolveAllWhere implements capability.Resolver.
func (e *Engine) ResolveAllWhere(contract capability.Contract, pred capability.Predicate) ([]any, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	var (
		instances []any
		errs      error
	)
	for _, export := range e.match(contract, pred) {
		instance, err := e.instantiate(export)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		instances = append(instances, instance)
	}
	return instances, errs
}

func (e *Engine) match(contract capability.Contract, pred capability.Predicate) []capability.Export {
	exports := e.index.Load().byContract[contract]
	if pred == nil {
		return exports
	}
	var matches []capability.Export
	for _, export := range exports {
		if pred(export.Metadata) {
			matches = append(matches, export)
		}
	}
	return matches
}

// Exports returns the current index contents, sorted by identity.
func (e *Engine) Exports() []capability.Export {
	idx := e.index.Load()
	exports := make([]capability.Export, 0, len(idx.byKey))
	for _, export := range idx.byKey {
		exports = append(exports, export)
	}
	sortExports(exports)
	return exports
}

func (e *Engine) instantiate(export capability.Export) (any, error) {
	if export.Policy == capability.PolicyPerResolve {
		instance, err := export.Factory(e)
		if err != nil {
			return nil, fmt.Errorf("compose: construct %s: %w", export.Key(), err)
		}
		return instance, nil
	}

	e.mu.Lock()
	if _, live := e.index.Load().byKey[export.Key()]; !live {
		// The export left the index between match and here. A cached
		// entry would outlive the eviction pass that already ran, so
		// hand out a one-off instance instead.
		e.mu.Unlock()
		instance, err := export.Factory(e)
		if err != nil {
			return nil, fmt.Errorf("compose: construct %s: %w", export.Key(), err)
		}
		return instance, nil
	}
	entry, ok := e.shared[export.Key()]
	if !ok {
		entry = &sharedEntry{}
		e.shared[export.Key()] = entry
	}
	e.mu.Unlock()

	entry.once.Do(func() {
		entry.val, entry.err = export.Factory(e)
	})
	if entry.err != nil {
		return nil, fmt.Errorf("compose: construct %s: %w", export.Key(), entry.err)
	}
	return entry.val, nil
}

// ComposeInto wires capabilities into an object that is not itself managed
// as an export. The target must implement capability.Composable; anything
// else is a programmer error.
func (e *Engine) ComposeInto(target any) error {
	if e.closed.Load() {
		return ErrClosed
	}
	composable, ok := target.(capability.Composable)
	if !ok {
		return fmt.Errorf("compose: %T declares no composition points", target)
	}
	return composable.Compose(e)
}

// Close disposes the engine: every cached shared instance implementing
// io.Closer is closed and the caches are dropped. Close is idempotent.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.mu.Lock()
	evicted := e.shared
	e.shared = map[capability.Key]*sharedEntry{}
	e.mu.Unlock()

	var errs error
	for key, entry := range evicted {
		errs = errors.Join(errs, e.closeInstanceErr(key, entry))
	}
	return errs
}

func (e *Engine) closeInstance(key capability.Key, entry *sharedEntry) {
	if err := e.closeInstanceErr(key, entry); err != nil {
		e.log.Warn("compose: close shared instance", "key", key.String(), "error", err)
	}
}

func (e *Engine) closeInstanceErr(key capability.Key, entry *sharedEntry) error {
	// Ensure no in-flight build races the close; Do is a no-op when the
	// instance was already built.
	entry.once.Do(func() {})
	closer, ok := entry.val.(io.Closer)
	if !ok || entry.err != nil {
		return nil
	}
	if err := closer.Close(); err != nil {
		return fmt.Errorf("compose: close %s: %w", key, err)
	}
	return nil
}
