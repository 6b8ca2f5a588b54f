// internal/watch/feed.go
//
// A Feed turns raw filesystem notifications for one directory into typed
// file lifecycle events. Writes are coalesced per path with a settle
// window: a file that stops changing for the configured quiet period is
// reported Ready and only then is it safe to load.

package watch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// Kind classifies a file lifecycle event.
type Kind int

const (
	// Created reports a new matching file. Intermediate: not yet safe to load.
	Created Kind = iota
	// Changed reports a write to a matching file. Intermediate.
	Changed
	// Ready reports that a file has been quiet for the settle window.
	Ready
	// Removed reports deletion. A pending Ready for the path is cancelled.
	Removed
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Changed:
		return "changed"
	case Ready:
		return "ready"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one file lifecycle observation. Events for a single path are
// strictly ordered; events across paths carry no ordering guarantee.
type Event struct {
	Path string
	Kind Kind
}

const (
	// DefaultSettle is the quiet period before a changed file is Ready.
	DefaultSettle = 500 * time.Millisecond

	defaultBuffer = 64
)

// Option customizes Feed construction.
type Option func(*Feed)

// WithSettle overrides the settle window.
func WithSettle(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.settle = d
		}
	}
}

// WithLogger injects a logger for transient watch errors.
func WithLogger(log *slog.Logger) Option {
	return func(f *Feed) {
		if log != nil {
			f.log = log
		}
	}
}

// Feed watches one directory and emits lifecycle events for matching files
// until Close. The feed cannot be restarted; recreate it instead.
type Feed struct {
	dir    string
	filter glob.Glob
	settle time.Duration
	log    *slog.Logger

	watcher *fsnotify.Watcher
	events  chan Event
	settled chan string
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending map[string]*time.Timer

	closeOnce sync.Once
	closeErr  error
}

// New starts watching dir for files whose base name matches pattern.
// A missing or unreadable directory is a construction error: the watch
// cannot mean anything without it.
func New(dir, pattern string, opts ...Option) (*Feed, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch: stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch: %s is not a directory", dir)
	}
	filter, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("watch: compile pattern %q: %w", pattern, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch: add %s: %w", dir, err)
	}
	f := &Feed{
		dir:     dir,
		filter:  filter,
		settle:  DefaultSettle,
		log:     slog.Default(),
		watcher: watcher,
		events:  make(chan Event, defaultBuffer),
		settled: make(chan string),
		done:    make(chan struct{}),
		pending: map[string]*time.Timer{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	f.wg.Add(1)
	go f.loop()
	return f, nil
}

// Events returns the feed's event stream. The channel is closed by Close,
// after which no further events are emitted.
func (f *Feed) Events() <-chan Event {
	return f.events
}

// Close stops the watch, releases the OS handles, and closes the event
// channel. Idempotent and safe from any goroutine.
func (f *Feed) Close() error {
	f.closeOnce.Do(func() {
		close(f.done)
		f.closeErr = f.watcher.Close()
		f.mu.Lock()
		for path, timer := range f.pending {
			timer.Stop()
			delete(f.pending, path)
		}
		f.mu.Unlock()
		f.wg.Wait()
		close(f.events)
	})
	return f.closeErr
}

// loop is the single emitter: every event leaves through it, which is what
// guarantees per-path ordering.
func (f *Feed) loop() {
	defer f.wg.Done()
	for {
		select {
		case <-f.done:
			return
		case notification, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			f.handle(notification)
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				f.log.Warn("watch: notification error", "dir", f.dir, "error", err)
			}
		case path := <-f.settled:
			if !f.clearPending(path) {
				continue
			}
			if _, err := os.Stat(path); err != nil {
				// The file vanished while its settle timer was in
				// flight; the Removed notification is on its way.
				continue
			}
			f.emit(Event{Path: path, Kind: Ready})
		}
	}
}

func (f *Feed) handle(notification fsnotify.Event) {
	path := notification.Name
	if !f.filter.Match(filepath.Base(path)) {
		return
	}
	switch {
	case notification.Op.Has(fsnotify.Create):
		f.emit(Event{Path: path, Kind: Created})
		f.schedule(path)
	case notification.Op.Has(fsnotify.Write):
		f.emit(Event{Path: path, Kind: Changed})
		f.schedule(path)
	case notification.Op.Has(fsnotify.Remove) || notification.Op.Has(fsnotify.Rename):
		f.clearPending(path)
		f.emit(Event{Path: path, Kind: Removed})
	}
}

func (f *Feed) schedule(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if timer, ok := f.pending[path]; ok {
		timer.Reset(f.settle)
		return
	}
	f.pending[path] = time.AfterFunc(f.settle, func() {
		select {
		case f.settled <- path:
		case <-f.done:
		}
	})
}

func (f *Feed) clearPending(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	timer, ok := f.pending[path]
	if !ok {
		return false
	}
	timer.Stop()
	delete(f.pending, path)
	return true
}

func (f *Feed) emit(event Event) {
	select {
	case f.events <- event:
	case <-f.done:
	}
}
