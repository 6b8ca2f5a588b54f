// internal/plugindir/catalog.go
//
// The directory catalog owns the export set contributed by a watched plugin
// directory. Refresh rescans and atomically swaps the whole set, so readers
// racing a refresh see either the previous snapshot or the next one.

package plugindir

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gobwas/glob"

	"github.com/gantryhost/gantry/internal/capability"
	"github.com/gantryhost/gantry/plugins"
)

// DefaultPattern matches the plugin file kinds the loaders understand.
const DefaultPattern = "*.{yaml,yml,go}"

// Catalog derives capability exports from plugin files in one directory.
type Catalog struct {
	dir    string
	filter glob.Glob
	log    *slog.Logger

	// mu serializes Refresh; exports is swapped atomically so Exports
	// never needs the lock.
	mu      sync.Mutex
	exports atomic.Pointer[[]capability.Export]
}

// New builds a catalog over dir. The catalog is empty until Refresh runs.
func New(dir, pattern string, log *slog.Logger) (*Catalog, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("plugindir: directory is required")
	}
	if pattern == "" {
		pattern = DefaultPattern
	}
	filter, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("plugindir: compile pattern %q: %w", pattern, err)
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Catalog{dir: filepath.Clean(dir), filter: filter, log: log}
	empty := []capability.Export{}
	c.exports.Store(&empty)
	return c, nil
}

// Dir returns the watched directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// Exports implements capability.Catalog. It returns the snapshot installed
// by the most recent Refresh.
func (c *Catalog) Exports() []capability.Export {
	snapshot := *c.exports.Load()
	out := make([]capability.Export, len(snapshot))
	copy(out, snapshot)
	return out
}

// Refresh rescans the directory and swaps in the derived export set. A
// broken plugin file is logged and skipped so it cannot take down the rest
// of the refresh. Refresh is idempotent when nothing changed on disk and
// safe to call concurrently with Exports; concurrent Refresh calls are
// serialized.
func (c *Catalog) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Directory deleted out from under the watch: every export
			// it contributed is gone.
			empty := []capability.Export{}
			c.exports.Store(&empty)
			return nil
		}
		return fmt.Errorf("plugindir: read %s: %w", c.dir, err)
	}

	var exports []capability.Export
	seen := make(map[capability.Key]string)
	for _, entry := range entries {
		if entry.IsDir() || !c.filter.Match(entry.Name()) {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		fileExports, err := loadFile(path)
		if err != nil {
			c.log.Warn("plugindir: skipping broken plugin", "path", path, "error", err)
			continue
		}
		for _, export := range fileExports {
			key := export.Key()
			if origin, dup := seen[key]; dup {
				c.log.Warn("plugindir: skipping duplicate export", "key", key.String(), "first", origin)
				continue
			}
			seen[key] = path
			exports = append(exports, export)
		}
	}
	sort.Slice(exports, func(i, j int) bool {
		return exports[i].Key().String() < exports[j].Key().String()
	})
	if exports == nil {
		exports = []capability.Export{}
	}
	c.exports.Store(&exports)
	return nil
}

func loadFile(path string) ([]capability.Export, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return plugins.LoadManifestFile(path)
	case ".go":
		return plugins.LoadGoFile(path)
	default:
		return nil, fmt.Errorf("plugindir: no loader for %s", path)
	}
}
