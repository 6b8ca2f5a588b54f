package plugins

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/gantryhost/gantry/internal/capability"
)

// ParseManifest decodes and validates a plugin manifest payload.
func ParseManifest(data []byte) (Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Manifest{}, fmt.Errorf("plugin: manifest payload is empty")
	}
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("plugin: decode manifest: %w", err)
	}
	if len(manifest.Exports) == 0 {
		return Manifest{}, fmt.Errorf("plugin: manifest declares no exports")
	}
	normalized := Manifest{Exports: make([]Definition, 0, len(manifest.Exports))}
	for idx, def := range manifest.Exports {
		if err := def.Validate(); err != nil {
			return Manifest{}, fmt.Errorf("plugin: export[%d]: %w", idx, err)
		}
		if def.Normalized().Construct != "" {
			return Manifest{}, fmt.Errorf("plugin: export[%d]: construct requires a Go plugin file", idx)
		}
		normalized.Exports = append(normalized.Exports, def.Normalized())
	}
	return normalized, nil
}

// LoadManifestFile reads a YAML manifest from disk and derives its exports.
// The file's cleaned path becomes every export's origin.
func LoadManifestFile(path string) ([]capability.Export, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("plugin: %s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	origin := filepath.Clean(path)
	exports := make([]capability.Export, 0, len(manifest.Exports))
	for idx, def := range manifest.Exports {
		export, err := def.export(origin, nil)
		if err != nil {
			return nil, fmt.Errorf("plugin: %s export[%d]: %w", path, idx, err)
		}
		exports = append(exports, export)
	}
	return exports, nil
}
