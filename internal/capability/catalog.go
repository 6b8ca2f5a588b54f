package capability

import "fmt"

// Catalog is one source of exports. Directory-backed catalogs change at
// runtime; the static catalog never does.
type Catalog interface {
	// Exports returns the catalog's current export set. Implementations
	// must return a stable snapshot safe to read while the catalog mutates.
	Exports() []Export
}

// Static is the immutable catalog of exports the host binary contributes.
type Static struct {
	exports []Export
}

// NewStatic validates and freezes the host's built-in exports. Host export
// origins are forced to OriginBuiltin so deltas never confuse them with
// directory exports.
func NewStatic(exports ...Export) (*Static, error) {
	frozen := make([]Export, 0, len(exports))
	seen := make(map[Key]struct{}, len(exports))
	for _, export := range exports {
		export.Origin = OriginBuiltin
		if err := export.Validate(); err != nil {
			return nil, err
		}
		key := export.Key()
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("capability: duplicate builtin export %s", key)
		}
		seen[key] = struct{}{}
		frozen = append(frozen, export)
	}
	return &Static{exports: frozen}, nil
}

// OriginBuiltin marks exports contributed by the host process itself.
const OriginBuiltin = "builtin"

// Exports implements Catalog.
func (s *Static) Exports() []Export {
	out := make([]Export, len(s.exports))
	copy(out, s.exports)
	return out
}
