package compose

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gantryhost/gantry/internal/capability"
)

// ErrClosed is returned by engine operations after Close.
var ErrClosed = errors.New("compose: engine is closed")

// AmbiguousExportError reports a resolution that matched more than one
// export. Ambiguity is a configuration defect: the caller asked for one
// instance and the catalogs offer several, so the query (not the catalogs)
// has to be narrowed.
type AmbiguousExportError struct {
	Contract capability.Contract
	Matches  []capability.Key
}

func (e *AmbiguousExportError) Error() string {
	keys := make([]string, len(e.Matches))
	for i, key := range e.Matches {
		keys[i] = key.String()
	}
	return fmt.Sprintf("compose: contract %s is ambiguous: %s", e.Contract, strings.Join(keys, ", "))
}

// IsAmbiguous reports whether err wraps an AmbiguousExportError.
func IsAmbiguous(err error) bool {
	var ambiguous *AmbiguousExportError
	return errors.As(err, &ambiguous)
}
