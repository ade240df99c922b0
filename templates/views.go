// templates/views.go
package templates

import (
	"io/fs"
	"sync"
)

// Set is one package's embedded templates.
type Set struct {
	// Name is used in logs only, except "shared" which marks the layout set.
	Name string
	// FS is the embedded filesystem holding the files.
	FS fs.FS
	// Patterns are globs within FS, e.g. "templates/*.gohtml".
	Patterns []string
}

var (
	registryMu sync.RWMutex
	registry   []Set
)

// Register records a Set for the next Boot. Feature packages call it from
// init().
func Register(s Set) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, s)
}

// All returns a copy of the registered sets.
func All() []Set {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Set, len(registry))
	copy(out, registry)
	return out
}
