package store

import "fmt"

// Backend kinds accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Backend describes which Store implementation to open.
type Backend struct {
	// Kind is BackendMemory or BackendSQLite. Empty means memory.
	Kind string

	// Path is the SQLite database file. Empty means ":memory:".
	Path string
}

// Open creates the Store described by b.
func Open(b Backend) (Store, error) {
	switch b.Kind {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		path := b.Path
		if path == "" {
			path = ":memory:"
		}
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", b.Kind)
	}
}
