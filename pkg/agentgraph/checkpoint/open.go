package checkpoint

import (
	"context"
	"fmt"
	"time"
)

// Backend kinds accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Backend describes which Store implementation to open.
type Backend struct {
	// Kind is one of BackendMemory, BackendSQLite, BackendRedis.
	// Empty means memory.
	Kind string

	// Path is the SQLite database file. Empty means ":memory:".
	Path string

	// Addr, Password, DB, Prefix, and TTL configure the Redis backend.
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// Open creates the Store described by b.
func Open(ctx context.Context, b Backend) (Store, error) {
	switch b.Kind {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		path := b.Path
		if path == "" {
			path = ":memory:"
		}
		return NewSQLiteStore(path)
	case BackendRedis:
		return NewRedisStore(ctx, b.Addr,
			WithRedisPassword(b.Password),
			WithRedisDB(b.DB),
			WithRedisPrefix(b.Prefix),
			WithRedisTTL(b.TTL),
		)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", b.Kind)
	}
}
