// Package store provides cross-run key-value storage for long-term memory.
//
// Unlike checkpoints, which belong to one thread, store items outlive runs and
// are isolated by a Namespace such as {user_id, "memories"}. The graph engine
// never reads the store itself; it hands the configured Store to nodes through
// their run context.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Namespace is a hierarchical key prefix that isolates items.
type Namespace []string

// UserNamespace returns the namespace {userID, parts...}.
func UserNamespace(userID string, parts ...string) Namespace {
	return append(Namespace{userID}, parts...)
}

// String renders the namespace as a slash-separated path.
func (n Namespace) String() string {
	return strings.Join(n, "/")
}

// key returns an unambiguous encoding used as the storage key.
func (n Namespace) key() string {
	if len(n) == 0 {
		return "[]"
	}
	b, _ := json.Marshal([]string(n))
	return string(b)
}

// Item is a stored value.
type Item struct {
	Namespace Namespace       `json:"namespace"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Decode unmarshals the item's value into v.
func (i *Item) Decode(v any) error {
	return json.Unmarshal(i.Value, v)
}

// Store is a namespaced key-value store.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores value (JSON-encoded) under key, replacing any existing item.
	Put(ctx context.Context, ns Namespace, key string, value any) error

	// Get returns the item stored under key.
	// Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, ns Namespace, key string) (*Item, error)

	// Delete removes an item. Returns nil if it doesn't exist.
	Delete(ctx context.Context, ns Namespace, key string) error

	// List returns the keys in a namespace, sorted.
	List(ctx context.Context, ns Namespace) ([]string, error)

	// Search returns items in a namespace whose key or JSON value contains
	// query, sorted by key. An empty query matches everything. A limit of
	// zero or less means DefaultSearchLimit; limits above MaxSearchLimit are capped.
	Search(ctx context.Context, ns Namespace, query string, limit int) ([]*Item, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Search limits.
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 1000
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates an item doesn't exist.
	ErrNotFound = errors.New("store item not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("store closed")

	// ErrEmptyKey indicates an operation was given an empty key.
	ErrEmptyKey = errors.New("store key is required")
)

func searchLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}

func matches(item *Item, query string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(item.Key, query) || strings.Contains(string(item.Value), query)
}
