// Package checkpoint provides persistent checkpoint storage for graph runs.
//
// Checkpoints are grouped by thread and namespace. Within a group they are
// ordered by insertion, so the most recent Put is what Latest returns and
// List yields the full history for time travel.
package checkpoint

import (
	"context"
	"errors"
)

// Store persists checkpoints.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores a checkpoint. A checkpoint with an empty ID is assigned one.
	// Putting an ID that already exists in the same thread and namespace
	// replaces it without changing its position in the history.
	Put(ctx context.Context, cp *Checkpoint) error

	// Latest returns the most recently stored checkpoint for a thread.
	// Returns ErrNotFound if the thread has no checkpoints.
	Latest(ctx context.Context, threadID, namespace string) (*Checkpoint, error)

	// Get returns a specific checkpoint.
	// Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, threadID, namespace, id string) (*Checkpoint, error)

	// List returns all checkpoints for a thread, oldest first.
	// Returns empty slice (not error) if the thread has no checkpoints.
	List(ctx context.Context, threadID, namespace string) ([]*Checkpoint, error)

	// DeleteThread removes every checkpoint of a thread across namespaces.
	// Returns nil if the thread has no checkpoints.
	DeleteThread(ctx context.Context, threadID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates a checkpoint doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")

	// ErrMissingThread indicates a checkpoint was stored without a thread ID.
	ErrMissingThread = errors.New("checkpoint thread id is required")
)
