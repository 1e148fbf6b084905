package checkpoint

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory checkpoint store for testing.
// Data is lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]map[string][]*Checkpoint // threadID -> namespace -> history
	closed  bool
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads: make(map[string]map[string][]*Checkpoint),
	}
}

// Put implements Store.
func (m *MemoryStore) Put(ctx context.Context, cp *Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cp.ThreadID == "" {
		return ErrMissingThread
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}

	// Copy to avoid retaining the caller's checkpoint
	stored := cp.Clone()

	ns := m.threads[cp.ThreadID]
	if ns == nil {
		ns = make(map[string][]*Checkpoint)
		m.threads[cp.ThreadID] = ns
	}

	history := ns[cp.Namespace]
	for i, existing := range history {
		if existing.ID == cp.ID {
			history[i] = stored
			return nil
		}
	}
	ns[cp.Namespace] = append(history, stored)
	return nil
}

// Latest implements Store.
func (m *MemoryStore) Latest(ctx context.Context, threadID, namespace string) (*Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	history := m.threads[threadID][namespace]
	if len(history) == 0 {
		return nil, ErrNotFound
	}
	return history[len(history)-1].Clone(), nil
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, threadID, namespace, id string) (*Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	for _, cp := range m.threads[threadID][namespace] {
		if cp.ID == id {
			return cp.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context, threadID, namespace string) ([]*Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	history := m.threads[threadID][namespace]
	out := make([]*Checkpoint, 0, len(history))
	for _, cp := range history {
		out = append(out, cp.Clone())
	}
	return out, nil
}

// DeleteThread implements Store.
func (m *MemoryStore) DeleteThread(ctx context.Context, threadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.threads, threadID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.threads = nil
	return nil
}
