package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for testing.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[string]map[string]*Item // namespace key -> key -> item
	closed bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]map[string]*Item),
	}
}

// Put implements Store.
func (m *MemoryStore) Put(ctx context.Context, ns Namespace, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	nsKey := ns.key()
	bucket := m.items[nsKey]
	if bucket == nil {
		bucket = make(map[string]*Item)
		m.items[nsKey] = bucket
	}

	now := time.Now().UTC()
	created := now
	if existing, ok := bucket[key]; ok {
		created = existing.CreatedAt
	}

	bucket[key] = &Item{
		Namespace: slices.Clone(ns),
		Key:       key,
		Value:     raw,
		CreatedAt: created,
		UpdatedAt: now,
	}
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, ns Namespace, key string) (*Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	item, ok := m.items[ns.key()][key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneItem(item), nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, ns Namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.items[ns.key()], key)
	return nil
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context, ns Namespace) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	bucket := m.items[ns.key()]
	keys := make([]string, 0, len(bucket))
	for k := range bucket {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// Search implements Store.
func (m *MemoryStore) Search(ctx context.Context, ns Namespace, query string, limit int) ([]*Item, error) {
	keys, err := m.List(ctx, ns)
	if err != nil {
		return nil, err
	}

	limit = searchLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	bucket := m.items[ns.key()]
	hits := []*Item{}
	for _, k := range keys {
		item, ok := bucket[k]
		if !ok || !matches(item, query) {
			continue
		}
		hits = append(hits, cloneItem(item))
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.items = nil
	return nil
}

func cloneItem(item *Item) *Item {
	out := *item
	out.Namespace = slices.Clone(item.Namespace)
	out.Value = slices.Clone(item.Value)
	return &out
}
