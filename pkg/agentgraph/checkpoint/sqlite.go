package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists checkpoints to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite checkpoint store.
// The path should be a file path (e.g., "./checkpoints.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_id TEXT NOT NULL,
			namespace TEXT NOT NULL,
			id TEXT NOT NULL,
			step INTEGER NOT NULL,
			data BLOB NOT NULL,
			UNIQUE (thread_id, namespace, id)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_checkpoints_thread
		ON checkpoints(thread_id, namespace, seq)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, cp *Checkpoint) error {
	if cp.ThreadID == "" {
		return ErrMissingThread
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}

	data, err := cp.Marshal()
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	// Replacing keeps the original seq so history order is stable
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, namespace, id, step, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(thread_id, namespace, id) DO UPDATE SET
			step = excluded.step,
			data = excluded.data
	`, cp.ThreadID, cp.Namespace, cp.ID, cp.Step, data)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Latest implements Store.
func (s *SQLiteStore) Latest(ctx context.Context, threadID, namespace string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	return s.queryOne(ctx, `
		SELECT data FROM checkpoints
		WHERE thread_id = ? AND namespace = ?
		ORDER BY seq DESC
		LIMIT 1
	`, threadID, namespace)
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, threadID, namespace, id string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	return s.queryOne(ctx, `
		SELECT data FROM checkpoints
		WHERE thread_id = ? AND namespace = ? AND id = ?
	`, threadID, namespace, id)
}

func (s *SQLiteStore) queryOne(ctx context.Context, query string, args ...any) (*Checkpoint, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	cp, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, threadID, namespace string) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM checkpoints
		WHERE thread_id = ? AND namespace = ?
		ORDER BY seq
	`, threadID, namespace)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	cps := []*Checkpoint{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp, err := Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("decode checkpoint: %w", err)
		}
		cps = append(cps, cp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}

	return cps, nil
}

// DeleteThread implements Store.
func (s *SQLiteStore) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints WHERE thread_id = ?
	`, threadID)
	if err != nil {
		return fmt.Errorf("delete thread checkpoints: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
