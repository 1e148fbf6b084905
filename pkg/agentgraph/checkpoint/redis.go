package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "agentgraph"

// RedisStore persists checkpoints to Redis.
//
// Each checkpoint is a JSON string key. A sorted set per thread and namespace
// keeps insertion order, scored by a per-thread counter. A set per thread
// records which namespaces exist so DeleteThread can find them.
type RedisStore struct {
	client   *goredis.Client
	ttl      time.Duration
	prefix   string
	addr     string
	db       int
	password string
	closed   atomic.Bool
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPassword sets the password used when dialing.
func WithRedisPassword(password string) RedisOption {
	return func(s *RedisStore) {
		s.password = password
	}
}

// WithRedisDB selects the logical database.
func WithRedisDB(db int) RedisOption {
	return func(s *RedisStore) {
		s.db = db
	}
}

// WithRedisTTL expires checkpoints after ttl. Zero keeps them forever.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRedisPrefix sets the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = strings.TrimSpace(prefix)
		}
	}
}

// WithRedisClient uses an existing client instead of dialing addr.
func WithRedisClient(client *goredis.Client) RedisOption {
	return func(s *RedisStore) {
		if client != nil {
			s.client = client
		}
	}
}

// NewRedisStore connects to Redis at addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr string, opts ...RedisOption) (*RedisStore, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	s := &RedisStore{
		prefix: defaultRedisPrefix,
		addr:   addr,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = goredis.NewClient(&goredis.Options{
			Addr:     s.addr,
			Password: s.password,
			DB:       s.db,
		})
	}

	if err := s.client.Ping(ctx).Err(); err != nil {
		_ = s.client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return s, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, cp *Checkpoint) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if cp.ThreadID == "" {
		return ErrMissingThread
	}
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}

	raw, err := cp.Marshal()
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	seq, err := s.client.Incr(ctx, s.seqKey(cp.ThreadID, cp.Namespace)).Result()
	if err != nil {
		return fmt.Errorf("allocate checkpoint sequence: %w", err)
	}

	idxKey := s.indexKey(cp.ThreadID, cp.Namespace)
	nsKey := s.namespacesKey(cp.ThreadID)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.dataKey(cp.ThreadID, cp.Namespace, cp.ID), string(raw), s.ttl)
	// NX keeps the original position when an ID is replaced
	pipe.ZAddNX(ctx, idxKey, goredis.Z{Score: float64(seq), Member: cp.ID})
	pipe.SAdd(ctx, nsKey, cp.Namespace)
	if s.ttl > 0 {
		pipe.Expire(ctx, idxKey, s.ttl)
		pipe.Expire(ctx, nsKey, s.ttl)
		pipe.Expire(ctx, s.seqKey(cp.ThreadID, cp.Namespace), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save checkpoint in redis: %w", err)
	}
	return nil
}

// Latest implements Store.
func (s *RedisStore) Latest(ctx context.Context, threadID, namespace string) (*Checkpoint, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	ids, err := s.client.ZRevRange(ctx, s.indexKey(threadID, namespace), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("load latest checkpoint id: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	return s.load(ctx, threadID, namespace, ids[0])
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, threadID, namespace, id string) (*Checkpoint, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	return s.load(ctx, threadID, namespace, id)
}

func (s *RedisStore) load(ctx context.Context, threadID, namespace, id string) (*Checkpoint, error) {
	raw, err := s.client.Get(ctx, s.dataKey(threadID, namespace, id)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load checkpoint from redis: %w", err)
	}

	cp, err := Unmarshal([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("decode checkpoint from redis: %w", err)
	}
	return cp, nil
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context, threadID, namespace string) ([]*Checkpoint, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(threadID, namespace), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoint ids: %w", err)
	}
	if len(ids) == 0 {
		return []*Checkpoint{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.dataKey(threadID, namespace, id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load checkpoints from redis: %w", err)
	}

	cps := make([]*Checkpoint, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// expired between ZRANGE and MGET
			continue
		}
		cp, err := Unmarshal([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode checkpoint from redis: %w", err)
		}
		cps = append(cps, cp)
	}
	return cps, nil
}

// DeleteThread implements Store.
func (s *RedisStore) DeleteThread(ctx context.Context, threadID string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	nsKey := s.namespacesKey(threadID)
	namespaces, err := s.client.SMembers(ctx, nsKey).Result()
	if err != nil {
		return fmt.Errorf("list thread namespaces: %w", err)
	}

	keys := []string{nsKey}
	for _, ns := range namespaces {
		idxKey := s.indexKey(threadID, ns)
		ids, err := s.client.ZRange(ctx, idxKey, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("list checkpoint ids: %w", err)
		}
		for _, id := range ids {
			keys = append(keys, s.dataKey(threadID, ns, id))
		}
		keys = append(keys, idxKey, s.seqKey(threadID, ns))
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete thread checkpoints: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) dataKey(threadID, namespace, id string) string {
	return fmt.Sprintf("%s:cp:%s:%s:%s", s.prefix, threadID, namespace, id)
}

func (s *RedisStore) indexKey(threadID, namespace string) string {
	return fmt.Sprintf("%s:idx:%s:%s", s.prefix, threadID, namespace)
}

func (s *RedisStore) seqKey(threadID, namespace string) string {
	return fmt.Sprintf("%s:seq:%s:%s", s.prefix, threadID, namespace)
}

func (s *RedisStore) namespacesKey(threadID string) string {
	return fmt.Sprintf("%s:ns:%s", s.prefix, threadID)
}
