package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/agentgraph/pkg/agentgraph"
	"github.com/randalmurphal/agentgraph/pkg/agentgraph/checkpoint"
	"github.com/randalmurphal/agentgraph/pkg/agentgraph/retry"
	"github.com/randalmurphal/agentgraph/pkg/agentgraph/store"
)

// Retry strategies accepted in the retry section.
const (
	RetryNone        = "none"
	RetryFixed       = "fixed"
	RetryExponential = "exponential"
)

// Engine is the runtime configuration for compiled graphs.
//
// Example YAML:
//
//	max_steps: 50
//	stream_buffer: 64
//	retry:
//	  strategy: exponential
//	  max_attempts: 4
//	  base_delay: 200ms
//	  max_delay: 5s
//	  multiplier: 2
//	checkpointer:
//	  backend: sqlite
//	  path: ./checkpoints.db
//	store:
//	  backend: memory
type Engine struct {
	MaxSteps     int
	StreamBuffer int
	Retry        Retry
	Checkpointer Checkpointer
	Store        Store
}

// Retry configures the node retry policy.
type Retry struct {
	Strategy    string
	MaxAttempts int
	Delay       time.Duration
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      float64
}

// Checkpointer selects the checkpoint store backend.
type Checkpointer struct {
	Kind   string
	Path   string
	Addr   string
	DB     int
	Prefix string
	TTL    time.Duration
}

// Store selects the key-value store backend.
type Store struct {
	Kind string
	Path string
}

// Backend returns the store.Backend for the section.
func (s Store) Backend() store.Backend {
	return store.Backend{Kind: s.Kind, Path: s.Path}
}

// EngineFrom extracts an Engine from a decoded configuration document.
func EngineFrom(cfg Config) (Engine, error) {
	r := cfg.Section("retry")
	cp := cfg.Section("checkpointer")
	kv := cfg.Section("store")

	e := Engine{
		MaxSteps:     cfg.Int("max_steps", agentgraph.DefaultMaxSteps),
		StreamBuffer: cfg.Int("stream_buffer", agentgraph.DefaultStreamBuffer),
		Retry: Retry{
			Strategy:    r.String("strategy", RetryNone),
			MaxAttempts: r.Int("max_attempts", 3),
			Delay:       r.Duration("delay", time.Second),
			BaseDelay:   r.Duration("base_delay", time.Second),
			MaxDelay:    r.Duration("max_delay", 30*time.Second),
			Multiplier:  r.Float("multiplier", 2),
			Jitter:      r.Float("jitter", 0),
		},
		Checkpointer: Checkpointer{
			Kind:   cp.String("backend", ""),
			Path:   cp.String("path", ""),
			Addr:   cp.String("addr", ""),
			DB:     cp.Int("db", 0),
			Prefix: cp.String("prefix", ""),
			TTL:    cp.Duration("ttl", 0),
		},
		Store: Store{
			Kind: kv.String("backend", ""),
			Path: kv.String("path", ""),
		},
	}

	if err := e.Validate(); err != nil {
		return Engine{}, err
	}
	return e, nil
}

// Validate reports configuration values that cannot be used.
func (e Engine) Validate() error {
	var errs []error

	if e.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("max_steps must be positive, got %d", e.MaxSteps))
	}
	if e.StreamBuffer <= 0 {
		errs = append(errs, fmt.Errorf("stream_buffer must be positive, got %d", e.StreamBuffer))
	}

	switch e.Retry.Strategy {
	case "", RetryNone, RetryFixed, RetryExponential:
	default:
		errs = append(errs, fmt.Errorf("unknown retry strategy %q", e.Retry.Strategy))
	}
	if e.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1, got %d", e.Retry.MaxAttempts))
	}
	if e.Retry.Jitter < 0 || e.Retry.Jitter > 1 {
		errs = append(errs, fmt.Errorf("retry.jitter must be between 0 and 1, got %g", e.Retry.Jitter))
	}

	switch e.Checkpointer.Kind {
	case "", checkpoint.BackendMemory, checkpoint.BackendSQLite:
	case checkpoint.BackendRedis:
		if e.Checkpointer.Addr == "" {
			errs = append(errs, errors.New("checkpointer.addr is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown checkpointer backend %q", e.Checkpointer.Kind))
	}

	switch e.Store.Kind {
	case "", store.BackendMemory, store.BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", e.Store.Kind))
	}

	return errors.Join(errs...)
}

// Policy returns the retry policy described by the section.
func (r Retry) Policy() retry.Policy {
	switch r.Strategy {
	case RetryFixed:
		return retry.Fixed(r.MaxAttempts, r.Delay)
	case RetryExponential:
		p := retry.Exponential(r.MaxAttempts, r.BaseDelay, r.MaxDelay, r.Multiplier)
		p.Jitter = r.Jitter
		return p
	default:
		return retry.None
	}
}

// RetryPolicy returns the engine's node retry policy.
func (e Engine) RetryPolicy() retry.Policy {
	return e.Retry.Policy()
}

// RunOptions returns the per-run options described by the engine.
func (e Engine) RunOptions() []agentgraph.RunOption {
	return []agentgraph.RunOption{
		agentgraph.WithMaxSteps(e.MaxSteps),
		agentgraph.WithStreamBuffer(e.StreamBuffer),
	}
}

// Backend returns the checkpoint.Backend for the section.
func (c Checkpointer) Backend() checkpoint.Backend {
	return checkpoint.Backend{
		Kind:   c.Kind,
		Path:   c.Path,
		Addr:   c.Addr,
		DB:     c.DB,
		Prefix: c.Prefix,
		TTL:    c.TTL,
	}
}

// Resources are the stores opened for an Engine.
type Resources struct {
	Checkpointer checkpoint.Store
	Store        store.Store
}

// Close closes both stores.
func (r *Resources) Close() error {
	var errs []error
	if r.Checkpointer != nil {
		errs = append(errs, r.Checkpointer.Close())
	}
	if r.Store != nil {
		errs = append(errs, r.Store.Close())
	}
	return errors.Join(errs...)
}

// Open opens the configured checkpoint and key-value stores.
// The caller must Close the returned Resources.
func (e Engine) Open(ctx context.Context) (*Resources, error) {
	cp, err := checkpoint.Open(ctx, e.Checkpointer.Backend())
	if err != nil {
		return nil, fmt.Errorf("open checkpointer: %w", err)
	}

	kv, err := store.Open(e.Store.Backend())
	if err != nil {
		cp.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &Resources{Checkpointer: cp, Store: kv}, nil
}

// CompileOptions returns compile options that wire the engine's retry policy
// and the opened stores into a graph.
func (e Engine) CompileOptions(res *Resources) []agentgraph.CompileOption {
	opts := []agentgraph.CompileOption{agentgraph.WithRetryPolicy(e.RetryPolicy())}
	if res != nil {
		if res.Checkpointer != nil {
			opts = append(opts, agentgraph.WithCheckpointer(res.Checkpointer))
		}
		if res.Store != nil {
			opts = append(opts, agentgraph.WithStore(res.Store))
		}
	}
	return opts
}
