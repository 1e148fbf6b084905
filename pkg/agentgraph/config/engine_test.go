package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/agentgraph/pkg/agentgraph"
	"github.com/randalmurphal/agentgraph/pkg/agentgraph/checkpoint"
	"github.com/randalmurphal/agentgraph/pkg/agentgraph/config"
	"github.com/randalmurphal/agentgraph/pkg/agentgraph/retry"
	"github.com/randalmurphal/agentgraph/pkg/agentgraph/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineFrom_Defaults(t *testing.T) {
	e, err := config.EngineFrom(config.New(nil))
	require.NoError(t, err)

	assert.Equal(t, agentgraph.DefaultMaxSteps, e.MaxSteps)
	assert.Equal(t, agentgraph.DefaultStreamBuffer, e.StreamBuffer)
	assert.Equal(t, config.RetryNone, e.Retry.Strategy)
	assert.Equal(t, 3, e.Retry.MaxAttempts)
	assert.Equal(t, 30*time.Second, e.Retry.MaxDelay)
	assert.Empty(t, e.Checkpointer.Kind)
	assert.Empty(t, e.Store.Kind)
}

func TestLoadEngine_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_steps: 50
stream_buffer: 16
retry:
  strategy: exponential
  max_attempts: 4
  base_delay: 200ms
  max_delay: 5s
  multiplier: 3
  jitter: 0.1
checkpointer:
  backend: redis
  addr: localhost:6379
  db: 2
  prefix: "app:"
  ttl: 1h
store:
  backend: sqlite
  path: ./kv.db
`), 0o600))

	e, err := config.LoadEngine(path)
	require.NoError(t, err)

	assert.Equal(t, 50, e.MaxSteps)
	assert.Equal(t, 16, e.StreamBuffer)
	assert.Equal(t, config.Retry{
		Strategy:    config.RetryExponential,
		MaxAttempts: 4,
		Delay:       time.Second,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  3,
		Jitter:      0.1,
	}, e.Retry)
	assert.Equal(t, checkpoint.Backend{
		Kind:   checkpoint.BackendRedis,
		Addr:   "localhost:6379",
		DB:     2,
		Prefix: "app:",
		TTL:    time.Hour,
	}, e.Checkpointer.Backend())
	assert.Equal(t, store.Backend{Kind: store.BackendSQLite, Path: "./kv.db"}, e.Store.Backend())
}

func TestEngine_Validate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"zero max steps", "max_steps: 0", "max_steps must be positive"},
		{"negative buffer", "stream_buffer: -1", "stream_buffer must be positive"},
		{"unknown strategy", "retry: {strategy: linear}", `unknown retry strategy "linear"`},
		{"zero attempts", "retry: {max_attempts: 0}", "retry.max_attempts must be at least 1"},
		{"jitter out of range", "retry: {jitter: 1.5}", "retry.jitter must be between 0 and 1"},
		{"redis without addr", "checkpointer: {backend: redis}", "checkpointer.addr is required"},
		{"unknown checkpointer", "checkpointer: {backend: etcd}", `unknown checkpointer backend "etcd"`},
		{"unknown store", "store: {backend: postgres}", `unknown store backend "postgres"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.FromYAML([]byte(tt.yaml))
			require.NoError(t, err)

			_, err = config.EngineFrom(cfg)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestEngine_ValidateJoinsErrors(t *testing.T) {
	err := config.Engine{Retry: config.Retry{Strategy: "bogus"}}.Validate()
	require.Error(t, err)

	assert.Contains(t, err.Error(), "max_steps")
	assert.Contains(t, err.Error(), "stream_buffer")
	assert.Contains(t, err.Error(), "bogus")
	assert.Contains(t, err.Error(), "max_attempts")
}

func TestRetry_Policy(t *testing.T) {
	boom := errors.New("boom")

	none := config.Retry{Strategy: config.RetryNone, MaxAttempts: 5}.Policy()
	_, retryable := none.Next(1, boom)
	assert.False(t, retryable)

	fixed := config.Retry{Strategy: config.RetryFixed, MaxAttempts: 3, Delay: 10 * time.Millisecond}.Policy()
	delay, retryable := fixed.Next(1, boom)
	assert.True(t, retryable)
	assert.Equal(t, 10*time.Millisecond, delay)
	_, retryable = fixed.Next(3, boom)
	assert.False(t, retryable)

	exp := config.Retry{
		Strategy:    config.RetryExponential,
		MaxAttempts: 5,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    25 * time.Millisecond,
		Multiplier:  2,
	}.Policy()
	d1, _ := exp.Next(1, boom)
	d2, _ := exp.Next(2, boom)
	d3, _ := exp.Next(3, boom)
	assert.Equal(t, 10*time.Millisecond, d1)
	assert.Equal(t, 20*time.Millisecond, d2)
	assert.Equal(t, 25*time.Millisecond, d3)

	_, retryable = exp.Next(1, retry.Permanent(boom, "test"))
	assert.False(t, retryable)
}

type counter struct {
	N int
}

func TestEngine_OpenAndCompile(t *testing.T) {
	ctx := context.Background()
	e, err := config.EngineFrom(config.New(map[string]any{
		"max_steps":    2,
		"checkpointer": map[string]any{"backend": "sqlite", "path": filepath.Join(t.TempDir(), "cp.db")},
		"store":        map[string]any{"backend": "memory"},
	}))
	require.NoError(t, err)

	res, err := e.Open(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Close() })

	var sawStore bool
	compiled, err := agentgraph.NewGraph[counter]().
		AddNodeFunc("inc", func(ctx agentgraph.Context, s counter) (counter, agentgraph.Next, error) {
			sawStore = ctx.Store() != nil
			s.N++
			return s, agentgraph.GoTo("inc"), nil
		}).
		SetEntry("inc").
		Compile(e.CompileOptions(res)...)
	require.NoError(t, err)

	opts := append(e.RunOptions(), agentgraph.WithThreadID("engine"))
	_, err = compiled.Invoke(ctx, counter{}, opts...)

	var maxErr *agentgraph.MaxStepsError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, 2, maxErr.Max)
	assert.True(t, sawStore)

	history, err := compiled.History(ctx, agentgraph.RunConfig{ThreadID: "engine"})
	require.NoError(t, err)
	assert.NotEmpty(t, history)
}

func TestEngine_OpenUnknownBackend(t *testing.T) {
	e := config.Engine{Checkpointer: config.Checkpointer{Kind: "etcd"}}
	_, err := e.Open(context.Background())
	assert.Error(t, err)
}
