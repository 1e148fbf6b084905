package agentgraph

import (
	"log/slog"

	"github.com/randalmurphal/agentgraph/pkg/agentgraph/checkpoint"
	"github.com/randalmurphal/agentgraph/pkg/agentgraph/observability"
	"github.com/randalmurphal/agentgraph/pkg/agentgraph/retry"
	"github.com/randalmurphal/agentgraph/pkg/agentgraph/store"
)

// Defaults for run configuration.
const (
	DefaultMaxSteps     = 1000
	DefaultStreamBuffer = 128
)

// compileConfig holds options applied by Compile.
type compileConfig struct {
	name            string
	checkpointer    checkpoint.Store
	store           store.Store
	middleware      []any
	retry           retry.Policy
	interruptBefore []string
}

// CompileOption configures a CompiledGraph.
type CompileOption func(*compileConfig)

// WithName sets the graph name used in traces and logs.
// Default: "agentgraph"
func WithName(name string) CompileOption {
	return func(c *compileConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// WithCheckpointer persists a checkpoint after every step.
// Runs must then carry a thread ID (WithThreadID).
func WithCheckpointer(s checkpoint.Store) CompileOption {
	return func(c *compileConfig) {
		c.checkpointer = s
	}
}

// WithStore makes a key-value store reachable to nodes via Context.Store().
// The engine never reads or writes it.
func WithStore(s store.Store) CompileOption {
	return func(c *compileConfig) {
		c.store = s
	}
}

// WithMiddleware appends middleware to the chain wrapping every node.
// Registration order is outer-to-inner. The middleware's state type must
// match the graph's; Compile reports ErrInvalidOption otherwise.
func WithMiddleware[S any](mw ...Middleware[S]) CompileOption {
	return func(c *compileConfig) {
		for _, m := range mw {
			if m != nil {
				c.middleware = append(c.middleware, m)
			}
		}
	}
}

// WithRetryPolicy retries failed node attempts according to p.
// Default: retry.None
func WithRetryPolicy(p retry.Policy) CompileOption {
	return func(c *compileConfig) {
		c.retry = p
	}
}

// WithInterruptBefore suspends every run before the named nodes execute.
// Unknown node IDs are reported by Compile as ErrNodeNotFound.
func WithInterruptBefore(ids ...string) CompileOption {
	return func(c *compileConfig) {
		c.interruptBefore = append(c.interruptBefore, ids...)
	}
}

// runConfig holds configuration for one Invoke or Stream call.
type runConfig struct {
	maxSteps        int
	streamBuffer    int
	config          RunConfig
	interruptBefore []string
	runtime         map[string]any
	runID           string
	logger          *slog.Logger
	metrics         observability.MetricsRecorder
	spans           observability.SpanManager
}

// defaultRunConfig returns the default execution configuration.
func defaultRunConfig() runConfig {
	return runConfig{
		maxSteps:     DefaultMaxSteps,
		streamBuffer: DefaultStreamBuffer,
		metrics:      observability.NoopMetrics{},
		spans:        observability.NoopSpanManager{},
	}
}

// RunOption configures execution behavior.
type RunOption func(*runConfig)

// WithMaxSteps sets the maximum number of node executions per run.
// Default: 1000
//
// This prevents infinite loops from hanging forever. If a run
// exceeds this limit, it fails with ErrMaxSteps.
//
// Example:
//
//	result, err := compiled.Invoke(ctx, state, agentgraph.WithMaxSteps(100))
func WithMaxSteps(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// WithStreamBuffer sets the capacity of the event queue used by Stream.
// Default: 128
func WithStreamBuffer(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.streamBuffer = n
		}
	}
}

// WithRunConfig sets thread, checkpoint, namespace and user identity at once.
func WithRunConfig(rc RunConfig) RunOption {
	return func(c *runConfig) {
		c.config = rc
	}
}

// WithThreadID groups the run's checkpoints under id.
// Running again with the same thread continues from its latest checkpoint.
func WithThreadID(id string) RunOption {
	return func(c *runConfig) {
		c.config.ThreadID = id
	}
}

// WithCheckpointID starts the run from a specific checkpoint of the thread
// instead of the latest one.
func WithCheckpointID(id string) RunOption {
	return func(c *runConfig) {
		c.config.CheckpointID = id
	}
}

// WithNamespace isolates checkpoints of nested runs within one thread.
func WithNamespace(ns string) RunOption {
	return func(c *runConfig) {
		c.config.Namespace = ns
	}
}

// WithUserID sets the user that Context.Namespace scopes store keys to.
func WithUserID(id string) RunOption {
	return func(c *runConfig) {
		c.config.UserID = id
	}
}

// WithRunInterruptBefore suspends this run before the named nodes execute,
// in addition to any compile-time interrupt points.
func WithRunInterruptBefore(ids ...string) RunOption {
	return func(c *runConfig) {
		c.interruptBefore = append(c.interruptBefore, ids...)
	}
}

// WithRuntime passes caller metadata to nodes via Context.Runtime().
func WithRuntime(values map[string]any) RunOption {
	return func(c *runConfig) {
		c.runtime = values
	}
}

// WithRunID sets the run identifier used for logs and traces.
// If not set, the Context's run ID or a new UUID is used.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithRunLogger sets the logger for the run.
// Node loggers are derived from it with run_id, node_id and attempt.
func WithRunLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records run, node, retry and checkpoint metrics.
// Default: observability.NoopMetrics
func WithMetrics(m observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing creates a span per run and per node.
// Default: observability.NoopSpanManager
func WithTracing(sm observability.SpanManager) RunOption {
	return func(c *runConfig) {
		if sm != nil {
			c.spans = sm
		}
	}
}
