package agentgraph

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/randalmurphal/agentgraph/pkg/agentgraph/observability"
	"github.com/randalmurphal/agentgraph/pkg/agentgraph/store"
)

// Context provides execution context to nodes.
// It extends context.Context with agentgraph-specific services and metadata.
//
// Context is immutable after creation. The executor creates derived contexts
// for each node attempt with updated NodeID and an enriched logger.
type Context interface {
	context.Context

	// Services

	// Logger returns the configured logger, enriched with run and node context.
	// Never returns nil - defaults to slog.Default() if not configured.
	Logger() *slog.Logger

	// Store returns the key-value store, or nil if not configured.
	// Nodes should check for nil before using.
	Store() store.Store

	// Writer publishes custom and message events to the run's stream.
	// Never returns nil; writes are dropped when nobody subscribed.
	Writer() Writer

	// Metadata

	// RunID returns the unique identifier for this execution run.
	// Auto-generated if not configured.
	RunID() string

	// NodeID returns the current node being executed.
	// Empty string before execution starts.
	NodeID() string

	// Attempt returns the retry attempt number (1 = first attempt).
	Attempt() int

	// Step returns the thread-wide index of the step being executed.
	Step() int

	// IsLastStep reports whether the run will stop with ErrMaxSteps after
	// the current step unless it ends.
	IsLastStep() bool

	// Config returns the run's thread, checkpoint and user identity.
	Config() RunConfig

	// Runtime returns caller metadata set with WithRuntime, or nil.
	Runtime() map[string]any

	// Namespace returns a store namespace scoped to the run's user.
	Namespace(parts ...string) store.Namespace
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	logger    *slog.Logger
	kv        store.Store
	writer    Writer
	runID     string
	nodeID    string
	attempt   int
	step      int
	remaining int
	config    RunConfig
	runtime   map[string]any
}

// Logger returns the configured logger.
func (c *executionContext) Logger() *slog.Logger {
	return c.logger
}

// Store returns the key-value store.
func (c *executionContext) Store() store.Store {
	return c.kv
}

// Writer returns the stream writer.
func (c *executionContext) Writer() Writer {
	return c.writer
}

// RunID returns the run identifier.
func (c *executionContext) RunID() string {
	return c.runID
}

// NodeID returns the current node identifier.
func (c *executionContext) NodeID() string {
	return c.nodeID
}

// Attempt returns the retry attempt number.
func (c *executionContext) Attempt() int {
	return c.attempt
}

// Step returns the step index.
func (c *executionContext) Step() int {
	return c.step
}

// IsLastStep reports whether this is the final permitted step.
func (c *executionContext) IsLastStep() bool {
	return c.remaining <= 1
}

// Config returns the run configuration.
func (c *executionContext) Config() RunConfig {
	return c.config
}

// Runtime returns the caller metadata.
func (c *executionContext) Runtime() map[string]any {
	return c.runtime
}

// Namespace returns {user_id, parts...}.
func (c *executionContext) Namespace(parts ...string) store.Namespace {
	return store.UserNamespace(c.config.UserID, parts...)
}

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the logger for the context.
// The logger will be enriched with run_id, node_id, and attempt during execution.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		c.logger = logger
	}
}

// WithContextRunID sets the run identifier for the context.
// If not set, a UUID will be auto-generated.
func WithContextRunID(id string) ContextOption {
	return func(c *executionContext) {
		c.runID = id
	}
}

// NewContext creates an execution context from a standard context.
// Passing it to Invoke or Stream makes the run use its logger and run ID.
//
// Example:
//
//	ctx := agentgraph.NewContext(context.Background(),
//	    agentgraph.WithLogger(myLogger),
//	    agentgraph.WithContextRunID("run-123"))
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		writer:  noopWriter{},
		runID:   uuid.NewString(),
		attempt: 1,
	}

	for _, opt := range opts {
		opt(ec)
	}
	if ec.logger == nil {
		ec.logger = slog.Default()
	}

	return ec
}

// forNode returns a context for one attempt of a node.
// base carries the tracing span for the node.
func (c *executionContext) forNode(base context.Context, nodeID string, attempt int, writer Writer) *executionContext {
	return &executionContext{
		Context:   base,
		logger:    observability.EnrichLogger(c.logger, c.runID, nodeID, attempt),
		kv:        c.kv,
		writer:    writer,
		runID:     c.runID,
		nodeID:    nodeID,
		attempt:   attempt,
		step:      c.step,
		remaining: c.remaining,
		config:    c.config,
		runtime:   c.runtime,
	}
}
