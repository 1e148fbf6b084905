package agentgraph

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/randalmurphal/agentgraph/pkg/agentgraph/checkpoint"
	"github.com/randalmurphal/agentgraph/pkg/agentgraph/observability"
	"github.com/randalmurphal/agentgraph/pkg/agentgraph/retry"
	"go.opentelemetry.io/otel/attribute"
)

// Invoke runs the graph to completion and returns the final state.
//
// If the run suspends at an interrupt, Invoke returns the state at that
// point and an *InterruptError. On failure it returns the state at the point
// of failure (useful for debugging) and the error.
//
// Execution flow, per step:
//  1. Check the step ceiling and cancellation
//  2. Suspend if an interrupt is pending for the node
//  3. Run the node through middleware and retry
//  4. Merge its output into the state
//  5. Resolve the next node from the directive or the node's edge
//  6. Persist a checkpoint, if a checkpointer is configured
//
// Example:
//
//	result, err := compiled.Invoke(ctx, initialState,
//	    agentgraph.WithThreadID("thread-1"))
func (cg *CompiledGraph[S]) Invoke(ctx context.Context, input S, opts ...RunOption) (S, error) {
	cfg := cg.newRunConfig(opts)
	return cg.run(ctx, input, nil, nil, &cfg)
}

// Stream runs the graph in a new goroutine and returns a Stream of the
// events selected by modes. Interrupt and error events are always delivered.
//
// The run never waits for a consumer that has called Close; cancel ctx to
// stop the run itself.
//
// Example:
//
//	st := compiled.Stream(ctx, input, []agentgraph.StreamMode{agentgraph.ModeUpdates})
//	for ev := range st.Events() {
//	    fmt.Println(ev.NodeID)
//	}
//	final, err := st.Wait()
func (cg *CompiledGraph[S]) Stream(ctx context.Context, input S, modes []StreamMode, opts ...RunOption) *Stream[S] {
	cfg := cg.newRunConfig(opts)
	q := newStreamQueue[S](cfg.streamBuffer, modes)
	go func() {
		result, err := cg.run(ctx, input, q, nil, &cfg)
		q.finish(result, err)
	}()
	return newStream(q)
}

func (cg *CompiledGraph[S]) newRunConfig(opts []RunOption) runConfig {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// startPoint is where Resume re-enters the loop.
type startPoint[S any] struct {
	node     string
	state    S
	step     int
	parentID string
}

// runner holds the mutable state of one run. It is owned by a single
// goroutine.
type runner[S any] struct {
	cg         *CompiledGraph[S]
	cfg        *runConfig
	stream     *streamQueue[S]
	ctx        context.Context
	ec         *executionContext
	logger     *slog.Logger
	interrupts map[string]bool

	step     int
	executed int
	parentID string
}

// run executes one Invoke, Stream or Resume call with run-level
// observability around it.
func (cg *CompiledGraph[S]) run(ctx context.Context, input S, st *streamQueue[S], from *startPoint[S], cfg *runConfig) (result S, runErr error) {
	if ctx == nil {
		st.publish(context.Background(), Event[S]{Kind: EventError, Err: ErrNilContext})
		return input, ErrNilContext
	}

	logger, runID := cfg.logger, cfg.runID
	if parent, ok := ctx.(*executionContext); ok {
		if logger == nil {
			logger = parent.logger
		}
		if runID == "" {
			runID = parent.runID
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	threadID := cfg.config.ThreadID

	startTime := time.Now()
	observability.LogRunStart(logger, runID, threadID)

	runCtx, runSpan := cfg.spans.StartRunSpan(ctx, cg.name, runID, threadID)

	r := &runner[S]{
		cg:     cg,
		cfg:    cfg,
		stream: st,
		ctx:    runCtx,
		logger: logger,
		ec: &executionContext{
			Context: runCtx,
			logger:  logger,
			kv:      cg.store,
			writer:  noopWriter{},
			runID:   runID,
			attempt: 1,
			config:  cfg.config,
			runtime: cfg.runtime,
		},
	}

	result, runErr = r.execute(input, from)

	duration := time.Since(startTime)
	durationMs := float64(duration.Microseconds()) / 1000.0

	intr, suspended := AsInterrupt(runErr)
	switch {
	case suspended:
		cfg.spans.AddSpanEvent(runCtx, "interrupt", attribute.String("node.id", intr.NodeID))
		cfg.spans.EndSpanWithError(runSpan, nil)
		cfg.metrics.RecordGraphRun(runCtx, observability.OutcomeInterrupted, duration)
	case runErr != nil:
		cfg.spans.EndSpanWithError(runSpan, runErr)
		cfg.metrics.RecordGraphRun(runCtx, observability.OutcomeFailed, duration)
		lastNode := failedNode(runErr)
		observability.LogRunError(logger, runID, runErr, durationMs, lastNode)
		st.publish(runCtx, Event[S]{Kind: EventError, NodeID: lastNode, Step: r.step, State: result, Err: runErr})
	default:
		cfg.spans.EndSpanWithError(runSpan, nil)
		cfg.metrics.RecordGraphRun(runCtx, observability.OutcomeCompleted, duration)
		observability.LogRunComplete(logger, runID, durationMs, r.executed)
	}

	return result, runErr
}

// execute drives the step loop until END, a suspension or a failure.
func (r *runner[S]) execute(input S, from *startPoint[S]) (S, error) {
	if r.cg.checkpointer != nil && r.cfg.config.ThreadID == "" {
		return input, ErrThreadRequired
	}

	r.interrupts = r.cg.interruptBefore
	if len(r.cfg.interruptBefore) > 0 {
		r.interrupts = maps.Clone(r.cg.interruptBefore)
		for _, id := range r.cfg.interruptBefore {
			if !r.cg.HasNode(id) {
				return input, &GraphError{Kind: ErrNodeNotFound, NodeID: id, Detail: "run interrupt point"}
			}
			r.interrupts[id] = true
		}
	}

	state, current, skip, err := r.prepare(input, from)
	if err != nil {
		return state, err
	}

	for current != END {
		if r.executed >= r.cfg.maxSteps {
			return state, &MaxStepsError{
				Max:        r.cfg.maxSteps,
				LastNodeID: current,
				State:      state,
			}
		}

		// Check for cancellation before executing node
		if err := r.ctx.Err(); err != nil {
			return state, &CancellationError{
				NodeID:       current,
				State:        state,
				Cause:        err,
				WasExecuting: false,
			}
		}

		if !skip && r.interrupts[current] {
			return r.suspend(current, nil, state)
		}
		skip = false

		state, current, err = r.runStep(current, state)
		if err != nil {
			return state, err
		}
	}

	return state, nil
}

// runStep executes one node and returns the merged state and the next node.
func (r *runner[S]) runStep(nodeID string, state S) (S, string, error) {
	step := r.step
	r.ec.step = step
	r.ec.remaining = r.cfg.maxSteps - r.executed

	r.stream.publish(r.ctx, Event[S]{Kind: EventTaskStart, NodeID: nodeID, Step: step})
	observability.LogNodeStart(r.logger, nodeID, step)

	nodeCtx, nodeSpan := r.cfg.spans.StartNodeSpan(r.ctx, nodeID, step)
	nodeStart := time.Now()

	out, directive, err := r.invokeNode(nodeCtx, nodeID, state)

	nodeDuration := time.Since(nodeStart)
	spanErr := err
	if IsInterrupt(err) {
		spanErr = nil
	}
	r.cfg.metrics.RecordNodeExecution(nodeCtx, nodeID, nodeDuration, spanErr)
	r.cfg.spans.EndSpanWithError(nodeSpan, spanErr)

	if intr, ok := AsInterrupt(err); ok {
		r.stream.publish(r.ctx, Event[S]{Kind: EventTaskEnd, NodeID: nodeID, Step: step, Err: intr})
		s, suspendErr := r.suspend(nodeID, intr.Payload, state)
		return s, nodeID, suspendErr
	}

	if err != nil {
		observability.LogNodeError(r.logger, nodeID, err)
		r.stream.publish(r.ctx, Event[S]{Kind: EventTaskEnd, NodeID: nodeID, Step: step, Err: err})
		return state, nodeID, err
	}
	observability.LogNodeComplete(r.logger, nodeID, float64(nodeDuration.Microseconds())/1000.0)

	merged, err := r.cg.merger.Merge(nodeID, state, out)
	if err != nil {
		err = asMergeError(nodeID, err)
		r.stream.publish(r.ctx, Event[S]{Kind: EventTaskEnd, NodeID: nodeID, Step: step, Err: err})
		return state, nodeID, err
	}
	r.executed++
	r.step++

	next, err := r.resolve(nodeID, merged, directive)
	if err != nil {
		r.stream.publish(r.ctx, Event[S]{Kind: EventTaskEnd, NodeID: nodeID, Step: step, Err: err})
		return merged, nodeID, err
	}

	if r.cg.checkpointer != nil {
		if err := r.persist(merged, checkpoint.SourceLoop, nodeID, next, nil); err != nil {
			return merged, nodeID, err
		}
	}

	r.stream.publish(r.ctx, Event[S]{Kind: EventValues, NodeID: nodeID, Step: step, State: merged})
	r.stream.publish(r.ctx, Event[S]{Kind: EventUpdates, NodeID: nodeID, Step: step, State: merged})
	r.stream.publish(r.ctx, Event[S]{Kind: EventTaskEnd, NodeID: nodeID, Step: step, State: merged})

	return merged, next, nil
}

type nodeResult[S any] struct {
	state S
	next  Next
}

// invokeNode runs a node through the middleware chain, with the retry policy
// innermost around the node itself.
func (r *runner[S]) invokeNode(spanCtx context.Context, nodeID string, state S) (S, Next, error) {
	node := r.cg.nodes[nodeID]
	writer := newWriter(spanCtx, r.stream, nodeID, r.step)
	policy := r.retryPolicy(spanCtx, nodeID)

	attempts := 0
	inner := func(hctx Context, in S) (S, Next, error) {
		res := retry.Do(hctx, policy, func(actx context.Context, attempt int) (nodeResult[S], error) {
			attempts = attempt
			ec := r.ec.forNode(actx, nodeID, attempt, writer)
			out, next, err := protect(nodeID, in, func() (S, Next, error) {
				return node.Run(ec, cloneState(in))
			})
			return nodeResult[S]{state: out, next: next}, err
		})
		return res.Value.state, res.Value.next, res.Err
	}

	mctx := r.ec.forNode(spanCtx, nodeID, 1, writer)
	h := chain(r.cg.middleware, nodeID, inner)
	out, next, err := protect(nodeID, state, func() (S, Next, error) {
		return h(mctx, state)
	})
	if err == nil || IsInterrupt(err) {
		return out, next, err
	}

	if ctxErr := r.ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return out, next, &CancellationError{
			NodeID:       nodeID,
			State:        state,
			Cause:        ctxErr,
			WasExecuting: true,
		}
	}

	return out, next, &NodeError{
		NodeID:   nodeID,
		Op:       "execute",
		Attempts: attempts,
		Err:      err,
	}
}

// retryPolicy wraps the graph's policy so every scheduled retry is logged
// and counted.
func (r *runner[S]) retryPolicy(ctx context.Context, nodeID string) retry.Policy {
	p := r.cg.retry
	if p == nil {
		return retry.None
	}
	return observedPolicy{
		inner: p,
		onRetry: func(attempt int, delay time.Duration, err error) {
			observability.LogRetry(r.logger, nodeID, attempt, delay, err)
			r.cfg.metrics.RecordRetry(ctx, nodeID, attempt)
		},
	}
}

type observedPolicy struct {
	inner   retry.Policy
	onRetry func(attempt int, delay time.Duration, err error)
}

func (p observedPolicy) Next(attempt int, err error) (time.Duration, bool) {
	delay, again := p.inner.Next(attempt, err)
	if again {
		p.onRetry(attempt, delay, err)
	}
	return delay, again
}

// protect runs fn and converts a panic into a *PanicError.
func protect[S any](nodeID string, state S, fn func() (S, Next, error)) (out S, next Next, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = state
			next = Next{}
			err = &PanicError{
				NodeID: nodeID,
				Value:  rec,
				Stack:  string(debug.Stack()),
			}
		}
	}()
	return fn()
}

// resolve turns a node's directive into the next node ID.
func (r *runner[S]) resolve(from string, state S, directive Next) (string, error) {
	switch {
	case directive.IsEnd():
		return END, nil
	case directive.Target() != "":
		target := directive.Target()
		if target != END && !r.cg.HasNode(target) {
			return "", &RouterError{FromNode: from, Returned: target, Err: ErrRouterTargetNotFound}
		}
		return target, nil
	default:
		return r.follow(from, state)
	}
}

// follow resolves the outgoing edge of from. A node without an outgoing
// edge leads to END.
func (r *runner[S]) follow(from string, state S) (string, error) {
	if ce, ok := r.cg.routers[from]; ok {
		routerCtx := r.ec.forNode(r.ctx, from, 1, noopWriter{})
		target := ce.router(routerCtx, state)

		if target == "" {
			return "", &RouterError{FromNode: from, Returned: target, Err: ErrInvalidRouterResult}
		}
		if len(ce.targets) > 0 && !slices.Contains(ce.targets, target) {
			return "", &RouterError{FromNode: from, Returned: target, Err: ErrUndeclaredRoute}
		}
		if target != END && !r.cg.HasNode(target) {
			return "", &RouterError{FromNode: from, Returned: target, Err: ErrRouterTargetNotFound}
		}
		return target, nil
	}

	if to, ok := r.cg.edges[from]; ok {
		return to, nil
	}
	return END, nil
}

// failedNode extracts the node a run error is attributed to.
func failedNode(err error) string {
	var (
		nodeErr   *NodeError
		maxErr    *MaxStepsError
		cancelErr *CancellationError
		routerErr *RouterError
		mergeErr  *MergeError
		cpErr     *CheckpointError
	)
	switch {
	case errors.As(err, &nodeErr):
		return nodeErr.NodeID
	case errors.As(err, &maxErr):
		return maxErr.LastNodeID
	case errors.As(err, &cancelErr):
		return cancelErr.NodeID
	case errors.As(err, &routerErr):
		return routerErr.FromNode
	case errors.As(err, &mergeErr):
		return mergeErr.NodeID
	case errors.As(err, &cpErr):
		return cpErr.NodeID
	default:
		return ""
	}
}
