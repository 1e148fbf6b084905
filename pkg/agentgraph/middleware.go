package agentgraph

import (
	"log/slog"
	"time"
)

// Handler runs a node, or the rest of a middleware chain around it.
type Handler[S any] func(ctx Context, state S) (S, Next, error)

// Middleware wraps every node execution.
//
// A middleware may act before and after calling next, pass a different
// state, skip next entirely, or rewrite its results. Middleware registered
// first runs outermost. Retries happen inside the chain, so a middleware
// sees one call per step, not per attempt.
type Middleware[S any] func(ctx Context, nodeID string, state S, next Handler[S]) (S, Next, error)

// chain composes mw around h, first middleware outermost.
func chain[S any](mw []Middleware[S], nodeID string, h Handler[S]) Handler[S] {
	for i := len(mw) - 1; i >= 0; i-- {
		m, next := mw[i], h
		h = func(ctx Context, state S) (S, Next, error) {
			return m(ctx, nodeID, state, next)
		}
	}
	return h
}

// LoggingMiddleware logs node entry and exit with the node's logger.
func LoggingMiddleware[S any]() Middleware[S] {
	return func(ctx Context, nodeID string, state S, next Handler[S]) (S, Next, error) {
		logger := ctx.Logger()
		logger.Debug("entering node", slog.String("node_id", nodeID), slog.Int("step", ctx.Step()))

		start := time.Now()
		out, directive, err := next(ctx, state)
		elapsed := float64(time.Since(start).Microseconds()) / 1000.0

		switch {
		case IsInterrupt(err):
			logger.Info("node interrupted", slog.String("node_id", nodeID))
		case err != nil:
			logger.Warn("node failed",
				slog.String("node_id", nodeID),
				slog.Float64("duration_ms", elapsed),
				slog.String("error", err.Error()))
		default:
			logger.Debug("exiting node",
				slog.String("node_id", nodeID),
				slog.Float64("duration_ms", elapsed),
				slog.String("next", directive.String()))
		}
		return out, directive, err
	}
}
