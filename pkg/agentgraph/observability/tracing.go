package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartRunSpan starts a span for the entire graph run.
	StartRunSpan(ctx context.Context, graphName, runID, threadID string) (context.Context, trace.Span)

	// StartNodeSpan starts a span for one node step, as a child of the run span.
	StartNodeSpan(ctx context.Context, nodeID string, step int) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager returns a SpanManager that uses the global OTel tracer provider.
// The provider is resolved on every span, so it may be configured later.
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// NewSpanManagerWithProvider returns a SpanManager bound to tp.
func NewSpanManagerWithProvider(tp trace.TracerProvider) SpanManager {
	return &otelSpanManager{tracer: tp.Tracer(instrumentationName)}
}

func (m *otelSpanManager) t() trace.Tracer {
	if m.tracer != nil {
		return m.tracer
	}
	return otel.Tracer(instrumentationName)
}

// StartRunSpan starts a span for the entire graph run.
func (m *otelSpanManager) StartRunSpan(ctx context.Context, graphName, runID, threadID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("graph.name", graphName),
		attribute.String("run.id", runID),
	}
	if threadID != "" {
		attrs = append(attrs, attribute.String("thread.id", threadID))
	}
	return m.t().Start(ctx, "agentgraph.run",
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartNodeSpan starts a span for a node execution.
func (m *otelSpanManager) StartNodeSpan(ctx context.Context, nodeID string, step int) (context.Context, trace.Span) {
	return m.t().Start(ctx, "agentgraph.node."+nodeID,
		trace.WithAttributes(
			attribute.String("node.id", nodeID),
			attribute.Int("node.step", step),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
