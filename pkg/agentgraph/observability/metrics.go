package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// instrumentationName names the meter and tracer.
const instrumentationName = "agentgraph"

// Run outcomes reported by RecordGraphRun.
const (
	OutcomeCompleted   = "completed"
	OutcomeFailed      = "failed"
	OutcomeInterrupted = "interrupted"
)

// MetricsRecorder records agentgraph metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records a node execution with its duration and error status.
	RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error)

	// RecordRetry records a failed attempt that is about to be retried.
	RecordRetry(ctx context.Context, nodeID string, attempt int)

	// RecordGraphRun records the end of a graph run.
	RecordGraphRun(ctx context.Context, outcome string, duration time.Duration)

	// RecordInterrupt records a run suspending before a node.
	RecordInterrupt(ctx context.Context, nodeID string)

	// RecordCheckpoint records a checkpoint save operation.
	RecordCheckpoint(ctx context.Context, nodeID string, sizeBytes int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	nodeRetries    metric.Int64Counter
	graphRuns      metric.Int64Counter
	graphLatency   metric.Float64Histogram
	interrupts     metric.Int64Counter
	checkpointSize metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics(otel.GetMeterProvider())
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics(mp metric.MeterProvider) (*otelMetrics, error) {
	meter := mp.Meter(instrumentationName)
	m := &otelMetrics{}
	var err error

	if m.nodeExecutions, err = meter.Int64Counter("agentgraph.node.executions",
		metric.WithDescription("Number of node executions"),
	); err != nil {
		return nil, err
	}

	if m.nodeLatency, err = meter.Float64Histogram("agentgraph.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.nodeErrors, err = meter.Int64Counter("agentgraph.node.errors",
		metric.WithDescription("Number of node execution errors"),
	); err != nil {
		return nil, err
	}

	if m.nodeRetries, err = meter.Int64Counter("agentgraph.node.retries",
		metric.WithDescription("Number of node attempts that were retried"),
	); err != nil {
		return nil, err
	}

	if m.graphRuns, err = meter.Int64Counter("agentgraph.graph.runs",
		metric.WithDescription("Number of graph runs by outcome"),
	); err != nil {
		return nil, err
	}

	if m.graphLatency, err = meter.Float64Histogram("agentgraph.graph.latency_ms",
		metric.WithDescription("Graph run latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.interrupts, err = meter.Int64Counter("agentgraph.graph.interrupts",
		metric.WithDescription("Number of runs suspended at an interrupt"),
	); err != nil {
		return nil, err
	}

	if m.checkpointSize, err = meter.Int64Histogram("agentgraph.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint size in bytes"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses the global OTel
// meter provider. If initialization fails, returns a no-op recorder.
//
// Configure the provider before the first call:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMetricsRecorderWithProvider returns a MetricsRecorder bound to mp.
func NewMetricsRecorderWithProvider(mp metric.MeterProvider) (MetricsRecorder, error) {
	return newOtelMetrics(mp)
}

// RecordNodeExecution records a node execution.
func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("node_id", nodeID))

	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)

	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

// RecordRetry records a retried attempt.
func (m *otelMetrics) RecordRetry(ctx context.Context, nodeID string, attempt int) {
	m.nodeRetries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("node_id", nodeID),
		attribute.Int("attempt", attempt),
	))
}

// RecordGraphRun records a graph run.
func (m *otelMetrics) RecordGraphRun(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.graphRuns.Add(ctx, 1, attrs)
	m.graphLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RecordInterrupt records a suspended run.
func (m *otelMetrics) RecordInterrupt(ctx context.Context, nodeID string) {
	m.interrupts.Add(ctx, 1, metric.WithAttributes(attribute.String("node_id", nodeID)))
}

// RecordCheckpoint records a checkpoint save.
func (m *otelMetrics) RecordCheckpoint(ctx context.Context, nodeID string, sizeBytes int64) {
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(attribute.String("node_id", nodeID)))
}
