package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestRecorder returns a recorder wired to a manual reader.
func newTestRecorder(t *testing.T) (MetricsRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	})

	rec, err := NewMetricsRecorderWithProvider(provider)
	require.NoError(t, err)
	return rec, reader
}

// collectMetrics collects all metrics from the reader.
func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

// findMetric finds a metric by name in the collected data.
func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the counter value for datapoints carrying key=value.
func sumFor(t *testing.T, rm *metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum type for %s", name)

	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestNewMetricsRecorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	original := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	defer func() {
		otel.SetMeterProvider(original)
		_ = provider.Shutdown(context.Background())
	}()

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)

	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "Expected real metrics recorder, got noop")
}

func TestRecordNodeExecution(t *testing.T) {
	m, reader := newTestRecorder(t)
	ctx := context.Background()

	m.RecordNodeExecution(ctx, "plan", 50*time.Millisecond, nil)
	m.RecordNodeExecution(ctx, "plan", 10*time.Millisecond, nil)
	m.RecordNodeExecution(ctx, "act", 10*time.Millisecond, errors.New("node failed"))

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(2), sumFor(t, rm, "agentgraph.node.executions", "node_id", "plan"))
	assert.Equal(t, int64(1), sumFor(t, rm, "agentgraph.node.executions", "node_id", "act"))
	assert.Equal(t, int64(1), sumFor(t, rm, "agentgraph.node.errors", "node_id", "act"))
	assert.Equal(t, int64(0), sumFor(t, rm, "agentgraph.node.errors", "node_id", "plan"))

	latency := findMetric(rm, "agentgraph.node.latency_ms")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "Expected Histogram type")
	assert.NotEmpty(t, hist.DataPoints)
}

func TestRecordRetryAndInterrupt(t *testing.T) {
	m, reader := newTestRecorder(t)
	ctx := context.Background()

	m.RecordRetry(ctx, "fetch", 1)
	m.RecordRetry(ctx, "fetch", 2)
	m.RecordInterrupt(ctx, "approve")

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(2), sumFor(t, rm, "agentgraph.node.retries", "node_id", "fetch"))
	assert.Equal(t, int64(1), sumFor(t, rm, "agentgraph.graph.interrupts", "node_id", "approve"))
}

func TestRecordGraphRun(t *testing.T) {
	m, reader := newTestRecorder(t)
	ctx := context.Background()

	m.RecordGraphRun(ctx, OutcomeCompleted, time.Second)
	m.RecordGraphRun(ctx, OutcomeFailed, time.Second)
	m.RecordGraphRun(ctx, OutcomeCompleted, time.Second)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(2), sumFor(t, rm, "agentgraph.graph.runs", "outcome", OutcomeCompleted))
	assert.Equal(t, int64(1), sumFor(t, rm, "agentgraph.graph.runs", "outcome", OutcomeFailed))
	assert.NotNil(t, findMetric(rm, "agentgraph.graph.latency_ms"))
}

func TestRecordCheckpoint(t *testing.T) {
	m, reader := newTestRecorder(t)

	m.RecordCheckpoint(context.Background(), "plan", 1024)

	rm := collectMetrics(t, reader)
	metric := findMetric(rm, "agentgraph.checkpoint.size_bytes")
	require.NotNil(t, metric)

	hist, ok := metric.Data.(metricdata.Histogram[int64])
	require.True(t, ok, "Expected Histogram type")
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, int64(1024), hist.DataPoints[0].Sum)
}
