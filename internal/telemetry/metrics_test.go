package telemetry

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, agg metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := agg.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("aggregation is %T, want Sum[int64]", agg)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := New(provider.Meter("test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	m.RecordEnqueued(ctx, "task-intake")
	m.RecordEnqueued(ctx, "bug-intake")
	m.RecordAttempt(ctx, "task-intake")
	m.RecordAttempt(ctx, "task-intake")
	m.RecordAttempt(ctx, "task-intake")
	m.RecordFinished(ctx, "task-intake", "failed", 1500*time.Millisecond)

	data := collect(t, reader)

	if got := sumOf(t, data["promptflow_runs_enqueued_total"]); got != 2 {
		t.Errorf("enqueued = %d, want 2", got)
	}
	if got := sumOf(t, data["promptflow_run_attempts_total"]); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}

	finished := data["promptflow_runs_finished_total"].(metricdata.Sum[int64])
	if len(finished.DataPoints) != 1 {
		t.Fatalf("finished data points = %d", len(finished.DataPoints))
	}
	status, ok := finished.DataPoints[0].Attributes.Value(AttrStatus)
	if !ok || status.AsString() != "failed" {
		t.Errorf("status attribute = %v", status)
	}

	hist, ok := data["promptflow_run_duration_seconds"].(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("duration = %#v", data["promptflow_run_duration_seconds"])
	}
	if hist.DataPoints[0].Sum != 1.5 {
		t.Errorf("duration sum = %v, want 1.5", hist.DataPoints[0].Sum)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordEnqueued(ctx, "x")
	m.RecordAttempt(ctx, "x")
	m.RecordFinished(ctx, "x", "succeeded", time.Second)
}
