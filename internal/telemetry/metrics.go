// Package telemetry holds the OpenTelemetry instruments recorded by the run queue.
package telemetry

import (
	"context"
	"time"

	otelglobal "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/madhatter5501/promptflow"

// Common attribute keys.
var (
	AttrRecipe = attribute.Key("recipe")
	AttrStatus = attribute.Key("status")
)

// Metrics records queue activity. A nil *Metrics records nothing.
type Metrics struct {
	enqueued metric.Int64Counter
	attempts metric.Int64Counter
	finished metric.Int64Counter
	duration metric.Float64Histogram
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	m.enqueued, err = meter.Int64Counter("promptflow_runs_enqueued_total",
		metric.WithDescription("Total runs enqueued"))
	if err != nil {
		return nil, err
	}
	m.attempts, err = meter.Int64Counter("promptflow_run_attempts_total",
		metric.WithDescription("Total run attempts, including retries"))
	if err != nil {
		return nil, err
	}
	m.finished, err = meter.Int64Counter("promptflow_runs_finished_total",
		metric.WithDescription("Total runs that reached a terminal status"))
	if err != nil {
		return nil, err
	}
	m.duration, err = meter.Float64Histogram("promptflow_run_duration_seconds",
		metric.WithDescription("Run duration in seconds from start to terminal status"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// NewGlobal creates the instruments on the global meter provider.
func NewGlobal() (*Metrics, error) {
	return New(otelglobal.Meter(meterName))
}

// RecordEnqueued counts one enqueued run.
func (m *Metrics) RecordEnqueued(ctx context.Context, recipe string) {
	if m == nil {
		return
	}
	m.enqueued.Add(ctx, 1, metric.WithAttributes(AttrRecipe.String(recipe)))
}

// RecordAttempt counts one attempt of a run.
func (m *Metrics) RecordAttempt(ctx context.Context, recipe string) {
	if m == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(AttrRecipe.String(recipe)))
}

// RecordFinished counts a run reaching status and records its duration.
func (m *Metrics) RecordFinished(ctx context.Context, recipe, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(AttrRecipe.String(recipe), AttrStatus.String(status))
	m.finished.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}
