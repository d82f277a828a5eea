package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BuildMetrics holds the metrics instruments for the bake pipeline.
// A nil *BuildMetrics drops all records.
type BuildMetrics struct {
	buildDuration metric.Float64Histogram
	stageDuration metric.Float64Histogram
	buildsTotal   metric.Int64Counter
	contextBytes  metric.Int64Counter
}

// NewBuildMetrics creates metrics for the bake pipeline.
func NewBuildMetrics(meter metric.Meter) (*BuildMetrics, error) {
	buildDuration, err := meter.Float64Histogram(
		"kiln_build_duration_seconds",
		metric.WithDescription("Time to bake an image end to end"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	stageDuration, err := meter.Float64Histogram(
		"kiln_stage_duration_seconds",
		metric.WithDescription("Time spent in a single pipeline stage"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	buildsTotal, err := meter.Int64Counter(
		"kiln_builds_total",
		metric.WithDescription("Total number of builds"),
	)
	if err != nil {
		return nil, err
	}

	contextBytes, err := meter.Int64Counter(
		"kiln_context_bytes_total",
		metric.WithDescription("Total bytes snapshotted from build contexts"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &BuildMetrics{
		buildDuration: buildDuration,
		stageDuration: stageDuration,
		buildsTotal:   buildsTotal,
		contextBytes:  contextBytes,
	}, nil
}

// RecordBuild records metrics for a finished build.
func (m *BuildMetrics) RecordBuild(ctx context.Context, status, engine string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("status", status),
		attribute.String("engine", engine),
	}

	m.buildDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.buildsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordStage records the duration of a single pipeline stage.
func (m *BuildMetrics) RecordStage(ctx context.Context, stage, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status),
	))
}

// RecordContext records the size of a snapshotted build context.
func (m *BuildMetrics) RecordContext(ctx context.Context, bytes int64) {
	if m == nil {
		return
	}
	m.contextBytes.Add(ctx, bytes)
}

// RegisterBuildsStored registers an observable gauge for the number of
// builds currently kept on disk. count is polled on every collection.
func RegisterBuildsStored(meter metric.Meter, count func(context.Context) (int64, error)) error {
	buildsStored, err := meter.Int64ObservableGauge(
		"kiln_builds_stored",
		metric.WithDescription("Number of builds currently kept on disk"),
	)
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			n, err := count(ctx)
			if err != nil {
				return nil
			}
			o.ObserveInt64(buildsStored, n)
			return nil
		},
		buildsStored,
	)
	return err
}
