package otel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectNames(t *testing.T, reader *sdkmetric.ManualReader) map[string]bool {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := make(map[string]bool)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	return names
}

func TestBuildMetricsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewBuildMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordBuild(ctx, "ready", "docker", 2*time.Second)
	m.RecordStage(ctx, "provision", "ok", 500*time.Millisecond)
	m.RecordContext(ctx, 4096)

	names := collectNames(t, reader)
	assert.True(t, names["kiln_build_duration_seconds"])
	assert.True(t, names["kiln_stage_duration_seconds"])
	assert.True(t, names["kiln_builds_total"])
	assert.True(t, names["kiln_context_bytes_total"])
}

func TestBuildMetricsNilReceiver(t *testing.T) {
	var m *BuildMetrics

	ctx := context.Background()
	m.RecordBuild(ctx, "failed", "podman", time.Second)
	m.RecordStage(ctx, "resolve", "error", time.Second)
	m.RecordContext(ctx, 1)
}

func TestBuildMetricsNoopMeter(t *testing.T) {
	m, err := NewBuildMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	require.NotNil(t, m)

	m.RecordBuild(context.Background(), "ready", "docker", time.Second)
}

func TestRegisterBuildsStored(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	err := RegisterBuildsStored(provider.Meter("test"), func(context.Context) (int64, error) {
		return 3, nil
	})
	require.NoError(t, err)

	names := collectNames(t, reader)
	assert.True(t, names["kiln_builds_stored"])
}
