package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/kilnproject/kiln/lib/otel"
)

type fakeStage struct {
	name string
	err  error
	ran  *[]string
}

func (s *fakeStage) Name() string { return s.name }

func (s *fakeStage) Run(ctx context.Context, st *State) error {
	*s.ran = append(*s.ran, s.name)
	return s.err
}

func TestRunExecutesInOrder(t *testing.T) {
	var ran []string
	stages := []Stage{
		&fakeStage{name: "one", ran: &ran},
		&fakeStage{name: "two", ran: &ran},
		&fakeStage{name: "three", ran: &ran},
	}

	st := &State{}
	err := Run(context.Background(), stages, st, Hooks{})
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "two", "three"}, ran)
	assert.Len(t, st.Durations, 3)
	assert.Contains(t, st.Durations, "two")
}

func TestRunShortCircuits(t *testing.T) {
	boom := errors.New("boom")
	var ran []string
	stages := []Stage{
		&fakeStage{name: "one", ran: &ran},
		&fakeStage{name: "two", ran: &ran, err: boom},
		&fakeStage{name: "three", ran: &ran},
	}

	st := &State{}
	err := Run(context.Background(), stages, st, Hooks{})
	require.Error(t, err)

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "stage two")
	assert.Equal(t, []string{"one", "two"}, ran, "later stages must not run")

	// The failed stage is still timed.
	assert.Contains(t, st.Durations, "two")
	assert.NotContains(t, st.Durations, "three")
}

func TestRunOnStageHook(t *testing.T) {
	var ran, announced []string
	stages := []Stage{
		&fakeStage{name: "one", ran: &ran},
		&fakeStage{name: "two", ran: &ran},
	}

	hooks := Hooks{OnStage: func(name string) { announced = append(announced, name) }}
	require.NoError(t, Run(context.Background(), stages, &State{}, hooks))

	assert.Equal(t, []string{"one", "two"}, announced)
}

func TestRunHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran []string
	stages := []Stage{&fakeStage{name: "one", ran: &ran}}

	err := Run(ctx, stages, &State{}, Hooks{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ran)
}

func TestRunRecordsStageMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := otel.NewBuildMetrics(provider.Meter("test"))
	require.NoError(t, err)

	var ran []string
	stages := []Stage{&fakeStage{name: "one", ran: &ran}}
	require.NoError(t, Run(context.Background(), stages, &State{}, Hooks{Metrics: metrics}))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "kiln_stage_duration_seconds" {
				found = true
			}
		}
	}
	assert.True(t, found)
}

func TestRunReusesDurations(t *testing.T) {
	var ran []string
	st := &State{Durations: map[string]time.Duration{"earlier": time.Second}}

	require.NoError(t, Run(context.Background(), []Stage{&fakeStage{name: "one", ran: &ran}}, st, Hooks{}))

	assert.Contains(t, st.Durations, "earlier")
	assert.Contains(t, st.Durations, "one")
}
