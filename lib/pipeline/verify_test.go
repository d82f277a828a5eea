package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilnproject/kiln/lib/engine"
	"github.com/kilnproject/kiln/lib/recipe"
)

func matchingSummary(rec *recipe.Recipe) *engine.ImageSummary {
	labels := map[string]string{}
	if rec.Maintainer != "" {
		labels["maintainer"] = rec.Maintainer
	}
	for k, v := range rec.Labels {
		labels[k] = v
	}
	return &engine.ImageSummary{
		Entrypoint: append([]string{rec.Entrypoint}, rec.EntrypointArgs...),
		WorkingDir: rec.Workdir,
		Labels:     labels,
	}
}

func verifyWith(t *testing.T, rec *recipe.Recipe, mutate func(*engine.ImageSummary), fake *engine.Fake) error {
	t.Helper()
	if fake == nil {
		fake = &engine.Fake{}
	}
	fake.InspectFunc = func(tag string) (*engine.ImageSummary, error) {
		summary := matchingSummary(rec)
		if mutate != nil {
			mutate(summary)
		}
		return summary, nil
	}

	st := &State{Recipe: rec, Tag: "kiln:abc123def456"}
	return NewVerifyStage(fake).Run(context.Background(), st)
}

func TestVerifyPasses(t *testing.T) {
	rec := recipe.Default()
	rec.Maintainer = "team@example.com"
	rec.Labels = map[string]string{"app": "demo"}

	fake := &engine.Fake{}
	require.NoError(t, verifyWith(t, rec, nil, fake))

	require.Len(t, fake.Runs, 1)
	assert.Equal(t, []string{"--version"}, fake.Runs[0].Args)
	assert.True(t, fake.Runs[0].Remove, "probe containers must not linger")
}

func TestVerifyWorkdirMismatch(t *testing.T) {
	err := verifyWith(t, recipe.Default(), func(s *engine.ImageSummary) {
		s.WorkingDir = "/srv"
	}, nil)

	require.ErrorIs(t, err, ErrVerifyFailed)
	assert.Contains(t, err.Error(), "workdir")
}

func TestVerifyEntrypointMismatch(t *testing.T) {
	err := verifyWith(t, recipe.Default(), func(s *engine.ImageSummary) {
		s.Entrypoint = []string{"sh"}
	}, nil)

	require.ErrorIs(t, err, ErrVerifyFailed)
	assert.Contains(t, err.Error(), "entrypoint")
}

func TestVerifyDefaultArgumentsLeak(t *testing.T) {
	err := verifyWith(t, recipe.Default(), func(s *engine.ImageSummary) {
		s.Cmd = []string{"/bin/bash"}
	}, nil)

	require.ErrorIs(t, err, ErrVerifyFailed)
	assert.Contains(t, err.Error(), "default arguments")
}

func TestVerifyEntrypointWithArgs(t *testing.T) {
	rec := recipe.Default()
	rec.EntrypointArgs = []string{"main.py"}

	require.NoError(t, verifyWith(t, rec, nil, nil))
}

func TestVerifyMaintainerMissing(t *testing.T) {
	rec := recipe.Default()
	rec.Maintainer = "team@example.com"

	err := verifyWith(t, rec, func(s *engine.ImageSummary) {
		delete(s.Labels, "maintainer")
	}, nil)

	require.ErrorIs(t, err, ErrVerifyFailed)
	assert.Contains(t, err.Error(), "maintainer")
}

func TestVerifyLabelMismatch(t *testing.T) {
	rec := recipe.Default()
	rec.Labels = map[string]string{"app": "demo"}

	err := verifyWith(t, rec, func(s *engine.ImageSummary) {
		s.Labels["app"] = "other"
	}, nil)

	require.ErrorIs(t, err, ErrVerifyFailed)
}

func TestVerifyInterpreterExitCode(t *testing.T) {
	fake := &engine.Fake{
		RunFunc: func(opts engine.RunOptions) (*engine.RunResult, error) {
			return &engine.RunResult{ExitCode: 127}, nil
		},
	}

	err := verifyWith(t, recipe.Default(), nil, fake)
	require.ErrorIs(t, err, ErrVerifyFailed)
	assert.Contains(t, err.Error(), "exited 127")
}

func TestVerifyInspectError(t *testing.T) {
	fake := &engine.Fake{}
	fake.InspectFunc = func(tag string) (*engine.ImageSummary, error) {
		return nil, engine.ErrImageNotFound
	}

	st := &State{Recipe: recipe.Default(), Tag: "kiln:abc123def456"}
	err := NewVerifyStage(fake).Run(context.Background(), st)
	require.ErrorIs(t, err, engine.ErrImageNotFound)
}
