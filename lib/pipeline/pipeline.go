// Package pipeline runs a bake as an ordered list of stages over shared
// state. Stages run sequentially and the first failure stops the run;
// there are no retries and no fallbacks.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kilnproject/kiln/lib/buildctx"
	"github.com/kilnproject/kiln/lib/otel"
	"github.com/kilnproject/kiln/lib/recipe"
	"github.com/kilnproject/kiln/lib/reference"
)

// State carries everything a bake accumulates on its way through the
// stages. Each stage fills in its outputs; later stages read them.
type State struct {
	Recipe     *recipe.Recipe
	ContextDir string
	// StagingDir is where the rendered plan is written. The render stage
	// creates a temporary directory when unset.
	StagingDir string

	// NoCache and Pull are passed through to the engine build.
	NoCache bool
	Pull    bool

	// Base is the registry-resolved, digest-pinned base. Set by resolve.
	Base *reference.Resolved

	// Snapshot is the payload census. Set by snapshot, which also derives
	// Tag from the recipe fingerprint and payload digest when Tag is empty.
	Snapshot *buildctx.Snapshot
	Tag      string

	// Dockerfile is the rendered plan; DockerfilePath its on-disk copy.
	// Set by render.
	Dockerfile     string
	DockerfilePath string

	// ImageID is the engine-local identifier of the built image. Set by
	// provision.
	ImageID string

	// Durations records how long each stage took, including failed ones.
	// Filled by Run.
	Durations map[string]time.Duration
}

// Stage is one step of the bake.
type Stage interface {
	Name() string
	Run(ctx context.Context, st *State) error
}

// Hooks observe stage execution. Any field may be nil.
type Hooks struct {
	Logger  *slog.Logger
	Metrics *otel.BuildMetrics
	// OnStage is called with the stage name just before it runs.
	OnStage func(name string)
}

func (h Hooks) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Run executes stages in order against st. The first failure wins: the
// error is returned with the stage name folded in and later stages never
// run. Every executed stage is timed, logged, and recorded.
func Run(ctx context.Context, stages []Stage, st *State, hooks Hooks) error {
	log := hooks.logger()
	if st.Durations == nil {
		st.Durations = make(map[string]time.Duration, len(stages))
	}

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if hooks.OnStage != nil {
			hooks.OnStage(stage.Name())
		}
		log.Debug("stage starting", "stage", stage.Name())

		start := time.Now()
		err := stage.Run(ctx, st)
		elapsed := time.Since(start)
		st.Durations[stage.Name()] = elapsed

		if err != nil {
			hooks.Metrics.RecordStage(ctx, stage.Name(), "error", elapsed)
			log.Error("stage failed", "stage", stage.Name(), "duration", elapsed, "error", err)
			return fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
		hooks.Metrics.RecordStage(ctx, stage.Name(), "ok", elapsed)
		log.Info("stage complete", "stage", stage.Name(), "duration", elapsed)
	}
	return nil
}
