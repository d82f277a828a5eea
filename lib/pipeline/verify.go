package pipeline

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/kilnproject/kiln/lib/engine"
	"github.com/kilnproject/kiln/lib/recipe"
)

type verifyStage struct {
	engine engine.Engine
}

// NewVerifyStage probes the built image against the recipe: stored
// configuration first, then one throwaway run of the interpreter.
func NewVerifyStage(eng engine.Engine) Stage {
	return &verifyStage{engine: eng}
}

func (s *verifyStage) Name() string { return "verify" }

func (s *verifyStage) Run(ctx context.Context, st *State) error {
	summary, err := s.engine.Inspect(ctx, st.Tag)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return probeWorkdir(summary, st.Recipe) })
	g.Go(func() error { return probeEntrypoint(summary, st.Recipe) })
	g.Go(func() error { return probeLabels(summary, st.Recipe) })
	g.Go(func() error { return probeInterpreter(ctx, s.engine, st.Tag, st.Recipe) })
	return g.Wait()
}

func probeWorkdir(summary *engine.ImageSummary, rec *recipe.Recipe) error {
	if summary.WorkingDir != rec.Workdir {
		return fmt.Errorf("%w: workdir is %q, recipe wants %q",
			ErrVerifyFailed, summary.WorkingDir, rec.Workdir)
	}
	return nil
}

func probeEntrypoint(summary *engine.ImageSummary, rec *recipe.Recipe) error {
	want := append([]string{rec.Entrypoint}, rec.EntrypointArgs...)
	if !slices.Equal(summary.Entrypoint, want) {
		return fmt.Errorf("%w: entrypoint is %v, recipe wants %v",
			ErrVerifyFailed, summary.Entrypoint, want)
	}
	// Declaring ENTRYPOINT resets any CMD inherited from the base, so a
	// bare interpreter start means an empty Cmd.
	if len(summary.Cmd) > 0 {
		return fmt.Errorf("%w: image carries default arguments %v",
			ErrVerifyFailed, summary.Cmd)
	}
	return nil
}

func probeLabels(summary *engine.ImageSummary, rec *recipe.Recipe) error {
	if rec.Maintainer != "" && summary.Labels["maintainer"] != rec.Maintainer {
		return fmt.Errorf("%w: maintainer label is %q, recipe wants %q",
			ErrVerifyFailed, summary.Labels["maintainer"], rec.Maintainer)
	}
	for k, v := range rec.Labels {
		if got := summary.Labels[k]; got != v {
			return fmt.Errorf("%w: label %q is %q, recipe wants %q",
				ErrVerifyFailed, k, got, v)
		}
	}
	return nil
}

// probeInterpreter runs the image once with --version. An entrypoint that
// was never installed surfaces here instead of at first use.
func probeInterpreter(ctx context.Context, eng engine.Engine, tag string, rec *recipe.Recipe) error {
	res, err := eng.Run(ctx, engine.RunOptions{
		Tag:    tag,
		Args:   []string{"--version"},
		Remove: true,
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: %s --version exited %d",
			ErrVerifyFailed, rec.Entrypoint, res.ExitCode)
	}
	return nil
}
