package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kilnproject/kiln/lib/buildctx"
	"github.com/kilnproject/kiln/lib/dockerfile"
	"github.com/kilnproject/kiln/lib/engine"
	"github.com/kilnproject/kiln/lib/reference"
)

// Stages returns the full bake pipeline in its fixed order: resolve the
// base, snapshot the payload, render the plan, provision the image,
// verify the result.
func Stages(eng engine.Engine, resolver reference.Resolver, output io.Writer) []Stage {
	return []Stage{
		NewResolveStage(resolver),
		NewSnapshotStage(),
		NewRenderStage(),
		NewProvisionStage(eng, output),
		NewVerifyStage(eng),
	}
}

type resolveStage struct {
	resolver reference.Resolver
}

// NewResolveStage parses the recipe's base reference and pins it to the
// digest the registry reports right now.
func NewResolveStage(resolver reference.Resolver) Stage {
	return &resolveStage{resolver: resolver}
}

func (s *resolveStage) Name() string { return "resolve" }

func (s *resolveStage) Run(ctx context.Context, st *State) error {
	ref, err := reference.Parse(st.Recipe.Base)
	if err != nil {
		return err
	}
	resolved, err := ref.Resolve(ctx, s.resolver)
	if err != nil {
		return err
	}
	st.Base = resolved
	return nil
}

type snapshotStage struct{}

// NewSnapshotStage takes the payload census of the context directory and
// derives the content-addressed tag when none was requested.
func NewSnapshotStage() Stage {
	return &snapshotStage{}
}

func (s *snapshotStage) Name() string { return "snapshot" }

func (s *snapshotStage) Run(ctx context.Context, st *State) error {
	snap, err := buildctx.Take(st.ContextDir)
	if err != nil {
		return err
	}
	st.Snapshot = snap
	if st.Tag == "" {
		st.Tag = buildctx.DeriveTag(st.Recipe.Fingerprint(), snap.Digest)
	}
	return nil
}

type renderStage struct{}

// NewRenderStage renders the plan against the pinned base and writes it
// into the staging directory, outside the build context.
func NewRenderStage() Stage {
	return &renderStage{}
}

func (s *renderStage) Name() string { return "render" }

func (s *renderStage) Run(ctx context.Context, st *State) error {
	base := st.Recipe.Base
	if st.Base != nil {
		base = st.Base.Pinned()
	}

	rendered, err := dockerfile.Render(dockerfile.Input{
		Recipe:          st.Recipe,
		Base:            base,
		HasRequirements: st.Snapshot != nil && st.Snapshot.Has(dockerfile.RequirementsFile),
	})
	if err != nil {
		return err
	}
	st.Dockerfile = rendered

	if st.StagingDir == "" {
		dir, err := os.MkdirTemp("", "kiln-staging-")
		if err != nil {
			return fmt.Errorf("create staging dir: %w", err)
		}
		st.StagingDir = dir
	} else if err := os.MkdirAll(st.StagingDir, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}

	path := filepath.Join(st.StagingDir, "Dockerfile")
	if err := os.WriteFile(path, []byte(st.Dockerfile), 0o644); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	st.DockerfilePath = path
	return nil
}

type provisionStage struct {
	engine engine.Engine
	output io.Writer
}

// NewProvisionStage hands the rendered plan and the untouched context to
// the engine. output receives the engine's progress stream.
func NewProvisionStage(eng engine.Engine, output io.Writer) Stage {
	return &provisionStage{engine: eng, output: output}
}

func (s *provisionStage) Name() string { return "provision" }

func (s *provisionStage) Run(ctx context.Context, st *State) error {
	res, err := s.engine.Build(ctx, engine.BuildOptions{
		ContextDir:     st.ContextDir,
		DockerfilePath: st.DockerfilePath,
		Tag:            st.Tag,
		NoCache:        st.NoCache,
		Pull:           st.Pull,
		Output:         s.output,
	})
	if err != nil {
		return err
	}
	st.ImageID = res.ImageID
	return nil
}
