// Package engine drives an installed container engine (docker or podman)
// over its command line. The build itself, image storage, and container
// execution all belong to the engine; kiln only hands it a rendered plan and
// a build context.
package engine

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Engine is the surface kiln needs from a container engine.
type Engine interface {
	// Name returns the engine name (docker or podman).
	Name() string
	// Available reports whether the engine binary is on PATH.
	Available() bool
	// Version returns the engine client version.
	Version(ctx context.Context) (string, error)

	// Build executes a rendered plan against a build context. The image is
	// tagged only when every instruction succeeds.
	Build(ctx context.Context, opts BuildOptions) (*BuildResult, error)
	// Run starts a container from an image. A non-zero container exit code is
	// reported in RunResult, not as an error.
	Run(ctx context.Context, opts RunOptions) (*RunResult, error)
	// Save writes the image to a docker-archive tarball at destPath.
	Save(ctx context.Context, tag string, destPath string) error
	// Inspect returns the stored image configuration.
	Inspect(ctx context.Context, tag string) (*ImageSummary, error)
	// Exists reports whether the image is present in the engine store.
	Exists(ctx context.Context, tag string) (bool, error)
	// Remove deletes the image from the engine store.
	Remove(ctx context.Context, tag string) error
}

// BuildOptions describes one image build.
type BuildOptions struct {
	// ContextDir is the build context directory. It is handed to the engine
	// untouched; the plan file never lives inside it.
	ContextDir string
	// DockerfilePath is the absolute path of the rendered plan.
	DockerfilePath string
	// Tag is the name the image gets on success.
	Tag string
	// NoCache disables layer caching.
	NoCache bool
	// Pull re-pulls the base image even when cached.
	Pull bool
	// Output receives the combined build progress stream.
	Output io.Writer
}

// BuildResult reports a successful build.
type BuildResult struct {
	// ImageID is the engine-local image identifier (sha256:...).
	ImageID string
}

// RunOptions describes one container run.
type RunOptions struct {
	// Tag is the image to run.
	Tag string
	// Args are appended after the image name and therefore replace the
	// entrypoint's default arguments. Empty args start the entrypoint bare.
	Args []string
	// Env adds environment variables.
	Env map[string]string
	// Remove deletes the container after exit.
	Remove bool
	// Interactive keeps stdin open.
	Interactive bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// RunResult reports a finished container.
type RunResult struct {
	// ExitCode is the container's exit code.
	ExitCode int
}

// ImageSummary is the subset of the stored image configuration kiln inspects
// and verifies.
type ImageSummary struct {
	ID         string
	RepoTags   []string
	Created    time.Time
	SizeBytes  int64
	Entrypoint []string
	Cmd        []string
	Env        []string
	WorkingDir string
	Labels     map[string]string
}

// Detect returns the named engine, or probes docker then podman when name is
// empty or "auto". The returned engine is known to be available.
func Detect(name string) (Engine, error) {
	switch name {
	case "docker":
		e := NewDocker()
		if !e.Available() {
			return nil, ErrNoEngine
		}
		return e, nil
	case "podman":
		e := NewPodman()
		if !e.Available() {
			return nil, ErrNoEngine
		}
		return e, nil
	case "", "auto":
		for _, e := range []Engine{NewDocker(), NewPodman()} {
			if e.Available() {
				return e, nil
			}
		}
		return nil, ErrNoEngine
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
}
