package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
)

// Fake is an in-memory Engine for tests. The zero value behaves like an
// always-available engine whose builds succeed.
type Fake struct {
	mu sync.Mutex

	EngineName    string
	VersionString string

	// BuildErr fails every build. BuildOutput is streamed to the build's
	// Output writer first, like a real engine's progress stream.
	BuildErr    error
	BuildOutput string

	// RunFunc, SaveFunc and InspectFunc override the default behavior.
	RunFunc     func(opts RunOptions) (*RunResult, error)
	SaveFunc    func(tag, destPath string) error
	InspectFunc func(tag string) (*ImageSummary, error)

	Builds  []BuildOptions
	Runs    []RunOptions
	Saves   []string
	Removed []string

	images map[string]string // tag -> image id
}

var _ Engine = (*Fake)(nil)

func (f *Fake) Name() string {
	if f.EngineName == "" {
		return "fake"
	}
	return f.EngineName
}

func (f *Fake) Available() bool { return true }

func (f *Fake) Version(ctx context.Context) (string, error) {
	if f.VersionString == "" {
		return "0.0.0-fake", nil
	}
	return f.VersionString, nil
}

func (f *Fake) Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	f.mu.Lock()
	f.Builds = append(f.Builds, opts)
	f.mu.Unlock()

	if opts.Output != nil && f.BuildOutput != "" {
		io.WriteString(opts.Output, f.BuildOutput)
	}
	if f.BuildErr != nil {
		return nil, f.BuildErr
	}

	id := fakeImageID(opts.Tag)
	f.mu.Lock()
	if f.images == nil {
		f.images = make(map[string]string)
	}
	f.images[opts.Tag] = id
	f.mu.Unlock()

	return &BuildResult{ImageID: id}, nil
}

func (f *Fake) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	f.mu.Lock()
	f.Runs = append(f.Runs, opts)
	f.mu.Unlock()

	if f.RunFunc != nil {
		return f.RunFunc(opts)
	}
	return &RunResult{ExitCode: 0}, nil
}

func (f *Fake) Save(ctx context.Context, tag string, destPath string) error {
	f.mu.Lock()
	f.Saves = append(f.Saves, tag)
	f.mu.Unlock()

	if f.SaveFunc != nil {
		return f.SaveFunc(tag, destPath)
	}
	return nil
}

func (f *Fake) Inspect(ctx context.Context, tag string) (*ImageSummary, error) {
	if f.InspectFunc != nil {
		return f.InspectFunc(tag)
	}

	f.mu.Lock()
	id, ok := f.images[tag]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("inspect %s: %w", tag, ErrImageNotFound)
	}
	return &ImageSummary{ID: id, RepoTags: []string{tag}}, nil
}

func (f *Fake) Exists(ctx context.Context, tag string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.images[tag]
	return ok, nil
}

func (f *Fake) Remove(ctx context.Context, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Removed = append(f.Removed, tag)
	delete(f.images, tag)
	return nil
}

// SeedImage marks a tag as present, as if it had been built.
func (f *Fake) SeedImage(tag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.images == nil {
		f.images = make(map[string]string)
	}
	f.images[tag] = fakeImageID(tag)
}

func fakeImageID(tag string) string {
	sum := sha256.Sum256([]byte(tag))
	return "sha256:" + hex.EncodeToString(sum[:])
}
