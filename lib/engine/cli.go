package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// commandFunc creates the exec.Cmd for one engine invocation. Tests inject a
// recorder here.
type commandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

// dialect holds the few spots where docker and podman command lines differ.
type dialect struct {
	versionArgs []string
	saveArgs    func(tag, destPath string) []string
}

// cliEngine shells out to a container engine binary. Argument construction
// is separated from execution so tests can check the exact command lines.
type cliEngine struct {
	name    string
	binary  string
	dialect dialect
	command commandFunc
}

func newCLIEngine(name, binary string, d dialect) *cliEngine {
	return &cliEngine{
		name:    name,
		binary:  binary,
		dialect: d,
		command: exec.CommandContext,
	}
}

func (e *cliEngine) Name() string { return e.name }

func (e *cliEngine) Available() bool {
	_, err := exec.LookPath(e.binary)
	return err == nil
}

func (e *cliEngine) Version(ctx context.Context) (string, error) {
	out, err := e.output(ctx, e.dialect.versionArgs...)
	if err != nil {
		return "", fmt.Errorf("%s version: %w", e.name, err)
	}
	return strings.TrimSpace(out), nil
}

// buildArgs constructs the build command line:
//
//	<binary> build -f <plan> -t <tag> [--no-cache] [--pull] <context>
func (e *cliEngine) buildArgs(opts BuildOptions) []string {
	args := []string{"build", "-f", opts.DockerfilePath, "-t", opts.Tag}
	if opts.NoCache {
		args = append(args, "--no-cache")
	}
	if opts.Pull {
		args = append(args, "--pull")
	}
	return append(args, opts.ContextDir)
}

func (e *cliEngine) Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	cmd := e.command(ctx, e.binary, e.buildArgs(opts)...)
	cmd.Stdout = opts.Output
	cmd.Stderr = opts.Output

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s build failed: %w", e.name, err)
	}

	// The engine only creates the tag when every instruction succeeded, so
	// resolving it doubles as the success check.
	id, err := e.imageID(ctx, opts.Tag)
	if err != nil {
		return nil, fmt.Errorf("resolve built image id: %w", err)
	}
	return &BuildResult{ImageID: id}, nil
}

// runArgs constructs the run command line:
//
//	<binary> run [--rm] [-i] [-e k=v]... <tag> [args...]
//
// Args trail the image name, so the engine passes them to the entrypoint in
// place of its default arguments.
func (e *cliEngine) runArgs(opts RunOptions) []string {
	args := []string{"run"}
	if opts.Remove {
		args = append(args, "--rm")
	}
	if opts.Interactive {
		args = append(args, "-i")
	}
	for _, kv := range sortedEnv(opts.Env) {
		args = append(args, "-e", kv)
	}
	args = append(args, opts.Tag)
	return append(args, opts.Args...)
}

func (e *cliEngine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	cmd := e.command(ctx, e.binary, e.runArgs(opts)...)
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	err := cmd.Run()
	if err == nil {
		return &RunResult{ExitCode: 0}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// The container ran and exited non-zero; that is a result, not an
		// infrastructure failure.
		return &RunResult{ExitCode: exitErr.ExitCode()}, nil
	}
	return nil, fmt.Errorf("%s run: %w", e.name, err)
}

func (e *cliEngine) Save(ctx context.Context, tag string, destPath string) error {
	out, err := e.output(ctx, e.dialect.saveArgs(tag, destPath)...)
	if err != nil {
		return fmt.Errorf("%s save %s: %w (output: %s)", e.name, tag, err, strings.TrimSpace(out))
	}
	return nil
}

// inspectImage mirrors the engine's image inspect JSON. Docker and podman
// agree on these fields.
type inspectImage struct {
	ID       string    `json:"Id"`
	RepoTags []string  `json:"RepoTags"`
	Created  time.Time `json:"Created"`
	Size     int64     `json:"Size"`
	Config   struct {
		Entrypoint []string          `json:"Entrypoint"`
		Cmd        []string          `json:"Cmd"`
		Env        []string          `json:"Env"`
		WorkingDir string            `json:"WorkingDir"`
		Labels     map[string]string `json:"Labels"`
	} `json:"Config"`
}

func (e *cliEngine) Inspect(ctx context.Context, tag string) (*ImageSummary, error) {
	out, err := e.output(ctx, "image", "inspect", tag)
	if err != nil {
		return nil, fmt.Errorf("%s image inspect %s: %w: %v", e.name, tag, ErrImageNotFound, err)
	}

	var images []inspectImage
	if err := json.Unmarshal([]byte(out), &images); err != nil {
		return nil, fmt.Errorf("parse %s inspect output: %w", e.name, err)
	}
	if len(images) == 0 {
		return nil, ErrImageNotFound
	}

	img := images[0]
	return &ImageSummary{
		ID:         img.ID,
		RepoTags:   img.RepoTags,
		Created:    img.Created,
		SizeBytes:  img.Size,
		Entrypoint: img.Config.Entrypoint,
		Cmd:        img.Config.Cmd,
		Env:        img.Config.Env,
		WorkingDir: img.Config.WorkingDir,
		Labels:     img.Config.Labels,
	}, nil
}

func (e *cliEngine) Exists(ctx context.Context, tag string) (bool, error) {
	_, err := e.output(ctx, "image", "inspect", "--format", "{{.Id}}", tag)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (e *cliEngine) Remove(ctx context.Context, tag string) error {
	if _, err := e.output(ctx, "rmi", tag); err != nil {
		return fmt.Errorf("%s rmi %s: %w", e.name, tag, err)
	}
	return nil
}

func (e *cliEngine) imageID(ctx context.Context, tag string) (string, error) {
	out, err := e.output(ctx, "image", "inspect", "--format", "{{.Id}}", tag)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// output runs the binary and captures stdout; stderr rides along in the
// error for context.
func (e *cliEngine) output(ctx context.Context, args ...string) (string, error) {
	cmd := e.command(ctx, e.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return stdout.String(), fmt.Errorf("%s %s: %w: %s", e.binary, args[0], err, msg)
		}
		return stdout.String(), fmt.Errorf("%s %s: %w", e.binary, args[0], err)
	}
	return stdout.String(), nil
}

func sortedEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	kvs := make([]string, 0, len(env))
	for k, v := range env {
		kvs = append(kvs, k+"="+v)
	}
	sort.Strings(kvs)
	return kvs
}
