// Package build runs bakes end to end and keeps a persistent record per
// build under the data directory: metadata, the engine log, and the
// staged plan.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/nrednav/cuid2"
	godigest "github.com/opencontainers/go-digest"
	"go.opentelemetry.io/otel/metric"

	"github.com/kilnproject/kiln/lib/engine"
	"github.com/kilnproject/kiln/lib/otel"
	"github.com/kilnproject/kiln/lib/paths"
	"github.com/kilnproject/kiln/lib/pipeline"
	"github.com/kilnproject/kiln/lib/reference"
)

// Manager bakes images and keeps their records.
type Manager interface {
	// Run executes one bake synchronously and returns the final record.
	// The record is returned together with the error when the bake fails.
	Run(ctx context.Context, req Request) (*Build, error)

	// Get returns a build record by id.
	Get(ctx context.Context, id string) (*Build, error)

	// List returns all build records, newest first.
	List(ctx context.Context) ([]*Build, error)

	// Logs opens the engine output captured during the bake.
	Logs(ctx context.Context, id string) (io.ReadCloser, error)

	// Follow streams the engine output line by line, optionally waiting
	// for new lines as a concurrent bake appends them.
	Follow(ctx context.Context, id string, tail int, follow bool) (<-chan string, error)

	// Delete removes the build record and everything staged for it. The
	// image itself stays in the engine store.
	Delete(ctx context.Context, id string) error
}

// Config holds the manager tunables.
type Config struct {
	// DefaultTimeout bounds a bake when the request does not.
	DefaultTimeout time.Duration
	// MinFreeBytes refuses new bakes when the data directory has less
	// free space. Zero disables the preflight.
	MinFreeBytes uint64
}

type manager struct {
	config   Config
	paths    *paths.Paths
	engine   engine.Engine
	resolver reference.Resolver
	logger   *slog.Logger
	metrics  *otel.BuildMetrics
	runMu    sync.Mutex
}

// NewManager creates a build manager.
func NewManager(
	p *paths.Paths,
	cfg Config,
	eng engine.Engine,
	resolver reference.Resolver,
	logger *slog.Logger,
	meter metric.Meter,
) (Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 15 * time.Minute
	}

	m := &manager{
		config:   cfg,
		paths:    p,
		engine:   eng,
		resolver: resolver,
		logger:   logger,
	}

	if meter != nil {
		metrics, err := otel.NewBuildMetrics(meter)
		if err != nil {
			return nil, fmt.Errorf("create metrics: %w", err)
		}
		m.metrics = metrics
		if err := otel.RegisterBuildsStored(meter, m.countStored); err != nil {
			return nil, fmt.Errorf("register builds gauge: %w", err)
		}
	}

	return m, nil
}

func (m *manager) countStored(ctx context.Context) (int64, error) {
	builds, err := listRecords(m.paths)
	if err != nil {
		return 0, err
	}
	return int64(len(builds)), nil
}

func (m *manager) Run(ctx context.Context, req Request) (*Build, error) {
	if req.Recipe == nil {
		return nil, errors.New("recipe is required")
	}
	if err := req.Recipe.Validate(); err != nil {
		return nil, err
	}

	contextDir := req.ContextDir
	if contextDir == "" {
		contextDir = "."
	}

	if err := m.paths.EnsureBase(); err != nil {
		return nil, err
	}
	if err := m.preflightDisk(); err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = m.config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	m.runMu.Lock()
	id := "b-" + cuid2.Generate()
	b := &Build{
		ID:                id,
		Status:            StatusPending,
		Tag:               req.Tag,
		BaseRef:           req.Recipe.Base,
		RecipeFingerprint: req.Recipe.Fingerprint(),
		Engine:            m.engine.Name(),
		CreatedAt:         time.Now().UTC(),
	}
	if err := writeRecord(m.paths, b); err != nil {
		m.runMu.Unlock()
		return nil, err
	}
	m.runMu.Unlock()

	if version, err := m.engine.Version(ctx); err == nil {
		b.EngineVersion = version
	}

	logFile, err := os.Create(m.paths.BuildLog(id))
	if err != nil {
		return nil, fmt.Errorf("create build log: %w", err)
	}
	defer logFile.Close()

	log := m.logger.With("build", id)
	log.Info("bake starting", "context", contextDir, "base", req.Recipe.Base, "engine", m.engine.Name())

	start := time.Now()
	started := start.UTC()
	b.StartedAt = &started

	st := &pipeline.State{
		Recipe:     req.Recipe,
		ContextDir: contextDir,
		StagingDir: m.paths.BuildStagingDir(id),
		Tag:        req.Tag,
		NoCache:    req.NoCache,
		Pull:       req.Pull,
	}

	var stages []pipeline.Stage
	if !req.Offline {
		stages = append(stages, pipeline.NewResolveStage(m.resolver))
	}
	stages = append(stages,
		pipeline.NewSnapshotStage(),
		pipeline.NewRenderStage(),
		pipeline.NewProvisionStage(m.engine, logFile),
	)
	if !req.SkipVerify {
		stages = append(stages, pipeline.NewVerifyStage(m.engine))
	}

	hooks := pipeline.Hooks{
		Logger:  log,
		Metrics: m.metrics,
		OnStage: func(name string) { m.transition(b, stageStatus(name)) },
	}

	runErr := pipeline.Run(ctx, stages, st, hooks)

	m.capture(b, st)
	duration := time.Since(start)
	b.DurationMillis = duration.Milliseconds()
	completed := time.Now().UTC()
	b.CompletedAt = &completed

	if b.ContextBytes > 0 {
		m.metrics.RecordContext(ctx, b.ContextBytes)
	}
	if st.Snapshot != nil && st.Snapshot.FileCount == 0 {
		log.Warn("build context contains no files", "context", contextDir)
	}

	if runErr != nil {
		b.Error = runErr.Error()
		m.transition(b, StatusFailed)
		m.metrics.RecordBuild(ctx, StatusFailed, m.engine.Name(), duration)
		log.Error("bake failed", "duration", duration, "error", runErr)
		return b, runErr
	}

	m.transition(b, StatusReady)
	m.metrics.RecordBuild(ctx, StatusReady, m.engine.Name(), duration)
	log.Info("bake complete", "tag", b.Tag, "image_id", b.ImageID, "duration", duration)
	return b, nil
}

// stageStatus maps a pipeline stage to the record status it runs under.
func stageStatus(stage string) string {
	switch stage {
	case "provision":
		return StatusBuilding
	case "verify":
		return StatusVerifying
	default:
		return StatusResolving
	}
}

// transition moves the record forward and persists it. Terminal statuses
// never regress.
func (m *manager) transition(b *Build, status string) {
	if isTerminal(b.Status) {
		m.logger.Debug("skipping status update for finished build",
			"build", b.ID, "current", b.Status, "requested", status)
		return
	}
	if b.Status == status {
		return
	}
	b.Status = status
	if err := writeRecord(m.paths, b); err != nil {
		m.logger.Error("persist build record", "build", b.ID, "error", err)
	}
}

func isTerminal(status string) bool {
	switch status {
	case StatusReady, StatusFailed:
		return true
	default:
		return false
	}
}

// capture copies the pipeline outputs into the record.
func (m *manager) capture(b *Build, st *pipeline.State) {
	if st.Base != nil {
		b.BaseRef = st.Base.String()
		b.BaseDigest = st.Base.Digest()
	}
	if st.Snapshot != nil {
		b.ContextDigest = st.Snapshot.Digest
		b.ContextFiles = st.Snapshot.FileCount
		b.ContextBytes = st.Snapshot.TotalBytes
	}
	if st.Dockerfile != "" {
		b.PlanDigest = godigest.FromString(st.Dockerfile).Encoded()
	}
	b.Tag = st.Tag
	b.ImageID = st.ImageID

	if len(st.Durations) > 0 && b.StageMillis == nil {
		b.StageMillis = make(map[string]int64, len(st.Durations))
	}
	for name, d := range st.Durations {
		b.StageMillis[name] = d.Milliseconds()
	}
}

// preflightDisk refuses a bake when the data directory is nearly full.
func (m *manager) preflightDisk() error {
	if m.config.MinFreeBytes == 0 {
		return nil
	}
	free, err := m.paths.FreeBytes()
	if err != nil {
		return fmt.Errorf("check free disk: %w", err)
	}
	if free < m.config.MinFreeBytes {
		return fmt.Errorf("%w: %s free, need %s", ErrLowDisk,
			datasize.ByteSize(free).HumanReadable(),
			datasize.ByteSize(m.config.MinFreeBytes).HumanReadable())
	}
	return nil
}

func (m *manager) Get(ctx context.Context, id string) (*Build, error) {
	return readRecord(m.paths, id)
}

func (m *manager) List(ctx context.Context) ([]*Build, error) {
	return listRecords(m.paths)
}

func (m *manager) Logs(ctx context.Context, id string) (io.ReadCloser, error) {
	if _, err := readRecord(m.paths, id); err != nil {
		return nil, err
	}

	f, err := os.Open(m.paths.BuildLog(id))
	if err != nil {
		// A bake that failed before provisioning has a record but no log.
		if os.IsNotExist(err) {
			return io.NopCloser(strings.NewReader("")), nil
		}
		return nil, fmt.Errorf("open build log: %w", err)
	}
	return f, nil
}

func (m *manager) Delete(ctx context.Context, id string) error {
	return deleteRecord(m.paths, id)
}
