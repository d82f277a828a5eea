package providers

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/kilnproject/kiln/cmd/kiln/config"
	"github.com/kilnproject/kiln/lib/build"
	"github.com/kilnproject/kiln/lib/engine"
	"github.com/kilnproject/kiln/lib/otel"
	"github.com/kilnproject/kiln/lib/paths"
	"github.com/kilnproject/kiln/lib/reference"
	"github.com/kilnproject/kiln/lib/registry"
	"github.com/kilnproject/kiln/lib/version"
)

// ProvideContext provides a base context
func ProvideContext() context.Context {
	return context.Background()
}

// ProvideConfig provides the application configuration
func ProvideConfig() *config.Config {
	return config.Load()
}

// ProvideTelemetry provides the logger and meter, exporting over OTLP when an
// endpoint is configured. The cleanup flushes pending telemetry.
func ProvideTelemetry(ctx context.Context, cfg *config.Config) (*otel.Telemetry, func(), error) {
	t, err := otel.Setup(ctx, otel.Config{
		ServiceName: cfg.ServiceName,
		Version:     version.Version,
		Endpoint:    cfg.OtelEndpoint,
		LogLevel:    logLevel(cfg.LogLevel),
		LogFormat:   cfg.LogFormat,
	})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.Shutdown(shutdownCtx)
	}
	return t, cleanup, nil
}

// ProvideLogger provides the structured logger
func ProvideLogger(t *otel.Telemetry) *slog.Logger {
	return t.Logger
}

// ProvideMeter provides the application meter
func ProvideMeter(t *otel.Telemetry) metric.Meter {
	return t.Meter
}

// ProvidePaths provides the data directory layout
func ProvidePaths(cfg *config.Config) *paths.Paths {
	return paths.New(cfg.DataDir)
}

// ProvideEngine provides the configured container engine
func ProvideEngine(cfg *config.Config) (engine.Engine, error) {
	return engine.Detect(cfg.Engine)
}

// ProvideResolver provides the registry digest resolver
func ProvideResolver() reference.Resolver {
	return registry.NewClient()
}

// ProvideBuildManager provides the build manager
func ProvideBuildManager(
	p *paths.Paths,
	cfg *config.Config,
	eng engine.Engine,
	resolver reference.Resolver,
	logger *slog.Logger,
	meter metric.Meter,
) (build.Manager, error) {
	return build.NewManager(p, build.Config{
		DefaultTimeout: cfg.BuildTimeout,
		MinFreeBytes:   cfg.MinFreeDisk,
	}, eng, resolver, logger, meter)
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
