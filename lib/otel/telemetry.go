package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// Config controls logging and telemetry for a kiln process.
type Config struct {
	ServiceName string
	Version     string
	Endpoint    string // OTLP gRPC endpoint; empty disables export
	LogLevel    slog.Level
	LogFormat   string // "json" (default) or "text"
	LogOutput   io.Writer
}

// Telemetry bundles the process logger and meter with the providers
// backing them.
type Telemetry struct {
	Logger *slog.Logger
	Meter  metric.Meter

	meterProvider  *sdkmetric.MeterProvider
	loggerProvider *sdklog.LoggerProvider
}

// Setup builds the process logger and meter. Without an endpoint the
// meter is a no-op and log records go only to LogOutput; with one,
// metrics and logs are also exported over OTLP.
func Setup(ctx context.Context, cfg Config) (*Telemetry, error) {
	out := cfg.LogOutput
	if out == nil {
		out = os.Stderr
	}

	var console slog.Handler
	switch cfg.LogFormat {
	case "text":
		console = slog.NewTextHandler(out, &slog.HandlerOptions{Level: cfg.LogLevel})
	default:
		console = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.LogLevel})
	}

	t := &Telemetry{}

	if cfg.Endpoint == "" {
		t.Logger = slog.New(console)
		t.Meter = noop.NewMeterProvider().Meter(cfg.ServiceName)
		return t, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	t.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(15*time.Second),
		)),
	)
	otel.SetMeterProvider(t.meterProvider)
	t.Meter = t.meterProvider.Meter(cfg.ServiceName)

	if err := runtime.Start(runtime.WithMeterProvider(t.meterProvider)); err != nil {
		return nil, fmt.Errorf("start runtime instrumentation: %w", err)
	}

	logExporter, err := otlploggrpc.New(ctx,
		otlploggrpc.WithEndpoint(cfg.Endpoint),
		otlploggrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create log exporter: %w", err)
	}
	t.loggerProvider = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)
	t.Logger = slog.New(slogmulti.Fanout(
		console,
		otelslog.NewHandler(cfg.ServiceName, otelslog.WithLoggerProvider(t.loggerProvider)),
	))

	return t, nil
}

// Shutdown flushes and stops the exporters.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.meterProvider != nil {
		errs = append(errs, t.meterProvider.Shutdown(ctx))
	}
	if t.loggerProvider != nil {
		errs = append(errs, t.loggerProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
