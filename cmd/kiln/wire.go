//go:build wireinject

package main

import (
	"context"
	"log/slog"

	"github.com/google/wire"
	"go.opentelemetry.io/otel/metric"

	"github.com/kilnproject/kiln/cmd/kiln/config"
	"github.com/kilnproject/kiln/lib/build"
	"github.com/kilnproject/kiln/lib/engine"
	"github.com/kilnproject/kiln/lib/otel"
	"github.com/kilnproject/kiln/lib/paths"
	"github.com/kilnproject/kiln/lib/providers"
	"github.com/kilnproject/kiln/lib/reference"
)

// application struct to hold initialized components
type application struct {
	Ctx       context.Context
	Config    *config.Config
	Telemetry *otel.Telemetry
	Logger    *slog.Logger
	Meter     metric.Meter
	Paths     *paths.Paths
	Engine    engine.Engine
	Resolver  reference.Resolver
	Builds    build.Manager
}

// initializeApp is the injector function
func initializeApp() (*application, func(), error) {
	panic(wire.Build(
		providers.ProvideContext,
		providers.ProvideConfig,
		providers.ProvideTelemetry,
		providers.ProvideLogger,
		providers.ProvideMeter,
		providers.ProvidePaths,
		providers.ProvideEngine,
		providers.ProvideResolver,
		providers.ProvideBuildManager,
		wire.Struct(new(application), "*"),
	))
}
