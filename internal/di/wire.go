//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"repokit/internal/config"
	"repokit/internal/interfaces/http/rest"
)

// ConfigProviders load the configuration and build the logger.
var ConfigProviders = wire.NewSet(
	provideConfig,
	provideLogLevel,
	provideLogger,
	provideWatcher,
)

// InfrastructureProviders select the backend and the session decorators.
var InfrastructureProviders = wire.NewSet(
	provideAWSConfig,
	provideBackend,
	provideMetrics,
	provideTracer,
	provideCircuitBreaker,
	providePublisher,
	provideInstrumentation,
	provideCategoryRepository,
	provideProductRepository,
)

// InterfaceProviders build the HTTP surface.
var InterfaceProviders = wire.NewSet(
	provideValidator,
	provideProductHandler,
	provideCategoryHandler,
	rest.NewRouter,
	provideHandler,
)

var SuperSet = wire.NewSet(
	ConfigProviders,
	InfrastructureProviders,
	InterfaceProviders,
	wire.Struct(new(App), "*"),
)

// InitializeApp wires the application from the configuration files loader reads.
func InitializeApp(ctx context.Context, loader *config.Loader) (*App, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}
