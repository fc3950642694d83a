//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"bms-backend/infrastructure/config"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideDomainConfig,
	ProvideAWSClients,
	ProvideRepositories,
	ProvideCoordinateRepository,
	ProvideDeltaRepository,
	ProvideSnapshotRepository,
	ProvideVectorCache,
	ProvideEmbedder,
	ProvideEventPublisher,
	ProvideMetrics,
	ProvideLockRegistry,
	ProvideReconstructor,
	ProvideCommandBus,
	ProvideQueryBus,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}
