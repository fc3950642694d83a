// Package di wires the application together. Providers are consumed by
// google/wire; see wire.go for the injector and wire_gen.go for its output.
package di

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"

	"bms-backend/application/commands"
	"bms-backend/application/commands/bus"
	"bms-backend/application/ports"
	"bms-backend/application/queries"
	querybus "bms-backend/application/queries/bus"
	"bms-backend/application/services"
	domaincfg "bms-backend/domain/config"
	"bms-backend/infrastructure/cache"
	"bms-backend/infrastructure/config"
	"bms-backend/infrastructure/embedding"
	"bms-backend/infrastructure/messaging/eventbridge"
	"bms-backend/infrastructure/messaging/noop"
	"bms-backend/infrastructure/persistence/dynamodb"
	"bms-backend/infrastructure/persistence/memory"
	"bms-backend/infrastructure/persistence/sqlite"
	"bms-backend/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	DomainConfig *domaincfg.DomainConfig
	Logger       *zap.Logger
	Coordinates  ports.CoordinateRepository
	Deltas       ports.DeltaRepository
	Snapshots    ports.SnapshotRepository
	VectorCache  ports.VectorCache
	Embedder     ports.Embedder
	Publisher    ports.EventPublisher
	Metrics      *observability.Metrics
	CommandBus   *bus.CommandBus
	QueryBus     *querybus.QueryBus
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideDomainConfig selects the domain tuning for the environment
func ProvideDomainConfig(cfg *config.Config) *domaincfg.DomainConfig {
	dc := domaincfg.LoadDomainConfig(cfg.Environment)
	dc.EmbeddingDimension = cfg.EmbeddingDimension
	return dc
}

// AWSClients bundles the AWS service clients. Clients are only created when
// some configured component needs AWS; otherwise the bundle stays empty.
type AWSClients struct {
	DynamoDB    *awsdynamodb.Client
	EventBridge *awseventbridge.Client
	CloudWatch  *awscloudwatch.Client
}

// ProvideAWSClients creates AWS clients when the configuration requires them
func ProvideAWSClients(ctx context.Context, cfg *config.Config) (*AWSClients, error) {
	needsAWS := cfg.StorageBackend == config.StorageDynamoDB ||
		cfg.EventBusName != "" ||
		cfg.EnableMetrics
	if !needsAWS {
		return &AWSClients{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clients := &AWSClients{}
	if cfg.StorageBackend == config.StorageDynamoDB {
		clients.DynamoDB = awsdynamodb.NewFromConfig(awsCfg)
	}
	if cfg.EventBusName != "" {
		clients.EventBridge = awseventbridge.NewFromConfig(awsCfg)
	}
	if cfg.EnableMetrics {
		clients.CloudWatch = awscloudwatch.NewFromConfig(awsCfg)
	}
	return clients, nil
}

// Repositories bundles the three storage ports backed by one store
type Repositories struct {
	Coordinates ports.CoordinateRepository
	Deltas      ports.DeltaRepository
	Snapshots   ports.SnapshotRepository
}

// ProvideRepositories selects and opens the configured storage backend.
// The returned cleanup releases backend resources.
func ProvideRepositories(cfg *config.Config, clients *AWSClients, logger *zap.Logger) (*Repositories, func(), error) {
	switch cfg.StorageBackend {
	case config.StorageMemory:
		store := memory.NewStore()
		return &Repositories{
			Coordinates: memory.NewCoordinateRepository(store),
			Deltas:      memory.NewDeltaRepository(store),
			Snapshots:   memory.NewSnapshotRepository(store),
		}, func() {}, nil

	case config.StorageSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := store.Close(); err != nil {
				logger.Warn("failed to close sqlite store", zap.Error(err))
			}
		}
		return &Repositories{
			Coordinates: sqlite.NewCoordinateRepository(store),
			Deltas:      sqlite.NewDeltaRepository(store),
			Snapshots:   sqlite.NewSnapshotRepository(store),
		}, cleanup, nil

	case config.StorageDynamoDB:
		store := dynamodb.NewStore(clients.DynamoDB, cfg.DynamoDBTable)
		return &Repositories{
			Coordinates: dynamodb.NewCoordinateRepository(store),
			Deltas:      dynamodb.NewDeltaRepository(store),
			Snapshots:   dynamodb.NewSnapshotRepository(store),
		}, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// ProvideCoordinateRepository extracts the coordinate port
func ProvideCoordinateRepository(repos *Repositories) ports.CoordinateRepository {
	return repos.Coordinates
}

// ProvideDeltaRepository extracts the delta port
func ProvideDeltaRepository(repos *Repositories) ports.DeltaRepository {
	return repos.Deltas
}

// ProvideSnapshotRepository extracts the snapshot port
func ProvideSnapshotRepository(repos *Repositories) ports.SnapshotRepository {
	return repos.Snapshots
}

// ProvideVectorCache creates the in-process embedding cache
func ProvideVectorCache() ports.VectorCache {
	return cache.NewVectorCache()
}

// ProvideEmbedder selects the configured embedding provider
func ProvideEmbedder(cfg *config.Config, logger *zap.Logger) (ports.Embedder, error) {
	switch cfg.EmbedderProvider {
	case config.EmbedderOpenAI:
		return embedding.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.EmbeddingDimension, logger)
	case config.EmbedderLocal:
		return embedding.NewLocalEmbedder(cfg.EmbeddingDimension), nil
	default:
		return nil, fmt.Errorf("unknown embedder provider %q", cfg.EmbedderProvider)
	}
}

// ProvideEventPublisher creates the event publisher; without a configured
// bus name events are dropped.
func ProvideEventPublisher(cfg *config.Config, clients *AWSClients, logger *zap.Logger) ports.EventPublisher {
	if cfg.EventBusName == "" || clients.EventBridge == nil {
		return noop.NewPublisher(logger)
	}
	return eventbridge.NewPublisher(clients.EventBridge, cfg.EventBusName, logger)
}

// ProvideMetrics creates the CloudWatch metrics emitter
func ProvideMetrics(cfg *config.Config, clients *AWSClients, logger *zap.Logger) *observability.Metrics {
	namespace := fmt.Sprintf("BMS/%s", cfg.Environment)
	return observability.NewMetrics(namespace, clients.CloudWatch, logger)
}

// ProvideLockRegistry creates the per-coordinate lock registry
func ProvideLockRegistry() *services.LockRegistry {
	return services.NewLockRegistry()
}

// ProvideReconstructor creates the state reconstructor
func ProvideReconstructor(deltas ports.DeltaRepository, snapshots ports.SnapshotRepository, logger *zap.Logger) *services.Reconstructor {
	return services.NewReconstructor(deltas, snapshots, logger)
}

// ProvideCommandBus creates a command bus with all handlers registered
func ProvideCommandBus(
	coordinates ports.CoordinateRepository,
	deltas ports.DeltaRepository,
	snapshots ports.SnapshotRepository,
	reconstructor *services.Reconstructor,
	locks *services.LockRegistry,
	vectorCache ports.VectorCache,
	publisher ports.EventPublisher,
	dc *domaincfg.DomainConfig,
	logger *zap.Logger,
) *bus.CommandBus {
	commandBus := bus.NewCommandBus(logger)

	storeHandler := commands.NewStoreStateHandler(
		coordinates, deltas, snapshots, reconstructor, locks, vectorCache, publisher, dc, logger)
	commandBus.Register(commands.StoreStateCommand{}, bus.CommandHandlerFunc(
		func(ctx context.Context, cmd bus.Command) (interface{}, error) {
			storeCmd, ok := cmd.(commands.StoreStateCommand)
			if !ok {
				return nil, fmt.Errorf("invalid command type %T", cmd)
			}
			return storeHandler.Handle(ctx, storeCmd)
		}))

	snapshotHandler := commands.NewCreateSnapshotHandler(
		coordinates, snapshots, reconstructor, locks, publisher, logger)
	commandBus.Register(commands.CreateSnapshotCommand{}, bus.CommandHandlerFunc(
		func(ctx context.Context, cmd bus.Command) (interface{}, error) {
			snapCmd, ok := cmd.(commands.CreateSnapshotCommand)
			if !ok {
				return nil, fmt.Errorf("invalid command type %T", cmd)
			}
			return snapshotHandler.Handle(ctx, snapCmd)
		}))

	return commandBus
}

// ProvideQueryBus creates a query bus with all handlers registered
func ProvideQueryBus(
	coordinates ports.CoordinateRepository,
	deltas ports.DeltaRepository,
	snapshots ports.SnapshotRepository,
	reconstructor *services.Reconstructor,
	embedder ports.Embedder,
	vectorCache ports.VectorCache,
	dc *domaincfg.DomainConfig,
	logger *zap.Logger,
) *querybus.QueryBus {
	queryBus := querybus.NewQueryBus(logger)

	recallHandler := queries.NewRecallStateHandler(coordinates, reconstructor, logger)
	queryBus.Register(queries.RecallStateQuery{}, querybus.QueryHandlerFunc(
		func(ctx context.Context, q querybus.Query) (interface{}, error) {
			recallQuery, ok := q.(queries.RecallStateQuery)
			if !ok {
				return nil, fmt.Errorf("invalid query type %T", q)
			}
			return recallHandler.Handle(ctx, recallQuery)
		}))

	verifyHandler := queries.NewVerifyChainHandler(coordinates, deltas, logger)
	queryBus.Register(queries.VerifyChainQuery{}, querybus.QueryHandlerFunc(
		func(ctx context.Context, q querybus.Query) (interface{}, error) {
			verifyQuery, ok := q.(queries.VerifyChainQuery)
			if !ok {
				return nil, fmt.Errorf("invalid query type %T", q)
			}
			return verifyHandler.Handle(ctx, verifyQuery)
		}))

	searchHandler := queries.NewSearchMemoriesHandler(
		coordinates, deltas, reconstructor, embedder, vectorCache, dc, logger)
	queryBus.Register(queries.SearchMemoriesQuery{}, querybus.QueryHandlerFunc(
		func(ctx context.Context, q querybus.Query) (interface{}, error) {
			searchQuery, ok := q.(queries.SearchMemoriesQuery)
			if !ok {
				return nil, fmt.Errorf("invalid query type %T", q)
			}
			return searchHandler.Handle(ctx, searchQuery)
		}))

	listHandler := queries.NewListCoordinatesHandler(coordinates, dc, logger)
	queryBus.Register(queries.ListCoordinatesQuery{}, querybus.QueryHandlerFunc(
		func(ctx context.Context, q querybus.Query) (interface{}, error) {
			listQuery, ok := q.(queries.ListCoordinatesQuery)
			if !ok {
				return nil, fmt.Errorf("invalid query type %T", q)
			}
			return listHandler.Handle(ctx, listQuery)
		}))

	statsHandler := queries.NewGetStatsHandler(coordinates, deltas, snapshots, vectorCache, logger)
	queryBus.Register(queries.GetStatsQuery{}, querybus.QueryHandlerFunc(
		func(ctx context.Context, q querybus.Query) (interface{}, error) {
			statsQuery, ok := q.(queries.GetStatsQuery)
			if !ok {
				return nil, fmt.Errorf("invalid query type %T", q)
			}
			return statsHandler.Handle(ctx, statsQuery)
		}))

	return queryBus
}
