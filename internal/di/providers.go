// Package di wires the application together with Wire.
package di

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	awsDynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsEventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"repokit/internal/config"
	"repokit/internal/domain/catalog"
	"repokit/internal/domain/entity"
	"repokit/internal/infrastructure/decorators"
	"repokit/internal/infrastructure/messaging"
	"repokit/internal/infrastructure/observability"
	"repokit/internal/infrastructure/persistence"
	"repokit/internal/infrastructure/persistence/dynamodb"
	"repokit/internal/infrastructure/persistence/memory"
	"repokit/internal/infrastructure/persistence/sqlstore"
	"repokit/internal/infrastructure/tracing"
	"repokit/internal/interfaces/http/handlers"
	"repokit/internal/interfaces/http/rest"
	"repokit/internal/query"
	"repokit/internal/repository"
)

// ============================================================================
// CONFIGURATION
// ============================================================================

func provideConfig(loader *config.Loader) (*config.Config, error) {
	return loader.Load()
}

func provideLogLevel(cfg *config.Config) (zap.AtomicLevel, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("failed to parse log level: %w", err)
	}
	return zap.NewAtomicLevelAt(level), nil
}

func provideLogger(cfg *config.Config, level zap.AtomicLevel) (*zap.Logger, func(), error) {
	zc := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	zc.Encoding = cfg.Logging.Format

	logger, err := zc.Build(zap.Fields(zap.String("environment", string(cfg.Environment))))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, func() { _ = logger.Sync() }, nil
}

// provideWatcher reloads the configuration on file changes in development and
// applies a changed log level to the running logger.
func provideWatcher(loader *config.Loader, cfg *config.Config, level zap.AtomicLevel, logger *zap.Logger) (*config.Watcher, func(), error) {
	w, err := config.NewWatcher(loader, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	w.OnChange(config.LevelUpdater(level, logger))
	return w, func() { _ = w.Close() }, nil
}

// ============================================================================
// AWS CLIENTS
// ============================================================================

func provideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	opts := []func(*awsConfig.LoadOptions) error{}
	if cfg.Store.Region != "" {
		opts = append(opts, awsConfig.WithRegion(cfg.Store.Region))
	}
	awsCfg, err := awsConfig.LoadDefaultConfig(loadCtx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

func provideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *awsDynamodb.Client {
	return awsDynamodb.NewFromConfig(awsCfg, func(o *awsDynamodb.Options) {
		timeout := 15 * time.Second
		if cfg.IsDevelopment() {
			timeout = 30 * time.Second
		}
		o.HTTPClient = &http.Client{Timeout: timeout}
		if cfg.Store.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Store.Endpoint)
		}
	})
}

func provideEventBridgeClient(awsCfg aws.Config) *awsEventbridge.Client {
	return awsEventbridge.NewFromConfig(awsCfg, func(o *awsEventbridge.Options) {
		o.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	})
}

// ============================================================================
// BACKEND
// ============================================================================

// Backend is the persistence backend selected by the configuration. Only the
// fields of the selected backend are set.
type Backend struct {
	Name     string
	DynamoDB *awsDynamodb.Client
	DB       *sql.DB
	Dialect  sqlstore.Dialect
}

func provideBackend(ctx context.Context, cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) (*Backend, func(), error) {
	b := &Backend{Name: cfg.Store.Backend}
	cleanup := func() {}

	switch cfg.Store.Backend {
	case config.BackendMemory:
		logger.Warn("Using the in-memory backend; data is lost on restart")
	case config.BackendDynamoDB:
		b.DynamoDB = provideDynamoDBClient(awsCfg, cfg)
	case config.BackendPostgres, config.BackendSQLite:
		db, dialect, err := sqlstore.Open(ctx, cfg.SQLConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s database: %w", cfg.Store.Backend, err)
		}
		if cfg.Store.Migrate {
			if err := sqlstore.Migrate(ctx, db, sqlstore.Schema(dialect)...); err != nil {
				_ = db.Close()
				return nil, nil, fmt.Errorf("failed to migrate: %w", err)
			}
		}
		b.DB, b.Dialect = db, dialect
		cleanup = func() {
			if err := db.Close(); err != nil {
				logger.Warn("Failed to close database", zap.Error(err))
			}
		}
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	logger.Info("Store backend selected", zap.String("backend", b.Name))
	return b, cleanup, nil
}

// ============================================================================
// CROSS-CUTTING DECORATORS
// ============================================================================

// Instrumentation holds the enabled session decorators' collaborators. Disabled
// features leave their field nil.
type Instrumentation struct {
	Logger    *zap.Logger
	Logging   decorators.LoggingConfig
	Metrics   *observability.Collector
	Tracer    trace.Tracer
	Breaker   *gobreaker.CircuitBreaker
	Publisher messaging.Publisher
}

func provideMetrics(cfg *config.Config) *observability.Collector {
	if !cfg.Features.EnableMetrics {
		return nil
	}
	return observability.NewCollector(cfg.Metrics.Namespace)
}

func provideTracer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (trace.Tracer, func(), error) {
	if !cfg.Features.EnableTracing {
		return nil, func() {}, nil
	}
	tp, err := tracing.InitTracing(ctx, cfg.Tracing.ServiceName, string(cfg.Environment), cfg.Tracing.Endpoint, cfg.Tracing.SampleRate)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to flush spans", zap.Error(err))
		}
	}
	return tp.Tracer(), cleanup, nil
}

func provideCircuitBreaker(cfg *config.Config, logger *zap.Logger) *gobreaker.CircuitBreaker {
	if !cfg.Features.EnableCircuitBreaker {
		return nil
	}
	cb := cfg.CircuitBreaker
	return persistence.NewCircuitBreaker(persistence.CircuitBreakerConfig{
		Name:             "store-" + cfg.Store.Backend,
		MaxRequests:      cb.MaxRequests,
		Interval:         cb.Interval,
		Timeout:          cb.Timeout,
		FailureThreshold: cb.FailureThreshold,
		MinRequests:      cb.MinRequests,
	}, logger)
}

func providePublisher(cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) messaging.Publisher {
	if !cfg.Features.EnableEvents {
		return nil
	}
	return messaging.NewEventBridgePublisher(provideEventBridgeClient(awsCfg), cfg.Events.EventBusName, cfg.Events.Source, logger)
}

func provideInstrumentation(
	cfg *config.Config,
	logger *zap.Logger,
	metrics *observability.Collector,
	tracer trace.Tracer,
	breaker *gobreaker.CircuitBreaker,
	publisher messaging.Publisher,
) *Instrumentation {
	logging := decorators.DefaultLoggingConfig()
	logging.LogRequests = cfg.Logging.LogRequests
	if cfg.Logging.SlowThreshold > 0 {
		logging.SlowThreshold = cfg.Logging.SlowThreshold
	}
	return &Instrumentation{
		Logger:    logger,
		Logging:   logging,
		Metrics:   metrics,
		Tracer:    tracer,
		Breaker:   breaker,
		Publisher: publisher,
	}
}

// decorate wraps opener, innermost first: the breaker sees raw backend calls,
// metrics and tracing measure them including breaker rejections, logging sees
// everything and publishing announces only committed changes.
func decorate[E entity.Entity](opener repository.Opener[E], in *Instrumentation) repository.Opener[E] {
	var ds []repository.Decorator[E]
	if in.Breaker != nil {
		ds = append(ds, persistence.CircuitBreaking[E](in.Breaker))
	}
	if in.Metrics != nil {
		ds = append(ds, observability.Metrics[E](in.Metrics))
	}
	if in.Tracer != nil {
		ds = append(ds, tracing.Trace[E](in.Tracer))
	}
	ds = append(ds, decorators.Logging[E](in.Logger, in.Logging))
	if in.Publisher != nil {
		ds = append(ds, messaging.Publishing[E](in.Publisher, in.Logger))
	}
	return repository.Decorate(opener, ds...)
}

// ============================================================================
// REPOSITORIES
// ============================================================================

func provideCategoryRepository(cfg *config.Config, backend *Backend, in *Instrumentation) (*repository.Repository[*catalog.Category], error) {
	var opener repository.Opener[*catalog.Category]
	switch {
	case backend.DynamoDB != nil:
		opener = dynamodb.NewStore(backend.DynamoDB, dynamoConfig(cfg, cfg.Store.CategoriesTable),
			dynamodb.WithLogger[*catalog.Category](in.Logger))
	case backend.DB != nil:
		s, err := sqlstore.NewStore(backend.DB, backend.Dialect, sqlstore.CategoryMapper(),
			sqlstore.WithLogger[*catalog.Category](in.Logger))
		if err != nil {
			return nil, err
		}
		opener = s
	default:
		opener = memory.NewStore[*catalog.Category]()
	}
	return repository.New(decorate(opener, in)), nil
}

// provideProductRepository loads the Category relation through the category
// repository, so includes go through the same decorators as direct reads.
func provideProductRepository(cfg *config.Config, backend *Backend, in *Instrumentation, categories *repository.Repository[*catalog.Category]) (*repository.Repository[*catalog.Product], error) {
	relation := catalog.CategoryRelation(func(ctx context.Context, ids []int64) ([]*catalog.Category, error) {
		return categories.GetSlice(ctx, catalog.CategoryIDIn(ids...), query.Options[*catalog.Category]{})
	})

	var opener repository.Opener[*catalog.Product]
	switch {
	case backend.DynamoDB != nil:
		opener = dynamodb.NewStore(backend.DynamoDB, dynamoConfig(cfg, cfg.Store.ProductsTable),
			dynamodb.WithLogger[*catalog.Product](in.Logger),
			dynamodb.WithRelation(catalog.RelationCategory, relation))
	case backend.DB != nil:
		s, err := sqlstore.NewStore(backend.DB, backend.Dialect, sqlstore.ProductMapper(),
			sqlstore.WithLogger[*catalog.Product](in.Logger),
			sqlstore.WithRelation(catalog.RelationCategory, relation))
		if err != nil {
			return nil, err
		}
		opener = s
	default:
		opener = memory.NewStore(memory.WithRelation(catalog.RelationCategory, relation))
	}
	return repository.New(decorate(opener, in)), nil
}

func dynamoConfig(cfg *config.Config, table string) dynamodb.Config {
	return dynamodb.Config{
		TableName:      table,
		CounterTable:   cfg.Store.CounterTable,
		ConsistentRead: cfg.Store.ConsistentRead,
		PageSize:       cfg.Store.PageSize,
	}
}

// ============================================================================
// HTTP
// ============================================================================

func provideValidator() *validator.Validate {
	return validator.New()
}

func provideProductHandler(products *repository.Repository[*catalog.Product], v *validator.Validate, logger *zap.Logger) *handlers.ProductHandler {
	return handlers.NewProductHandler(products, v, logger)
}

func provideCategoryHandler(categories *repository.Repository[*catalog.Category], v *validator.Validate, logger *zap.Logger) *handlers.CategoryHandler {
	return handlers.NewCategoryHandler(categories, v, logger)
}

func provideHandler(router *rest.Router) http.Handler {
	return router.Setup()
}
