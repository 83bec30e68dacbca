// Package bootstrap provides centralized initialization and lifecycle management for
// the task-api runtime dependencies (persistence, execution context, audit stream).
//
// Purpose:
//
//	This package wires together the dependencies the HTTP server needs. It keeps
//	the initialization order consistent, applies schema migrations when asked,
//	and provides a unified shutdown and readiness interface.
//
// Dependencies:
//   - internal/config: Service configuration from environment variables
//   - internal/storage/{postgres,sqlite,memory}: Persistence collaborators
//   - internal/eventloop: Request scheduling for application routes
//   - internal/audit: Kafka or logger audit emitter
//
// Key Responsibilities:
//   - Initialize opens the configured store, migrates it, and builds the loop,
//     simulator and audit emitter
//   - Runtime bundles the initialized dependencies for cmd/task-api
//   - Readiness exposes a probe registry that pings the store
//   - Close releases resources in reverse initialization order
//
// Debugging Notes:
//   - Postgres connection failures prevent service startup (required dependency)
//   - Kafka writer construction failures fall back to the logger emitter
//   - MIGRATE_ON_START=false skips goose entirely; the table must already exist
//
// Thread Safety:
//   - Runtime struct is safe for concurrent read access after initialization
//   - Close should be called once during shutdown
//
// Error Handling:
//   - Initialization errors are wrapped with context (e.g., "bootstrap postgres: ...")
//   - Close collects errors but returns the first one encountered
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/audit"
	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/config"
	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/eventloop"
	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/loadsim"
	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/storage/memory"
	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/storage/postgres"
	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/storage/sqlite"
	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/tasks"
	"github.com/MGabrielaGuerrero/devops/shared/go/dataaccess"
)

// Runtime bundles initialized runtime dependencies for use by the service binary.
// All fields are populated during Initialize and remain valid until Close is called.
type Runtime struct {
	Config     *config.Config       // Service configuration (read-only after init)
	Repository tasks.Repository     // Process-wide persistence handle
	Loop       *eventloop.Loop      // Execution context for application routes
	Simulator  *loadsim.Simulator   // Busy loop behind GET /load
	Audit      audit.Emitter        // Kafka emitter when brokers are configured, logger otherwise
	Readiness  *dataaccess.Registry // Probes served by /readyz
}

// Initialize wires runtime dependencies based on the provided configuration.
// Initialization order: store → migrations → execution context → audit emitter.
// The returned Runtime must be closed via Close() during shutdown.
func Initialize(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	loop, err := eventloop.New(eventloop.Mode(cfg.ExecutionModel), cfg.WorkerPoolSize)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("bootstrap execution context: %w", err)
	}
	logger.Info("execution context ready",
		zap.String("mode", string(loop.Mode())),
		zap.Int64("tokens", loop.Tokens()))

	emitter, err := audit.NewEmitter(audit.KafkaConfig{
		Brokers:        cfg.KafkaBrokerList(),
		Topic:          cfg.KafkaTopic,
		ClientID:       cfg.KafkaClientID,
		PublishTimeout: cfg.KafkaPublishTimeout,
	}, logger)
	if err != nil {
		logger.Warn("failed to initialize Kafka emitter, falling back to logger", zap.Error(err))
		emitter = audit.NewLoggerEmitter(logger)
	}

	readiness := dataaccess.NewRegistry()
	probe := dataaccess.Probe(repo.Ping)
	if store, ok := repo.(*sqlite.Store); ok {
		probe = dataaccess.SQLProbe(store.DB())
	}
	readiness.Register("storage", probe)

	return &Runtime{
		Config:     cfg,
		Repository: repo,
		Loop:       loop,
		Simulator:  loadsim.New(cfg.LoadDuration),
		Audit:      emitter,
		Readiness:  readiness,
	}, nil
}

func openRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (tasks.Repository, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory task store; data is lost on restart")
		return memory.NewStore(), nil

	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap sqlite: %w", err)
		}
		if cfg.MigrateOnStart {
			version, err := store.Migrate(ctx)
			if err != nil {
				store.Close()
				return nil, fmt.Errorf("bootstrap sqlite migrate: %w", err)
			}
			logger.Info("schema migrated", zap.String("driver", cfg.StorageDriver), zap.Int64("version", version))
		}
		logger.Info("sqlite store ready", zap.String("path", cfg.SQLitePath))
		return store, nil

	case config.DriverPostgres:
		if cfg.MigrateOnStart {
			version, err := postgres.Migrate(ctx, cfg.DSN())
			if err != nil {
				return nil, fmt.Errorf("bootstrap postgres migrate: %w", err)
			}
			logger.Info("schema migrated", zap.String("driver", cfg.StorageDriver), zap.Int64("version", version))
		}
		store, err := postgres.NewStore(ctx, cfg.DSN(), cfg.DBMaxConns)
		if err != nil {
			return nil, fmt.Errorf("bootstrap postgres: %w", err)
		}
		logger.Info("postgres store ready",
			zap.String("dsn", cfg.RedactedDSN()),
			zap.Int32("max_conns", cfg.DBMaxConns))
		return store, nil

	default:
		return nil, fmt.Errorf("bootstrap: unknown storage driver %q", cfg.StorageDriver)
	}
}

// Close releases runtime resources in reverse initialization order.
// Safe to call on a nil Runtime. Returns the first error encountered.
func (rt *Runtime) Close(_ context.Context) error {
	if rt == nil {
		return nil
	}
	var firstErr error
	if kafkaEmitter, ok := rt.Audit.(*audit.KafkaEmitter); ok {
		if err := kafkaEmitter.Close(); err != nil {
			firstErr = err
		}
	}
	if rt.Repository != nil {
		rt.Repository.Close()
	}
	return firstErr
}
