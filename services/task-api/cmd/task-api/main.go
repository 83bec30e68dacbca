// Command task-api serves the task CRUD endpoints and the CPU-load simulation.
//
// Purpose:
//   This binary initializes the persistence collaborator, the execution context
//   and the audit emitter via bootstrap, mounts the application routes on the
//   shared HTTP server and serves requests with graceful shutdown handling.
//
// Dependencies:
//   - internal/bootstrap: Runtime initialization and lifecycle management
//   - internal/config: Configuration from environment variables
//   - internal/httpapi/tasks, internal/httpapi/load: Application handlers
//   - internal/server: HTTP server with health/readiness endpoints
//   - shared/go/logging, shared/go/observability: zap logger and OTel tracing
//
// Debugging Notes:
//   - Server starts on HTTP_PORT (default 4000)
//   - EXECUTION_MODEL=cooperative makes GET /load block every other application
//     request for LOAD_DURATION; operational endpoints keep answering
//   - Graceful shutdown waits LOAD_DURATION + SHUTDOWN_TIMEOUT for in-flight
//     requests, then closes the persistence handle
//
// Error Handling:
//   - Configuration errors exit with code 1
//   - Bootstrap failures log fatal and exit
//   - A drain that times out leaves the persistence handle open for the
//     handlers still running and exits 1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/bootstrap"
	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/config"
	loadapi "github.com/MGabrielaGuerrero/devops/services/task-api/internal/httpapi/load"
	tasksapi "github.com/MGabrielaGuerrero/devops/services/task-api/internal/httpapi/tasks"
	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/server"
	"github.com/MGabrielaGuerrero/devops/shared/go/logging"
	"github.com/MGabrielaGuerrero/devops/shared/go/observability"
)

func main() {
	cfg := config.MustLoad()

	log := logging.MustNew(logging.DefaultConfig().
		WithServiceName(cfg.ServiceName).
		WithEnvironment(cfg.Environment).
		WithLogLevel(cfg.LogLevel))
	defer func() { _ = log.Sync() }()
	logger := log.Logger

	logger.Info("starting task API",
		zap.String("env", cfg.Environment),
		zap.Int("port", cfg.HTTPPort),
		zap.String("storage", cfg.StorageDriver),
		zap.String("execution_model", cfg.ExecutionModel),
		zap.Duration("load_duration", cfg.LoadDuration))

	ctx := context.Background()
	telemetry, err := observability.Init(ctx, observability.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.OTLPEndpoint,
		Protocol:    cfg.OTLPProtocol,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		logger.Fatal("failed to initialize telemetry", zap.Error(err))
	}
	if telemetry.Fallback() {
		logger.Warn("trace exporter unavailable, running with degraded telemetry")
	}

	runtime, err := bootstrap.Initialize(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to bootstrap runtime", zap.Error(err))
	}
	logger.Info("runtime dependencies initialized")

	srv := server.New(server.Options{
		Port:        cfg.HTTPPort,
		Logger:      logger,
		ServiceName: cfg.ServiceName,
		Readiness:   runtime.Readiness,
		Loop:        runtime.Loop,
		RegisterRoutes: func(r chi.Router) {
			tasksapi.RegisterRoutes(r, tasksapi.Dependencies{
				Repository: runtime.Repository,
				Loop:       runtime.Loop,
				Audit:      runtime.Audit,
				Logger:     logger,
			})
			loadapi.RegisterRoutes(r, runtime.Simulator, logger)
		},
	})

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Server running", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("task API server failed", zap.Error(err))
		}
	}()

	<-sigCtx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout())
	defer cancel()

	exitCode := 0
	if err := server.Drain(shutdownCtx, srv, runtime.Close); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err), zap.Duration("drain_timeout", cfg.DrainTimeout()))
		exitCode = 1
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	logger.Info("task API stopped")
	if exitCode != 0 {
		_ = log.Sync()
		os.Exit(exitCode)
	}
}
