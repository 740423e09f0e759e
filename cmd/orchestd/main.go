// Package main is the entry point for the orchestration server. It wires
// all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/orchest/internal/config"
	"github.com/pitabwire/orchest/internal/definition"
	"github.com/pitabwire/orchest/internal/engine"
	"github.com/pitabwire/orchest/internal/notify"
	"github.com/pitabwire/orchest/internal/observability"
	"github.com/pitabwire/orchest/internal/phase"
	"github.com/pitabwire/orchest/internal/store"
	"github.com/pitabwire/orchest/internal/task"
	"github.com/pitabwire/orchest/internal/transition"
	"github.com/pitabwire/orchest/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "orchestd", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	var metrics *observability.Metrics
	if cfg.Engine.EnableMetrics {
		metrics = observability.InitMetrics(prometheus.DefaultRegisterer)
	}

	// Load definitions, validate, build registry.
	loader := definition.NewLoader()
	defs, err := loader.LoadAll(cfg.Definitions.Directories)
	if err != nil {
		logger.Error("definition loading failed", zap.Error(err))
		return 1
	}

	validator := definition.NewValidator()
	if verrs := validator.Validate(defs); len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("definition validation error", zap.String("error", ve.Error()))
		}
		logger.Error("definition validation failed", zap.Int("errors", len(verrs)))
		return 1
	}

	registry := definition.NewRegistry(defs)
	if metrics != nil {
		metrics.SetDefinitionsLoaded(float64(len(defs)))
	}

	// Instance store.
	instStore, storeCloser, err := buildInstanceStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("instance store initialization failed", zap.Error(err))
		return 1
	}

	// Event sinks and executors.
	sink := notify.Sink(notify.NewLogSink(logger))
	taskExecutor := task.NewSimulatedExecutor(sink, logger)
	phaseExecutor := phase.NewExecutor(taskExecutor, sink, logger, metrics)
	gate := transition.NewGateValidator(nil, sink, logger)

	machine := engine.NewStateMachine(
		registry, instStore, sink, phaseExecutor, gate,
		engine.OptionsFromConfig(cfg.Engine), logger, metrics,
	)

	// Authentication.
	var authenticate func(http.Handler) http.Handler
	if cfg.Auth.Enabled {
		secret := os.Getenv(cfg.Auth.SecretEnv)
		if secret == "" {
			logger.Error("auth enabled but secret environment variable not set",
				zap.String("env", cfg.Auth.SecretEnv))
			return 1
		}
		authenticate = transport.JWTAuthenticator(cfg.Auth, []byte(secret))
	}

	readinessChecks := observability.ReadinessChecks{
		DefinitionsLoaded: func() bool { return len(registry.All()) > 0 },
	}
	if instStore != nil {
		readinessChecks.InstanceStore = instStore
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Metrics:      metrics,
		Engine:       machine,
		Definitions:  registry,
		Readiness:    readinessChecks,
		Authenticate: authenticate,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Background tasks.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	if cfg.Definitions.HotReload {
		go runDefinitionReloader(bgCtx, loader, validator, registry, metrics, cfg.Definitions, logger)
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("definitions", len(defs)),
		zap.String("store_driver", cfg.Store.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	bgCancel()

	if storeCloser != nil {
		storeCloser()
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildInstanceStore creates the instance store for the configured driver.
func buildInstanceStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.Store, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory instance store")
		return store.NewMemoryStore(), nil, nil

	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("instance store: %s environment variable not set", cfg.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("instance store: redis ping: %w", err)
		}
		logger.Info("using redis instance store", zap.String("addr", addr))
		return store.NewRedisStore(client, cfg.KeyPrefix), func() { client.Close() }, nil

	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("instance store: %s environment variable not set", cfg.DSNEnv)
		}
		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("instance store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("instance store: connect: %w", err)
		}
		pgStore := store.NewPgStore(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("instance store: schema: %w", err)
		}
		logger.Info("using postgres instance store")
		return pgStore, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("instance store: unknown driver %q", cfg.Driver)
	}
}

// runDefinitionReloader periodically reloads workflow definitions and swaps
// the registry snapshot when the set changes. Invalid definition sets are
// rejected and the previous snapshot kept.
func runDefinitionReloader(
	ctx context.Context,
	loader *definition.Loader,
	validator *definition.Validator,
	registry *definition.Registry,
	metrics *observability.Metrics,
	cfg config.DefinitionsConfig,
	logger *zap.Logger,
) {
	interval := cfg.ReloadInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		defs, err := loader.LoadAll(cfg.Directories)
		if err != nil {
			logger.Warn("definition reload failed", zap.Error(err))
			continue
		}
		if verrs := validator.Validate(defs); len(verrs) > 0 {
			logger.Warn("definition reload rejected",
				zap.Int("errors", len(verrs)),
				zap.String("first_error", verrs[0].Error()))
			continue
		}

		before := registry.Checksum()
		registry.Replace(defs)
		if after := registry.Checksum(); after != before {
			if metrics != nil {
				metrics.SetDefinitionsLoaded(float64(len(defs)))
			}
			logger.Info("definitions reloaded",
				zap.Int("count", len(defs)),
				zap.String("checksum", after))
		}
	}
}
