// Package main is the entrypoint for the LensAI API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/lensai/lensai/internal/auth"
	"github.com/lensai/lensai/internal/cache"
	"github.com/lensai/lensai/internal/config"
	"github.com/lensai/lensai/internal/handler"
	"github.com/lensai/lensai/internal/ingest"
	"github.com/lensai/lensai/internal/metrics"
	"github.com/lensai/lensai/internal/middleware"
	"github.com/lensai/lensai/internal/redact"
	"github.com/lensai/lensai/internal/repository"
	"github.com/lensai/lensai/internal/server"
	"github.com/lensai/lensai/migrations"
)

const connectTimeout = 10 * time.Second

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	trustedProxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", slog.String("error", err.Error()))
		os.Exit(1)
	}

	deps := routerDeps{
		cfg:            cfg,
		logger:         logger,
		trustedProxies: trustedProxies,
		root:           handler.New(),
	}

	// Backing services are optional for the shell: without them only
	// /, /health and /readyz (503) are served.
	repo := connectDatabase(ctx, cfg, logger)
	if repo != nil {
		defer repo.Close()
	}
	cacheClient := connectCache(ctx, cfg, logger)
	if cacheClient != nil {
		defer cacheClient.Close()
	}

	var dbCheck, cacheCheck handler.HealthChecker
	if repo != nil {
		dbCheck = repo
	}
	if cacheClient != nil {
		cacheCheck = cacheClient
	}
	deps.health = handler.NewHealthHandler(dbCheck, cacheCheck)

	recorder := metrics.NewPrometheus()
	deps.metrics = recorder.Handler()

	keyEnv := auth.EnvTest
	if cfg.IsProduction() {
		keyEnv = auth.EnvLive
	}

	var worker *ingest.Worker
	if cacheClient != nil {
		verifier := ingest.NewVerifier(cfg.WorkerHMACSecret, cfg.IngestReplayWindow)
		if !verifier.Enabled() {
			logger.Warn("WORKER_HMAC_SECRET is empty, accepting unsigned usage events")
		}
		publisher := ingest.NewPublisher(cacheClient.Client(), logger)
		deps.events = handler.NewEventHandler(publisher, verifier, recorder, logger)
		deps.limiter = cacheClient

		if cfg.EventsWorkerEnabled {
			sink, err := ingest.NewFileSink(cfg.EventsDir)
			if err != nil {
				logger.Error("failed to prepare events directory", slog.String("error", err.Error()))
				os.Exit(1)
			}
			worker = ingest.NewWorker(cacheClient.Client(), sink, logger, ingest.NewConsumerID(), recorder)
			logger.Info("ingest worker enabled", slog.String("events_dir", sink.Root()))
		}
	} else {
		logger.Warn("Redis unavailable, /v1 routes and the ingest worker are disabled")
	}

	if repo != nil && cacheClient != nil {
		deps.projects = handler.NewProjectHandler(repo, logger)
		deps.apiKeys = handler.NewAPIKeyHandler(logger, repo, cacheClient, recorder, keyEnv)
		deps.keys = repo
		deps.authCache = cacheClient
	} else if repo == nil {
		logger.Warn("PostgreSQL unavailable, project routes are disabled")
	}

	srv := server.New(newRouter(deps), server.Config{
		Addr:            cfg.Addr(),
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	if worker != nil {
		go func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error("ingest worker stopped", slog.String("error", err.Error()))
			}
		}()
		srv.OnShutdown("ingest-worker", worker.Shutdown)
	}

	logger.Info("starting server",
		"addr", cfg.Addr(),
		"env", cfg.AppEnv,
		"signature_required", cfg.SignatureRequired(),
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// connectDatabase opens the repository and applies migrations. It returns nil
// when PostgreSQL cannot be reached; a failed migration is fatal.
func connectDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) *repository.Repository {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	repo, err := repository.New(connectCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", redact.Error(err, cfg.DatabaseURL)),
			slog.String("database_url", redact.URL(cfg.DatabaseURL)),
		)
		return nil
	}
	logger.Info("connected to database")

	if cfg.AutoMigrate {
		applied, err := repo.Migrate(ctx, migrations.FS)
		if err != nil {
			logger.Error("failed to apply migrations", slog.String("error", redact.Error(err, cfg.DatabaseURL)))
			repo.Close()
			os.Exit(1)
		}
		logger.Info("migrations applied", slog.Int("count", len(applied)), slog.Any("versions", applied))
	}
	return repo
}

// connectCache opens the Redis client, or returns nil when Redis cannot be reached.
func connectCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) *cache.Cache {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	cacheClient, err := cache.New(connectCtx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", redact.Error(err, cfg.RedisURL)),
			slog.String("redis_url", redact.URL(cfg.RedisURL)),
		)
		return nil
	}
	logger.Info("connected to Redis")
	return cacheClient
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
