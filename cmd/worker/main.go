package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"notehub/internal/cache"
	"notehub/internal/config"
	"notehub/internal/database"
	"notehub/internal/log"
	"notehub/internal/metrics"
	"notehub/internal/observability"
	"notehub/internal/queue"
	"notehub/internal/repository"
	"notehub/internal/security"
	"notehub/internal/service"
	"notehub/internal/tasks"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level).With().Str("service", "worker").Logger()
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	if err := observability.InitSentry(cfg.Sentry, cfg.Environment, version); err != nil {
		logger.Warn().Err(err).Msg("sentry init failed")
	}
	defer observability.FlushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	// the worker never uploads avatars
	store := repository.NewPostgresStore(dbPool)
	hasher := security.NewPasswordHasher(cfg.Security.PasswordAlgo, cfg.Security.PasswordCost)
	m := metrics.New()
	authService := service.NewAuthService(store, hasher, nil, cfg.Security, m, logger)

	processor := tasks.NewProcessor(authService, m, logger)
	consumer := queue.NewConsumer(client, cfg.Queue, logger, processor)

	if cfg.Queue.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.Queue.MetricsAddr,
			Handler:           m.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics listener failed")
			}
		}()
		defer metricsServer.Close()
	}

	logger.Info().Str("stream", cfg.Queue.Stream).Str("consumer", cfg.Queue.Consumer).Msg("worker started")
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("consumer stopped unexpectedly")
		return
	}
	logger.Info().Msg("worker exited cleanly")
}
