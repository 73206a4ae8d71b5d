package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"notehub/internal/cache"
	"notehub/internal/config"
	"notehub/internal/database"
	"notehub/internal/handlers"
	"notehub/internal/jobs"
	"notehub/internal/log"
	"notehub/internal/metrics"
	"notehub/internal/oauth"
	"notehub/internal/observability"
	"notehub/internal/queue"
	"notehub/internal/ratelimit"
	"notehub/internal/repository"
	"notehub/internal/security"
	"notehub/internal/server"
	"notehub/internal/service"
	"notehub/internal/storage"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

const streamMaxLen = 10000

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	if err := observability.InitSentry(cfg.Sentry, cfg.Environment, version); err != nil {
		logger.Warn().Err(err).Msg("sentry init failed")
	}
	defer observability.FlushSentry()

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	images, err := storage.NewImageHost(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to init image host")
	}

	limiter, err := ratelimit.New(cfg.RateLimit, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init rate limiter")
	}

	m := metrics.New()
	store := repository.NewPostgresStore(dbPool)
	hasher := security.NewPasswordHasher(cfg.Security.PasswordAlgo, cfg.Security.PasswordCost)
	authService := service.NewAuthService(store, hasher, images, cfg.Security, m, logger)
	producer := queue.NewProducer(redisClient, cfg.Queue.Stream, streamMaxLen)

	deps := handlers.Dependencies{
		Log:     logger,
		Config:  cfg,
		Auth:    authService,
		Users:   service.NewUserService(store.Users(), images, logger),
		Notes:   service.NewNoteService(store.Notes(), logger),
		Limiter: limiter,
		Metrics: m,
		Jobs:    producer,
		Checks: map[string]handlers.HealthCheck{
			"postgres": dbPool.Ping,
			"redis":    cache.Ping(redisClient),
		},
	}

	if cfg.OAuth.GoogleEnabled() {
		provider, err := oauth.NewGoogleProvider(ctx, cfg.OAuth.Google)
		if err != nil {
			logger.Error().Err(err).Msg("google oauth disabled")
		} else {
			deps.OAuth = provider
			deps.States = oauth.NewStateStore(redisClient, cfg.OAuth.StateTTL)
		}
	}

	httpServer := server.NewHTTPServer(cfg, logger, m, handlers.NewHandlerSet(deps))

	scheduler := jobs.NewScheduler(producer, cfg.Queue.CleanupSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop(5 * time.Second)

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
