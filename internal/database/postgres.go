package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"

	"notehub/internal/config"
)

func NewPostgresPool(ctx context.Context, cfg config.PostgresConfig, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	if cfg.MaxOpen > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpen)
	}
	poolConfig.MinConns = int32(cfg.MaxIdle)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.HealthCheckPeriod = 30 * time.Second
	poolConfig.ConnConfig.Tracer = NewTracer(log)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return pool, nil
}

// NewTracer routes pgx query logs into zerolog. Query arguments are never
// logged since they include password hashes.
func NewTracer(log zerolog.Logger) *tracelog.TraceLog {
	level := tracelog.LogLevelWarn
	if max(log.GetLevel(), zerolog.GlobalLevel()) <= zerolog.DebugLevel {
		level = tracelog.LogLevelDebug
	}

	logger := log.With().Str("component", "pgx").Logger()
	return &tracelog.TraceLog{
		Logger: tracelog.LoggerFunc(func(ctx context.Context, lvl tracelog.LogLevel, msg string, data map[string]any) {
			event := logger.WithLevel(zerologLevel(lvl))
			for k, v := range data {
				if k == "args" {
					continue
				}
				event = event.Interface(k, v)
			}
			event.Msg(msg)
		}),
		LogLevel: level,
	}
}

func zerologLevel(lvl tracelog.LogLevel) zerolog.Level {
	switch lvl {
	case tracelog.LogLevelTrace:
		return zerolog.TraceLevel
	case tracelog.LogLevelDebug:
		return zerolog.DebugLevel
	case tracelog.LogLevelInfo:
		return zerolog.InfoLevel
	case tracelog.LogLevelWarn:
		return zerolog.WarnLevel
	case tracelog.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.NoLevel
	}
}
