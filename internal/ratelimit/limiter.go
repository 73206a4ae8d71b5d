// Package ratelimit implements fixed-window request limiting keyed by an
// arbitrary string, usually the client IP.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"notehub/internal/config"
)

type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (allowed bool, retryAfter time.Duration, err error)
}

// New returns the limiter selected by ratelimit.driver. The redis driver
// shares counters across API replicas.
func New(cfg config.RateLimitConfig, client *redis.Client) (Limiter, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(cfg.LoginLimit, cfg.LoginWindow), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis rate limiter needs a redis client")
		}
		return NewRedis(client, cfg.LoginLimit, cfg.LoginWindow, ""), nil
	default:
		return nil, fmt.Errorf("unknown rate limit driver %q", cfg.Driver)
	}
}
