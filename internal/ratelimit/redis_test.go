package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notehub/internal/config"
)

func TestRedisLimiterWindow(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lim := NewRedis(client, 2, 500*time.Millisecond, "test:")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := lim.Allow(ctx, "ip", time.Now())
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, retryAfter, err := lim.Allow(ctx, "ip", time.Now())
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))

	s.FastForward(600 * time.Millisecond)
	allowed, _, err = lim.Allow(ctx, "ip", time.Now())
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestNewSelectsDriver(t *testing.T) {
	lim, err := New(config.RateLimitConfig{Driver: "memory", LoginLimit: 1, LoginWindow: time.Second}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryLimiter{}, lim)

	_, err = New(config.RateLimitConfig{Driver: "redis"}, nil)
	assert.Error(t, err)

	_, err = New(config.RateLimitConfig{Driver: "etcd"}, nil)
	assert.Error(t, err)
}
