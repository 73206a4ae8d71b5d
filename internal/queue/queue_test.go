package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notehub/internal/config"
)

type recordingHandler struct {
	mu       sync.Mutex
	seen     []redis.XMessage
	failures int
}

func (h *recordingHandler) Handle(_ context.Context, msg redis.XMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, msg)
	if h.failures > 0 {
		h.failures--
		return errors.New("transient")
	}
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func setup(t *testing.T, handler MessageHandler) (*miniredis.Miniredis, *redis.Client, *Consumer) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	consumer := NewConsumer(client, config.QueueConfig{
		Stream:    "notehub:jobs",
		Group:     "workers",
		Consumer:  "w1",
		BatchSize: 10,
		Block:     10 * time.Millisecond,
		ClaimIdle: time.Minute,
	}, zerolog.Nop(), handler)
	require.NoError(t, consumer.EnsureGroup(context.Background()))
	return mr, client, consumer
}

func pendingCount(t *testing.T, client *redis.Client) int64 {
	t.Helper()
	summary, err := client.XPending(context.Background(), "notehub:jobs", "workers").Result()
	require.NoError(t, err)
	return summary.Count
}

func TestProducerEnqueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	p := NewProducer(client, "notehub:jobs", 1000)
	id, err := p.Enqueue(context.Background(), "revoke_user", map[string]any{FieldUserID: "u-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := client.XRange(context.Background(), "notehub:jobs", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "revoke_user", msgs[0].Values[FieldType])
	assert.Equal(t, "u-1", msgs[0].Values[FieldUserID])
}

func TestEnsureGroupIsIdempotent(t *testing.T) {
	_, _, consumer := setup(t, &recordingHandler{})
	assert.NoError(t, consumer.EnsureGroup(context.Background()))
}

func TestConsumerAcksHandledMessages(t *testing.T) {
	handler := &recordingHandler{}
	_, client, consumer := setup(t, handler)
	ctx := context.Background()

	p := NewProducer(client, "notehub:jobs", 0)
	for i := 0; i < 3; i++ {
		_, err := p.Enqueue(ctx, "session_cleanup", nil)
		require.NoError(t, err)
	}

	require.NoError(t, consumer.read(ctx))
	assert.Equal(t, 3, handler.count())
	assert.Zero(t, pendingCount(t, client))
}

func TestConsumerReclaimsFailedMessages(t *testing.T) {
	handler := &recordingHandler{failures: 1}
	mr, client, consumer := setup(t, handler)
	ctx := context.Background()

	start := time.Now()
	mr.SetTime(start)

	_, err := NewProducer(client, "notehub:jobs", 0).Enqueue(ctx, "session_cleanup", nil)
	require.NoError(t, err)

	require.NoError(t, consumer.read(ctx))
	assert.Equal(t, int64(1), pendingCount(t, client))

	// not idle long enough yet
	require.NoError(t, consumer.claimStalled(ctx))
	assert.Equal(t, 1, handler.count())

	mr.SetTime(start.Add(2 * time.Minute))
	require.NoError(t, consumer.claimStalled(ctx))
	assert.Equal(t, 2, handler.count())
	assert.Zero(t, pendingCount(t, client))
}

func TestStartStopsOnCancel(t *testing.T) {
	handler := &recordingHandler{}
	_, client, consumer := setup(t, handler)

	_, err := NewProducer(client, "notehub:jobs", 0).Enqueue(context.Background(), "session_cleanup", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx) }()

	require.Eventually(t, func() bool { return handler.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
