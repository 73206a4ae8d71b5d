package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"notehub/internal/security"
)

const statePrefix = "notehub:oauth:state:"

// StateStore keeps the anti-CSRF state of in-flight authorization
// requests. Each state can be consumed once.
type StateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStateStore(client *redis.Client, ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateStore{client: client, ttl: ttl}
}

func (s *StateStore) TTL() time.Duration {
	return s.ttl
}

func (s *StateStore) Issue(ctx context.Context) (string, error) {
	state, err := security.RandomSecret(32)
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, statePrefix+state, "1", s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}
	return state, nil
}

func (s *StateStore) Consume(ctx context.Context, state string) (bool, error) {
	if state == "" {
		return false, nil
	}
	err := s.client.GetDel(ctx, statePrefix+state).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume oauth state: %w", err)
	}
	return true, nil
}
