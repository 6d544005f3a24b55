package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/cert-reminder-api/internal/models"
)

const redisKeyPrefix = "verification:session:"

// RedisStore keeps sessions in Redis so verification survives process
// restarts and can be shared across instances. Keys carry the session TTL;
// Redis expires them server-side.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates the Redis-backed session store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Put stores the session under its token. The key TTL is anchored to the
// session's creation time so resends never extend the expiry.
func (s *RedisStore) Put(ctx context.Context, session *models.VerificationSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	remaining := time.Until(session.ExpiresAt(s.ttl))
	if remaining <= 0 {
		remaining = time.Second
	}
	if err := s.client.Set(ctx, redisKeyPrefix+session.Token, payload, remaining).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Get returns nil, nil for unknown or already-expired tokens.
func (s *RedisStore) Get(ctx context.Context, token string) (*models.VerificationSession, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+token).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var session models.VerificationSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

// Delete removes the session key.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// SweepExpired is a no-op; Redis expires keys itself. Kept for interface
// parity so the sweeper can run against either backend.
func (s *RedisStore) SweepExpired(context.Context, time.Duration, time.Time) (int, error) {
	return 0, nil
}
