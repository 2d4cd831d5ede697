package valuationstash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/karsell/intake/internal/models"
	"github.com/karsell/intake/internal/shared"
	"github.com/redis/go-redis/v9"
)

// RedisStash keeps valuation payloads in Redis with a TTL.
type RedisStash struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects a stash to the Redis instance at url.
func NewRedis(url string, ttl time.Duration) (*RedisStash, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisStash{client: client, ttl: ttl}, nil
}

func stashKey(sessionID string) string {
	return "valuation:" + sessionID
}

func (s *RedisStash) Put(ctx context.Context, sessionID string, raw json.RawMessage) error {
	if err := s.client.Set(ctx, stashKey(sessionID), []byte(raw), s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: stash valuation: %v", shared.ErrorTransientIO, err)
	}
	return nil
}

func (s *RedisStash) Get(ctx context.Context, sessionID string) (*models.ValuationPayload, error) {
	raw, err := s.client.Get(ctx, stashKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrorNoValuation
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read valuation: %v", shared.ErrorTransientIO, err)
	}
	p, err := models.DecodeValuation(raw)
	if err != nil {
		return nil, fmt.Errorf("decode valuation: %w", err)
	}
	return p, nil
}

func (s *RedisStash) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, stashKey(sessionID)).Err()
}

func (s *RedisStash) Close() error {
	return s.client.Close()
}
