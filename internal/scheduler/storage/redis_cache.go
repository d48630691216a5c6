package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"PingTower/internal/scheduler/models"

	"github.com/redis/go-redis/v9"
)

type redisTargetCache struct {
	client *redis.Client
}

func NewRedisTargetCache(client *redis.Client) TargetCache {
	return &redisTargetCache{client: client}
}

func (c *redisTargetCache) Get(ctx context.Context, target string) (models.Outcome, error) {
	data, err := c.client.Get(ctx, TargetCachePrefix+target).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Outcome{}, ErrCacheMiss
	}
	if err != nil {
		return models.Outcome{}, fmt.Errorf("failed to read cached outcome: %w", err)
	}

	var outcome models.Outcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return models.Outcome{}, fmt.Errorf("failed to decode cached outcome: %w", err)
	}
	return outcome, nil
}

func (c *redisTargetCache) Put(ctx context.Context, target string, outcome models.Outcome, ttl time.Duration) error {
	outcome.FromCache = false

	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}

	if err := c.client.Set(ctx, TargetCachePrefix+target, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache outcome: %w", err)
	}
	return nil
}
