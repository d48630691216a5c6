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

// RedisConfigProvider reads monitor definitions that the monitor service
// mirrors into Redis as JSON.
type RedisConfigProvider struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisConfigProvider(client *redis.Client, ttl time.Duration) *RedisConfigProvider {
	if ttl <= 0 {
		ttl = DefaultConfigTTL
	}
	return &RedisConfigProvider{client: client, ttl: ttl}
}

var _ MonitorConfigStore = (*RedisConfigProvider)(nil)

func (p *RedisConfigProvider) Get(ctx context.Context, monitorID int64) (*models.MonitorConfig, error) {
	data, err := p.client.Get(ctx, ConfigKeyPrefix+member(monitorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMonitorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config of monitor %d: %w", monitorID, err)
	}

	var cfg models.MonitorConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config of monitor %d: %w", monitorID, err)
	}
	if cfg.ID == 0 {
		cfg.ID = monitorID
	}
	return &cfg, nil
}

// Save writes a monitor definition in the same format the monitor service uses.
func (p *RedisConfigProvider) Save(ctx context.Context, cfg *models.MonitorConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode monitor config: %w", err)
	}

	if err := p.client.Set(ctx, ConfigKeyPrefix+member(cfg.ID), data, p.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save config of monitor %d: %w", cfg.ID, err)
	}
	return nil
}

func (p *RedisConfigProvider) Delete(ctx context.Context, monitorID int64) error {
	return p.client.Del(ctx, ConfigKeyPrefix+member(monitorID)).Err()
}
