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

type redisStatusStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStatusStore(client *redis.Client, ttl time.Duration) StatusStore {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &redisStatusStore{client: client, ttl: ttl}
}

func (s *redisStatusStore) Update(ctx context.Context, monitorID int64, status models.MonitorStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode monitor status: %w", err)
	}

	if err := s.client.Set(ctx, StatusKeyPrefix+member(monitorID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to update status of monitor %d: %w", monitorID, err)
	}
	return nil
}

// Get returns UNKNOWN for monitors that were never probed.
func (s *redisStatusStore) Get(ctx context.Context, monitorID int64) (models.MonitorStatus, error) {
	data, err := s.client.Get(ctx, StatusKeyPrefix+member(monitorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.UnknownStatus(), nil
	}
	if err != nil {
		return models.MonitorStatus{}, fmt.Errorf("failed to read status of monitor %d: %w", monitorID, err)
	}

	var status models.MonitorStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return models.MonitorStatus{}, fmt.Errorf("failed to decode status of monitor %d: %w", monitorID, err)
	}
	if !status.Status.IsValid() {
		status.Status = models.StatusUnknown
	}
	return status, nil
}
