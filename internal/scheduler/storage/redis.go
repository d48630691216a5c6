package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"PingTower/internal/config"

	"github.com/redis/go-redis/v9"
)

const (
	QueueKey            = "ping:queue"
	ProcessingKey       = "ping:processing"
	StatusKeyPrefix     = "monitor:status:"
	ConfigKeyPrefix     = "monitor:config:"
	TargetCachePrefix   = "target:cache:"
	DefaultStatusTTL    = 7 * 24 * time.Hour
	DefaultConfigTTL    = 30 * 24 * time.Hour
	redisConnectTimeout = 5 * time.Second
)

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(cfg *config.RedisConfig, log *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(cfg.GetRedisOptions())

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to Redis", "addr", cfg.Addr, "error", err)
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("connected to Redis", "addr", cfg.Addr)
	return client, nil
}

func member(monitorID int64) string {
	return strconv.FormatInt(monitorID, 10)
}

func parseMember(m string) (int64, error) {
	id, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid monitor id %q in redis: %w", m, err)
	}
	return id, nil
}
