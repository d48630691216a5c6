package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"PingTower/internal/scheduler/models"

	"github.com/redis/go-redis/v9"
)

type redisNotificationChannel struct {
	client  *redis.Client
	channel string
}

func NewRedisNotificationChannel(client *redis.Client, channel string) NotificationChannel {
	return &redisNotificationChannel{client: client, channel: channel}
}

func (n *redisNotificationChannel) Publish(ctx context.Context, notification models.Notification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

type redisEventSource struct {
	client  *redis.Client
	channel string
	log     *slog.Logger
}

func NewRedisEventSource(client *redis.Client, channel string, log *slog.Logger) EventSource {
	return &redisEventSource{client: client, channel: channel, log: log}
}

// Subscribe decodes lifecycle events until ctx is done. Malformed payloads are
// logged and skipped.
func (s *redisEventSource) Subscribe(ctx context.Context) (<-chan models.LifecycleEvent, error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}

	out := make(chan models.LifecycleEvent)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}

				var event models.LifecycleEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					s.log.Warn("skipping malformed lifecycle event", "payload", msg.Payload, "error", err)
					continue
				}

				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
