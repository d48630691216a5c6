package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"PingTower/internal/scheduler/models"

	"github.com/redis/go-redis/v9"
)

// redisReadyQueue keeps monitor ids in a sorted set scored by due epoch seconds.
type redisReadyQueue struct {
	client *redis.Client
	key    string
}

func NewRedisReadyQueue(client *redis.Client) ReadyQueue {
	return &redisReadyQueue{client: client, key: QueueKey}
}

func (q *redisReadyQueue) ScheduleAt(ctx context.Context, monitorID int64, due time.Time) error {
	err := q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(due.Unix()),
		Member: member(monitorID),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule monitor %d: %w", monitorID, err)
	}
	return nil
}

func (q *redisReadyQueue) Reschedule(ctx context.Context, monitorID int64, due time.Time) error {
	err := q.client.ZAddXX(ctx, q.key, redis.Z{
		Score:  float64(due.Unix()),
		Member: member(monitorID),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to reschedule monitor %d: %w", monitorID, err)
	}
	return nil
}

func (q *redisReadyQueue) PopDue(ctx context.Context, now time.Time, limit int) ([]models.QueueEntry, error) {
	if limit <= 0 {
		return nil, nil
	}

	items, err := q.client.ZRangeByScoreWithScores(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read due monitors: %w", err)
	}

	entries := make([]models.QueueEntry, 0, len(items))
	for _, item := range items {
		raw, ok := item.Member.(string)
		if !ok {
			continue
		}
		id, err := parseMember(raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, models.QueueEntry{
			MonitorID: id,
			DueAt:     time.Unix(int64(item.Score), 0),
		})
	}

	return entries, nil
}

func (q *redisReadyQueue) Remove(ctx context.Context, monitorID int64) error {
	if err := q.client.ZRem(ctx, q.key, member(monitorID)).Err(); err != nil {
		return fmt.Errorf("failed to remove monitor %d from queue: %w", monitorID, err)
	}
	return nil
}

func (q *redisReadyQueue) NextDue(ctx context.Context, monitorID int64) (time.Time, bool, error) {
	score, err := q.client.ZScore(ctx, q.key, member(monitorID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read due time of monitor %d: %w", monitorID, err)
	}
	return time.Unix(int64(score), 0), true, nil
}

func (q *redisReadyQueue) Stats(ctx context.Context, now time.Time) (models.QueueStats, error) {
	pipe := q.client.Pipeline()
	total := pipe.ZCard(ctx, q.key)
	overdue := pipe.ZCount(ctx, q.key, "-inf", strconv.FormatInt(now.Unix(), 10))

	if _, err := pipe.Exec(ctx); err != nil {
		return models.QueueStats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return models.QueueStats{
		TotalInQueue: total.Val(),
		OverdueCount: overdue.Val(),
	}, nil
}
