package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"PingTower/internal/scheduler/models"
)

// ReadyQueue is a process-local ready queue for single-instance deployments.
type ReadyQueue struct {
	mu  sync.RWMutex
	due map[int64]int64
}

func NewReadyQueue() *ReadyQueue {
	return &ReadyQueue{due: make(map[int64]int64)}
}

func (q *ReadyQueue) ScheduleAt(_ context.Context, monitorID int64, due time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.due[monitorID] = due.Unix()
	return nil
}

func (q *ReadyQueue) Reschedule(_ context.Context, monitorID int64, due time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.due[monitorID]; ok {
		q.due[monitorID] = due.Unix()
	}
	return nil
}

func (q *ReadyQueue) PopDue(_ context.Context, now time.Time, limit int) ([]models.QueueEntry, error) {
	if limit <= 0 {
		return nil, nil
	}

	q.mu.RLock()
	cutoff := now.Unix()
	entries := make([]models.QueueEntry, 0)
	for id, due := range q.due {
		if due <= cutoff {
			entries = append(entries, models.QueueEntry{MonitorID: id, DueAt: time.Unix(due, 0)})
		}
	}
	q.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].DueAt.Equal(entries[j].DueAt) {
			return entries[i].MonitorID < entries[j].MonitorID
		}
		return entries[i].DueAt.Before(entries[j].DueAt)
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (q *ReadyQueue) Remove(_ context.Context, monitorID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.due, monitorID)
	return nil
}

func (q *ReadyQueue) NextDue(_ context.Context, monitorID int64) (time.Time, bool, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	due, ok := q.due[monitorID]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.Unix(due, 0), true, nil
}

func (q *ReadyQueue) Stats(_ context.Context, now time.Time) (models.QueueStats, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := models.QueueStats{TotalInQueue: int64(len(q.due))}
	for _, due := range q.due {
		if due <= now.Unix() {
			stats.OverdueCount++
		}
	}
	return stats, nil
}
