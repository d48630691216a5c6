package storage

import (
	"context"
	"errors"
	"time"

	"PingTower/internal/scheduler/models"
)

var (
	ErrMonitorNotFound = errors.New("monitor not found")
	ErrCacheMiss       = errors.New("target cache miss")
)

// ReadyQueue orders monitors by their next due time.
type ReadyQueue interface {
	// ScheduleAt inserts or replaces the monitor's due time.
	ScheduleAt(ctx context.Context, monitorID int64, due time.Time) error
	// Reschedule updates the due time only if the monitor is still queued,
	// so a monitor disabled mid-probe is not resurrected.
	Reschedule(ctx context.Context, monitorID int64, due time.Time) error
	// PopDue returns up to limit entries due at or before now, oldest first.
	// Entries are not removed.
	PopDue(ctx context.Context, now time.Time, limit int) ([]models.QueueEntry, error)
	Remove(ctx context.Context, monitorID int64) error
	NextDue(ctx context.Context, monitorID int64) (time.Time, bool, error)
	Stats(ctx context.Context, now time.Time) (models.QueueStats, error)
}

// ProcessingGuard marks monitors that are in flight.
type ProcessingGuard interface {
	// TryMarkBatch marks the ids that are not already marked and returns them.
	TryMarkBatch(ctx context.Context, monitorIDs []int64, ttl time.Duration) ([]int64, error)
	Unmark(ctx context.Context, monitorIDs ...int64) error
	Count(ctx context.Context) (int64, error)
}

// TargetCache stores the last outcome per normalized target URL.
type TargetCache interface {
	Get(ctx context.Context, target string) (models.Outcome, error)
	Put(ctx context.Context, target string, outcome models.Outcome, ttl time.Duration) error
}

// StatusStore keeps the cached last status shown for each monitor.
type StatusStore interface {
	Update(ctx context.Context, monitorID int64, status models.MonitorStatus) error
	Get(ctx context.Context, monitorID int64) (models.MonitorStatus, error)
}

// MonitorConfigProvider is the source of truth for monitor definitions.
type MonitorConfigProvider interface {
	Get(ctx context.Context, monitorID int64) (*models.MonitorConfig, error)
}

// MonitorConfigStore is a provider that collaborators can also write to.
type MonitorConfigStore interface {
	MonitorConfigProvider
	Save(ctx context.Context, cfg *models.MonitorConfig) error
	Delete(ctx context.Context, monitorID int64) error
}

// ResultSink durably appends ping records in bulk. Implementations must
// tolerate the same record being written twice.
type ResultSink interface {
	WriteBatch(ctx context.Context, records []models.PingRecord) error
	Close() error
}

// NotificationChannel delivers notification events to downstream consumers.
type NotificationChannel interface {
	Publish(ctx context.Context, notification models.Notification) error
}

// EventSource streams monitor lifecycle events published by collaborators.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan models.LifecycleEvent, error)
}
