package services

import (
	"context"
	"fmt"
	"log/slog"

	"PingTower/internal/scheduler/storage"
)

// EventListener applies lifecycle events received from collaborators.
type EventListener struct {
	source    storage.EventSource
	lifecycle *LifecycleService
	logger    *slog.Logger
}

func NewEventListener(source storage.EventSource, lifecycle *LifecycleService, logger *slog.Logger) *EventListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventListener{source: source, lifecycle: lifecycle, logger: logger}
}

// Run blocks until ctx is done or the subscription ends.
func (l *EventListener) Run(ctx context.Context) error {
	events, err := l.source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to lifecycle events: %w", err)
	}

	l.logger.Info("listening for lifecycle events")
	for event := range events {
		if err := l.lifecycle.Apply(ctx, event); err != nil {
			l.logger.Error("failed to apply lifecycle event",
				"type", event.Type,
				"monitor_id", event.MonitorID,
				"error", err,
			)
		}
	}

	return ctx.Err()
}
