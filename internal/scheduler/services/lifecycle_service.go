package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"PingTower/internal/scheduler/models"
	"PingTower/internal/scheduler/storage"
	"PingTower/pkg/urlutil"
)

var ErrValidationFailed = errors.New("monitor validation probe failed")

type LifecycleConfig struct {
	FirstProbeDelay time.Duration
}

// LifecycleService applies monitor lifecycle changes made by collaborators
// to the ready queue and processing guard.
type LifecycleService struct {
	queue    storage.ReadyQueue
	guard    storage.ProcessingGuard
	configs  storage.MonitorConfigProvider
	statuses storage.StatusStore
	prober   Prober
	config   LifecycleConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewLifecycleService(
	queue storage.ReadyQueue,
	guard storage.ProcessingGuard,
	configs storage.MonitorConfigProvider,
	statuses storage.StatusStore,
	prober Prober,
	cfg LifecycleConfig,
	logger *slog.Logger,
) *LifecycleService {
	if cfg.FirstProbeDelay < 0 {
		cfg.FirstProbeDelay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleService{
		queue:    queue,
		guard:    guard,
		configs:  configs,
		statuses: statuses,
		prober:   prober,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Validate probes cfg synchronously and fails unless the target is UP.
func (s *LifecycleService) Validate(ctx context.Context, cfg *models.MonitorConfig) (models.Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return models.Outcome{}, err
	}
	if err := urlutil.Validate(cfg.URL); err != nil {
		return models.Outcome{}, err
	}

	outcome := s.prober.Probe(ctx, cfg.ProbeRequest())
	if outcome.Status != models.StatusUp {
		return outcome, fmt.Errorf("%w: %s %s", ErrValidationFailed, outcome.Status, outcome.ErrorMessage)
	}
	return outcome, nil
}

// OnMonitorCreated initializes the cached status and schedules the first probe.
func (s *LifecycleService) OnMonitorCreated(ctx context.Context, monitorID int64, intervalSeconds int) error {
	if err := models.ValidateInterval(intervalSeconds); err != nil {
		return err
	}

	if err := s.statuses.Update(ctx, monitorID, models.UnknownStatus()); err != nil {
		s.logger.Warn("failed to initialize monitor status", "monitor_id", monitorID, "error", err)
	}

	due := s.now().Add(s.config.FirstProbeDelay)
	if err := s.queue.ScheduleAt(ctx, monitorID, due); err != nil {
		return err
	}

	s.logger.Info("monitor scheduled", "monitor_id", monitorID, "interval_seconds", intervalSeconds, "first_due", due.Unix())
	return nil
}

// OnMonitorUpdated reschedules a queued monitor when its interval changed.
// An interval of 0 means unchanged.
func (s *LifecycleService) OnMonitorUpdated(ctx context.Context, monitorID int64, newIntervalSeconds int) error {
	if newIntervalSeconds == 0 {
		return nil
	}
	if err := models.ValidateInterval(newIntervalSeconds); err != nil {
		return err
	}

	_, queued, err := s.queue.NextDue(ctx, monitorID)
	if err != nil {
		return err
	}
	if !queued {
		// disabled monitors stay out of the queue
		return nil
	}

	if err := s.queue.Remove(ctx, monitorID); err != nil {
		return err
	}
	due := s.now().Add(time.Duration(newIntervalSeconds) * time.Second)
	if err := s.queue.ScheduleAt(ctx, monitorID, due); err != nil {
		return err
	}

	s.logger.Info("monitor interval changed", "monitor_id", monitorID, "interval_seconds", newIntervalSeconds)
	return nil
}

// OnMonitorDeleted drops the monitor from the queue and guard. Cached status
// and target entries expire on their own.
func (s *LifecycleService) OnMonitorDeleted(ctx context.Context, monitorID int64) error {
	if err := s.queue.Remove(ctx, monitorID); err != nil {
		return err
	}
	if err := s.guard.Unmark(ctx, monitorID); err != nil {
		return err
	}
	s.logger.Info("monitor removed", "monitor_id", monitorID)
	return nil
}

// Enable puts the monitor back in the queue, due immediately.
func (s *LifecycleService) Enable(ctx context.Context, monitorID int64) error {
	if err := s.queue.ScheduleAt(ctx, monitorID, s.now()); err != nil {
		return err
	}
	s.logger.Info("monitor enabled", "monitor_id", monitorID)
	return nil
}

func (s *LifecycleService) Disable(ctx context.Context, monitorID int64) error {
	if err := s.queue.Remove(ctx, monitorID); err != nil {
		return err
	}
	if err := s.guard.Unmark(ctx, monitorID); err != nil {
		return err
	}
	s.logger.Info("monitor disabled", "monitor_id", monitorID)
	return nil
}

// Monitor returns the config, cached status and next due time of a monitor.
func (s *LifecycleService) Monitor(ctx context.Context, monitorID int64) (*models.Monitor, error) {
	status, err := s.statuses.Get(ctx, monitorID)
	if err != nil {
		return nil, err
	}

	m := &models.Monitor{Status: status}

	cfg, err := s.configs.Get(ctx, monitorID)
	switch {
	case err == nil:
		m.Config = cfg
	case !errors.Is(err, storage.ErrMonitorNotFound):
		return nil, err
	}

	next, queued, err := s.queue.NextDue(ctx, monitorID)
	if err != nil {
		return nil, err
	}
	if queued {
		m.NextDueAt = &next
	}

	if m.Config == nil && !queued {
		return nil, storage.ErrMonitorNotFound
	}
	return m, nil
}

// ValidateAndCreate runs the validation probe against the stored config and
// then schedules the monitor.
func (s *LifecycleService) ValidateAndCreate(ctx context.Context, monitorID int64, intervalSeconds int) (models.Outcome, error) {
	cfg, err := s.configs.Get(ctx, monitorID)
	if err != nil {
		return models.Outcome{}, err
	}
	if intervalSeconds == 0 {
		intervalSeconds = cfg.IntervalSeconds
	}

	outcome, err := s.Validate(ctx, cfg)
	if err != nil {
		return outcome, err
	}
	return outcome, s.OnMonitorCreated(ctx, monitorID, intervalSeconds)
}

// Apply dispatches a lifecycle event to the matching hook.
func (s *LifecycleService) Apply(ctx context.Context, event models.LifecycleEvent) error {
	switch event.Type {
	case models.EventMonitorCreated:
		return s.OnMonitorCreated(ctx, event.MonitorID, event.IntervalSeconds)
	case models.EventMonitorUpdated:
		return s.OnMonitorUpdated(ctx, event.MonitorID, event.IntervalSeconds)
	case models.EventMonitorDeleted:
		return s.OnMonitorDeleted(ctx, event.MonitorID)
	case models.EventMonitorEnabled:
		return s.Enable(ctx, event.MonitorID)
	case models.EventMonitorDisabled:
		return s.Disable(ctx, event.MonitorID)
	default:
		return fmt.Errorf("unknown lifecycle event type %q", event.Type)
	}
}
