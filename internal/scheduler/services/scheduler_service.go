package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"PingTower/internal/scheduler/models"
	"PingTower/internal/scheduler/storage"
	"PingTower/pkg/uuidutil"
)

type OutcomeSource interface {
	GetOrProbe(ctx context.Context, req models.ProbeRequest, window time.Duration) models.Outcome
}

type RecordAppender interface {
	Add(record models.PingRecord)
	Pending() int
}

type Notifier interface {
	Evaluate(cfg *models.MonitorConfig, outcome models.Outcome) bool
}

type TaskRunner interface {
	Submit(task Task) error
	Queued() int64
}

type SchedulerConfig struct {
	TickInterval         time.Duration
	BatchSize            int
	CycleTimeout         time.Duration
	ProcessingTTL        time.Duration
	ConfigMissingBackoff time.Duration
	ErrorBackoff         time.Duration
	CacheWindow          time.Duration
	StatsInterval        time.Duration
}

// Scheduler drains due monitors from the ready queue on a fixed tick and
// probes them on the worker pool.
type Scheduler struct {
	queue    storage.ReadyQueue
	guard    storage.ProcessingGuard
	configs  storage.MonitorConfigProvider
	statuses storage.StatusStore
	outcomes OutcomeSource
	batcher  RecordAppender
	notifier Notifier
	pool     TaskRunner
	config   SchedulerConfig
	logger   *slog.Logger
	now      func() time.Time

	processed atomic.Int64
	active    atomic.Int64

	healthMu  sync.RWMutex
	lastError error

	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(
	queue storage.ReadyQueue,
	guard storage.ProcessingGuard,
	configs storage.MonitorConfigProvider,
	statuses storage.StatusStore,
	outcomes OutcomeSource,
	batcher RecordAppender,
	notifier Notifier,
	pool TaskRunner,
	cfg SchedulerConfig,
	logger *slog.Logger,
) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 30 * time.Second
	}
	if cfg.ProcessingTTL <= 0 {
		cfg.ProcessingTTL = 5 * time.Minute
	}
	if cfg.ConfigMissingBackoff <= 0 {
		cfg.ConfigMissingBackoff = 300 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 60 * time.Second
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		queue:    queue,
		guard:    guard,
		configs:  configs,
		statuses: statuses,
		outcomes: outcomes,
		batcher:  batcher,
		notifier: notifier,
		pool:     pool,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Start launches the dispatch loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	s.logger.Info("scheduler started",
		"tick", s.config.TickInterval,
		"batch_size", s.config.BatchSize,
		"cycle_timeout", s.config.CycleTimeout,
	)
	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()
	statsTicker := time.NewTicker(s.config.StatsInterval)
	defer statsTicker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		case <-statsTicker.C:
			s.logStatistics(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("dispatch cycle panicked", "panic", fmt.Sprint(r))
		}
	}()

	if _, err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("dispatch cycle failed", "error", err)
	}
}

// Stop ends the dispatch loop; in-flight tasks keep running on the pool.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	select {
	case <-s.done:
		s.logger.Info("scheduler stopped", "processed", s.processed.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunCycle performs one fetch, mark, dispatch and await pass and returns how
// many monitors were dispatched.
func (s *Scheduler) RunCycle(ctx context.Context) (int, error) {
	now := s.now()

	entries, err := s.queue.PopDue(ctx, now, s.config.BatchSize)
	if err != nil {
		s.setHealth(err)
		return 0, fmt.Errorf("failed to fetch due monitors: %w", err)
	}
	s.setHealth(nil)

	if len(entries) == 0 {
		return 0, nil
	}

	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.MonitorID
	}

	marked, err := s.guard.TryMarkBatch(ctx, ids, s.config.ProcessingTTL)
	if err != nil {
		return 0, fmt.Errorf("failed to mark monitors: %w", err)
	}
	if len(marked) == 0 {
		return 0, nil
	}

	claimed := make(map[int64]struct{}, len(marked))
	for _, id := range marked {
		claimed[id] = struct{}{}
	}
	s.lease(ctx, marked, now)

	var wg sync.WaitGroup
	dispatched := 0
	for _, entry := range entries {
		if _, ok := claimed[entry.MonitorID]; !ok {
			continue
		}

		wg.Add(1)
		err := s.pool.Submit(func(taskCtx context.Context) {
			defer wg.Done()
			s.processMonitor(taskCtx, entry)
		})
		if err != nil {
			wg.Done()
			// hand the monitor back at its original due time
			s.rescheduleAt(ctx, entry.MonitorID, entry.DueAt)
			s.unmark(entry.MonitorID)
			s.logger.Warn("failed to dispatch monitor", "monitor_id", entry.MonitorID, "error", err)
			continue
		}
		dispatched++
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	timer := time.NewTimer(s.config.CycleTimeout)
	defer timer.Stop()

	select {
	case <-finished:
		s.logCycle(ctx, dispatched, len(entries)-len(marked))
	case <-timer.C:
		s.logger.Warn("dispatch cycle await timed out, leaving stragglers to the processing ttl",
			"dispatched", dispatched,
			"active", s.active.Load(),
			"timeout", s.config.CycleTimeout,
		)
	case <-ctx.Done():
	}

	return dispatched, nil
}

// lease pushes claimed monitors past the processing ttl so in-flight entries
// stop occupying the head of the queue. The post-probe reschedule overwrites
// the lease with the drift-free due time.
func (s *Scheduler) lease(ctx context.Context, monitorIDs []int64, now time.Time) {
	until := now.Add(s.config.ProcessingTTL)
	for _, id := range monitorIDs {
		if err := s.queue.Reschedule(ctx, id, until); err != nil {
			s.logger.Warn("failed to lease monitor", "monitor_id", id, "error", err)
		}
	}
}

// processMonitor runs one monitor end to end. The monitor is always unmarked
// and, unless disabled or deleted, always rescheduled.
func (s *Scheduler) processMonitor(ctx context.Context, entry models.QueueEntry) {
	s.active.Add(1)
	defer s.active.Add(-1)
	defer s.unmark(entry.MonitorID)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("monitor task panicked",
				"monitor_id", entry.MonitorID,
				"panic", fmt.Sprint(r),
			)
			s.rescheduleAfter(ctx, entry.MonitorID, s.config.ErrorBackoff)
		}
	}()

	if err := s.probeMonitor(ctx, entry); err != nil {
		s.logger.Error("monitor task failed",
			"monitor_id", entry.MonitorID,
			"error", err,
		)
		s.rescheduleAfter(ctx, entry.MonitorID, s.config.ErrorBackoff)
	}
}

func (s *Scheduler) probeMonitor(ctx context.Context, entry models.QueueEntry) error {
	id := entry.MonitorID

	cfg, err := s.configs.Get(ctx, id)
	if errors.Is(err, storage.ErrMonitorNotFound) {
		s.logger.Warn("monitor config missing, postponing",
			"monitor_id", id,
			"backoff", s.config.ConfigMissingBackoff,
		)
		s.rescheduleAfter(ctx, id, s.config.ConfigMissingBackoff)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load monitor config: %w", err)
	}

	if !cfg.Enabled {
		if err := s.queue.Remove(ctx, id); err != nil {
			return fmt.Errorf("failed to drop disabled monitor: %w", err)
		}
		s.logger.Info("disabled monitor removed from queue", "monitor_id", id)
		return nil
	}

	outcome := s.outcomes.GetOrProbe(ctx, cfg.ProbeRequest(), s.config.CacheWindow)
	completedAt := s.now()

	// cached outcomes keep the time of the probe that produced them
	probedAt := completedAt
	if !outcome.CheckedAt.IsZero() {
		probedAt = outcome.CheckedAt
	}

	if err := s.statuses.Update(ctx, id, models.StatusFromOutcome(outcome)); err != nil {
		s.logger.Warn("failed to update monitor status", "monitor_id", id, "error", err)
	}

	s.batcher.Add(models.NewPingRecord(uuidutil.New(), cfg, entry.DueAt, probedAt, outcome))

	next := NextDue(entry.DueAt, cfg.Interval(), completedAt)
	if err := s.queue.Reschedule(ctx, id, next); err != nil {
		return fmt.Errorf("failed to reschedule monitor: %w", err)
	}

	s.notifier.Evaluate(cfg, outcome)
	s.processed.Add(1)

	s.logger.Debug("monitor probed",
		"monitor_id", id,
		"status", outcome.Status,
		"response_time_ms", outcome.ResponseTimeMs,
		"from_cache", outcome.FromCache,
		"next_due", next.Unix(),
	)
	return nil
}

// NextDue advances the previous due time by whole intervals: normally one,
// more when the monitor fell behind, so the phase is kept without a burst of
// catch-up probes.
func NextDue(scheduled time.Time, interval time.Duration, now time.Time) time.Time {
	if interval <= 0 {
		interval = models.MinIntervalSeconds * time.Second
	}

	next := scheduled.Add(interval)
	if next.After(now) {
		return next
	}

	missed := now.Sub(next)/interval + 1
	return next.Add(missed * interval)
}

func (s *Scheduler) rescheduleAfter(ctx context.Context, monitorID int64, delay time.Duration) {
	s.rescheduleAt(ctx, monitorID, s.now().Add(delay))
}

func (s *Scheduler) rescheduleAt(ctx context.Context, monitorID int64, due time.Time) {
	ctx, cancel := detached(ctx)
	defer cancel()

	if err := s.queue.Reschedule(ctx, monitorID, due); err != nil {
		s.logger.Error("failed to reschedule monitor", "monitor_id", monitorID, "error", err)
	}
}

func (s *Scheduler) unmark(monitorID int64) {
	ctx, cancel := detached(context.Background())
	defer cancel()

	if err := s.guard.Unmark(ctx, monitorID); err != nil {
		s.logger.Warn("failed to unmark monitor", "monitor_id", monitorID, "error", err)
	}
}

// detached keeps cleanup writes alive after the task context is cancelled.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}

func (s *Scheduler) setHealth(err error) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	if err != nil && s.lastError == nil {
		s.logger.Error("ready queue unreachable", "error", err)
	} else if err == nil && s.lastError != nil {
		s.logger.Info("ready queue reachable again")
	}
	s.lastError = err
}

// Healthy reports whether the last ready queue read succeeded.
func (s *Scheduler) Healthy() (bool, error) {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.lastError == nil, s.lastError
}

func (s *Scheduler) Stats(ctx context.Context) (models.SchedulerStats, error) {
	now := s.now()
	stats := models.SchedulerStats{
		Active:         s.active.Load(),
		TotalProcessed: s.processed.Load(),
		PoolQueued:     s.pool.Queued(),
		BatchPending:   s.batcher.Pending(),
		Timestamp:      now,
	}

	healthy, lastErr := s.Healthy()
	stats.Healthy = healthy
	if lastErr != nil {
		stats.LastError = lastErr.Error()
	}

	qs, err := s.queue.Stats(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("failed to read queue stats: %w", err)
	}
	stats.QueueStats = qs

	processing, err := s.guard.Count(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to count processing monitors: %w", err)
	}
	stats.Processing = processing

	return stats, nil
}

func (s *Scheduler) logCycle(ctx context.Context, dispatched, skipped int) {
	qs, err := s.queue.Stats(ctx, s.now())
	if err != nil {
		s.logger.Debug("dispatch cycle completed", "dispatched", dispatched, "skipped", skipped)
		return
	}
	s.logger.Debug("dispatch cycle completed",
		"dispatched", dispatched,
		"skipped", skipped,
		"active", s.active.Load(),
		"queued", s.pool.Queued(),
		"scheduled", qs.TotalInQueue,
		"overdue", qs.OverdueCount,
	)
}

func (s *Scheduler) logStatistics(ctx context.Context) {
	stats, err := s.Stats(ctx)
	if err != nil {
		s.logger.Warn("failed to collect scheduler statistics", "error", err)
		return
	}
	s.logger.Info("scheduler statistics",
		"processed", stats.TotalProcessed,
		"processing", stats.Processing,
		"pool_queued", stats.PoolQueued,
		"queue", stats.TotalInQueue,
		"overdue", stats.OverdueCount,
		"batch", stats.BatchPending,
	)
}
