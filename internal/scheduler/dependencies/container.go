package dependencies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"PingTower/internal/config"
	"PingTower/internal/prober"
	"PingTower/internal/scheduler/services"
	"PingTower/internal/scheduler/storage"
	"PingTower/internal/scheduler/storage/memory"
	"PingTower/internal/scheduler/storage/sqlite"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Container holds the wired scheduler engine and its backing stores.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Storage
	Queue         storage.ReadyQueue
	Guard         storage.ProcessingGuard
	Targets       storage.TargetCache
	Statuses      storage.StatusStore
	Configs       storage.MonitorConfigStore
	Sink          storage.ResultSink
	Notifications storage.NotificationChannel
	Events        storage.EventSource

	// Services
	Prober    *prober.HTTPProber
	Cache     *services.ResultCache
	Pool      *services.WorkerPool
	Batcher   *services.ResultBatcher
	Notifier  *services.NotificationTrigger
	Scheduler *services.Scheduler
	Lifecycle *services.LifecycleService
	Listener  *services.EventListener

	// Connections
	DB    *pgxpool.Pool
	Redis *redis.Client
}

func NewContainer(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Container, error) {
	container := &Container{
		Config: cfg,
		Logger: log,
	}

	if err := container.initStores(); err != nil {
		return nil, err
	}

	if err := container.initSink(ctx); err != nil {
		container.Close()
		return nil, err
	}

	container.initServices()

	log.Info("dependency container initialized",
		"store", cfg.Scheduler.Store,
		"database", cfg.Database.Driver,
	)
	return container, nil
}

func (c *Container) initStores() error {
	switch c.Config.Scheduler.Store {
	case "memory":
		c.Queue = memory.NewReadyQueue()
		c.Guard = memory.NewProcessingGuard()
		c.Targets = memory.NewTargetCache()
		c.Statuses = memory.NewStatusStore()
		c.Configs = memory.NewConfigProvider()
		c.Notifications = memory.NewNotificationChannel()
		return nil
	case "redis":
	default:
		return fmt.Errorf("unsupported scheduler store %q", c.Config.Scheduler.Store)
	}

	client, err := storage.NewRedisClient(&c.Config.Redis, c.Logger)
	if err != nil {
		return err
	}
	c.Redis = client

	c.Queue = storage.NewRedisReadyQueue(client)
	c.Guard = storage.NewRedisProcessingGuard(client)
	c.Targets = storage.NewRedisTargetCache(client)
	c.Statuses = storage.NewRedisStatusStore(client, storage.DefaultStatusTTL)
	c.Configs = storage.NewRedisConfigProvider(client, storage.DefaultConfigTTL)
	c.Notifications = storage.NewRedisNotificationChannel(client, c.Config.Notifications.Channel)

	if c.Config.Events.Enabled {
		c.Events = storage.NewRedisEventSource(client, c.Config.Events.Channel, c.Logger.With("component", "events"))
	}
	return nil
}

func (c *Container) initSink(ctx context.Context) error {
	switch c.Config.Database.Driver {
	case "sqlite":
		path := c.Config.Database.SQLitePath
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}

		sink, err := sqlite.Open(path)
		if err != nil {
			return err
		}
		c.Sink = sink
		c.Logger.Info("using sqlite result sink", "path", path)
		return nil

	case "postgres":
		db, err := storage.NewPostgres(ctx, &c.Config.Database, c.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		c.DB = db

		sink, err := storage.NewPostgresResultSink(ctx, db)
		if err != nil {
			return err
		}
		c.Sink = sink
		return nil

	default:
		return fmt.Errorf("unsupported database driver %q", c.Config.Database.Driver)
	}
}

func (c *Container) initServices() {
	cfg := c.Config
	logger := c.Logger

	c.Prober = prober.NewHTTPProber(prober.Config{
		RetryAttempts:  cfg.Probe.RetryAttempts,
		RetryBaseDelay: cfg.Probe.RetryBaseDelay,
		RetryMaxDelay:  cfg.Probe.RetryMaxDelay,
		DefaultTimeout: cfg.Probe.DefaultTimeout,
		UserAgent:      cfg.Probe.UserAgent,
	}, logger.With("service", "prober"))

	c.Cache = services.NewResultCache(c.Targets, c.Prober, logger.With("service", "cache"))

	c.Pool = services.NewWorkerPool(services.WorkerPoolConfig{
		Workers:       cfg.Scheduler.Workers,
		QueueCapacity: cfg.Scheduler.QueueCapacity,
	}, logger.With("service", "pool"))

	c.Batcher = services.NewResultBatcher(c.Sink, services.ResultBatcherConfig{
		BatchSize:     cfg.Batcher.BatchSize,
		FlushInterval: cfg.Batcher.FlushInterval,
		WriteTimeout:  cfg.Batcher.WriteTimeout,
	}, logger.With("service", "batcher"))

	c.Notifier = services.NewNotificationTrigger(c.Notifications, cfg.Notifications.PublishTimeout,
		logger.With("service", "notifier"))

	c.Scheduler = services.NewScheduler(
		c.Queue,
		c.Guard,
		c.Configs,
		c.Statuses,
		c.Cache,
		c.Batcher,
		c.Notifier,
		c.Pool,
		services.SchedulerConfig{
			TickInterval:         cfg.Scheduler.TickInterval,
			BatchSize:            cfg.Scheduler.BatchSize,
			CycleTimeout:         cfg.Scheduler.CycleTimeout,
			ProcessingTTL:        cfg.Scheduler.ProcessingTTL,
			ConfigMissingBackoff: cfg.Scheduler.ConfigMissingBackoff,
			ErrorBackoff:         cfg.Scheduler.ErrorBackoff,
			CacheWindow:          cfg.Cache.Window,
			StatsInterval:        cfg.Scheduler.StatsInterval,
		},
		logger.With("service", "scheduler"),
	)

	c.Lifecycle = services.NewLifecycleService(
		c.Queue,
		c.Guard,
		c.Configs,
		c.Statuses,
		c.Prober,
		services.LifecycleConfig{FirstProbeDelay: cfg.Scheduler.FirstProbeDelay},
		logger.With("service", "lifecycle"),
	)

	if c.Events != nil {
		c.Listener = services.NewEventListener(c.Events, c.Lifecycle, logger.With("service", "events"))
	}
}

// Start launches the batcher flush loop and the dispatch loop.
func (c *Container) Start(ctx context.Context) {
	c.Batcher.Start()
	c.Scheduler.Start(ctx)
}

// Stop drains the engine: no new dispatches, in-flight tasks get the
// shutdown grace, then buffered records are flushed.
func (c *Container) Stop(ctx context.Context) error {
	var errs []error

	if err := c.Scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop scheduler: %w", err))
	}

	graceCtx, cancel := context.WithTimeout(ctx, c.Config.Scheduler.ShutdownGrace)
	defer cancel()
	if err := c.Pool.Shutdown(graceCtx); err != nil {
		c.Logger.Warn("worker pool did not drain within the shutdown grace", "error", err)
	}

	if err := c.Batcher.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush ping records: %w", err))
	}

	c.Notifier.Wait()
	return errors.Join(errs...)
}

// Close releases storage connections.
func (c *Container) Close() error {
	var errs []error

	if c.Sink != nil {
		if err := c.Sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.DB != nil {
		c.DB.Close()
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing dependencies: %v", errs)
	}
	return nil
}
