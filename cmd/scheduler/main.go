package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PingTower/internal/config"
	"PingTower/internal/scheduler/dependencies"
	"PingTower/internal/scheduler/server"
	"PingTower/pkg/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %s", err)
	}

	log := logger.Setup(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	log.Info("starting PingTower scheduler",
		slog.String("name", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("store", cfg.Scheduler.Store),
		slog.Int("port", cfg.Server.Port),
	)

	if err := run(cfg, log); err != nil {
		log.Error("scheduler exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("scheduler stopped gracefully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	container, err := dependencies.NewContainer(initCtx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := container.Close(); err != nil {
			logger.Error("failed to close dependencies", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	srv := server.New(&server.Config{
		Port:    cfg.Server.Port,
		Mode:    cfg.Server.Mode,
		Service: cfg.App.Name,
		Version: cfg.App.Version,
	}, container)

	container.Start(gctx)

	g.Go(srv.Start)

	if container.Listener != nil {
		g.Go(func() error {
			err := container.Listener.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.ShutdownGrace+15*time.Second)
		defer cancel()

		serverErr := srv.Shutdown(shutdownCtx)
		engineErr := container.Stop(shutdownCtx)
		return errors.Join(serverErr, engineErr)
	})

	return g.Wait()
}
