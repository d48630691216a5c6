package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

var ErrPoolClosed = errors.New("worker pool is shut down")

type WorkerPoolConfig struct {
	Workers       int
	QueueCapacity int
}

// Task receives the pool context, which is cancelled only on forced shutdown.
type Task func(ctx context.Context)

// WorkerPool runs tasks on a fixed number of goroutines behind a bounded
// queue. When the queue is full the submitting goroutine runs the task
// itself, so no task is ever dropped.
type WorkerPool struct {
	jobs   chan Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool

	inline atomic.Int64
	queued atomic.Int64
}

func NewWorkerPool(cfg WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.QueueCapacity < 0 {
		cfg.QueueCapacity = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		jobs:   make(chan Task, cfg.QueueCapacity),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for task := range p.jobs {
		p.queued.Add(-1)
		p.run(task)
	}
}

func (p *WorkerPool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker task panicked", "panic", fmt.Sprint(r))
		}
	}()
	task(p.ctx)
}

// Submit queues task or, when the queue is full, runs it in the caller.
func (p *WorkerPool) Submit(task Task) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}

	select {
	case p.jobs <- task:
		p.queued.Add(1)
		p.mu.RUnlock()
		return nil
	default:
		p.mu.RUnlock()
	}

	p.inline.Add(1)
	p.logger.Debug("worker pool saturated, running task in caller")
	p.run(task)
	return nil
}

// Queued is the number of tasks waiting for a worker.
func (p *WorkerPool) Queued() int64 {
	return p.queued.Load()
}

// InlineRuns counts tasks executed by the caller due to backpressure.
func (p *WorkerPool) InlineRuns() int64 {
	return p.inline.Load()
}

// Shutdown stops accepting tasks and waits for queued and running tasks.
// If ctx expires first the pool context is cancelled so in-flight probes abort.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("worker pool grace period expired, cancelling in-flight tasks")
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}
