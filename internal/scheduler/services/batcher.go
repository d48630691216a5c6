package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"PingTower/internal/scheduler/models"
	"PingTower/internal/scheduler/storage"
)

type ResultBatcherConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
}

// ResultBatcher buffers ping records and writes them to the sink when the
// buffer reaches BatchSize or FlushInterval elapses. Failed writes are put
// back at the head of the buffer.
type ResultBatcher struct {
	sink   storage.ResultSink
	config ResultBatcherConfig
	logger *slog.Logger

	mu     sync.Mutex
	buffer []models.PingRecord

	flushMu sync.Mutex
	kick    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewResultBatcher(sink storage.ResultSink, cfg ResultBatcherConfig, logger *slog.Logger) *ResultBatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ResultBatcher{
		sink:   sink,
		config: cfg,
		logger: logger,
		buffer: make([]models.PingRecord, 0, cfg.BatchSize),
		kick:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Add appends a record without blocking on storage.
func (b *ResultBatcher) Add(record models.PingRecord) {
	b.mu.Lock()
	b.buffer = append(b.buffer, record)
	full := len(b.buffer) >= b.config.BatchSize
	b.mu.Unlock()

	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
}

func (b *ResultBatcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

// Start runs the flush loop until Stop is called.
func (b *ResultBatcher) Start() {
	go b.loop()
}

func (b *ResultBatcher) loop() {
	defer close(b.done)

	ticker := time.NewTicker(b.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.flushWithTimeout()
		case <-b.kick:
			b.flushWithTimeout()
		}
	}
}

func (b *ResultBatcher) flushWithTimeout() {
	ctx, cancel := context.WithTimeout(context.Background(), b.config.WriteTimeout)
	defer cancel()
	_ = b.Flush(ctx)
}

// Flush drains the buffer and writes it in chunks of BatchSize. On the first
// failing chunk the unwritten records are restored and the error returned.
func (b *ResultBatcher) Flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return nil
	}
	drained := b.buffer
	b.buffer = make([]models.PingRecord, 0, b.config.BatchSize)
	b.mu.Unlock()

	for start := 0; start < len(drained); start += b.config.BatchSize {
		end := min(start+b.config.BatchSize, len(drained))

		if err := b.sink.WriteBatch(ctx, drained[start:end]); err != nil {
			b.restore(drained[start:])
			b.logger.Warn("failed to flush ping records, will retry",
				"records", len(drained)-start,
				"pending", b.Pending(),
				"error", err,
			)
			return err
		}
	}

	b.logger.Debug("flushed ping records", "records", len(drained))
	return nil
}

func (b *ResultBatcher) restore(records []models.PingRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	restored := make([]models.PingRecord, 0, len(records)+len(b.buffer))
	restored = append(restored, records...)
	b.buffer = append(restored, b.buffer...)
}

// Stop ends the flush loop and makes a final flush attempt.
func (b *ResultBatcher) Stop(ctx context.Context) error {
	b.once.Do(func() { close(b.stop) })

	select {
	case <-b.done:
	case <-ctx.Done():
	}

	if err := b.Flush(ctx); err != nil {
		b.logger.Error("final flush failed, records lost", "pending", b.Pending(), "error", err)
		return err
	}
	return nil
}
