package storage

import (
	"context"
	"fmt"

	"PingTower/internal/scheduler/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pingRecordsSchema = `
CREATE TABLE IF NOT EXISTS ping_records (
	id                 UUID PRIMARY KEY,
	monitor_id         BIGINT NOT NULL,
	target_url         TEXT NOT NULL,
	request_method     TEXT NOT NULL,
	scheduled_at       TIMESTAMPTZ NOT NULL,
	actual_ping_at     TIMESTAMPTZ NOT NULL,
	status             TEXT NOT NULL,
	response_code      INTEGER,
	response_time_ms   BIGINT NOT NULL,
	error_message      TEXT,
	metadata           JSONB,
	used_cached_result BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_ping_records_monitor_time ON ping_records (monitor_id, actual_ping_at DESC);
`

var pingRecordColumns = []string{
	"id", "monitor_id", "target_url", "request_method", "scheduled_at", "actual_ping_at",
	"status", "response_code", "response_time_ms", "error_message", "metadata", "used_cached_result",
}

type postgresResultSink struct {
	pool *pgxpool.Pool
}

// NewPostgresResultSink returns a sink that bulk-loads ping records with COPY.
func NewPostgresResultSink(ctx context.Context, pool *pgxpool.Pool) (ResultSink, error) {
	if _, err := pool.Exec(ctx, pingRecordsSchema); err != nil {
		return nil, fmt.Errorf("failed to migrate ping_records: %w", err)
	}
	return &postgresResultSink{pool: pool}, nil
}

// WriteBatch copies the batch into a staging table and merges it, skipping
// ids that are already stored.
func (s *postgresResultSink) WriteBatch(ctx context.Context, records []models.PingRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `CREATE TEMP TABLE ping_records_stage (LIKE ping_records INCLUDING DEFAULTS) ON COMMIT DROP`); err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"ping_records_stage"}, pingRecordColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			return recordRow(records[i])
		}))
	if err != nil {
		return fmt.Errorf("failed to copy ping records: %w", err)
	}

	insert := `INSERT INTO ping_records SELECT * FROM ping_records_stage ON CONFLICT (id) DO NOTHING`
	if _, err := tx.Exec(ctx, insert); err != nil {
		return fmt.Errorf("failed to merge ping records: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit ping records: %w", err)
	}
	return nil
}

func (s *postgresResultSink) Close() error {
	return nil
}

func recordRow(r models.PingRecord) ([]any, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid ping record id %q: %w", r.ID, err)
	}

	var errMsg *string
	if r.ErrorMessage != "" {
		errMsg = &r.ErrorMessage
	}

	return []any{
		id,
		r.MonitorID,
		r.TargetURL,
		r.RequestMethod,
		r.ScheduledAt,
		r.ActualPingAt,
		string(r.Status),
		r.ResponseCode,
		r.ResponseTimeMs,
		errMsg,
		r.Metadata,
		r.UsedCachedResult,
	}, nil
}
