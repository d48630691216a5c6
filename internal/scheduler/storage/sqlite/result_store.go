package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"PingTower/internal/scheduler/models"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS ping_records (
	id                 TEXT PRIMARY KEY,
	monitor_id         INTEGER NOT NULL,
	target_url         TEXT NOT NULL,
	request_method     TEXT NOT NULL,
	scheduled_at       INTEGER NOT NULL,
	actual_ping_at     INTEGER NOT NULL,
	status             TEXT NOT NULL,
	response_code      INTEGER,
	response_time_ms   INTEGER NOT NULL,
	error_message      TEXT,
	metadata           TEXT,
	used_cached_result INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_ping_records_monitor_time ON ping_records (monitor_id, actual_ping_at);
`

// ResultSink is an embedded result sink for single-instance deployments.
type ResultSink struct {
	db *sql.DB
}

func Open(dsn string) (*ResultSink, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
	}

	return &ResultSink{db: db}, nil
}

// WriteBatch inserts the batch in one transaction. Records already present
// are ignored.
func (s *ResultSink) WriteBatch(ctx context.Context, records []models.PingRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO ping_records (
			id, monitor_id, target_url, request_method, scheduled_at, actual_ping_at,
			status, response_code, response_time_ms, error_message, metadata, used_cached_result
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var metadata any
		if len(r.Metadata) > 0 {
			data, err := json.Marshal(r.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata: %w", err)
			}
			metadata = string(data)
		}

		var code any
		if r.ResponseCode != nil {
			code = *r.ResponseCode
		}

		var errMsg any
		if r.ErrorMessage != "" {
			errMsg = r.ErrorMessage
		}

		_, err := stmt.ExecContext(ctx,
			r.ID,
			r.MonitorID,
			r.TargetURL,
			r.RequestMethod,
			r.ScheduledAt.UnixMilli(),
			r.ActualPingAt.UnixMilli(),
			string(r.Status),
			code,
			r.ResponseTimeMs,
			errMsg,
			metadata,
			r.UsedCachedResult,
		)
		if err != nil {
			return fmt.Errorf("failed to insert ping record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ping records: %w", err)
	}
	return nil
}

// CountByMonitor returns how many records are stored for a monitor.
func (s *ResultSink) CountByMonitor(ctx context.Context, monitorID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ping_records WHERE monitor_id = ?`, monitorID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count ping records: %w", err)
	}
	return n, nil
}

func (s *ResultSink) Close() error {
	return s.db.Close()
}
