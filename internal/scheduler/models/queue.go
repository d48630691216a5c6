package models

import "time"

type QueueEntry struct {
	MonitorID int64     `json:"monitorId"`
	DueAt     time.Time `json:"dueAt"`
}

type QueueStats struct {
	TotalInQueue int64 `json:"totalInQueue"`
	OverdueCount int64 `json:"overdueCount"`
}

// SchedulerStats is the diagnostic snapshot polled by operators.
type SchedulerStats struct {
	QueueStats

	Processing     int64     `json:"processing"`
	Active         int64     `json:"active"`
	PoolQueued     int64     `json:"poolQueued"`
	TotalProcessed int64     `json:"totalProcessed"`
	BatchPending   int       `json:"batchPending"`
	Healthy        bool      `json:"healthy"`
	LastError      string    `json:"lastError,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
