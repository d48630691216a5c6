package models

import "time"

// PingRecord is the append-only history row written by the result batcher.
type PingRecord struct {
	ID               string            `json:"id"`
	MonitorID        int64             `json:"monitorId"`
	TargetURL        string            `json:"targetUrl"`
	RequestMethod    string            `json:"requestMethod"`
	ScheduledAt      time.Time         `json:"scheduledAt"`
	ActualPingAt     time.Time         `json:"actualPingAt"`
	Status           Status            `json:"status"`
	ResponseCode     *int              `json:"responseCode,omitempty"`
	ResponseTimeMs   int64             `json:"responseTimeMs"`
	ErrorMessage     string            `json:"errorMessage,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	UsedCachedResult bool              `json:"usedCachedResult"`
}

func NewPingRecord(id string, cfg *MonitorConfig, scheduledAt, actualAt time.Time, o Outcome) PingRecord {
	req := cfg.ProbeRequest()
	return PingRecord{
		ID:               id,
		MonitorID:        cfg.ID,
		TargetURL:        req.URL,
		RequestMethod:    req.Method,
		ScheduledAt:      scheduledAt,
		ActualPingAt:     actualAt,
		Status:           o.Status,
		ResponseCode:     o.ResponseCode,
		ResponseTimeMs:   o.ResponseTimeMs,
		ErrorMessage:     o.ErrorMessage,
		Metadata:         o.Metadata,
		UsedCachedResult: o.FromCache,
	}
}
