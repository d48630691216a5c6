package models

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// MinIntervalSeconds is the shortest interval a monitor may be scheduled with.
const MinIntervalSeconds = 30

var ErrInvalidInterval = fmt.Errorf("interval must be at least %d seconds", MinIntervalSeconds)

type Status string

const (
	StatusUp      Status = "UP"
	StatusDown    Status = "DOWN"
	StatusTimeout Status = "TIMEOUT"
	StatusError   Status = "ERROR"
	StatusUnknown Status = "UNKNOWN"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusUp, StatusDown, StatusTimeout, StatusError, StatusUnknown:
		return true
	}
	return false
}

// MonitorConfig is the collaborator-owned definition of a monitor.
type MonitorConfig struct {
	ID              int64             `json:"id"`
	OwnerID         int64             `json:"ownerId"`
	GroupID         *int64            `json:"groupId,omitempty"`
	Name            string            `json:"name"`
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            string            `json:"body,omitempty"`
	ContentType     string            `json:"contentType,omitempty"`
	TimeoutMs       int               `json:"timeoutMs"`
	IntervalSeconds int               `json:"intervalSeconds"`
	Enabled         bool              `json:"enabled"`
}

func (c *MonitorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c *MonitorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c *MonitorConfig) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errors.New("monitor url is required")
	}
	if err := ValidateInterval(c.IntervalSeconds); err != nil {
		return err
	}
	if c.TimeoutMs < 0 {
		return fmt.Errorf("invalid timeout %dms", c.TimeoutMs)
	}
	return nil
}

// ProbeRequest builds the request description handed to the prober.
func (c *MonitorConfig) ProbeRequest() ProbeRequest {
	method := strings.ToUpper(strings.TrimSpace(c.Method))
	if method == "" {
		method = http.MethodGet
	}

	return ProbeRequest{
		URL:         c.URL,
		Method:      method,
		Headers:     c.Headers,
		Body:        c.Body,
		ContentType: c.ContentType,
		Timeout:     c.Timeout(),
	}
}

func ValidateInterval(seconds int) error {
	if seconds < MinIntervalSeconds {
		return fmt.Errorf("%w, got %d", ErrInvalidInterval, seconds)
	}
	return nil
}

// MonitorStatus is the cached last-known state shown to users.
type MonitorStatus struct {
	Status         Status     `json:"status"`
	ResponseCode   *int       `json:"responseCode,omitempty"`
	ResponseTimeMs *int64     `json:"responseTimeMs,omitempty"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
	LastCheckedAt  *time.Time `json:"lastCheckedAt,omitempty"`
}

func UnknownStatus() MonitorStatus {
	return MonitorStatus{Status: StatusUnknown}
}

func StatusFromOutcome(o Outcome) MonitorStatus {
	checked := o.CheckedAt
	latency := o.ResponseTimeMs
	return MonitorStatus{
		Status:         o.Status,
		ResponseCode:   o.ResponseCode,
		ResponseTimeMs: &latency,
		ErrorMessage:   o.ErrorMessage,
		LastCheckedAt:  &checked,
	}
}

// Monitor joins a monitor's config with its scheduling state.
type Monitor struct {
	Config    *MonitorConfig `json:"config,omitempty"`
	Status    MonitorStatus  `json:"status"`
	NextDueAt *time.Time     `json:"nextDueAt,omitempty"`
}
