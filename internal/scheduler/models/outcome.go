package models

import "time"

// ProbeRequest describes a single HTTP check.
type ProbeRequest struct {
	URL         string
	Method      string
	Headers     map[string]string
	Body        string
	ContentType string
	Timeout     time.Duration
}

// Outcome is the classified result of one probe execution.
type Outcome struct {
	Status         Status            `json:"status"`
	ResponseCode   *int              `json:"responseCode,omitempty"`
	ResponseTimeMs int64             `json:"responseTimeMs"`
	ErrorMessage   string            `json:"errorMessage,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CheckedAt      time.Time         `json:"checkedAt"`
	FromCache      bool              `json:"fromCache"`
}

// Code returns the response code or 0 when there was no response.
func (o Outcome) Code() int {
	if o.ResponseCode == nil {
		return 0
	}
	return *o.ResponseCode
}

func IntPtr(v int) *int {
	return &v
}
