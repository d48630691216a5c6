package models

import "time"

type NotificationKind string

const (
	NotificationBadRequest  NotificationKind = "bad_request"
	NotificationServiceDown NotificationKind = "service_down"
)

type Notification struct {
	OwnerID   int64            `json:"ownerId"`
	MonitorID int64            `json:"monitorId"`
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"createdAt"`
}

type LifecycleEventType string

const (
	EventMonitorCreated  LifecycleEventType = "created"
	EventMonitorUpdated  LifecycleEventType = "updated"
	EventMonitorDeleted  LifecycleEventType = "deleted"
	EventMonitorEnabled  LifecycleEventType = "enabled"
	EventMonitorDisabled LifecycleEventType = "disabled"
)

// LifecycleEvent is published by collaborators when a monitor changes.
type LifecycleEvent struct {
	Type            LifecycleEventType `json:"type"`
	MonitorID       int64              `json:"monitorId"`
	IntervalSeconds int                `json:"intervalSeconds,omitempty"`
}
