package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"PingTower/internal/scheduler/models"
	"PingTower/internal/scheduler/storage"
)

// NotificationTrigger emits an event when an outcome crosses the failure
// threshold. Publishing is asynchronous and never fails the probe cycle.
type NotificationTrigger struct {
	channel storage.NotificationChannel
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewNotificationTrigger(channel storage.NotificationChannel, timeout time.Duration, logger *slog.Logger) *NotificationTrigger {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationTrigger{channel: channel, timeout: timeout, now: time.Now, logger: logger}
}

// Evaluate publishes a notification for cfg's owner if the outcome warrants
// one and reports whether it did.
func (n *NotificationTrigger) Evaluate(cfg *models.MonitorConfig, outcome models.Outcome) bool {
	kind, ok := notificationKind(outcome)
	if !ok {
		return false
	}

	notification := models.Notification{
		OwnerID:   cfg.OwnerID,
		MonitorID: cfg.ID,
		Kind:      kind,
		Message:   renderMessage(kind, cfg, outcome, n.now()),
		CreatedAt: n.now(),
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		if err := n.channel.Publish(ctx, notification); err != nil {
			n.logger.Warn("failed to publish notification",
				"monitor_id", cfg.ID,
				"owner_id", cfg.OwnerID,
				"error", err,
			)
		}
	}()
	return true
}

// Wait blocks until in-flight publishes finish.
func (n *NotificationTrigger) Wait() {
	n.wg.Wait()
}

// notificationKind maps 4xx to a bad-request notice and 5xx to service down.
// Failures without a response code (timeouts, refused connections) count as
// service down.
func notificationKind(o models.Outcome) (models.NotificationKind, bool) {
	code := o.Code()
	switch {
	case code >= 400 && code < 500:
		return models.NotificationBadRequest, true
	case code >= 500:
		return models.NotificationServiceDown, true
	case o.ResponseCode == nil && o.Status != models.StatusUp && o.Status != models.StatusUnknown:
		return models.NotificationServiceDown, true
	}
	return "", false
}

func renderMessage(kind models.NotificationKind, cfg *models.MonitorConfig, o models.Outcome, at time.Time) string {
	var b strings.Builder

	if kind == models.NotificationBadRequest {
		b.WriteString("Bad request detected\n")
	} else {
		b.WriteString("Service is down\n")
	}

	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("monitor #%d", cfg.ID)
	}

	fmt.Fprintf(&b, "Monitor: %s\n", name)
	fmt.Fprintf(&b, "URL: %s\n", cfg.URL)
	fmt.Fprintf(&b, "Status: %s\n", o.Status)
	if o.ResponseCode != nil {
		fmt.Fprintf(&b, "Response code: %d\n", *o.ResponseCode)
	}
	if o.ErrorMessage != "" {
		fmt.Fprintf(&b, "Error: %s\n", o.ErrorMessage)
	}
	fmt.Fprintf(&b, "Response time: %dms\n", o.ResponseTimeMs)
	fmt.Fprintf(&b, "Time: %s", at.UTC().Format(time.RFC3339))

	return b.String()
}
