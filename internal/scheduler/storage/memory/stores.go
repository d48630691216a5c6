package memory

import (
	"context"
	"sync"
	"time"

	"PingTower/internal/scheduler/models"
	"PingTower/internal/scheduler/storage"
)

type cachedOutcome struct {
	outcome models.Outcome
	expires time.Time
}

type TargetCache struct {
	mu      sync.RWMutex
	entries map[string]cachedOutcome
	now     func() time.Time
}

func NewTargetCache() *TargetCache {
	return &TargetCache{entries: make(map[string]cachedOutcome), now: time.Now}
}

func (c *TargetCache) Get(_ context.Context, target string) (models.Outcome, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[target]
	if !ok || !e.expires.After(c.now()) {
		return models.Outcome{}, storage.ErrCacheMiss
	}
	return e.outcome, nil
}

func (c *TargetCache) Put(_ context.Context, target string, outcome models.Outcome, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	outcome.FromCache = false
	c.entries[target] = cachedOutcome{outcome: outcome, expires: c.now().Add(ttl)}
	return nil
}

type StatusStore struct {
	mu       sync.RWMutex
	statuses map[int64]models.MonitorStatus
}

func NewStatusStore() *StatusStore {
	return &StatusStore{statuses: make(map[int64]models.MonitorStatus)}
}

func (s *StatusStore) Update(_ context.Context, monitorID int64, status models.MonitorStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[monitorID] = status
	return nil
}

func (s *StatusStore) Get(_ context.Context, monitorID int64) (models.MonitorStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.statuses[monitorID]; ok {
		return st, nil
	}
	return models.UnknownStatus(), nil
}

// ConfigProvider holds monitor definitions in memory.
type ConfigProvider struct {
	mu      sync.RWMutex
	configs map[int64]models.MonitorConfig
}

func NewConfigProvider(configs ...models.MonitorConfig) *ConfigProvider {
	p := &ConfigProvider{configs: make(map[int64]models.MonitorConfig)}
	for _, c := range configs {
		p.configs[c.ID] = c
	}
	return p
}

func (p *ConfigProvider) Get(_ context.Context, monitorID int64) (*models.MonitorConfig, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.configs[monitorID]
	if !ok {
		return nil, storage.ErrMonitorNotFound
	}
	return &c, nil
}

func (p *ConfigProvider) Save(_ context.Context, cfg *models.MonitorConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs[cfg.ID] = *cfg
	return nil
}

func (p *ConfigProvider) Delete(_ context.Context, monitorID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.configs, monitorID)
	return nil
}

// ResultSink keeps written records in memory, deduplicated by id.
type ResultSink struct {
	mu      sync.Mutex
	records []models.PingRecord
	seen    map[string]struct{}
	writes  int
}

func NewResultSink() *ResultSink {
	return &ResultSink{seen: make(map[string]struct{})}
}

func (s *ResultSink) WriteBatch(_ context.Context, records []models.PingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	for _, r := range records {
		if _, dup := s.seen[r.ID]; dup {
			continue
		}
		s.seen[r.ID] = struct{}{}
		s.records = append(s.records, r)
	}
	return nil
}

func (s *ResultSink) Records() []models.PingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PingRecord(nil), s.records...)
}

// Writes returns how many WriteBatch calls were made.
func (s *ResultSink) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *ResultSink) Close() error { return nil }

// NotificationChannel records published notifications.
type NotificationChannel struct {
	mu   sync.Mutex
	sent []models.Notification
}

func NewNotificationChannel() *NotificationChannel {
	return &NotificationChannel{}
}

func (n *NotificationChannel) Publish(_ context.Context, notification models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return nil
}

func (n *NotificationChannel) Sent() []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Notification(nil), n.sent...)
}

// EventSource fans events pushed with Emit out to a single subscriber.
type EventSource struct {
	events chan models.LifecycleEvent
}

func NewEventSource(buffer int) *EventSource {
	return &EventSource{events: make(chan models.LifecycleEvent, buffer)}
}

func (s *EventSource) Emit(event models.LifecycleEvent) {
	s.events <- event
}

func (s *EventSource) Subscribe(ctx context.Context) (<-chan models.LifecycleEvent, error) {
	out := make(chan models.LifecycleEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-s.events:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

var (
	_ storage.ReadyQueue          = (*ReadyQueue)(nil)
	_ storage.ProcessingGuard     = (*ProcessingGuard)(nil)
	_ storage.TargetCache         = (*TargetCache)(nil)
	_ storage.StatusStore         = (*StatusStore)(nil)
	_ storage.MonitorConfigStore  = (*ConfigProvider)(nil)
	_ storage.ResultSink          = (*ResultSink)(nil)
	_ storage.NotificationChannel = (*NotificationChannel)(nil)
	_ storage.EventSource         = (*EventSource)(nil)
)
