package memory

import (
	"context"
	"sync"
	"time"
)

// ProcessingGuard tracks in-flight monitors with a per-entry expiry.
type ProcessingGuard struct {
	mu      sync.Mutex
	expires map[int64]time.Time
	now     func() time.Time
}

func NewProcessingGuard() *ProcessingGuard {
	return &ProcessingGuard{expires: make(map[int64]time.Time), now: time.Now}
}

// WithClock replaces the clock used for expiry; for tests.
func (g *ProcessingGuard) WithClock(now func() time.Time) *ProcessingGuard {
	g.now = now
	return g
}

func (g *ProcessingGuard) TryMarkBatch(_ context.Context, monitorIDs []int64, ttl time.Duration) ([]int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	marked := make([]int64, 0, len(monitorIDs))
	for _, id := range monitorIDs {
		if exp, ok := g.expires[id]; ok && exp.After(now) {
			continue
		}
		g.expires[id] = now.Add(ttl)
		marked = append(marked, id)
	}
	return marked, nil
}

func (g *ProcessingGuard) Unmark(_ context.Context, monitorIDs ...int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range monitorIDs {
		delete(g.expires, id)
	}
	return nil
}

func (g *ProcessingGuard) Count(_ context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	var n int64
	for id, exp := range g.expires {
		if exp.After(now) {
			n++
		} else {
			delete(g.expires, id)
		}
	}
	return n, nil
}
