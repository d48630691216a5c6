package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"PingTower/internal/scheduler/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// countingProber records calls and the peak number of concurrent probes per URL.
type countingProber struct {
	mu       sync.Mutex
	calls    map[string]int
	inFlight map[string]int
	peak     map[string]int
	total    atomic.Int64

	outcome models.Outcome
	delay   time.Duration
	gate    chan struct{}
	onProbe func(req models.ProbeRequest)
}

func newCountingProber(status models.Status, code int) *countingProber {
	return &countingProber{
		calls:    make(map[string]int),
		inFlight: make(map[string]int),
		peak:     make(map[string]int),
		outcome:  models.Outcome{Status: status, ResponseCode: models.IntPtr(code), ResponseTimeMs: 15},
	}
}

func (p *countingProber) Probe(ctx context.Context, req models.ProbeRequest) models.Outcome {
	p.mu.Lock()
	p.calls[req.URL]++
	p.inFlight[req.URL]++
	if p.inFlight[req.URL] > p.peak[req.URL] {
		p.peak[req.URL] = p.inFlight[req.URL]
	}
	p.mu.Unlock()
	p.total.Add(1)

	if p.onProbe != nil {
		p.onProbe(req)
	}
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	p.inFlight[req.URL]--
	p.mu.Unlock()

	return p.outcome
}

func (p *countingProber) Calls(url string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[url]
}

func (p *countingProber) Peak(url string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak[url]
}

// directSource probes every time, bypassing the target cache.
type directSource struct {
	prober Prober
}

func (d directSource) GetOrProbe(ctx context.Context, req models.ProbeRequest, _ time.Duration) models.Outcome {
	return d.prober.Probe(ctx, req)
}

type funcSink struct {
	writeFn func(ctx context.Context, records []models.PingRecord) error
}

func (s *funcSink) WriteBatch(ctx context.Context, records []models.PingRecord) error {
	return s.writeFn(ctx, records)
}

func (s *funcSink) Close() error { return nil }

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
