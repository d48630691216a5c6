package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PingTower/internal/scheduler/models"
	"PingTower/internal/scheduler/storage"
	"PingTower/internal/scheduler/storage/memory"
	"PingTower/pkg/urlutil"
)

type harness struct {
	clock     *fakeClock
	queue     *memory.ReadyQueue
	guard     *memory.ProcessingGuard
	configs   *memory.ConfigProvider
	statuses  *memory.StatusStore
	sink      *memory.ResultSink
	channel   *memory.NotificationChannel
	batcher   *ResultBatcher
	notifier  *NotificationTrigger
	pool      *WorkerPool
	cache     *ResultCache
	scheduler *Scheduler
	lifecycle *LifecycleService
}

type harnessOptions struct {
	source       OutcomeSource
	pool         WorkerPoolConfig
	queue        storage.ReadyQueue
	configs      storage.MonitorConfigProvider
	batchSize    int
	cycleTimeout time.Duration
}

func newHarness(t *testing.T, prober Prober, opts harnessOptions) *harness {
	t.Helper()

	h := &harness{
		clock:    newFakeClock(),
		queue:    memory.NewReadyQueue(),
		configs:  memory.NewConfigProvider(),
		statuses: memory.NewStatusStore(),
		sink:     memory.NewResultSink(),
		channel:  memory.NewNotificationChannel(),
	}
	h.guard = memory.NewProcessingGuard().WithClock(h.clock.Now)

	if opts.pool.Workers == 0 {
		opts.pool = WorkerPoolConfig{Workers: 4, QueueCapacity: 10}
	}
	h.pool = NewWorkerPool(opts.pool, discardLogger())
	if opts.batchSize == 0 {
		opts.batchSize = 100
	}
	if opts.cycleTimeout == 0 {
		opts.cycleTimeout = 5 * time.Second
	}
	h.batcher = NewResultBatcher(h.sink, ResultBatcherConfig{BatchSize: 100, FlushInterval: time.Hour}, discardLogger())
	h.notifier = NewNotificationTrigger(h.channel, time.Second, discardLogger())
	h.cache = NewResultCache(memory.NewTargetCache(), prober, discardLogger())
	h.cache.now = h.clock.Now

	source := opts.source
	if source == nil {
		source = h.cache
	}
	var queue storage.ReadyQueue = h.queue
	if opts.queue != nil {
		queue = opts.queue
	}
	var configs storage.MonitorConfigProvider = h.configs
	if opts.configs != nil {
		configs = opts.configs
	}

	h.scheduler = NewScheduler(queue, h.guard, configs, h.statuses, source, h.batcher, h.notifier, h.pool,
		SchedulerConfig{
			TickInterval:  5 * time.Second,
			BatchSize:     opts.batchSize,
			CycleTimeout:  opts.cycleTimeout,
			ProcessingTTL: 5 * time.Minute,
			CacheWindow:   30 * time.Second,
		}, discardLogger())
	h.scheduler.now = h.clock.Now

	h.lifecycle = NewLifecycleService(queue, h.guard, configs, h.statuses, prober,
		LifecycleConfig{FirstProbeDelay: 30 * time.Second}, discardLogger())
	h.lifecycle.now = h.clock.Now

	t.Cleanup(func() {
		_ = h.pool.Shutdown(context.Background())
		h.notifier.Wait()
	})
	return h
}

func (h *harness) addMonitor(t *testing.T, cfg models.MonitorConfig, due time.Time) {
	t.Helper()
	if err := h.configs.Save(context.Background(), &cfg); err != nil {
		t.Fatal(err)
	}
	if err := h.queue.ScheduleAt(context.Background(), cfg.ID, due); err != nil {
		t.Fatal(err)
	}
}

func monitorConfig(id int64, url string, interval int) models.MonitorConfig {
	return models.MonitorConfig{ID: id, OwnerID: 100 + id, URL: url, Method: "GET", IntervalSeconds: interval, TimeoutMs: 5000, Enabled: true}
}

func TestSchedulerDriftFreeIntervals(t *testing.T) {
	ctx := context.Background()
	prober := newCountingProber(models.StatusUp, 200)
	h := newHarness(t, prober, harnessOptions{})

	// each probe takes 7s of simulated time
	prober.onProbe = func(models.ProbeRequest) { h.clock.Advance(7 * time.Second) }

	start := h.clock.Now()
	h.addMonitor(t, monitorConfig(1, "https://example.com", 60), start)

	for cycle := 1; cycle <= 6; cycle++ {
		n, err := h.scheduler.RunCycle(ctx)
		if err != nil {
			t.Fatalf("cycle %d: %v", cycle, err)
		}
		if n != 1 {
			t.Fatalf("cycle %d dispatched %d monitors", cycle, n)
		}

		next, ok, _ := h.queue.NextDue(ctx, 1)
		if !ok {
			t.Fatalf("cycle %d: monitor left the queue", cycle)
		}
		want := start.Add(time.Duration(cycle) * 60 * time.Second)
		if !next.Equal(want) {
			t.Fatalf("cycle %d: next due %v, want %v (drift %v)", cycle, next, want, next.Sub(want))
		}

		// wake up a little late, as a real tick would
		h.clock.Advance(next.Sub(h.clock.Now()) + 3*time.Second)
	}

	if prober.total.Load() != 6 {
		t.Errorf("probes = %d, want 6", prober.total.Load())
	}
}

func TestNextDue(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	minute := time.Minute

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"on time", base.Add(2 * time.Second), base.Add(minute)},
		{"slow probe", base.Add(50 * time.Second), base.Add(minute)},
		{"exactly one interval late", base.Add(minute), base.Add(2 * minute)},
		{"after downtime", base.Add(10*minute + 5*time.Second), base.Add(11 * minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextDue(base, minute, tt.now); !got.Equal(tt.want) {
				t.Errorf("NextDue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSchedulerAtMostOneInFlight(t *testing.T) {
	ctx := context.Background()
	prober := newCountingProber(models.StatusUp, 200)
	prober.gate = make(chan struct{})
	h := newHarness(t, prober, harnessOptions{source: directSource{prober: prober}})

	h.addMonitor(t, monitorConfig(1, "https://example.com", 60), h.clock.Now())

	var wg sync.WaitGroup
	dispatched := make([]int, 3)
	for i := range dispatched {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := h.scheduler.RunCycle(ctx)
			if err != nil {
				t.Errorf("cycle: %v", err)
			}
			dispatched[i] = n
		}(i)
	}

	if !waitFor(time.Second, func() bool { return prober.total.Load() >= 1 }) {
		t.Fatal("probe never started")
	}
	time.Sleep(30 * time.Millisecond)
	close(prober.gate)
	wg.Wait()

	total := 0
	for _, n := range dispatched {
		total += n
	}
	if total != 1 {
		t.Errorf("dispatched %d times across concurrent cycles, want 1", total)
	}
	if peak := prober.Peak("https://example.com"); peak != 1 {
		t.Errorf("peak concurrent probes = %d", peak)
	}
	if n, _ := h.guard.Count(ctx); n != 0 {
		t.Errorf("guard still holds %d markers", n)
	}
}

func TestSchedulerBackpressureNeverDrops(t *testing.T) {
	ctx := context.Background()
	prober := newCountingProber(models.StatusUp, 200)
	prober.delay = time.Millisecond
	h := newHarness(t, prober, harnessOptions{
		source: directSource{prober: prober},
		pool:   WorkerPoolConfig{Workers: 1, QueueCapacity: 2},
	})

	const monitors = 25
	for id := int64(1); id <= monitors; id++ {
		h.addMonitor(t, monitorConfig(id, "https://example.com/"+string(rune('a'+id)), 60), h.clock.Now())
	}

	n, err := h.scheduler.RunCycle(ctx)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if n != monitors {
		t.Fatalf("dispatched %d, want %d", n, monitors)
	}
	if got := prober.total.Load(); got != monitors {
		t.Fatalf("probed %d monitors, want %d", got, monitors)
	}

	stats, err := h.scheduler.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.OverdueCount != 0 || stats.TotalInQueue != monitors || stats.TotalProcessed != monitors || stats.PoolQueued != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if h.pool.InlineRuns() == 0 {
		t.Error("expected overflow to run in the dispatching goroutine")
	}
}

func TestSchedulerSharedTargetProbedOnce(t *testing.T) {
	ctx := context.Background()
	prober := newCountingProber(models.StatusUp, 200)
	h := newHarness(t, prober, harnessOptions{})

	h.addMonitor(t, monitorConfig(1, "https://example.com/health", 60), h.clock.Now())
	h.addMonitor(t, monitorConfig(2, "https://www.example.com/health/", 30), h.clock.Now())

	if _, err := h.scheduler.RunCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if got := prober.total.Load(); got != 1 {
		t.Fatalf("probes = %d, want 1", got)
	}

	if err := h.batcher.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	records := h.sink.Records()
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}

	cached := 0
	for _, r := range records {
		if r.Status != models.StatusUp {
			t.Errorf("record status = %s", r.Status)
		}
		if r.UsedCachedResult {
			cached++
		}
	}
	if cached != 1 {
		t.Errorf("records using the cached result = %d, want 1", cached)
	}
}

func TestSchedulerRecordsStatusAndNotifies(t *testing.T) {
	ctx := context.Background()
	prober := newCountingProber(models.StatusDown, 503)
	h := newHarness(t, prober, harnessOptions{})

	due := h.clock.Now()
	h.addMonitor(t, monitorConfig(7, "https://down.example.com", 60), due)
	h.clock.Advance(2 * time.Second)

	if _, err := h.scheduler.RunCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	st, _ := h.statuses.Get(ctx, 7)
	if st.Status != models.StatusDown || st.ResponseCode == nil || *st.ResponseCode != 503 || st.LastCheckedAt == nil {
		t.Errorf("status = %+v", st)
	}

	h.notifier.Wait()
	sent := h.channel.Sent()
	if len(sent) != 1 || sent[0].OwnerID != 107 || sent[0].Kind != models.NotificationServiceDown {
		t.Errorf("notifications = %+v", sent)
	}

	_ = h.batcher.Flush(ctx)
	rec := h.sink.Records()
	if len(rec) != 1 {
		t.Fatalf("records = %d", len(rec))
	}
	if !rec[0].ScheduledAt.Equal(due) || !rec[0].ActualPingAt.Equal(due.Add(2*time.Second)) {
		t.Errorf("record times scheduled=%v actual=%v", rec[0].ScheduledAt, rec[0].ActualPingAt)
	}
	if rec[0].TargetURL != "https://down.example.com" || rec[0].RequestMethod != "GET" {
		t.Errorf("record = %+v", rec[0])
	}
}

func TestSchedulerConfigMissingPostpones(t *testing.T) {
	ctx := context.Background()
	prober := newCountingProber(models.StatusUp, 200)
	h := newHarness(t, prober, harnessOptions{})

	now := h.clock.Now()
	_ = h.queue.ScheduleAt(ctx, 99, now)

	if _, err := h.scheduler.RunCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	next, ok, _ := h.queue.NextDue(ctx, 99)
	if !ok || !next.Equal(now.Add(300*time.Second)) {
		t.Errorf("next due = %v (queued %v), want +300s", next, ok)
	}
	if prober.total.Load() != 0 {
		t.Error("missing monitor must not be probed")
	}
}

func TestSchedulerDropsDisabledMonitor(t *testing.T) {
	ctx := context.Background()
	prober := newCountingProber(models.StatusUp, 200)
	h := newHarness(t, prober, harnessOptions{})

	cfg := monitorConfig(3, "https://example.com", 60)
	cfg.Enabled = false
	h.addMonitor(t, cfg, h.clock.Now())

	if _, err := h.scheduler.RunCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if _, ok, _ := h.queue.NextDue(ctx, 3); ok {
		t.Error("disabled monitor must leave the queue")
	}
	if prober.total.Load() != 0 {
		t.Error("disabled monitor must not be probed")
	}
}

type flakyConfigs struct {
	getFn func(ctx context.Context, id int64) (*models.MonitorConfig, error)
}

func (f flakyConfigs) Get(ctx context.Context, id int64) (*models.MonitorConfig, error) {
	return f.getFn(ctx, id)
}

func TestSchedulerErrorBackoff(t *testing.T) {
	ctx := context.Background()
	prober := newCountingProber(models.StatusUp, 200)
	h := newHarness(t, prober, harnessOptions{configs: flakyConfigs{getFn: func(context.Context, int64) (*models.MonitorConfig, error) {
		return nil, errors.New("connection reset")
	}}})

	now := h.clock.Now()
	_ = h.queue.ScheduleAt(ctx, 1, now)
	_ = h.queue.ScheduleAt(ctx, 2, now)

	n, err := h.scheduler.RunCycle(ctx)
	if err != nil || n != 2 {
		t.Fatalf("cycle = %d, %v", n, err)
	}

	for _, id := range []int64{1, 2} {
		next, ok, _ := h.queue.NextDue(ctx, id)
		if !ok || !next.Equal(now.Add(60*time.Second)) {
			t.Errorf("monitor %d next due = %v, want +60s", id, next)
		}
	}
	if c, _ := h.guard.Count(ctx); c != 0 {
		t.Errorf("guard markers = %d", c)
	}
}

func TestSchedulerPanicIsContained(t *testing.T) {
	ctx := context.Background()
	prober := newCountingProber(models.StatusUp, 200)
	prober.onProbe = func(req models.ProbeRequest) {
		if req.URL == "https://bad.example.com" {
			panic("unexpected nil")
		}
	}
	h := newHarness(t, prober, harnessOptions{source: directSource{prober: prober}})

	now := h.clock.Now()
	h.addMonitor(t, monitorConfig(1, "https://bad.example.com", 120), now)
	h.addMonitor(t, monitorConfig(2, "https://good.example.com", 120), now)

	if _, err := h.scheduler.RunCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	bad, _, _ := h.queue.NextDue(ctx, 1)
	if !bad.Equal(now.Add(60 * time.Second)) {
		t.Errorf("panicking monitor next due = %v, want +60s", bad)
	}
	good, _, _ := h.queue.NextDue(ctx, 2)
	if !good.Equal(now.Add(120 * time.Second)) {
		t.Errorf("healthy monitor next due = %v, want +120s", good)
	}
}

type unreachableQueue struct {
	storage.ReadyQueue
}

func (unreachableQueue) PopDue(context.Context, time.Time, int) ([]models.QueueEntry, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func (unreachableQueue) Stats(context.Context, time.Time) (models.QueueStats, error) {
	return models.QueueStats{}, errors.New("dial tcp: connection refused")
}

func TestSchedulerReportsUnreachableQueue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newCountingProber(models.StatusUp, 200), harnessOptions{queue: unreachableQueue{memory.NewReadyQueue()}})

	if _, err := h.scheduler.RunCycle(ctx); err == nil {
		t.Fatal("expected cycle error")
	}

	healthy, lastErr := h.scheduler.Healthy()
	if healthy || lastErr == nil {
		t.Errorf("healthy = %v, err = %v", healthy, lastErr)
	}

	stats, err := h.scheduler.Stats(ctx)
	if err == nil || stats.Healthy {
		t.Errorf("stats = %+v, err = %v", stats, err)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	prober := newCountingProber(models.StatusUp, 200)
	h := newHarness(t, prober, harnessOptions{})
	h.addMonitor(t, monitorConfig(1, "https://example.com", 60), h.clock.Now())

	h.scheduler.Start(context.Background())

	if !waitFor(2*time.Second, func() bool { return prober.total.Load() == 1 }) {
		t.Fatal("first tick did not dispatch")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.scheduler.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestSchedulerStuckMonitorsDoNotStarveQueue(t *testing.T) {
	ctx := context.Background()
	p := newCountingProber(models.StatusUp, 200)
	release := make(chan struct{})
	p.onProbe = func(req models.ProbeRequest) {
		if req.URL != "https://fast.example.com" {
			<-release
		}
	}
	h := newHarness(t, p, harnessOptions{
		source:       directSource{prober: p},
		batchSize:    2,
		cycleTimeout: 50 * time.Millisecond,
	})
	t.Cleanup(func() { close(release) })

	now := h.clock.Now()
	h.addMonitor(t, monitorConfig(1, "https://hung-1.example.com", 60), now.Add(-3*time.Second))
	h.addMonitor(t, monitorConfig(2, "https://hung-2.example.com", 60), now.Add(-2*time.Second))
	h.addMonitor(t, monitorConfig(3, "https://fast.example.com", 60), now.Add(-1*time.Second))

	for cycle := 1; cycle <= 3; cycle++ {
		if _, err := h.scheduler.RunCycle(ctx); err != nil {
			t.Fatalf("cycle %d: %v", cycle, err)
		}
	}

	if got := p.Calls("https://fast.example.com"); got != 1 {
		t.Fatalf("monitor behind stuck probes was probed %d times, want 1", got)
	}
	for _, url := range []string{"https://hung-1.example.com", "https://hung-2.example.com"} {
		if got := p.Calls(url); got != 1 {
			t.Errorf("%s probed %d times while still in flight", url, got)
		}
	}

	next, ok, _ := h.queue.NextDue(ctx, 3)
	if !ok || !next.Equal(now.Add(59*time.Second)) {
		t.Errorf("fast monitor next due = %v, want drift-free +60s", next)
	}
}

func TestSchedulerStuckMonitorRegainsDriftFreeDue(t *testing.T) {
	ctx := context.Background()
	p := newCountingProber(models.StatusUp, 200)
	release := make(chan struct{})
	p.onProbe = func(models.ProbeRequest) { <-release }
	h := newHarness(t, p, harnessOptions{
		source:       directSource{prober: p},
		cycleTimeout: 20 * time.Millisecond,
	})

	due := h.clock.Now()
	h.addMonitor(t, monitorConfig(1, "https://slow.example.com", 60), due)

	if n, _ := h.scheduler.RunCycle(ctx); n != 1 {
		t.Errorf("dispatched %d", n)
	}

	leased, _, _ := h.queue.NextDue(ctx, 1)
	if !leased.After(due.Add(time.Minute)) {
		t.Errorf("in-flight monitor still due at %v", leased)
	}

	close(release)
	if !waitFor(time.Second, func() bool { n, _ := h.guard.Count(ctx); return n == 0 }) {
		t.Fatal("monitor was never unmarked")
	}

	next, _, _ := h.queue.NextDue(ctx, 1)
	if !next.Equal(due.Add(60 * time.Second)) {
		t.Errorf("next due = %v, want %v", next, due.Add(60*time.Second))
	}
}

func TestSchedulerRecordsCachedCheckTime(t *testing.T) {
	ctx := context.Background()
	p := newCountingProber(models.StatusUp, 200)
	h := newHarness(t, p, harnessOptions{})

	probedAt := h.clock.Now().Add(-10 * time.Second)
	key, err := urlutil.Normalize("https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	targets := memory.NewTargetCache()
	_ = targets.Put(ctx, key, models.Outcome{
		Status:       models.StatusUp,
		ResponseCode: models.IntPtr(200),
		CheckedAt:    probedAt,
	}, time.Minute)
	cache := NewResultCache(targets, p, discardLogger())
	cache.now = h.clock.Now
	h.scheduler.outcomes = cache

	h.addMonitor(t, monitorConfig(1, "https://example.com", 60), h.clock.Now())
	if _, err := h.scheduler.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}
	if p.total.Load() != 0 {
		t.Fatal("fresh cached outcome was not reused")
	}

	_ = h.batcher.Flush(ctx)
	rec := h.sink.Records()
	if len(rec) != 1 || !rec[0].UsedCachedResult {
		t.Fatalf("records = %+v", rec)
	}
	if !rec[0].ActualPingAt.Equal(probedAt) {
		t.Errorf("actual ping at = %v, want the cached probe time %v", rec[0].ActualPingAt, probedAt)
	}
}
