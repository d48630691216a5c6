package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"PingTower/internal/scheduler/models"
	"PingTower/internal/scheduler/storage"
	"PingTower/pkg/urlutil"

	"golang.org/x/sync/singleflight"
)

// Prober performs one HTTP check.
type Prober interface {
	Probe(ctx context.Context, req models.ProbeRequest) models.Outcome
}

// ResultCache shares probe outcomes between monitors that watch the same
// normalized target. Concurrent misses for one target in this process are
// coalesced into a single probe; across replicas a brief duplicate probe at
// the window boundary is possible.
type ResultCache struct {
	store  storage.TargetCache
	prober Prober
	group  singleflight.Group
	now    func() time.Time
	logger *slog.Logger
}

func NewResultCache(store storage.TargetCache, prober Prober, logger *slog.Logger) *ResultCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultCache{
		store:  store,
		prober: prober,
		now:    time.Now,
		logger: logger,
	}
}

// GetOrProbe returns the cached outcome for req's target when it was checked
// within window, otherwise probes and stores the fresh outcome.
func (c *ResultCache) GetOrProbe(ctx context.Context, req models.ProbeRequest, window time.Duration) models.Outcome {
	key, err := urlutil.Normalize(req.URL)
	if err != nil {
		key = req.URL
	}

	if outcome, ok := c.lookup(ctx, key, window); ok {
		return outcome
	}

	leader := false
	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		leader = true

		// another replica may have filled the entry meanwhile
		if outcome, ok := c.lookup(ctx, key, window); ok {
			return outcome, nil
		}

		outcome := c.prober.Probe(ctx, req)
		outcome.FromCache = false
		if outcome.CheckedAt.IsZero() {
			outcome.CheckedAt = c.now()
		}

		if window > 0 {
			if err := c.store.Put(ctx, key, outcome, window); err != nil {
				c.logger.Warn("failed to cache probe outcome", "target", key, "error", err)
			}
		}
		return outcome, nil
	})

	outcome := v.(models.Outcome)
	if !leader {
		outcome.FromCache = true
	}
	return outcome
}

func (c *ResultCache) lookup(ctx context.Context, key string, window time.Duration) (models.Outcome, bool) {
	if window <= 0 {
		return models.Outcome{}, false
	}

	outcome, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrCacheMiss) {
			c.logger.Warn("target cache lookup failed, probing", "target", key, "error", err)
		}
		return models.Outcome{}, false
	}

	if outcome.CheckedAt.IsZero() || c.now().Sub(outcome.CheckedAt) >= window {
		return models.Outcome{}, false
	}

	outcome.FromCache = true
	return outcome, true
}
