package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/tracebase-eu/tracebase/internal/config"
	"github.com/tracebase-eu/tracebase/internal/observability"
	"github.com/tracebase-eu/tracebase/internal/preset"
)

// ConfigCompatibleWithStandardLibrary sorts map keys, so equal requests
// always encode to the same key.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Cache lookup results
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupError = "error"
)

// CachedMetrics wraps a metric service with an ID set cache. Concurrent
// identical requests share one upstream call.
type CachedMetrics struct {
	next    preset.MetricService
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *observability.Metrics
}

// NewCachedMetrics caches results of next in store for ttl
func NewCachedMetrics(next preset.MetricService, store Store, ttl time.Duration, m *observability.Metrics) *CachedMetrics {
	return &CachedMetrics{
		next:    next,
		store:   store,
		ttl:     ttl,
		metrics: m,
	}
}

// Wrap returns next behind an ID set cache when cfg enables one, together with
// a function releasing the cache store
func Wrap(next preset.MetricService, cfg config.CacheConfig, m *observability.Metrics) (preset.MetricService, func() error, error) {
	if !cfg.Enabled {
		return next, func() error { return nil }, nil
	}
	store, err := NewStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return NewCachedMetrics(next, store, cfg.TTL, m), store.Close, nil
}

// ResolveIDs implements preset.MetricService
func (c *CachedMetrics) ResolveIDs(ctx context.Context, metric preset.Metric, req preset.MetricRequest) ([]string, error) {
	key, err := cacheKey(metric, req)
	if err != nil {
		return nil, err
	}

	if ids, ok := c.lookup(ctx, key); ok {
		return ids, nil
	}

	// The shared call outlives any single caller, so a superseded caller
	// cancelling its context does not fail the others joined on the same key.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		ids, err := c.next.ResolveIDs(shared, metric, req)
		if err != nil {
			return nil, err
		}
		c.save(shared, key, ids)
		return ids, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		log.Debug().Str("metric", string(metric)).Msg("Metric request shared with in-flight call")
	}

	ids := res.Val.([]string)
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

// Invalidate drops the cached ID set of one request
func (c *CachedMetrics) Invalidate(ctx context.Context, metric preset.Metric, req preset.MetricRequest) error {
	key, err := cacheKey(metric, req)
	if err != nil {
		return err
	}
	return c.store.Delete(ctx, key)
}

func (c *CachedMetrics) lookup(ctx context.Context, key string) ([]string, bool) {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("ID set cache lookup failed")
		c.metrics.RecordCacheLookup(LookupError)
		return nil, false
	}
	if !ok {
		c.metrics.RecordCacheLookup(LookupMiss)
		return nil, false
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Discarding undecodable ID set cache entry")
		c.metrics.RecordCacheLookup(LookupError)
		return nil, false
	}
	if ids == nil {
		ids = []string{}
	}
	c.metrics.RecordCacheLookup(LookupHit)
	return ids, true
}

func (c *CachedMetrics) save(ctx context.Context, key string, ids []string) {
	data, err := json.Marshal(ids)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to store ID set in cache")
	}
}

func cacheKey(metric preset.Metric, req preset.MetricRequest) (string, error) {
	data, err := json.Marshal(struct {
		Days   int                    `json:"days"`
		Date   string                 `json:"date"`
		Filter map[string]interface{} `json:"filter"`
	}{
		Days:   req.Days,
		Date:   req.Date.UTC().Format(time.RFC3339Nano),
		Filter: req.Filter,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode metric request: %w", err)
	}
	sum := sha256.Sum256(data)
	return string(metric) + ":" + hex.EncodeToString(sum[:]), nil
}
