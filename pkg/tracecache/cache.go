package tracecache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pyusd-analytics/blocktracer/internal/metrics"
	"github.com/pyusd-analytics/blocktracer/internal/metrics/metricsTypes"
	"github.com/pyusd-analytics/blocktracer/pkg/tracetypes"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"
)

type cacheEntry struct {
	key       string
	analysis  *tracetypes.ProcessedTraceAnalysis
	createdAt time.Time
	expiresAt time.Time
}

// TraceCache is a bounded, TTL-expiring, LRU-evicting cache of processed
// trace analyses. It owns every stored analysis: readers get copies.
// All operations are safe for concurrent use.
type TraceCache struct {
	mu sync.Mutex
	// entries is both the store and the LRU index: oldest-accessed pairs
	// sit at the front, reads move their pair to the back.
	entries *orderedmap.OrderedMap[string, *cacheEntry]

	maxEntries int
	ttl        time.Duration

	hits   uint64
	misses uint64

	logger *zap.Logger
	sink   *metrics.MetricsSink
	now    func() time.Time
}

type TraceCacheConfig struct {
	MaxEntries int
	Ttl        time.Duration
}

func NewTraceCache(cfg *TraceCacheConfig, l *zap.Logger, sink *metrics.MetricsSink) *TraceCache {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 50
	}
	ttl := cfg.Ttl
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TraceCache{
		entries:    orderedmap.New[string, *cacheEntry](),
		maxEntries: maxEntries,
		ttl:        ttl,
		logger:     l,
		sink:       sink,
		now:        time.Now,
	}
}

// Get returns a copy of the cached analysis. An entry past its expiry is
// deleted on the read that discovers it and counted as a miss. A live
// entry is refreshed in the LRU order and counted as a hit.
func (c *TraceCache) Get(key string) (*tracetypes.ProcessedTraceAnalysis, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(key)
	if !ok {
		c.misses++
		c.sink.Incr(metricsTypes.Metric_Incr_CacheMiss, nil)
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.entries.Delete(key)
		c.misses++
		c.sink.Incr(metricsTypes.Metric_Incr_CacheMiss, nil)
		return nil, false
	}

	c.hits++
	c.sink.Incr(metricsTypes.Metric_Incr_CacheHit, nil)
	_ = c.entries.MoveToBack(key)
	return entry.analysis.Clone(), true
}

// Set stores an analysis under key with a fresh TTL, evicting the
// least-recently-accessed entry first when at capacity.
func (c *TraceCache) Set(key string, analysis *tracetypes.ProcessedTraceAnalysis) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries.Get(key); exists {
		c.entries.Delete(key)
	}

	for c.entries.Len() >= c.maxEntries {
		oldest := c.entries.Oldest()
		if oldest == nil {
			break
		}
		c.entries.Delete(oldest.Key)
		c.sink.Incr(metricsTypes.Metric_Incr_CacheEvict, nil)
		c.logger.Sugar().Debugw("Evicted least recently used cache entry",
			zap.String("key", oldest.Key),
		)
	}

	now := c.now()
	c.entries.Set(key, &cacheEntry{
		key:       key,
		analysis:  analysis,
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	})
	c.sink.Gauge(metricsTypes.Metric_Gauge_CacheSize, float64(c.entries.Len()), nil)
}

// Has reports whether a live entry exists. It does not touch hit/miss
// counters or LRU order.
func (c *TraceCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(key)
	if !ok {
		return false
	}
	if c.now().After(entry.expiresAt) {
		c.entries.Delete(key)
		return false
	}
	return true
}

func (c *TraceCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries.Delete(key)
	return ok
}

// Clear drops every entry and resets the hit/miss counters.
func (c *TraceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = orderedmap.New[string, *cacheEntry]()
	c.hits = 0
	c.misses = 0
	c.sink.Gauge(metricsTypes.Metric_Gauge_CacheSize, 0, nil)
}

type CacheStats struct {
	Size       int     `json:"size"`
	MaxEntries int     `json:"maxEntries"`
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	HitRate    float64 `json:"hitRate"`
}

func (c *TraceCache) GetStats() *CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := &CacheStats{
		Size:       c.entries.Len(),
		MaxEntries: c.maxEntries,
		Hits:       c.hits,
		Misses:     c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total) * 100
	}
	return stats
}

// Cleanup sweeps every expired entry. Idempotent, safe to call on a
// timer.
func (c *TraceCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expired := make([]string, 0)
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		if now.After(pair.Value.expiresAt) {
			expired = append(expired, pair.Key)
		}
	}
	for _, key := range expired {
		c.entries.Delete(key)
	}
	if len(expired) > 0 {
		c.logger.Sugar().Debugw("Swept expired cache entries", zap.Int("count", len(expired)))
		c.sink.Gauge(metricsTypes.Metric_Gauge_CacheSize, float64(c.entries.Len()), nil)
	}
	return len(expired)
}

// PruneToSize evicts oldest-accessed entries until at most n remain.
func (c *TraceCache) PruneToSize(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n < 0 {
		n = 0
	}
	pruned := 0
	for c.entries.Len() > n {
		oldest := c.entries.Oldest()
		if oldest == nil {
			break
		}
		c.entries.Delete(oldest.Key)
		pruned++
	}
	if pruned > 0 {
		c.sink.Gauge(metricsTypes.Metric_Gauge_CacheSize, float64(c.entries.Len()), nil)
	}
	return pruned
}

// GetMemoryUsage estimates the cache footprint by serializing each stored
// analysis. Order-of-magnitude only.
func (c *TraceCache) GetMemoryUsage() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		data, err := json.Marshal(pair.Value.analysis)
		if err != nil {
			continue
		}
		total += len(data)
	}
	return total
}

// FetchFunc produces an analysis for an identifier during warm-up.
type FetchFunc func(ctx context.Context, id string) (*tracetypes.ProcessedTraceAnalysis, error)

// WarmCache concurrently fetches and stores any identifiers not already
// cached. Individual failures are logged and skipped, never aborting the
// batch. maxConcurrent bounds outstanding fetches.
func (c *TraceCache) WarmCache(ctx context.Context, identifiers []string, fetch FetchFunc, maxConcurrent int) (int, int) {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrent)
	var mu sync.Mutex
	warmed, failed := 0, 0

	for _, id := range identifiers {
		if c.Has(id) {
			continue
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			analysis, err := fetch(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				c.logger.Sugar().Warnw("Failed to warm cache entry",
					zap.String("identifier", id),
					zap.Error(err),
				)
				return
			}
			c.Set(id, analysis)
			warmed++
		}(id)
	}
	wg.Wait()
	return warmed, failed
}

// ExportedEntry is the persisted representation of one cache record.
type ExportedEntry struct {
	Key       string                             `json:"key"`
	Data      *tracetypes.ProcessedTraceAnalysis `json:"data"`
	Timestamp int64                              `json:"timestamp"`
	ExpiresAt int64                              `json:"expiresAt"`
}

// Export serializes the live cache contents, oldest-accessed first.
func (c *TraceCache) Export() []*ExportedEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*ExportedEntry, 0, c.entries.Len())
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, &ExportedEntry{
			Key:       pair.Key,
			Data:      pair.Value.analysis.Clone(),
			Timestamp: pair.Value.createdAt.UnixMilli(),
			ExpiresAt: pair.Value.expiresAt.UnixMilli(),
		})
	}
	return out
}

// Import restores exported records, silently dropping any record already
// past its expiry or missing its payload.
func (c *TraceCache) Import(entries []*ExportedEntry) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	imported := 0
	for _, entry := range entries {
		if entry == nil || entry.Key == "" || entry.Data == nil {
			continue
		}
		expiresAt := time.UnixMilli(entry.ExpiresAt)
		if !expiresAt.After(now) {
			continue
		}
		if _, exists := c.entries.Get(entry.Key); exists {
			c.entries.Delete(entry.Key)
		}
		c.entries.Set(entry.Key, &cacheEntry{
			key:       entry.Key,
			analysis:  entry.Data,
			createdAt: time.UnixMilli(entry.Timestamp),
			expiresAt: expiresAt,
		})
		imported++
	}

	for c.entries.Len() > c.maxEntries {
		oldest := c.entries.Oldest()
		if oldest == nil {
			break
		}
		c.entries.Delete(oldest.Key)
	}
	return imported
}

// ImportJSON restores records from serialized export data. Corrupt data
// is logged and ignored: the cache behaves as if those entries never
// existed.
func (c *TraceCache) ImportJSON(data []byte) int {
	entries := []*ExportedEntry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Sugar().Warnw("Discarding corrupt cache import data", zap.Error(err))
		return 0
	}
	return c.Import(entries)
}
