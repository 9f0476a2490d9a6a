package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"docqa/config"
	"docqa/internal/adapter/embedding"
	"docqa/internal/domain"
	"docqa/internal/logging"
	"docqa/internal/metrics"
	"docqa/internal/port"
)

// Rejection reasons reported by Set.
const (
	RejectLowConfidence = "low_confidence"
	RejectErrorResponse = "error_response"
	RejectLowPriority   = "low_priority"
	RejectEmpty         = "empty"
)

var errorMarkers = []string{
	"[error]",
	"error:",
	"rate limited",
	"i encountered an error",
	"something went wrong",
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Size         int     `json:"size"`
	MaxSize      int     `json:"max_size"`
	ExactHits    int64   `json:"exact_hits"`
	SemanticHits int64   `json:"semantic_hits"`
	Misses       int64   `json:"misses"`
	Rejected     int64   `json:"rejected"`
	Evicted      int64   `json:"evicted"`
	CostSaved    float64 `json:"cost_saved"`
}

// HitRate returns hits over lookups, or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.ExactHits + s.SemanticHits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.ExactHits+s.SemanticHits) / float64(total)
}

// QueryCache is the exact plus semantic-similarity response cache. All
// mutation happens under mu; lookups take the read lock and copy entries out.
type QueryCache struct {
	mu      sync.RWMutex
	entries map[string]*domain.CacheEntry
	stats   Stats

	cfg      config.CacheConfig
	embedder port.Embedder
	store    port.CacheStore
	metrics  *metrics.Collector
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a cache. A nil embedder limits lookups to exact matches and a
// nil store keeps the cache in memory only.
func New(cfg config.CacheConfig, embedder port.Embedder, store port.CacheStore, collector *metrics.Collector, logger *zap.Logger) *QueryCache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1000
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.85
	}
	return &QueryCache{
		entries:  make(map[string]*domain.CacheEntry),
		cfg:      cfg,
		embedder: embedder,
		store:    store,
		metrics:  collector,
		logger:   logging.OrNop(logger).Named("cache"),
		now:      time.Now,
	}
}

// Key returns the exact-match key of query.
func Key(query string) string {
	sum := sha256.Sum256([]byte(domain.NormalizeQuery(query)))
	return hex.EncodeToString(sum[:16])
}

// Get returns the cached entry for query. The exact tier is tried first; on
// a miss the query is embedded and compared with every cached embedding.
// Embedding failures degrade to a miss.
func (c *QueryCache) Get(ctx context.Context, query string) (domain.CacheEntry, bool) {
	key := Key(query)
	now := c.now()

	if entry, ok := c.hit(ctx, key, "exact", now); ok {
		return entry, true
	}

	if c.cfg.SemanticEnabled && c.embedder != nil {
		if hitKey, found := c.semanticLookup(ctx, query, now); found {
			if entry, ok := c.hit(ctx, hitKey, "semantic", now); ok {
				return entry, true
			}
		}
	}

	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
	c.metrics.CacheMiss()
	return domain.CacheEntry{}, false
}

func (c *QueryCache) semanticLookup(ctx context.Context, query string, now time.Time) (string, bool) {
	vec, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		c.logger.Debug("semantic lookup skipped", zap.Error(err))
		return "", false
	}
	c.backfillEmbeddings(ctx)

	c.mu.RLock()
	defer c.mu.RUnlock()

	bestKey, best := "", 0.0
	for k, e := range c.entries {
		if len(e.QueryEmbedding) == 0 || e.Expired(now) {
			continue
		}
		if sim := embedding.Cosine(vec, e.QueryEmbedding); sim > best {
			bestKey, best = k, sim
		}
	}
	if best >= c.cfg.SimilarityThreshold {
		c.logger.Debug("semantic hit", zap.Float64("similarity", best))
		return bestKey, true
	}
	return "", false
}

// backfillEmbeddings embeds the queries of entries restored without an
// embedding. Failures leave the entry exact-match only.
func (c *QueryCache) backfillEmbeddings(ctx context.Context) {
	c.mu.RLock()
	pending := make(map[string]string)
	for k, e := range c.entries {
		if len(e.QueryEmbedding) == 0 {
			pending[k] = e.Query
		}
	}
	c.mu.RUnlock()

	for k, q := range pending {
		vec, err := c.embedder.EmbedQuery(ctx, q)
		if err != nil {
			return
		}
		c.mu.Lock()
		if e, ok := c.entries[k]; ok {
			e.QueryEmbedding = vec
		}
		c.mu.Unlock()
	}
}

// hit records an access on key and returns a copy of the entry. The lookup,
// expiry check and access update happen under one lock, so an entry removed
// or replaced concurrently is never reported as a hit. An expired entry is
// dropped and reported as a miss.
func (c *QueryCache) hit(ctx context.Context, key, tier string, now time.Time) (domain.CacheEntry, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return domain.CacheEntry{}, false
	}
	if e.Expired(now) {
		delete(c.entries, key)
		size := len(c.entries)
		c.mu.Unlock()
		c.metrics.CacheSize(size)
		c.deleteFromStore(ctx, []string{key})
		return domain.CacheEntry{}, false
	}
	e.AccessCount++
	e.LastAccess = c.now()
	e.CostSaved += c.cfg.CostPerQuery
	if tier == "exact" {
		c.stats.ExactHits++
	} else {
		c.stats.SemanticHits++
	}
	c.stats.CostSaved += c.cfg.CostPerQuery
	snapshot := *e
	c.mu.Unlock()

	c.metrics.CacheHit(tier)
	c.persist(ctx, snapshot)
	return snapshot, true
}

// Set offers a response to the cache and reports whether it was stored.
// Responses below the confidence floor, carrying an error marker, or for
// queries of low cache priority are rejected.
func (c *QueryCache) Set(ctx context.Context, query, response string, confidence float64, analysis domain.QueryAnalysis, sources []string) bool {
	reason := ""
	switch {
	case strings.TrimSpace(response) == "" || strings.TrimSpace(query) == "":
		reason = RejectEmpty
	case confidence < c.cfg.MinConfidence:
		reason = RejectLowConfidence
	case hasErrorMarker(response):
		reason = RejectErrorResponse
	case Priority(query, analysis) < c.cfg.MinPriority:
		reason = RejectLowPriority
	}
	if reason != "" {
		c.mu.Lock()
		c.stats.Rejected++
		c.mu.Unlock()
		c.metrics.CacheRejected(reason)
		c.logger.Debug("response not cached", zap.String("reason", reason))
		return false
	}

	var vec []float32
	if c.cfg.SemanticEnabled && c.embedder != nil {
		var err error
		if vec, err = c.embedder.EmbedQuery(ctx, query); err != nil {
			c.logger.Debug("caching without embedding", zap.Error(err))
			vec = nil
		}
	}

	now := c.now()
	key := Key(query)
	entry := &domain.CacheEntry{
		Key:            key,
		Query:          query,
		QueryEmbedding: vec,
		Response:       response,
		Sources:        append([]string(nil), sources...),
		CreatedAt:      now,
		LastAccess:     now,
		Confidence:     confidence,
		TTL:            c.cfg.TTL,
	}

	c.mu.Lock()
	var evicted []string
	if prev, ok := c.entries[key]; ok {
		entry.AccessCount = prev.AccessCount
		entry.CostSaved = prev.CostSaved
	} else if len(c.entries) >= c.cfg.MaxSize {
		evicted = c.evictLocked(now)
	}
	c.entries[key] = entry
	snapshot := *entry
	size := len(c.entries)
	c.mu.Unlock()

	c.metrics.CacheSize(size)
	if len(evicted) > 0 {
		c.metrics.CacheEvicted(len(evicted))
		c.deleteFromStore(ctx, evicted)
	}
	c.persist(ctx, snapshot)
	return true
}

// evictLocked removes the lowest-value entries plus a buffer so the next
// inserts do not immediately evict again. Callers hold mu.
func (c *QueryCache) evictLocked(now time.Time) []string {
	buffer := c.evictionBuffer()
	n := len(c.entries) - c.cfg.MaxSize + buffer
	if n <= 0 {
		return nil
	}

	type ranked struct {
		key   string
		value float64
	}
	all := make([]ranked, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, ranked{key: k, value: c.value(e, now)})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].value != all[j].value {
			return all[i].value < all[j].value
		}
		return all[i].key < all[j].key
	})
	if n > len(all) {
		n = len(all)
	}

	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = all[i].key
		delete(c.entries, all[i].key)
	}
	c.stats.Evicted += int64(n)
	c.logger.Debug("evicted cache entries", zap.Int("count", n))
	return keys
}

func (c *QueryCache) evictionBuffer() int {
	buffer := c.cfg.EvictionBuffer
	if buffer <= 0 {
		buffer = c.cfg.MaxSize / 10
	}
	if buffer < 1 {
		buffer = 1
	}
	if buffer >= c.cfg.MaxSize {
		buffer = c.cfg.MaxSize - 1
	}
	if buffer < 1 {
		buffer = 1
	}
	return buffer
}

// value weighs recency, access frequency, cost saved and confidence into a
// single retention score in [0,1].
func (c *QueryCache) value(e *domain.CacheEntry, now time.Time) float64 {
	horizon := c.cfg.TTL
	if horizon <= 0 {
		horizon = 24 * time.Hour
	}
	last := e.LastAccess
	if last.IsZero() {
		last = e.CreatedAt
	}
	recency := math.Exp(-float64(now.Sub(last)) / float64(horizon))
	frequency := math.Min(1, math.Log1p(float64(e.AccessCount))/math.Log1p(10))

	cost := 0.0
	if c.cfg.CostPerQuery > 0 {
		cost = math.Min(1, e.CostSaved/(10*c.cfg.CostPerQuery))
	}

	return 0.3*recency + 0.3*frequency + 0.2*cost + 0.2*e.Confidence
}

// Priority scores how worthwhile caching a query is. Complex and synthesis
// queries score high; time-sensitive and very short queries score low.
func Priority(query string, analysis domain.QueryAnalysis) float64 {
	p := 0.4 + 0.3*analysis.Complexity
	switch {
	case analysis.Synthesis:
		p += 0.2
	case analysis.Intent == domain.IntentLookup:
		p += 0.1
	}
	if analysis.TimeSensitive {
		p -= 0.5
	}
	if len(strings.Fields(query)) <= 2 {
		p -= 0.2
	}
	return math.Max(0, math.Min(1, p))
}

func hasErrorMarker(response string) bool {
	lower := strings.ToLower(response)
	for _, m := range errorMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// InvalidateBySource removes entries whose sources match any of patterns.
// Patterns may be exact paths, directory prefixes or doublestar globs.
func (c *QueryCache) InvalidateBySource(ctx context.Context, patterns []string) int {
	if len(patterns) == 0 {
		return 0
	}
	c.mu.Lock()
	var removed []string
	for k, e := range c.entries {
		if sourcesMatch(e.Sources, patterns) {
			delete(c.entries, k)
			removed = append(removed, k)
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	if len(removed) > 0 {
		c.metrics.CacheSize(size)
		c.deleteFromStore(ctx, removed)
		c.logger.Info("invalidated cache entries", zap.Int("count", len(removed)), zap.Strings("patterns", patterns))
	}
	return len(removed)
}

func sourcesMatch(sources, patterns []string) bool {
	for _, src := range sources {
		for _, p := range patterns {
			if src == p || strings.HasPrefix(src, strings.TrimSuffix(p, "/")+"/") {
				return true
			}
			if ok, err := doublestar.Match(p, src); err == nil && ok {
				return true
			}
			if ok, err := doublestar.Match(p, path.Base(src)); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// Sweep removes expired entries and returns how many were removed.
func (c *QueryCache) Sweep(ctx context.Context) int {
	now := c.now()
	c.mu.Lock()
	var expired []string
	for k, e := range c.entries {
		if e.Expired(now) {
			delete(c.entries, k)
			expired = append(expired, k)
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	if len(expired) > 0 {
		c.metrics.CacheSize(size)
		c.deleteFromStore(ctx, expired)
	}
	return len(expired)
}

// StartSweeper runs Sweep every interval until ctx is done.
func (c *QueryCache) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Sweep(ctx); n > 0 {
					c.logger.Debug("swept expired entries", zap.Int("count", n))
				}
			}
		}
	}()
}

// Restore loads persisted entries, dropping expired ones. Embeddings are
// recomputed on the first semantic lookup.
func (c *QueryCache) Restore(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	entries, err := c.store.Load(ctx)
	if err != nil {
		return 0, err
	}

	now := c.now()
	var stale []string
	c.mu.Lock()
	for i := range entries {
		e := entries[i]
		if e.Expired(now) {
			stale = append(stale, e.Key)
			continue
		}
		c.entries[e.Key] = &e
	}
	var evicted []string
	if len(c.entries) > c.cfg.MaxSize {
		evicted = c.evictLocked(now)
	}
	size := len(c.entries)
	c.mu.Unlock()

	c.deleteFromStore(ctx, append(stale, evicted...))
	c.metrics.CacheSize(size)
	return size, nil
}

// Clear drops every entry from memory and from the store.
func (c *QueryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*domain.CacheEntry)
	c.mu.Unlock()
	c.metrics.CacheSize(0)

	if c.store == nil {
		return nil
	}
	return c.store.Clear(ctx)
}

func (c *QueryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *QueryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Size = len(c.entries)
	s.MaxSize = c.cfg.MaxSize
	return s
}

// Entries returns copies of the live entries, most valuable first.
func (c *QueryCache) Entries() []domain.CacheEntry {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		return c.value(&out[i], now) > c.value(&out[j], now)
	})
	return out
}

func (c *QueryCache) persist(ctx context.Context, entry domain.CacheEntry) {
	if c.store == nil {
		return
	}
	if err := c.store.Put(ctx, entry); err != nil {
		c.logger.Warn("persisting cache entry failed", zap.Error(err))
	}
}

func (c *QueryCache) deleteFromStore(ctx context.Context, keys []string) {
	if c.store == nil || len(keys) == 0 {
		return
	}
	if err := c.store.Delete(ctx, keys); err != nil {
		c.logger.Warn("deleting cache entries failed", zap.Error(err))
	}
}
