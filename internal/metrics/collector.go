// Package metrics exposes Prometheus instrumentation for the query engine.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds every metric the engine records.
type Collector struct {
	cacheHits       *prometheus.CounterVec
	cacheMisses     prometheus.Counter
	cacheRejected   *prometheus.CounterVec
	cacheEvictions  prometheus.Counter
	cacheSize       prometheus.Gauge
	toolCalls       *prometheus.CounterVec
	agentIterations *prometheus.HistogramVec
	retrievalScore  *prometheus.HistogramVec
	retrievalRounds prometheus.Histogram
	queryDuration   *prometheus.HistogramVec
}

// NewCollector registers the metrics with reg under namespace.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		cacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Query cache hits by tier (exact or semantic).",
		}, []string{"tier"}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Query cache misses.",
		}),
		cacheRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_rejected_total",
			Help:      "Responses not admitted to the cache, by reason.",
		}, []string{"reason"}),
		cacheEvictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Entries removed by value-based eviction.",
		}),
		cacheSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Current number of cached responses.",
		}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Agent tool calls by tool and status.",
		}, []string{"tool", "status"}),
		agentIterations: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_iterations",
			Help:      "Model turns per query, by outcome.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}, []string{"outcome"}),
		retrievalScore: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_quality",
			Help:      "Quality score of the returned retrieval result.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}, []string{"strategy"}),
		retrievalRounds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_rounds",
			Help:      "Adaptive retrieval attempts per tool call.",
			Buckets:   prometheus.LinearBuckets(1, 1, 5),
		}),
		queryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end query latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"cached"}),
	}
}

func (c *Collector) CacheHit(tier string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(tier).Inc()
}

func (c *Collector) CacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

func (c *Collector) CacheRejected(reason string) {
	if c == nil {
		return
	}
	c.cacheRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) CacheEvicted(n int) {
	if c == nil {
		return
	}
	c.cacheEvictions.Add(float64(n))
}

func (c *Collector) CacheSize(n int) {
	if c == nil {
		return
	}
	c.cacheSize.Set(float64(n))
}

func (c *Collector) ToolCall(tool, status string) {
	if c == nil {
		return
	}
	c.toolCalls.WithLabelValues(tool, status).Inc()
}

func (c *Collector) AgentRun(outcome string, iterations int) {
	if c == nil {
		return
	}
	c.agentIterations.WithLabelValues(outcome).Observe(float64(iterations))
}

func (c *Collector) Retrieval(strategy string, quality float64, rounds int) {
	if c == nil {
		return
	}
	c.retrievalScore.WithLabelValues(strategy).Observe(quality)
	c.retrievalRounds.Observe(float64(rounds))
}

func (c *Collector) QueryDone(cached bool, d time.Duration) {
	if c == nil {
		return
	}
	label := "false"
	if cached {
		label = "true"
	}
	c.queryDuration.WithLabelValues(label).Observe(d.Seconds())
}
