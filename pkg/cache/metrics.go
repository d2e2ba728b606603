package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks fresh cache hits by store layer
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_cache_hits_total",
			Help: "Total number of fresh market cache hits",
		},
		[]string{"layer"}, // "memory", "redis"
	)

	// CacheMisses tracks reads that needed an upstream fetch
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "market_cache_misses_total",
			Help: "Total number of market cache misses (absent or expired)",
		},
	)

	// SharedFetches tracks callers served by another caller's in-flight fetch
	SharedFetches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "market_cache_shared_fetches_total",
			Help: "Total number of callers that joined an in-flight upstream fetch",
		},
	)

	// UpstreamFetches tracks upstream fetches by result
	UpstreamFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_cache_upstream_fetches_total",
			Help: "Total number of upstream fetches started by the market cache",
		},
		[]string{"result"}, // "success", "error"
	)

	// StaleServed tracks stale entries returned instead of an error
	StaleServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_cache_stale_served_total",
			Help: "Total number of stale entries served after an upstream failure",
		},
		[]string{"reason"}, // "rate_limited", "upstream_error"
	)

	// CacheErrors tracks store operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_cache_errors_total",
			Help: "Total number of cache store operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)

	// InflightFetches tracks upstream fetches currently running
	InflightFetches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "market_cache_inflight_fetches",
			Help: "Number of upstream fetches currently in flight",
		},
	)
)
