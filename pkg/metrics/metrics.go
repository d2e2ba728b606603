// Package metrics provides the Prometheus registry used by the market proxy.
// All metrics are defined in their respective packages (cache, coingecko,
// ratelimit, server) and registered via promauto on import.
//
// This package exposes the handler for /metrics and documents every metric.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is where promauto registers the market proxy's metrics.
	Registry = prometheus.DefaultRegisterer

	// Gatherer is what /metrics exposes.
	Gatherer = prometheus.DefaultGatherer
)

// Handler serves Gatherer in the Prometheus exposition format. Scrapes of
// the handler itself are counted on Registry.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		Registry,
		promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}),
	)
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - market_cache_hits_total{layer} (Counter): Fresh hits by store layer (memory, redis)
//   - market_cache_misses_total (Counter): Reads that needed a refresh
//   - market_cache_shared_fetches_total (Counter): Callers that joined an in-flight fetch
//   - market_cache_upstream_fetches_total{result} (Counter): Upstream fetches by result
//   - market_cache_stale_served_total{reason} (Counter): Stale payloads served (rate_limited, upstream_error)
//   - market_cache_errors_total{operation} (Counter): Store operation errors
//   - market_cache_inflight_fetches (Gauge): Upstream fetches currently running
//
// Upstream Metrics (pkg/coingecko):
//   - coingecko_requests_total{status} (Counter): Requests by HTTP status (or blocked, network_error)
//   - coingecko_request_duration_seconds (Histogram): Request duration
//   - coingecko_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - coingecko_rate_limit_hits_total (Counter): 429 responses received
//   - coingecko_rate_limit_blocks_total (Counter): Requests held back during a cooldown
//   - coingecko_rate_limit_cooldown_seconds (Gauge): Length of the latest cooldown
//
// HTTP Metrics (internal/server):
//   - market_proxy_http_requests_total{route, status} (Counter): Served requests
//   - market_proxy_http_request_duration_seconds{route} (Histogram): Handler latency
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(market_cache_hits_total[5m])) /
//   (sum(rate(market_cache_hits_total[5m])) + sum(rate(market_cache_misses_total[5m])))
//
//   # Deduplicated callers per upstream fetch
//   rate(market_cache_shared_fetches_total[5m]) / rate(market_cache_upstream_fetches_total[5m])
//
//   # Stale serving rate
//   sum by (reason) (rate(market_cache_stale_served_total[5m]))
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(coingecko_request_duration_seconds_bucket[5m]))
