// Package cache provides the market data response cache.
//
// The cache sits between request handlers and the CoinGecko markets
// endpoint and implements:
//
// - Deterministic keys from the requested identifier set (order and duplicates ignored)
// - Lazy TTL refresh (default 5 minutes, no background refresh)
// - Single-flight upstream fetches per key (concurrent misses share one call)
// - Stale-if-error fallback (rate limits and upstream failures serve the last payload)
// - Pluggable entry stores (in-process ttlcache or shared Redis)
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	store := cache.NewMemoryStore(cache.MemoryStoreConfig{})
//	defer store.Close()
//
//	markets := cache.New(geckoClient, store, cache.DefaultConfig())
//
//	data, err := markets.Get(ctx, []string{"ethereum", "bitcoin"})
//	if errors.Is(err, cache.ErrNoFallbackAvailable) {
//		// Upstream failed and nothing was ever cached for this key
//	}
//
// # Shared Store
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := cache.NewRedisStore(redisClient, 24*time.Hour)
//
// Entries are kept past their TTL so that a failed refresh can still
// answer. Stores never decide freshness; the Cache does at read time.
//
// # Metrics
//
//   - market_cache_hits_total{layer} - Fresh hits by store layer
//   - market_cache_misses_total - Reads needing a refresh
//   - market_cache_shared_fetches_total - Callers that joined an in-flight fetch
//   - market_cache_upstream_fetches_total{result} - Upstream fetches by result
//   - market_cache_stale_served_total{reason} - Stale payloads served
//   - market_cache_errors_total{operation} - Store errors
//   - market_cache_inflight_fetches - Fetches currently running
package cache
