package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL is how long a fetched payload is served without refreshing
	DefaultTTL = 5 * time.Minute
)

// ErrNoFallbackAvailable is returned when the upstream fetch failed and no
// entry of any age exists for the key. It wraps the upstream cause.
var ErrNoFallbackAvailable = errors.New("upstream failed and no cached data is available")

// Fetcher loads the payload for a set of identifiers from upstream.
type Fetcher interface {
	FetchMarkets(ctx context.Context, ids []string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, ids []string) ([]byte, error)

// FetchMarkets calls f(ctx, ids).
func (f FetcherFunc) FetchMarkets(ctx context.Context, ids []string) ([]byte, error) {
	return f(ctx, ids)
}

// Config holds the cache configuration.
type Config struct {
	// TTL is how long an entry counts as fresh (default: DefaultTTL)
	TTL time.Duration

	// Namespace prefixes every key (default: DefaultNamespace)
	Namespace string

	// Clock returns the current time (default: time.Now)
	Clock func() time.Time
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		TTL:       DefaultTTL,
		Namespace: DefaultNamespace,
		Clock:     time.Now,
	}
}

// Cache serves upstream payloads from a Store, refreshing lazily after
// TTL. Concurrent misses for one key share a single upstream call, and
// failed refreshes fall back to the last stored payload.
type Cache struct {
	fetcher Fetcher
	store   Store
	group   singleflight.Group
	config  Config
	layer   string
	logger  zerolog.Logger
}

// New creates a cache in front of fetcher, keeping entries in store.
func New(fetcher Fetcher, store Store, cfg Config) *Cache {
	if fetcher == nil {
		panic("fetcher cannot be nil")
	}
	if store == nil {
		panic("store cannot be nil")
	}

	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Cache{
		fetcher: fetcher,
		store:   store,
		config:  cfg,
		layer:   layerName(store),
		logger:  log.With().Str("component", "market-cache").Logger(),
	}
}

// TTL returns the configured freshness window.
func (c *Cache) TTL() time.Duration {
	return c.config.TTL
}

// Get returns the payload for ids: from the store while fresh, otherwise
// from a single shared upstream fetch, otherwise from the stale entry.
//
// A caller whose ctx ends stops waiting; the shared fetch keeps running
// for the other callers.
func (c *Cache) Get(ctx context.Context, ids []string) ([]byte, error) {
	key := NewKey(c.config.Namespace, ids)
	keyStr := key.String()

	if entry := c.lookup(ctx, keyStr); entry != nil && entry.IsFresh(c.config.Clock(), c.config.TTL) {
		CacheHits.WithLabelValues(c.layer).Inc()
		c.logger.Debug().Str("key", keyStr).Msg("Cache hit")
		return entry.Data, nil
	}
	CacheMisses.Inc()

	fetchCtx := context.WithoutCancel(ctx)
	normalized := key.Normalized()
	ch := c.group.DoChan(keyStr, func() (interface{}, error) {
		return c.refresh(fetchCtx, keyStr, normalized)
	})

	select {
	case res := <-ch:
		if res.Shared {
			SharedFetches.Inc()
		}
		if res.Err != nil {
			return c.fallback(ctx, keyStr, res.Err)
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for %s: %w", keyStr, ctx.Err())
	}
}

// refresh runs inside the single flight for key.
func (c *Cache) refresh(ctx context.Context, key string, ids []string) ([]byte, error) {
	// A flight that finished between our freshness check and DoChan
	// already stored a fresh entry.
	// The read was already counted as a miss in Get.
	if entry := c.lookup(ctx, key); entry != nil && entry.IsFresh(c.config.Clock(), c.config.TTL) {
		return entry.Data, nil
	}

	InflightFetches.Inc()
	defer InflightFetches.Dec()

	start := time.Now()
	data, err := c.fetch(ctx, key, ids)
	if err != nil {
		UpstreamFetches.WithLabelValues("error").Inc()
		return nil, err
	}
	UpstreamFetches.WithLabelValues("success").Inc()

	if err := c.store.Set(ctx, key, NewEntry(data, c.config.Clock())); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to store cache entry")
	} else {
		c.logger.Debug().
			Str("key", key).
			Dur("duration", time.Since(start)).
			Dur("ttl", c.config.TTL).
			Msg("Cached upstream response")
	}

	return data, nil
}

// fetch calls the upstream fetcher. singleflight re-raises a panic on a
// fresh goroutine where nothing can recover it, so it becomes an error here.
func (c *Cache) fetch(ctx context.Context, key string, ids []string) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Interface("panic", r).
				Str("key", key).
				Msg("Upstream fetcher panicked")
			data, err = nil, fmt.Errorf("fetch %s panicked: %v", key, r)
		}
	}()
	return c.fetcher.FetchMarkets(ctx, ids)
}

// fallback serves the stored entry of any age after an upstream failure.
func (c *Cache) fallback(ctx context.Context, key string, cause error) ([]byte, error) {
	reason := "upstream_error"
	if IsRateLimited(cause) {
		reason = "rate_limited"
	}

	entry := c.lookup(context.WithoutCancel(ctx), key)
	if entry == nil {
		c.logger.Error().
			Err(cause).
			Str("key", key).
			Str("reason", reason).
			Msg("Upstream fetch failed with no cached fallback")
		return nil, fmt.Errorf("%w: %w", ErrNoFallbackAvailable, cause)
	}

	StaleServed.WithLabelValues(reason).Inc()
	event := c.logger.Warn()
	if reason == "rate_limited" {
		event = c.logger.Info()
	}
	event.
		Err(cause).
		Str("key", key).
		Str("reason", reason).
		Dur("age", entry.Age(c.config.Clock())).
		Msg("Serving stale cache entry")

	return entry.Data, nil
}

// lookup reads key from the store; store failures count as a miss.
func (c *Cache) lookup(ctx context.Context, key string) *CacheEntry {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", key).Msg("Cache get error")
		}
		return nil
	}
	return entry
}

// IsRateLimited reports whether err, or any error it wraps, signals
// upstream throttling via a RateLimited() method.
func IsRateLimited(err error) bool {
	var rl interface{ RateLimited() bool }
	return errors.As(err, &rl) && rl.RateLimited()
}

func layerName(store Store) string {
	switch store.(type) {
	case *MemoryStore:
		return "memory"
	case *RedisStore:
		return "redis"
	default:
		return "custom"
	}
}
