package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coingecko_rate_limit_hits_total",
		Help: "Total number of 429 responses received from CoinGecko",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coingecko_rate_limit_blocks_total",
		Help: "Total number of upstream requests held back during a cooldown",
	})

	rateLimitCooldownSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coingecko_rate_limit_cooldown_seconds",
		Help: "Length of the most recently started rate limit cooldown",
	})
)

// Tracker records upstream rate limiting and gates requests.
// A nil Redis client keeps the state in process memory.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	local CooldownState
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the tracker's time source (for testing).
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// GetState retrieves the current cooldown state.
// Reads Redis when configured, otherwise the local state.
func (t *Tracker) GetState(ctx context.Context) (*CooldownState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		state := t.local
		return &state, nil
	}

	millis, err := t.redis.Get(ctx, RedisKeyBlockedUntil).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &CooldownState{}, nil
		}
		return nil, fmt.Errorf("get blocked until: %w", err)
	}

	return &CooldownState{
		BlockedUntil: time.UnixMilli(millis),
		LastUpdate:   t.now(),
	}, nil
}

// RecordRateLimited starts a cooldown from a 429 response's headers and
// returns its length.
func (t *Tracker) RecordRateLimited(ctx context.Context, headers http.Header) (time.Duration, error) {
	now := t.now()

	cooldown, ok := ParseRetryAfter(headers.Get("Retry-After"), now)
	if !ok {
		cooldown = DefaultCooldown
	}
	if cooldown > MaxCooldown {
		cooldown = MaxCooldown
	}

	state := CooldownState{
		BlockedUntil: now.Add(cooldown),
		LastUpdate:   now,
	}

	// The local copy also covers a Redis outage.
	t.mu.Lock()
	t.local = state
	t.mu.Unlock()

	rateLimitHitsTotal.Inc()
	rateLimitCooldownSeconds.Set(cooldown.Seconds())

	t.logger.Warn().
		Dur("cooldown", cooldown).
		Time("blocked_until", state.BlockedUntil).
		Msg("CoinGecko rate limit hit - holding back upstream requests")

	if t.redis == nil || cooldown <= 0 {
		return cooldown, nil
	}

	if err := t.redis.Set(ctx, RedisKeyBlockedUntil, state.BlockedUntil.UnixMilli(), cooldown).Err(); err != nil {
		return cooldown, fmt.Errorf("store rate limit state in redis: %w", err)
	}

	return cooldown, nil
}

// ShouldAllowRequest checks if a request may be sent upstream.
// Returns false while a cooldown is active.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		t.mu.Lock()
		local := t.local
		t.mu.Unlock()
		state = &local
		err = fmt.Errorf("get rate limit state: %w", err)
	}

	now := t.now()
	if state.IsBlocked(now) {
		t.logger.Debug().
			Dur("remaining", state.Remaining(now)).
			Msg("CoinGecko cooldown active - blocking request")
		rateLimitBlocksTotal.Inc()
		return false, err
	}

	return true, err
}

// ParseRetryAfter parses a Retry-After header value, either delta-seconds
// or an HTTP date, into a duration relative to now.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}

	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	d := at.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}
