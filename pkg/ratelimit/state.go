// Package ratelimit tracks CoinGecko rate limiting and gates requests.
// After a 429 response the upstream is left alone until the Retry-After
// window has passed, so throttled refreshes fail fast and the cache can
// serve stale data without spending another request.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyBlockedUntil = "coingecko:rate_limit:blocked_until"
)

// Cooldown bounds applied to Retry-After values.
const (
	// DefaultCooldown is used when a 429 carries no usable Retry-After header.
	DefaultCooldown = 60 * time.Second

	// MaxCooldown caps the cooldown so a bogus header cannot stall refreshes for long.
	MaxCooldown = 10 * time.Minute
)

// CooldownState represents the current upstream rate limit state.
// With Redis configured this state is shared across proxy replicas.
type CooldownState struct {
	// BlockedUntil is when requests may be sent upstream again.
	// Zero when no rate limit has been observed.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastUpdate is when the state was last written.
	LastUpdate time.Time `json:"last_update"`
}

// IsBlocked returns true if upstream requests should be held back at now.
func (s *CooldownState) IsBlocked(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// Remaining returns the cooldown left at now.
// Returns 0 if the cooldown has already passed.
func (s *CooldownState) Remaining(now time.Time) time.Duration {
	d := s.BlockedUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
