package cache

import (
	"time"
)

// CacheEntry represents a cached upstream response payload.
// Entries are replaced on refresh, never mutated in place.
type CacheEntry struct {
	// Data is the raw JSON response body
	Data []byte `json:"data"`

	// StoredAt is when the payload was fetched from upstream
	StoredAt time.Time `json:"stored_at"`
}

// NewEntry creates an entry for data fetched at now.
func NewEntry(data []byte, now time.Time) *CacheEntry {
	return &CacheEntry{Data: data, StoredAt: now}
}

// Age returns how long ago the entry was stored.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// IsFresh reports whether the entry is younger than ttl at now.
func (e *CacheEntry) IsFresh(now time.Time, ttl time.Duration) bool {
	return e.Age(now) < ttl
}
