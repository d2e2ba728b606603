package cache

import (
	"sort"
	"strings"
)

const (
	// DefaultNamespace prefixes keys of the CoinGecko markets cache.
	DefaultNamespace = "coingecko:markets"

	keyDelimiter = ","
)

// CacheKey identifies a cached upstream response by the set of
// identifiers it was requested with.
type CacheKey struct {
	// Namespace separates unrelated caches sharing a store (e.g., "coingecko:markets")
	Namespace string

	// IDs are the requested identifiers, in any order and possibly repeated
	IDs []string
}

// NewKey creates a cache key for the given identifiers.
func NewKey(namespace string, ids []string) CacheKey {
	return CacheKey{Namespace: namespace, IDs: ids}
}

// Normalized returns the identifiers trimmed, deduplicated and sorted.
// Empty identifiers are dropped.
func (k CacheKey) Normalized() []string {
	seen := make(map[string]struct{}, len(k.IDs))
	ids := make([]string, 0, len(k.IDs))
	for _, id := range k.IDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// String generates a deterministic cache key string.
// Format: namespace:id1,id2,...
//
// Example:
//
//	coingecko:markets:bitcoin,ethereum
func (k CacheKey) String() string {
	ids := strings.Join(k.Normalized(), keyDelimiter)
	if k.Namespace == "" {
		return ids
	}
	return k.Namespace + ":" + ids
}
