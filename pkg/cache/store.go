package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

var (
	// ErrCacheMiss indicates the requested key was not found in the store
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store holds cache entries of any age. Freshness is decided by the
// Cache at read time, so stores must keep expired entries around for
// the stale fallback.
type Store interface {
	// Get returns the entry for key or ErrCacheMiss.
	Get(ctx context.Context, key string) (*CacheEntry, error)

	// Set replaces the entry for key.
	Set(ctx context.Context, key string, entry *CacheEntry) error
}

// MemoryStoreConfig holds the in-process store configuration.
type MemoryStoreConfig struct {
	// Retention drops entries this long after they were stored (0 keeps them forever)
	Retention time.Duration

	// Capacity bounds the number of entries (0 is unbounded)
	Capacity uint64
}

// MemoryStore is a process-local Store backed by ttlcache.
type MemoryStore struct {
	items *ttlcache.Cache[string, *CacheEntry]

	stopOnce sync.Once
	started  bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-process store. When Retention is set, a
// janitor goroutine evicts old entries until Close is called.
func NewMemoryStore(cfg MemoryStoreConfig) *MemoryStore {
	opts := []ttlcache.Option[string, *CacheEntry]{
		ttlcache.WithDisableTouchOnHit[string, *CacheEntry](),
	}
	if cfg.Retention > 0 {
		opts = append(opts, ttlcache.WithTTL[string, *CacheEntry](cfg.Retention))
	}
	if cfg.Capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, *CacheEntry](cfg.Capacity))
	}

	s := &MemoryStore{items: ttlcache.New(opts...)}
	if cfg.Retention > 0 {
		s.started = true
		go s.items.Start()
	}
	return s
}

// Get retrieves an entry by key.
func (s *MemoryStore) Get(_ context.Context, key string) (*CacheEntry, error) {
	item := s.items.Get(key)
	if item == nil {
		return nil, ErrCacheMiss
	}
	return item.Value(), nil
}

// Set stores an entry under key.
func (s *MemoryStore) Set(_ context.Context, key string, entry *CacheEntry) error {
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}
	s.items.Set(key, entry, ttlcache.DefaultTTL)
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	return s.items.Len()
}

// Close stops the eviction janitor, if any.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() {
		if s.started {
			s.items.Stop()
		}
	})
	return nil
}
