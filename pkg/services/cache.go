package services

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/ssohub/pkg/observability"
)

// CacheConfig configures a CachingDirectory
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// DefaultCacheConfig returns a 1024 entry, five minute cache
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{Size: 1024, TTL: 5 * time.Minute}
}

type cacheEntry struct {
	svc *RegisteredService
}

// CachingDirectory memoizes FindByService results, including misses, for a
// bounded time. Errors other than ErrServiceNotFound are not cached.
type CachingDirectory struct {
	next    Directory
	cache   *lru.LRU[string, cacheEntry]
	metrics *observability.Metrics
}

// NewCachingDirectory wraps next. metrics may be nil.
func NewCachingDirectory(next Directory, cfg CacheConfig, metrics *observability.Metrics) *CachingDirectory {
	if cfg.Size <= 0 {
		cfg.Size = DefaultCacheConfig().Size
	}
	return &CachingDirectory{
		next:    next,
		cache:   lru.NewLRU[string, cacheEntry](cfg.Size, nil, cfg.TTL),
		metrics: metrics,
	}
}

func (c *CachingDirectory) record(result string) {
	if c.metrics != nil {
		c.metrics.DirectoryCacheLookups.WithLabelValues(result).Inc()
	}
}

// FindByService returns the cached result for serviceID or consults next
func (c *CachingDirectory) FindByService(ctx context.Context, serviceID string) (*RegisteredService, error) {
	if entry, ok := c.cache.Get(serviceID); ok {
		c.record("hit")
		if entry.svc == nil {
			return nil, ErrServiceNotFound
		}
		return entry.svc, nil
	}
	c.record("miss")

	svc, err := c.next.FindByService(ctx, serviceID)
	switch {
	case errors.Is(err, ErrServiceNotFound):
		c.cache.Add(serviceID, cacheEntry{})
		return nil, err
	case err != nil:
		return nil, err
	}

	c.cache.Add(serviceID, cacheEntry{svc: svc})
	return svc, nil
}

// Purge drops every cached entry, for use after the underlying directory changes
func (c *CachingDirectory) Purge() {
	c.cache.Purge()
}

// Len returns the number of cached entries
func (c *CachingDirectory) Len() int {
	return c.cache.Len()
}
