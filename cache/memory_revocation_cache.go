package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryRevocationCache implements RevocationCache with an in-process
// ttlcache. Suitable for single-instance deployments and tests.
type MemoryRevocationCache struct {
	cache *ttlcache.Cache[string, struct{}]
}

// NewMemoryRevocationCache creates a new in-memory revocation cache with
// automatic expiry.
//
//nolint:ireturn
func NewMemoryRevocationCache(defaultTTL time.Duration) RevocationCache {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, struct{}](defaultTTL),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)

	// Start the expiry process
	go cache.Start()

	return &MemoryRevocationCache{cache: cache}
}

// MarkSessionRevoked implements RevocationCache.MarkSessionRevoked.
func (c *MemoryRevocationCache) MarkSessionRevoked(_ context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	c.cache.Set(HashSessionID(sessionID), struct{}{}, ttl)
	return nil
}

// IsSessionRevoked implements RevocationCache.IsSessionRevoked.
func (c *MemoryRevocationCache) IsSessionRevoked(_ context.Context, sessionID string) (bool, error) {
	return c.cache.Has(HashSessionID(sessionID)), nil
}

// Close stops the expiry goroutine.
func (c *MemoryRevocationCache) Close() error {
	c.cache.Stop()

	return nil
}
