package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.pilab.hu/revoker/cache"
)

// RevocationCache implements cache.RevocationCache on Redis, so several
// service instances observe the same revocation flags.
type RevocationCache struct {
	client *redis.Client
	prefix string // Optional prefix for keys
}

// NewRevocationCache creates a new [RevocationCache] instance.
func NewRevocationCache(client *redis.Client, prefix string) *RevocationCache {
	return &RevocationCache{
		client: client,
		prefix: prefix,
	}
}

func (r *RevocationCache) redisKey(sessionID string) string {
	return fmt.Sprintf("%s:revoked:%s", r.prefix, cache.HashSessionID(sessionID))
}

// MarkSessionRevoked flags the session with the given TTL.
func (r *RevocationCache) MarkSessionRevoked(ctx context.Context, sessionID string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.redisKey(sessionID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to flag session in Redis: %w", err)
	}
	return nil
}

// IsSessionRevoked reports whether the session is flagged.
func (r *RevocationCache) IsSessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.redisKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation flag in Redis: %w", err)
	}
	return n > 0, nil
}

// Close releases the underlying client.
func (r *RevocationCache) Close() error {
	return r.client.Close()
}

var _ cache.RevocationCache = (*RevocationCache)(nil)
