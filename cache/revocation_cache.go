package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RevocationCache is a fast-path flag store consulted on every authenticated
// request: once a batch job or a user logout revokes a session, its id is
// flagged here so middleware can reject the session's tokens without a store
// round-trip. Entries expire with the residual token lifetime; the persistent
// store stays authoritative.
type RevocationCache interface {
	// MarkSessionRevoked flags the session for ttl.
	MarkSessionRevoked(ctx context.Context, sessionID string, ttl time.Duration) error
	// IsSessionRevoked reports whether the session is flagged.
	IsSessionRevoked(ctx context.Context, sessionID string) (bool, error)
	Close() error
}

// HashSessionID hashes a session id before it is used as a cache key, so raw
// identifiers never land in a shared cache.
func HashSessionID(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:])
}
