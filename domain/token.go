package domain

import "time"

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access_token"
	TokenTypeRefresh TokenType = "refresh_token"
)

// AllTokenTypes is the full set of revocable token types, in a stable order.
var AllTokenTypes = []TokenType{TokenTypeAccess, TokenTypeRefresh}

// OAuthToken is an access or refresh credential derived from a session.
// RevokedAt == nil means the token is live. A non-nil RevokedAt is permanently
// terminal; revocation is idempotent, so revoking twice is a no-op.
type OAuthToken struct {
	ID         string     `bson:"_id" json:"token_id"`
	SessionID  string     `bson:"session_id" json:"session_id"`
	Type       TokenType  `bson:"token_type" json:"token_type"`
	CreatedAt  time.Time  `bson:"created_at" json:"created_at"`
	LastUsedAt time.Time  `bson:"last_used_at" json:"last_used_at"`
	ExpiresAt  time.Time  `bson:"expires_at" json:"expires_at"`
	RevokedAt  *time.Time `bson:"revoked_at,omitempty" json:"revoked_at,omitempty"`
}

// IsLive reports whether the token has not been revoked yet. Expiry is a
// separate concern handled by the store's sweep.
func (t *OAuthToken) IsLive() bool {
	return t.RevokedAt == nil
}
