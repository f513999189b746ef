package domain

import "time"

// OAuthSession represents one user-granted authorization to one client.
// A session is the parent of zero or more tokens; revoking a session revokes
// all of its tokens. Sessions are destroyed by explicit revoke or by a
// time-based sweep.
type OAuthSession struct {
	ID            string    `bson:"_id" json:"session_id"`
	UserID        string    `bson:"user_id" json:"user_id"`
	ClientID      string    `bson:"client_id" json:"client_id"`
	GrantedScopes []string  `bson:"granted_scopes" json:"granted_scopes"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	LastUsedAt    time.Time `bson:"last_used_at,omitempty" json:"last_used_at,omitempty"`
}
