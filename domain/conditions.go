package domain

import "time"

// Conditions is the type-specific filter of a batch logout job. Which fields
// are meaningful depends on the job type; the resolver validates the
// combination and rejects incomplete filters before a job ever starts.
type Conditions struct {
	// Client dimension (client_based, conditional).
	ClientID string `bson:"client_id,omitempty" json:"client_id,omitempty"`
	// RevokeRefreshTokens excludes refresh tokens from a client_based job
	// when explicitly set to false. Access tokens are always included.
	RevokeRefreshTokens *bool `bson:"revoke_refresh_tokens,omitempty" json:"revoke_refresh_tokens,omitempty"`

	// Group dimension (group_based, conditional).
	GroupID           string `bson:"group_id,omitempty" json:"group_id,omitempty"`
	IncludeSubgroups  bool   `bson:"include_subgroups,omitempty" json:"include_subgroups,omitempty"`
	ExcludeAdminUsers bool   `bson:"exclude_admin_users,omitempty" json:"exclude_admin_users,omitempty"`

	// Time dimension (time_based, conditional; created_before also narrows
	// client_based jobs). Both bounds are strict: created_at < created_before.
	CreatedBefore  *time.Time `bson:"created_before,omitempty" json:"created_before,omitempty"`
	LastUsedBefore *time.Time `bson:"last_used_before,omitempty" json:"last_used_before,omitempty"`

	// TokenTypes restricts time_based jobs to a subset of token types.
	// Empty means both.
	TokenTypes []TokenType `bson:"token_types,omitempty" json:"token_types,omitempty"`
}

// HasTimeFilter reports whether at least one time bound is present.
func (c Conditions) HasTimeFilter() bool {
	return c.CreatedBefore != nil || c.LastUsedBefore != nil
}
