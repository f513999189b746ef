package domain

import (
	"context"
	"time"
)

// SessionFilter narrows session queries. Zero values mean "no restriction".
type SessionFilter struct {
	ClientID string
	UserIDs  []string
}

// TokenFilter narrows token queries. Time bounds are strict upper bounds
// (created_at < CreatedBefore). LiveOnly restricts to tokens with a null
// revoked_at.
type TokenFilter struct {
	SessionIDs     []string
	Types          []TokenType
	CreatedBefore  *time.Time
	LastUsedBefore *time.Time
	LiveOnly       bool
}

// ClientRepository reads registered OAuth clients.
type ClientRepository interface {
	GetClient(ctx context.Context, clientID string) (*OAuthClient, error)
}

// SessionRepository queries and maintains OAuth sessions.
type SessionRepository interface {
	StoreSession(ctx context.Context, session *OAuthSession) error
	FindSessions(ctx context.Context, filter SessionFilter) ([]*OAuthSession, error)
	DeleteSession(ctx context.Context, id string) error
}

// TokenRepository queries tokens and performs the atomic revoke primitive.
type TokenRepository interface {
	StoreToken(ctx context.Context, token *OAuthToken) error
	FindTokens(ctx context.Context, filter TokenFilter) ([]*OAuthToken, error)
	// RevokeTokenIfLive sets revoked_at on the token if it is currently null.
	// It returns whether this call was the one that flipped it. Safe under
	// concurrent writers; losing the race is not an error.
	RevokeTokenIfLive(ctx context.Context, tokenID string, at time.Time) (bool, error)
	DeleteExpiredTokens(ctx context.Context) error
}

// GroupDirectory is the identity collaborator. Group hierarchy expansion
// (transitive closure over subgroups) happens behind this interface.
type GroupDirectory interface {
	GroupMembers(ctx context.Context, groupID string, includeSubgroups bool) ([]string, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// BatchJobRepository persists batch logout jobs. Claim and the two cancel
// operations are conditional updates so concurrent workers race safely.
type BatchJobRepository interface {
	CreateJob(ctx context.Context, job *BatchLogoutJob) error
	GetJob(ctx context.Context, id string) (*BatchLogoutJob, error)
	ListJobs(ctx context.Context, status JobStatus, limit int) ([]*BatchLogoutJob, error)
	// ClaimJob transitions pending -> processing and sets started_at. A
	// second claim on the same job fails with ErrAlreadyClaimed.
	ClaimJob(ctx context.Context, id string, startedAt time.Time) error
	UpdateProgress(ctx context.Context, id string, progress int, stats *JobStatistics) error
	CompleteJob(ctx context.Context, id string, stats *JobStatistics, at time.Time) error
	FailJob(ctx context.Context, id string, stats *JobStatistics, cause *JobError, at time.Time) error
	// CancelPendingJob transitions pending -> cancelled directly.
	CancelPendingJob(ctx context.Context, id string, at time.Time) error
	// RequestCancel flags a processing job; the owning worker honours the
	// flag at the next batch boundary.
	RequestCancel(ctx context.Context, id string) error
	// MarkCancelled finalises processing -> cancelled at a batch boundary.
	MarkCancelled(ctx context.Context, id string, stats *JobStatistics, at time.Time) error
}

// AuditLogRepository is the append-only audit trail.
type AuditLogRepository interface {
	Append(ctx context.Context, entry *AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) ([]*AuditLogEntry, error)
}
