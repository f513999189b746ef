package domain

import "time"

// JobType selects the matching rule a batch logout job uses to resolve its
// revocation targets.
type JobType string

const (
	JobTypeClientBased JobType = "client_based"
	JobTypeGroupBased  JobType = "group_based"
	JobTypeTimeBased   JobType = "time_based"
	JobTypeConditional JobType = "conditional"
	JobTypeEmergency   JobType = "emergency"
)

// JobStatus is the lifecycle state of a batch logout job.
// pending -> processing -> {completed | failed | cancelled}.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether s is one of the three terminal states. A job in
// a terminal state is immutable.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// JobStatistics carries the named counters of a batch logout job. Counters
// reflect the tokens this job attempted; a token another job revoked first
// still counts once here.
type JobStatistics struct {
	TotalUsersAffected        int `bson:"total_users_affected" json:"total_users_affected"`
	TotalSessionsAffected     int `bson:"total_sessions_affected" json:"total_sessions_affected"`
	TotalAccessTokensRevoked  int `bson:"total_access_tokens_revoked" json:"total_access_tokens_revoked"`
	TotalRefreshTokensRevoked int `bson:"total_refresh_tokens_revoked" json:"total_refresh_tokens_revoked"`
}

// TotalTokens is the sum of both revocation counters.
func (s JobStatistics) TotalTokens() int {
	return s.TotalAccessTokensRevoked + s.TotalRefreshTokensRevoked
}

// BatchLogoutJob is a trackable asynchronous unit of work that revokes every
// session/token matching administrator-specified conditions.
type BatchLogoutJob struct {
	ID              string         `bson:"_id" json:"job_id"`
	Type            JobType        `bson:"type" json:"type"`
	Conditions      Conditions     `bson:"conditions" json:"conditions"`
	DryRun          bool           `bson:"dry_run" json:"dry_run"`
	Reason          string         `bson:"reason" json:"reason"`
	Priority        int            `bson:"priority" json:"priority"`
	Status          JobStatus      `bson:"status" json:"status"`
	Progress        int            `bson:"progress" json:"progress"` // 0..100
	InitiatedBy     string         `bson:"initiated_by" json:"initiated_by"`
	Statistics      *JobStatistics `bson:"statistics,omitempty" json:"statistics,omitempty"`
	ErrorDetails    *JobError      `bson:"error_details,omitempty" json:"error_details,omitempty"`
	CancelRequested bool           `bson:"cancel_requested,omitempty" json:"cancel_requested,omitempty"`
	CreatedAt       time.Time      `bson:"created_at" json:"created_at"`
	StartedAt       *time.Time     `bson:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt     *time.Time     `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	CancelledAt     *time.Time     `bson:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
}

// JobError is the structured cause persisted on a failed job. The job record
// is the durable error channel for execution-time failures.
type JobError struct {
	Code        string `bson:"code" json:"code"`
	Description string `bson:"description" json:"description"`
}
