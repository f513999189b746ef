package api

import (
	revoker "go.pilab.hu/revoker"
	"go.pilab.hu/revoker/domain"
	"go.pilab.hu/revoker/internal/fedsync"
)

// BatchLogoutRequest is the admin request body for every batch-logout job
// type. Which condition fields matter depends on the path parameter.
type BatchLogoutRequest struct {
	Conditions domain.Conditions `json:"conditions"`
	DryRun     bool              `json:"dry_run"`
	// Reason is required and must be at least 10 characters. Enforced here
	// at the API boundary, not in the engine.
	Reason   string `json:"reason"`
	Priority int    `json:"priority"`
	// Confirm is the explicit acknowledgement an emergency job needs before
	// it may run for real.
	Confirm bool `json:"confirm,omitempty"`
}

// BatchLogoutResponse returns either estimator counts (dry run) or the id of
// the trackable job (non-dry-run). Non-dry-run requests never block on full
// execution.
type BatchLogoutResponse struct {
	JobID    string            `json:"job_id,omitempty"`
	Estimate *revoker.Estimate `json:"estimate,omitempty"`
}

// LogoutRequest is the user-initiated logout body.
type LogoutRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// LogoutResponse reports the local outcome and whether every federated
// partner acknowledged in time.
type LogoutResponse struct {
	LocalCleared           bool                            `json:"localCleared"`
	FederatedSyncConfirmed bool                            `json:"federatedSyncConfirmed"`
	Origins                map[string]fedsync.OriginResult `json:"origins,omitempty"`
}

// AuditLogsResponse is a paginated audit log listing.
type AuditLogsResponse struct {
	Entries []*domain.AuditLogEntry `json:"entries"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
}

// SessionsResponse lists sessions for the admin console.
type SessionsResponse struct {
	Sessions []*domain.OAuthSession `json:"sessions"`
}
