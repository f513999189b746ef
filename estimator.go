package revoker

import (
	"context"

	"go.pilab.hu/revoker/domain"
)

// Estimate is the dry-run blast radius for a set of conditions. It matches
// what a non-dry-run execution with identical conditions would revoke,
// assuming no concurrent store mutation between the two calls.
type Estimate struct {
	AffectedSessions      int `json:"estimated_affected_sessions"`
	AffectedUsers         int `json:"estimated_affected_users"`
	AffectedAccessTokens  int `json:"estimated_affected_access_tokens"`
	AffectedRefreshTokens int `json:"estimated_affected_refresh_tokens"`
}

// AffectedTokens is the total token count across both types.
func (e Estimate) AffectedTokens() int {
	return e.AffectedAccessTokens + e.AffectedRefreshTokens
}

// Statistics converts the estimate into the counters a completed dry-run job
// carries.
func (e Estimate) Statistics() *domain.JobStatistics {
	return &domain.JobStatistics{
		TotalUsersAffected:        e.AffectedUsers,
		TotalSessionsAffected:     e.AffectedSessions,
		TotalAccessTokensRevoked:  e.AffectedAccessTokens,
		TotalRefreshTokensRevoked: e.AffectedRefreshTokens,
	}
}

// Estimator runs the resolver read-only and counts, without mutating the
// store.
type Estimator struct {
	resolver *Resolver
}

// NewEstimator creates an Estimator sharing the engine's resolver.
func NewEstimator(resolver *Resolver) *Estimator {
	return &Estimator{resolver: resolver}
}

// Estimate resolves the target set for the conditions and tallies it.
func (e *Estimator) Estimate(ctx context.Context, jobType domain.JobType, conds domain.Conditions) (*Estimate, error) {
	targets, err := e.resolver.Resolve(ctx, jobType, conds)
	if err != nil {
		return nil, err
	}
	est := tallyTargets(targets)
	return &est, nil
}

// tallyTargets counts distinct sessions and users and tokens by type. The
// engine uses the same tally for its own statistics so the dry-run/execute
// equivalence holds by construction.
func tallyTargets(targets []Target) Estimate {
	sessions := make(map[string]struct{})
	users := make(map[string]struct{})

	var est Estimate
	for _, t := range targets {
		sessions[t.SessionID] = struct{}{}
		if t.UserID != "" {
			users[t.UserID] = struct{}{}
		}
		switch t.TokenType {
		case domain.TokenTypeRefresh:
			est.AffectedRefreshTokens++
		default:
			est.AffectedAccessTokens++
		}
	}
	est.AffectedSessions = len(sessions)
	est.AffectedUsers = len(users)
	return est
}
