package revoker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/revoker/domain"
)

func TestEstimateTimeBasedEndToEnd(t *testing.T) {
	// Store with 3 tokens created in 2023 and 2 in 2024; the 2024 bound
	// must estimate exactly the 2023 ones.
	sessions := newFakeSessionRepo(
		&domain.OAuthSession{ID: "s1", UserID: "alice", ClientID: "web-console", CreatedAt: ts("2023-01-01T00:00:00Z")},
		&domain.OAuthSession{ID: "s2", UserID: "bob", ClientID: "web-console", CreatedAt: ts("2023-02-01T00:00:00Z")},
	)
	tokens := newFakeTokenRepo(
		&domain.OAuthToken{ID: "t1", SessionID: "s1", Type: domain.TokenTypeAccess, CreatedAt: ts("2023-04-01T00:00:00Z")},
		&domain.OAuthToken{ID: "t2", SessionID: "s1", Type: domain.TokenTypeRefresh, CreatedAt: ts("2023-05-01T00:00:00Z")},
		&domain.OAuthToken{ID: "t3", SessionID: "s2", Type: domain.TokenTypeAccess, CreatedAt: ts("2023-11-01T00:00:00Z")},
		&domain.OAuthToken{ID: "t4", SessionID: "s2", Type: domain.TokenTypeAccess, CreatedAt: ts("2024-03-01T00:00:00Z")},
		&domain.OAuthToken{ID: "t5", SessionID: "s2", Type: domain.TokenTypeRefresh, CreatedAt: ts("2024-06-01T00:00:00Z")},
	)
	resolver := NewResolver(newFakeClientRepo(), sessions, tokens, newFakeDirectory())
	estimator := NewEstimator(resolver)

	conds := domain.Conditions{
		CreatedBefore: timePtr(ts("2024-01-01T00:00:00Z")),
		TokenTypes:    []domain.TokenType{domain.TokenTypeAccess, domain.TokenTypeRefresh},
	}

	estimate, err := estimator.Estimate(context.Background(), domain.JobTypeTimeBased, conds)
	require.NoError(t, err)
	assert.Equal(t, 3, estimate.AffectedTokens())
	assert.Equal(t, 2, estimate.AffectedAccessTokens)
	assert.Equal(t, 1, estimate.AffectedRefreshTokens)
	assert.Equal(t, 2, estimate.AffectedSessions)
	assert.Equal(t, 2, estimate.AffectedUsers)

	// Executing with identical conditions revokes exactly the estimated
	// tokens and leaves the 2024 ones live.
	jobs := newFakeJobRepo()
	engine := NewEngine(resolver, jobs, tokens)
	job, err := engine.Submit(context.Background(), &domain.BatchLogoutJob{
		Type:       domain.JobTypeTimeBased,
		Conditions: conds,
		Reason:     "quarterly credential hygiene sweep",
	})
	require.NoError(t, err)
	require.NoError(t, engine.Execute(context.Background(), job.ID))

	done, err := jobs.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusCompleted, done.Status)
	require.NotNil(t, done.Statistics)
	assert.Equal(t, estimate.AffectedTokens(), done.Statistics.TotalTokens())
	assert.Equal(t, 2, tokens.liveCount(), "2024 tokens stay live")
}

func TestEstimateMatchesExecutionForGroupJobs(t *testing.T) {
	clients, sessions, tokens, directory := fixture()
	resolver := NewResolver(clients, sessions, tokens, directory)
	estimator := NewEstimator(resolver)

	conds := domain.Conditions{GroupID: "engineering", IncludeSubgroups: true}

	estimate, err := estimator.Estimate(context.Background(), domain.JobTypeGroupBased, conds)
	require.NoError(t, err)

	jobs := newFakeJobRepo()
	engine := NewEngine(resolver, jobs, tokens)
	job, err := engine.Submit(context.Background(), &domain.BatchLogoutJob{
		Type:       domain.JobTypeGroupBased,
		Conditions: conds,
		Reason:     "offboarding the engineering group",
	})
	require.NoError(t, err)
	require.NoError(t, engine.Execute(context.Background(), job.ID))

	done, err := jobs.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, done.Statistics)
	assert.Equal(t, estimate.AffectedAccessTokens, done.Statistics.TotalAccessTokensRevoked)
	assert.Equal(t, estimate.AffectedRefreshTokens, done.Statistics.TotalRefreshTokensRevoked)
	assert.Equal(t, estimate.AffectedUsers, done.Statistics.TotalUsersAffected)
	assert.Equal(t, estimate.AffectedSessions, done.Statistics.TotalSessionsAffected)
}

func TestEstimateDoesNotMutate(t *testing.T) {
	clients, sessions, tokens, directory := fixture()
	resolver := NewResolver(clients, sessions, tokens, directory)
	estimator := NewEstimator(resolver)

	before := tokens.liveCount()
	_, err := estimator.Estimate(context.Background(), domain.JobTypeEmergency, domain.Conditions{})
	require.NoError(t, err)
	assert.Equal(t, before, tokens.liveCount())
}
