package revoker

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.pilab.hu/revoker/domain"
)

// In-memory store fakes shared by the resolver, estimator and engine tests.
// They implement the same conditional-update semantics the MongoDB
// repositories do, so the concurrency properties are exercised for real.

type fakeClientRepo struct {
	mu      sync.Mutex
	clients map[string]*domain.OAuthClient
}

func newFakeClientRepo(clients ...*domain.OAuthClient) *fakeClientRepo {
	repo := &fakeClientRepo{clients: make(map[string]*domain.OAuthClient)}
	for _, c := range clients {
		repo.clients[c.ClientID] = c
	}
	return repo
}

func (r *fakeClientRepo) GetClient(_ context.Context, clientID string) (*domain.OAuthClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	client, ok := r.clients[clientID]
	if !ok {
		return nil, domain.ErrClientNotFound
	}
	return client, nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.OAuthSession
}

func newFakeSessionRepo(sessions ...*domain.OAuthSession) *fakeSessionRepo {
	repo := &fakeSessionRepo{sessions: make(map[string]*domain.OAuthSession)}
	for _, s := range sessions {
		repo.sessions[s.ID] = s
	}
	return repo
}

func (r *fakeSessionRepo) StoreSession(_ context.Context, session *domain.OAuthSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return nil
}

func (r *fakeSessionRepo) FindSessions(_ context.Context, filter domain.SessionFilter) ([]*domain.OAuthSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.OAuthSession
	for _, s := range r.sessions {
		if filter.ClientID != "" && s.ClientID != filter.ClientID {
			continue
		}
		if len(filter.UserIDs) > 0 && !contains(filter.UserIDs, s.UserID) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeSessionRepo) DeleteSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.OAuthToken
	// revokeErr, when set, fails RevokeTokenIfLive after failAfter calls.
	revokeErr error
	failAfter int
	calls     int
}

func newFakeTokenRepo(tokens ...*domain.OAuthToken) *fakeTokenRepo {
	repo := &fakeTokenRepo{tokens: make(map[string]*domain.OAuthToken)}
	for _, t := range tokens {
		repo.tokens[t.ID] = t
	}
	return repo
}

func (r *fakeTokenRepo) StoreToken(_ context.Context, token *domain.OAuthToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.ID] = token
	return nil
}

func (r *fakeTokenRepo) FindTokens(_ context.Context, filter domain.TokenFilter) ([]*domain.OAuthToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.OAuthToken
	for _, t := range r.tokens {
		if len(filter.SessionIDs) > 0 && !contains(filter.SessionIDs, t.SessionID) {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, t.Type) {
			continue
		}
		if filter.CreatedBefore != nil && !t.CreatedAt.Before(*filter.CreatedBefore) {
			continue
		}
		if filter.LastUsedBefore != nil && !t.LastUsedAt.Before(*filter.LastUsedBefore) {
			continue
		}
		if filter.LiveOnly && t.RevokedAt != nil {
			continue
		}
		copied := *t
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeTokenRepo) RevokeTokenIfLive(_ context.Context, tokenID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.revokeErr != nil && r.calls > r.failAfter {
		return false, r.revokeErr
	}
	token, ok := r.tokens[tokenID]
	if !ok || token.RevokedAt != nil {
		return false, nil
	}
	stamp := at
	token.RevokedAt = &stamp
	return true, nil
}

func (r *fakeTokenRepo) DeleteExpiredTokens(_ context.Context) error { return nil }

func (r *fakeTokenRepo) liveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tokens {
		if t.RevokedAt == nil {
			n++
		}
	}
	return n
}

type fakeDirectory struct {
	members map[string][]string // groupID -> direct members
	expand  map[string][]string // groupID -> members incl. subgroups
	admins  map[string]bool
	cyclic  map[string]bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		members: make(map[string][]string),
		expand:  make(map[string][]string),
		admins:  make(map[string]bool),
		cyclic:  make(map[string]bool),
	}
}

func (d *fakeDirectory) GroupMembers(_ context.Context, groupID string, includeSubgroups bool) ([]string, error) {
	if d.cyclic[groupID] && includeSubgroups {
		return nil, domain.ErrCyclicGroupHierarchy
	}
	if includeSubgroups {
		if members, ok := d.expand[groupID]; ok {
			return members, nil
		}
	}
	members, ok := d.members[groupID]
	if !ok {
		return nil, domain.ErrGroupNotFound
	}
	return members, nil
}

func (d *fakeDirectory) IsAdmin(_ context.Context, userID string) (bool, error) {
	return d.admins[userID], nil
}

// fakeJobRepo mirrors the MongoDB job repository's conditional transitions.
type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*domain.BatchLogoutJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[string]*domain.BatchLogoutJob)}
}

func (r *fakeJobRepo) CreateJob(_ context.Context, job *domain.BatchLogoutJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	r.jobs[job.ID] = &copied
	return nil
}

func (r *fakeJobRepo) GetJob(_ context.Context, id string) (*domain.BatchLogoutJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (r *fakeJobRepo) ListJobs(_ context.Context, status domain.JobStatus, limit int) ([]*domain.BatchLogoutJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.BatchLogoutJob
	for _, job := range r.jobs {
		if status != "" && job.Status != status {
			continue
		}
		copied := *job
		out = append(out, &copied)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeJobRepo) ClaimJob(_ context.Context, id string, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status != domain.JobStatusPending {
		if job.Status.IsTerminal() {
			return domain.ErrJobTerminal
		}
		return domain.ErrAlreadyClaimed
	}
	job.Status = domain.JobStatusProcessing
	stamp := startedAt
	job.StartedAt = &stamp
	return nil
}

func (r *fakeJobRepo) UpdateProgress(_ context.Context, id string, progress int, stats *domain.JobStatistics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != domain.JobStatusProcessing {
		return domain.ErrJobTerminal
	}
	job.Progress = progress
	job.Statistics = stats
	return nil
}

func (r *fakeJobRepo) CompleteJob(_ context.Context, id string, stats *domain.JobStatistics, at time.Time) error {
	return r.finalize(id, domain.JobStatusCompleted, stats, nil, at)
}

func (r *fakeJobRepo) FailJob(_ context.Context, id string, stats *domain.JobStatistics, cause *domain.JobError, at time.Time) error {
	return r.finalize(id, domain.JobStatusFailed, stats, cause, at)
}

func (r *fakeJobRepo) CancelPendingJob(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status != domain.JobStatusPending {
		if job.Status.IsTerminal() {
			return domain.ErrJobTerminal
		}
		return domain.ErrAlreadyClaimed
	}
	job.Status = domain.JobStatusCancelled
	stamp := at
	job.CancelledAt = &stamp
	return nil
}

func (r *fakeJobRepo) RequestCancel(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != domain.JobStatusProcessing {
		return domain.ErrJobTerminal
	}
	job.CancelRequested = true
	return nil
}

func (r *fakeJobRepo) MarkCancelled(_ context.Context, id string, stats *domain.JobStatistics, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != domain.JobStatusProcessing {
		return domain.ErrJobTerminal
	}
	job.Status = domain.JobStatusCancelled
	job.Statistics = stats
	stamp := at
	job.CancelledAt = &stamp
	return nil
}

func (r *fakeJobRepo) finalize(id string, status domain.JobStatus, stats *domain.JobStatistics, cause *domain.JobError, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != domain.JobStatusProcessing {
		return domain.ErrJobTerminal
	}
	job.Status = status
	job.Statistics = stats
	job.ErrorDetails = cause
	if status == domain.JobStatusCompleted {
		job.Progress = 100
	}
	stamp := at
	job.CompletedAt = &stamp
	return nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsType(haystack []domain.TokenType, needle domain.TokenType) bool {
	for _, t := range haystack {
		if t == needle {
			return true
		}
	}
	return false
}
