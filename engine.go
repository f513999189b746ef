package revoker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.pilab.hu/revoker/cache"
	"go.pilab.hu/revoker/domain"
	rerrors "go.pilab.hu/revoker/errors"
	"go.pilab.hu/revoker/internal/audit"
	"go.pilab.hu/revoker/internal/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = 2 * time.Second
	// revocationFlagTTL bounds how long a session stays flagged in the fast
	// cache; the persistent store stays authoritative beyond that.
	revocationFlagTTL = 24 * time.Hour
)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithBatchSize overrides the revocation batch size. The size is an
// implementation knob, not part of any contract.
func WithBatchSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithRevocationCache makes the engine flag revoked sessions in the fast
// cache after each batch.
func WithRevocationCache(c cache.RevocationCache) EngineOption {
	return func(e *Engine) { e.revocations = c }
}

// WithAuditRecorder makes the engine record one revoke audit entry per
// finished job.
func WithAuditRecorder(rec *audit.Recorder) EngineOption {
	return func(e *Engine) { e.auditor = rec }
}

// WithClock overrides the engine clock, mainly for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithPollInterval overrides how often worker loops look for pending jobs.
func WithPollInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// Engine owns the batch logout job state machine: it validates and persists
// jobs, claims pending ones, drives the resolver, revokes tokens in
// sequential batches and accumulates statistics. Multiple jobs may run
// concurrently; within one job, batches are strictly sequential.
type Engine struct {
	resolver    *Resolver
	jobs        domain.BatchJobRepository
	tokens      domain.TokenRepository
	revocations cache.RevocationCache
	auditor     *audit.Recorder

	batchSize    int
	pollInterval time.Duration
	now          func() time.Time
}

// NewEngine creates a job execution engine.
func NewEngine(resolver *Resolver, jobs domain.BatchJobRepository, tokens domain.TokenRepository, opts ...EngineOption) *Engine {
	e := &Engine{
		resolver:     resolver,
		jobs:         jobs,
		tokens:       tokens,
		batchSize:    defaultBatchSize,
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit validates the job's conditions and persists it in pending state.
// Resolver errors surface synchronously and no job is persisted, so an
// administrator gets instant feedback instead of a job that fails later.
func (e *Engine) Submit(ctx context.Context, job *domain.BatchLogoutJob) (*domain.BatchLogoutJob, error) {
	if err := e.resolver.ValidateConditions(ctx, job.Type, job.Conditions); err != nil {
		return nil, err
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = domain.JobStatusPending
	job.Progress = 0
	job.CreatedAt = e.now().UTC()
	job.Statistics = nil
	job.ErrorDetails = nil

	if err := e.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("persisting job: %w", err)
	}

	metrics.JobsSubmittedTotal.WithLabelValues(string(job.Type)).Inc()
	log.Info().
		Str("job_id", job.ID).
		Str("type", string(job.Type)).
		Bool("dry_run", job.DryRun).
		Str("initiated_by", job.InitiatedBy).
		Msg("batch logout job submitted")

	return job, nil
}

// Execute claims the job and runs it to a terminal state. Exactly one worker
// wins the claim; the others get ErrAlreadyClaimed and back off. Execution
// errors are captured into the job record, which is the durable error
// channel; the returned error mirrors it for the caller's logging.
func (e *Engine) Execute(ctx context.Context, jobID string) error {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return ErrJobTerminal
	}

	if err := e.jobs.ClaimJob(ctx, jobID, e.now().UTC()); err != nil {
		return err
	}
	metrics.ActiveJobsGauge.Inc()
	defer metrics.ActiveJobsGauge.Dec()

	targets, err := e.resolver.Resolve(ctx, job.Type, job.Conditions)
	if err != nil {
		// Conditions were valid at submit time; a resolve failure here means
		// the store or the referenced entities changed underneath the job.
		return e.fail(ctx, job, nil, err)
	}

	if job.DryRun {
		stats := tallyTargets(targets).Statistics()
		if err := e.jobs.CompleteJob(ctx, jobID, stats, e.now().UTC()); err != nil {
			return fmt.Errorf("completing dry-run job: %w", err)
		}
		metrics.JobsCompletedTotal.Inc()
		return nil
	}

	return e.revokeAll(ctx, job, targets)
}

// revokeAll walks the target set in sequential batches. Tokens already
// revoked by a concurrent job are skipped by the store primitive but still
// count once toward this job's own statistics.
func (e *Engine) revokeAll(ctx context.Context, job *domain.BatchLogoutJob, targets []Target) error {
	total := len(targets)
	acc := newStatsAccumulator()

	for start := 0; start < total; start += e.batchSize {
		cancelled, err := e.cancelRequested(ctx, job.ID)
		if err != nil {
			return e.fail(ctx, job, acc.statistics(), err)
		}
		if cancelled {
			return e.cancel(ctx, job, acc.statistics())
		}

		end := start + e.batchSize
		if end > total {
			end = total
		}

		for _, t := range targets[start:end] {
			flipped, err := e.tokens.RevokeTokenIfLive(ctx, t.TokenID, e.now().UTC())
			if err != nil {
				// Partial revocations stay revoked; revocation is a safety
				// action and is never rolled back.
				return e.fail(ctx, job, acc.statistics(), err)
			}
			acc.count(t)
			if flipped {
				metrics.TokensRevokedTotal.WithLabelValues(string(t.TokenType)).Inc()
			} else {
				log.Debug().Str("token_id", t.TokenID).Msg("token was already revoked, skipped")
			}
		}

		if e.revocations != nil {
			for _, t := range targets[start:end] {
				if err := e.revocations.MarkSessionRevoked(ctx, t.SessionID, revocationFlagTTL); err != nil {
					log.Warn().Err(err).Str("session_id", t.SessionID).Msg("failed to flag revoked session in cache")
				}
			}
		}

		progress := 100
		if total > 0 {
			progress = (end * 100) / total
		}
		if err := e.jobs.UpdateProgress(ctx, job.ID, progress, acc.statistics()); err != nil {
			return e.fail(ctx, job, acc.statistics(), err)
		}
	}

	stats := acc.statistics()
	if err := e.jobs.CompleteJob(ctx, job.ID, stats, e.now().UTC()); err != nil {
		return fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	metrics.JobsCompletedTotal.Inc()
	if e.auditor != nil {
		e.auditor.RecordRevoke(ctx, job.InitiatedBy, job.Conditions.ClientID, true, nil)
	}
	log.Info().
		Str("job_id", job.ID).
		Int("tokens", stats.TotalTokens()).
		Int("sessions", stats.TotalSessionsAffected).
		Int("users", stats.TotalUsersAffected).
		Msg("batch logout job completed")
	return nil
}

// Job returns the current job record, statistics and error details included.
func (e *Engine) Job(ctx context.Context, jobID string) (*domain.BatchLogoutJob, error) {
	return e.jobs.GetJob(ctx, jobID)
}

// Cancel requests cancellation of a job. Pending jobs transition directly to
// cancelled; processing jobs are flagged and the owning worker honours the
// flag at the next batch boundary. Cancelling a terminal job is an error.
func (e *Engine) Cancel(ctx context.Context, jobID string) error {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	switch {
	case job.Status.IsTerminal():
		return ErrJobTerminal
	case job.Status == domain.JobStatusPending:
		err := e.jobs.CancelPendingJob(ctx, jobID, e.now().UTC())
		if errors.Is(err, ErrAlreadyClaimed) {
			// Claimed between the read and the conditional update.
			return e.jobs.RequestCancel(ctx, jobID)
		}
		if err == nil {
			metrics.JobsCancelledTotal.Inc()
		}
		return err
	default:
		return e.jobs.RequestCancel(ctx, jobID)
	}
}

// Run polls for pending jobs with the given number of workers until the
// context is cancelled. Claim races between workers resolve through
// ErrAlreadyClaimed.
func (e *Engine) Run(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			ticker := time.NewTicker(e.pollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					e.runNextPending(ctx)
				}
			}
		})
	}
	return g.Wait()
}

func (e *Engine) runNextPending(ctx context.Context) {
	pending, err := e.jobs.ListJobs(ctx, domain.JobStatusPending, 1)
	if err != nil {
		log.Error().Err(err).Msg("failed to list pending jobs")
		return
	}
	for _, job := range pending {
		err := e.Execute(ctx, job.ID)
		switch {
		case err == nil, errors.Is(err, ErrAlreadyClaimed), errors.Is(err, ErrJobTerminal):
		default:
			log.Error().Err(err).Str("job_id", job.ID).Msg("batch logout job execution failed")
		}
	}
}

func (e *Engine) cancelRequested(ctx context.Context, jobID string) (bool, error) {
	fresh, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	return fresh.CancelRequested, nil
}

func (e *Engine) cancel(ctx context.Context, job *domain.BatchLogoutJob, stats *domain.JobStatistics) error {
	if err := e.jobs.MarkCancelled(ctx, job.ID, stats, e.now().UTC()); err != nil {
		return fmt.Errorf("cancelling job %s: %w", job.ID, err)
	}
	metrics.JobsCancelledTotal.Inc()
	log.Info().Str("job_id", job.ID).Msg("batch logout job cancelled at batch boundary")
	return nil
}

func (e *Engine) fail(ctx context.Context, job *domain.BatchLogoutJob, stats *domain.JobStatistics, cause error) error {
	details := &domain.JobError{
		Code:        rerrors.StoreUnavailable,
		Description: cause.Error(),
	}
	var coded *rerrors.RevocationError
	if errors.As(cause, &coded) {
		details.Code = coded.Code
	}
	if perr := e.jobs.FailJob(ctx, job.ID, stats, details, e.now().UTC()); perr != nil {
		log.Error().Err(perr).Str("job_id", job.ID).Msg("failed to persist job failure")
	}
	metrics.JobsFailedTotal.Inc()
	if e.auditor != nil {
		e.auditor.RecordRevoke(ctx, job.InitiatedBy, job.Conditions.ClientID, false, cause)
	}
	return fmt.Errorf("executing job %s: %w", job.ID, cause)
}

// statsAccumulator tallies the tokens a job attempted, counting each target
// exactly once and tracking distinct sessions and users.
type statsAccumulator struct {
	sessions map[string]struct{}
	users    map[string]struct{}
	access   int
	refresh  int
}

func newStatsAccumulator() *statsAccumulator {
	return &statsAccumulator{
		sessions: make(map[string]struct{}),
		users:    make(map[string]struct{}),
	}
}

func (a *statsAccumulator) count(t Target) {
	a.sessions[t.SessionID] = struct{}{}
	if t.UserID != "" {
		a.users[t.UserID] = struct{}{}
	}
	if t.TokenType == domain.TokenTypeRefresh {
		a.refresh++
	} else {
		a.access++
	}
}

func (a *statsAccumulator) statistics() *domain.JobStatistics {
	return &domain.JobStatistics{
		TotalUsersAffected:        len(a.users),
		TotalSessionsAffected:     len(a.sessions),
		TotalAccessTokensRevoked:  a.access,
		TotalRefreshTokensRevoked: a.refresh,
	}
}
