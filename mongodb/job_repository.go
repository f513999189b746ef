package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.pilab.hu/revoker/domain"
)

// BatchJobRepositoryMongo implements domain.BatchJobRepository using MongoDB.
// The claim and cancel transitions are single conditional updates, so
// concurrent workers race on the document instead of holding locks.
type BatchJobRepositoryMongo struct {
	coll *mongo.Collection
}

// NewBatchJobRepositoryMongo creates the repository and ensures its indexes.
func NewBatchJobRepositoryMongo(ctx context.Context, db *mongo.Database) (domain.BatchJobRepository, error) {
	repo := &BatchJobRepositoryMongo{
		coll: db.Collection(BatchJobsCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "priority", Value: -1}, {Key: "created_at", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "initiated_by", Value: 1}},
			Options: options.Index(),
		},
	}
	if _, err := repo.coll.Indexes().CreateMany(ctx, indexModels, options.CreateIndexes()); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for batch jobs collection (might already exist or other error)")
	}

	return repo, nil
}

// CreateJob persists a new job in pending state.
func (r *BatchJobRepositoryMongo) CreateJob(ctx context.Context, job *domain.BatchLogoutJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	_, err := r.coll.InsertOne(ctx, job)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("job %s already exists", job.ID)
		}
		log.Error().Err(err).Msg("Error storing batch job in MongoDB")
		return err
	}
	return nil
}

// GetJob retrieves a job by id.
func (r *BatchJobRepositoryMongo) GetJob(ctx context.Context, id string) (*domain.BatchLogoutJob, error) {
	var job domain.BatchLogoutJob
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		log.Error().Err(err).Str("job_id", id).Msg("Error getting batch job from MongoDB")
		return nil, err
	}
	return &job, nil
}

// ListJobs retrieves jobs in the given status, highest priority and oldest
// first. Status "" lists all jobs.
func (r *BatchJobRepositoryMongo) ListJobs(ctx context.Context, status domain.JobStatus, limit int) ([]*domain.BatchLogoutJob, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().SetSort(bson.D{{Key: "priority", Value: -1}, {Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		log.Error().Err(err).Msg("Error listing batch jobs from MongoDB")
		return nil, err
	}
	defer cursor.Close(ctx)

	var jobs []*domain.BatchLogoutJob
	if err = cursor.All(ctx, &jobs); err != nil {
		log.Error().Err(err).Msg("Error decoding batch jobs from MongoDB")
		return nil, err
	}
	return jobs, nil
}

// ClaimJob atomically transitions pending -> processing. Exactly one worker
// wins; the rest observe ErrAlreadyClaimed.
func (r *BatchJobRepositoryMongo) ClaimJob(ctx context.Context, id string, startedAt time.Time) error {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": domain.JobStatusPending},
		bson.M{"$set": bson.M{
			"status":     domain.JobStatusProcessing,
			"started_at": startedAt.UTC(),
		}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return r.claimConflict(ctx, id)
	}
	return nil
}

// UpdateProgress persists the progress percentage and running statistics of a
// processing job.
func (r *BatchJobRepositoryMongo) UpdateProgress(ctx context.Context, id string, progress int, stats *domain.JobStatistics) error {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": domain.JobStatusProcessing},
		bson.M{"$set": bson.M{
			"progress":   progress,
			"statistics": stats,
		}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrJobTerminal
	}
	return nil
}

// CompleteJob finalises processing -> completed.
func (r *BatchJobRepositoryMongo) CompleteJob(ctx context.Context, id string, stats *domain.JobStatistics, at time.Time) error {
	return r.finalize(ctx, id, bson.M{
		"status":       domain.JobStatusCompleted,
		"progress":     100,
		"statistics":   stats,
		"completed_at": at.UTC(),
	})
}

// FailJob finalises processing -> failed, retaining partial statistics and the
// structured cause.
func (r *BatchJobRepositoryMongo) FailJob(ctx context.Context, id string, stats *domain.JobStatistics, cause *domain.JobError, at time.Time) error {
	return r.finalize(ctx, id, bson.M{
		"status":        domain.JobStatusFailed,
		"statistics":    stats,
		"error_details": cause,
		"completed_at":  at.UTC(),
	})
}

// CancelPendingJob transitions pending -> cancelled directly.
func (r *BatchJobRepositoryMongo) CancelPendingJob(ctx context.Context, id string, at time.Time) error {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": domain.JobStatusPending},
		bson.M{"$set": bson.M{
			"status":       domain.JobStatusCancelled,
			"cancelled_at": at.UTC(),
		}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return r.claimConflict(ctx, id)
	}
	return nil
}

// RequestCancel flags a processing job for cancellation at the next batch
// boundary.
func (r *BatchJobRepositoryMongo) RequestCancel(ctx context.Context, id string) error {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": domain.JobStatusProcessing},
		bson.M{"$set": bson.M{"cancel_requested": true}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrJobTerminal
	}
	return nil
}

// MarkCancelled finalises processing -> cancelled at a batch boundary.
func (r *BatchJobRepositoryMongo) MarkCancelled(ctx context.Context, id string, stats *domain.JobStatistics, at time.Time) error {
	return r.finalize(ctx, id, bson.M{
		"status":       domain.JobStatusCancelled,
		"statistics":   stats,
		"cancelled_at": at.UTC(),
	})
}

// finalize applies a terminal transition guarded on the job still processing,
// so a terminal job is never mutated again.
func (r *BatchJobRepositoryMongo) finalize(ctx context.Context, id string, set bson.M) error {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": domain.JobStatusProcessing},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrJobTerminal
	}
	return nil
}

// claimConflict distinguishes why a conditional pending-state update matched
// nothing.
func (r *BatchJobRepositoryMongo) claimConflict(ctx context.Context, id string) error {
	job, err := r.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return domain.ErrJobTerminal
	}
	return domain.ErrAlreadyClaimed
}

var _ domain.BatchJobRepository = (*BatchJobRepositoryMongo)(nil)
