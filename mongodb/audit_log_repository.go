package mongodb

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.pilab.hu/revoker/domain"
)

// AuditLogRepositoryMongo implements domain.AuditLogRepository using MongoDB.
// The collection is append-only: this repository exposes no update or delete
// operation.
type AuditLogRepositoryMongo struct {
	coll *mongo.Collection
}

// NewAuditLogRepositoryMongo creates the repository and ensures its indexes.
func NewAuditLogRepositoryMongo(ctx context.Context, db *mongo.Database) (domain.AuditLogRepository, error) {
	repo := &AuditLogRepositoryMongo{
		coll: db.Collection(AuditLogsCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "action", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "success", Value: 1}},
			Options: options.Index(),
		},
	}
	if _, err := repo.coll.Indexes().CreateMany(ctx, indexModels, options.CreateIndexes()); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for audit logs collection (might already exist or other error)")
	}

	return repo, nil
}

// Append stores one audit entry.
func (r *AuditLogRepositoryMongo) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := r.coll.InsertOne(ctx, entry)
	return err
}

// List retrieves audit entries matching the filter, newest first.
func (r *AuditLogRepositoryMongo) List(ctx context.Context, filter domain.AuditLogFilter) ([]*domain.AuditLogEntry, error) {
	mongoFilter := bson.M{}
	if filter.Action != "" {
		mongoFilter["action"] = filter.Action
	}
	if filter.Success != nil {
		mongoFilter["success"] = *filter.Success
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	cursor, err := r.coll.Find(ctx, mongoFilter, opts)
	if err != nil {
		log.Error().Err(err).Msg("Error listing audit log entries from MongoDB")
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []*domain.AuditLogEntry
	if err = cursor.All(ctx, &entries); err != nil {
		log.Error().Err(err).Msg("Error decoding audit log entries from MongoDB")
		return nil, err
	}
	return entries, nil
}

var _ domain.AuditLogRepository = (*AuditLogRepositoryMongo)(nil)
