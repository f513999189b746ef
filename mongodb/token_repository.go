package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.pilab.hu/revoker/domain"
)

// TokenRepositoryMongo implements domain.TokenRepository using MongoDB.
type TokenRepositoryMongo struct {
	coll *mongo.Collection
}

// NewTokenRepositoryMongo creates the repository and ensures its indexes.
func NewTokenRepositoryMongo(ctx context.Context, db *mongo.Database) (domain.TokenRepository, error) {
	repo := &TokenRepositoryMongo{
		coll: db.Collection(TokensCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "revoked_at", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}
	if _, err := repo.coll.Indexes().CreateMany(ctx, indexModels, options.CreateIndexes()); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for oauth_tokens collection (might already exist or other error)")
	}

	return repo, nil
}

// StoreToken persists a token.
func (r *TokenRepositoryMongo) StoreToken(ctx context.Context, token *domain.OAuthToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	_, err := r.coll.InsertOne(ctx, token)
	return err
}

// FindTokens retrieves tokens matching the filter, ascending created_at.
// Time bounds are strict: created_at < CreatedBefore.
func (r *TokenRepositoryMongo) FindTokens(ctx context.Context, filter domain.TokenFilter) ([]*domain.OAuthToken, error) {
	mongoFilter := bson.M{}
	if len(filter.SessionIDs) > 0 {
		mongoFilter["session_id"] = bson.M{"$in": filter.SessionIDs}
	}
	if len(filter.Types) > 0 {
		mongoFilter["token_type"] = bson.M{"$in": filter.Types}
	}
	if filter.CreatedBefore != nil {
		mongoFilter["created_at"] = bson.M{"$lt": *filter.CreatedBefore}
	}
	if filter.LastUsedBefore != nil {
		mongoFilter["last_used_at"] = bson.M{"$lt": *filter.LastUsedBefore}
	}
	if filter.LiveOnly {
		mongoFilter["revoked_at"] = nil
	}

	cursor, err := r.coll.Find(ctx, mongoFilter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		log.Error().Err(err).Msg("Error finding tokens in MongoDB")
		return nil, err
	}
	defer cursor.Close(ctx)

	var tokens []*domain.OAuthToken
	if err = cursor.All(ctx, &tokens); err != nil {
		log.Error().Err(err).Msg("Error decoding tokens from MongoDB")
		return nil, err
	}
	return tokens, nil
}

// RevokeTokenIfLive sets revoked_at on the token if it is currently null.
// The conditional update is the atomic revoke primitive: whichever caller
// matches first wins, a second call modifies nothing and returns false.
func (r *TokenRepositoryMongo) RevokeTokenIfLive(ctx context.Context, tokenID string, at time.Time) (bool, error) {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": tokenID, "revoked_at": nil},
		bson.M{"$set": bson.M{"revoked_at": at.UTC()}},
	)
	if err != nil {
		log.Error().Err(err).Str("token_id", tokenID).Msg("Error revoking token")
		return false, fmt.Errorf("failed to revoke token: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

// DeleteExpiredTokens sweeps tokens past their expiry.
func (r *TokenRepositoryMongo) DeleteExpiredTokens(ctx context.Context) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": time.Now().UTC()}})
	return err
}

var _ domain.TokenRepository = (*TokenRepositoryMongo)(nil)
