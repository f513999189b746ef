package mongodb

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.pilab.hu/revoker/domain"
)

// ClientRepositoryMongo implements domain.ClientRepository using MongoDB.
type ClientRepositoryMongo struct {
	coll *mongo.Collection
}

// NewClientRepositoryMongo creates a new ClientRepositoryMongo.
func NewClientRepositoryMongo(db *mongo.Database) domain.ClientRepository {
	return &ClientRepositoryMongo{
		coll: db.Collection(ClientsCollection),
	}
}

// GetClient retrieves a registered client by id.
func (r *ClientRepositoryMongo) GetClient(ctx context.Context, clientID string) (*domain.OAuthClient, error) {
	var client domain.OAuthClient
	err := r.coll.FindOne(ctx, bson.M{"_id": clientID}).Decode(&client)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrClientNotFound
	}
	if err != nil {
		log.Error().Err(err).Str("client_id", clientID).Msg("Error getting client from MongoDB")
		return nil, err
	}
	return &client, nil
}

var _ domain.ClientRepository = (*ClientRepositoryMongo)(nil)
