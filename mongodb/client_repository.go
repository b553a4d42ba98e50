package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/ohmage/oauth2/domain"
)

// ClientRepository implements domain.ClientRepository on MongoDB.
type ClientRepository struct {
	coll *mongo.Collection
}

func NewClientRepository(db *mongo.Database) *ClientRepository {
	return &ClientRepository{
		coll: db.Collection(ClientsCollection),
	}
}

// CreateClient implements domain.ClientRepository.
func (r *ClientRepository) CreateClient(ctx context.Context, client *domain.OAuthClient) error {
	_, err := r.coll.InsertOne(ctx, client)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateRecord
		}
		return fmt.Errorf("failed to save oauth client: %w", err)
	}
	return nil
}

// GetClient implements domain.ClientRepository.
func (r *ClientRepository) GetClient(ctx context.Context, clientID string) (*domain.OAuthClient, error) {
	var client domain.OAuthClient
	err := r.coll.FindOne(ctx, bson.M{"client_id": clientID}).Decode(&client)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to retrieve oauth client: %w", err)
	}
	return &client, nil
}

// UpdateClient implements domain.ClientRepository.
func (r *ClientRepository) UpdateClient(ctx context.Context, client *domain.OAuthClient) error {
	result, err := r.coll.ReplaceOne(ctx, bson.M{"client_id": client.ID}, client)
	if err != nil {
		return fmt.Errorf("failed to update oauth client: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrClientNotFound
	}
	return nil
}

// ListClientIDs implements domain.ClientRepository.
func (r *ClientRepository) ListClientIDs(ctx context.Context, owner string) ([]string, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"owner": owner})
	if err != nil {
		return nil, fmt.Errorf("failed to list oauth clients: %w", err)
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var client domain.OAuthClient
		if err := cursor.Decode(&client); err != nil {
			return nil, fmt.Errorf("failed to decode oauth client: %w", err)
		}
		ids = append(ids, client.ID)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to list oauth clients: %w", err)
	}
	return ids, nil
}
