package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ohmage/oauth2/domain"
)

// TokenRepository implements domain.TokenRepository on MongoDB.
type TokenRepository struct {
	coll *mongo.Collection
}

func NewTokenRepository(db *mongo.Database) *TokenRepository {
	return &TokenRepository{
		coll: db.Collection(TokensCollection),
	}
}

// AddToken implements domain.TokenRepository. The unique indexes on
// access_token and refresh_token turn value collisions into
// domain.ErrDuplicateRecord.
func (r *TokenRepository) AddToken(ctx context.Context, token *domain.AuthorizationToken) error {
	_, err := r.coll.InsertOne(ctx, token)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateRecord
		}
		log.Error().Err(err).Str("userID", token.UserID).Msg("Error saving authorization token")
		return fmt.Errorf("failed to save authorization token: %w", err)
	}
	return nil
}

// GetToken implements domain.TokenRepository.
func (r *TokenRepository) GetToken(ctx context.Context, accessToken string) (*domain.AuthorizationToken, error) {
	return r.findOne(ctx, bson.M{"access_token": accessToken})
}

// GetTokenByRefreshToken implements domain.TokenRepository.
func (r *TokenRepository) GetTokenByRefreshToken(ctx context.Context, refreshToken string) (*domain.AuthorizationToken, error) {
	return r.findOne(ctx, bson.M{"refresh_token": refreshToken})
}

// GetTokenByCode implements domain.TokenRepository. Every token in a
// refresh chain carries the originating code, so the oldest match is the
// head of the chain.
func (r *TokenRepository) GetTokenByCode(ctx context.Context, codeValue string) (*domain.AuthorizationToken, error) {
	var token domain.AuthorizationToken
	err := r.coll.FindOne(ctx,
		bson.M{"authorization_code": codeValue},
		options.FindOne().SetSort(bson.D{{Key: "creation_timestamp", Value: 1}}),
	).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTokenNotFound
		}
		log.Error().Err(err).Str("code", codeValue).Msg("Error retrieving token by authorization code")
		return nil, fmt.Errorf("failed to retrieve authorization token: %w", err)
	}
	return &token, nil
}

// ReplaceToken implements domain.TokenRepository. The filter pins status
// and next_token to the values read in old, so only one of two concurrent
// refreshes can claim an active token.
func (r *TokenRepository) ReplaceToken(ctx context.Context, old, updated *domain.AuthorizationToken) error {
	filter := bson.M{
		"access_token": old.AccessToken,
		"status":       old.Status,
	}
	if old.NextToken == "" {
		filter["next_token"] = bson.M{"$exists": false}
	} else {
		filter["next_token"] = old.NextToken
	}

	result, err := r.coll.ReplaceOne(ctx, filter, updated)
	if err != nil {
		log.Error().Err(err).Msg("Error replacing authorization token")
		return fmt.Errorf("failed to replace authorization token: %w", err)
	}
	if result.MatchedCount == 0 {
		err := r.coll.FindOne(ctx, bson.M{"access_token": old.AccessToken}).Err()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrTokenNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to replace authorization token: %w", err)
		}
		return domain.ErrStaleRecord
	}
	return nil
}

// DeleteExpiredTokens implements domain.TokenRepository.
func (r *TokenRepository) DeleteExpiredTokens(ctx context.Context) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"expiration_timestamp": bson.M{"$lte": time.Now().UnixMilli()}})
	return err
}

func (r *TokenRepository) findOne(ctx context.Context, filter bson.M) (*domain.AuthorizationToken, error) {
	var token domain.AuthorizationToken
	err := r.coll.FindOne(ctx, filter).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTokenNotFound
		}
		log.Error().Err(err).Msg("Error retrieving authorization token")
		return nil, fmt.Errorf("failed to retrieve authorization token: %w", err)
	}
	return &token, nil
}
