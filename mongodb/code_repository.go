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

// CodeRepository implements domain.AuthorizationCodeRepository on MongoDB.
type CodeRepository struct {
	coll *mongo.Collection
}

func NewCodeRepository(db *mongo.Database) *CodeRepository {
	return &CodeRepository{
		coll: db.Collection(CodesCollection),
	}
}

// AddCode implements domain.AuthorizationCodeRepository.
func (r *CodeRepository) AddCode(ctx context.Context, code *domain.AuthorizationCode) error {
	if code.Code == "" {
		return errors.New("authorization code value cannot be empty")
	}

	_, err := r.coll.InsertOne(ctx, code)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateRecord
		}
		log.Error().Err(err).Str("code", code.Code).Msg("Error saving authorization code")
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	log.Debug().Str("code", code.Code).Str("clientID", code.OAuthClientID).Msg("Authorization code saved")

	return nil
}

// GetCode implements domain.AuthorizationCodeRepository.
func (r *CodeRepository) GetCode(ctx context.Context, codeValue string) (*domain.AuthorizationCode, error) {
	var code domain.AuthorizationCode
	err := r.coll.FindOne(ctx, bson.M{"code": codeValue}).Decode(&code)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrCodeNotFound
		}
		log.Error().Err(err).Str("code", codeValue).Msg("Error retrieving authorization code")
		return nil, fmt.Errorf("failed to retrieve authorization code: %w", err)
	}
	return &code, nil
}

// GetCodesByResponder implements domain.AuthorizationCodeRepository.
func (r *CodeRepository) GetCodesByResponder(ctx context.Context, userID string) ([]*domain.AuthorizationCode, error) {
	cursor, err := r.coll.Find(ctx,
		bson.M{"response.user_id": userID},
		options.Find().SetSort(bson.D{{Key: "creation_timestamp", Value: 1}}))
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("Error listing authorization codes by responder")
		return nil, fmt.Errorf("failed to list authorization codes: %w", err)
	}

	var codes []*domain.AuthorizationCode
	if err := cursor.All(ctx, &codes); err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("Error decoding authorization codes")
		return nil, fmt.Errorf("failed to decode authorization codes: %w", err)
	}
	return codes, nil
}

// ReplaceCode implements domain.AuthorizationCodeRepository. The filter
// pins the mutable fields to the values read in old, so the replace only
// lands if no concurrent writer got there first.
func (r *CodeRepository) ReplaceCode(ctx context.Context, old, updated *domain.AuthorizationCode) error {
	filter := bson.M{"code": old.Code}

	if old.UsedTimestamp == 0 {
		filter["used_timestamp"] = bson.M{"$exists": false}
	} else {
		filter["used_timestamp"] = old.UsedTimestamp
	}

	if old.Response == nil {
		filter["response"] = bson.M{"$exists": false}
	} else {
		filter["response.user_id"] = old.Response.UserID
		filter["response.granted"] = old.Response.Granted
		if old.Response.InvalidationTimestamp == 0 {
			filter["response.invalidation_timestamp"] = bson.M{"$exists": false}
		} else {
			filter["response.invalidation_timestamp"] = old.Response.InvalidationTimestamp
		}
	}

	result, err := r.coll.ReplaceOne(ctx, filter, updated)
	if err != nil {
		log.Error().Err(err).Str("code", old.Code).Msg("Error replacing authorization code")
		return fmt.Errorf("failed to replace authorization code: %w", err)
	}
	if result.MatchedCount == 0 {
		// Either the code never existed or a concurrent writer changed it.
		err := r.coll.FindOne(ctx, bson.M{"code": old.Code}).Err()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrCodeNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to replace authorization code: %w", err)
		}
		return domain.ErrStaleRecord
	}
	return nil
}

// DeleteExpiredCodes implements domain.AuthorizationCodeRepository.
func (r *CodeRepository) DeleteExpiredCodes(ctx context.Context) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"expiration_timestamp": bson.M{"$lte": time.Now().UnixMilli()}})
	return err
}
