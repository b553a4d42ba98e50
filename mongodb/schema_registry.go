package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ohmage/oauth2/domain"
)

// SchemaRegistry implements domain.SchemaRegistry against the stream and
// survey collections owned by the data platform. Each schema version is a
// separate document with schema_id and version fields.
type SchemaRegistry struct {
	streams *mongo.Collection
	surveys *mongo.Collection
}

func NewSchemaRegistry(db *mongo.Database) *SchemaRegistry {
	return &SchemaRegistry{
		streams: db.Collection(StreamsCollection),
		surveys: db.Collection(SurveysCollection),
	}
}

// SchemaExists implements domain.SchemaRegistry. A scope without a version
// matches any version of the schema.
func (r *SchemaRegistry) SchemaExists(ctx context.Context, scope domain.Scope) (bool, error) {
	var coll *mongo.Collection
	switch scope.Type {
	case domain.ScopeTypeStream:
		coll = r.streams
	case domain.ScopeTypeSurvey:
		coll = r.surveys
	default:
		return false, fmt.Errorf("unknown schema type: %s", scope.Type)
	}

	filter := bson.M{"schema_id": scope.SchemaID}
	if scope.SchemaVersion != nil {
		filter["version"] = *scope.SchemaVersion
	}

	count, err := coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to query schema registry: %w", err)
	}
	return count > 0, nil
}
