// Package comparison reads the annual-comparison auxiliary dataset from
// MongoDB. Schema and indexing of the collection are maintained by a
// separate ingestion tool; documents pass through unmodeled.
package comparison

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "annual_comparison"

// Store wraps the MongoDB client for annual-comparison lookups.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Connect dials MongoDB and verifies the connection.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	return &Store{
		client:     client,
		collection: client.Database(database).Collection(collectionName),
	}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Fetch returns all annual-comparison documents for a station, variable
// and period. The internal object ids are projected away so the result
// serializes cleanly.
func (s *Store) Fetch(ctx context.Context, stationID int, variable, period string) ([]bson.M, error) {
	filter := bson.M{
		"station_id": stationID,
		"variable":   variable,
		"period":     period,
	}

	cursor, err := s.collection.Find(ctx, filter,
		options.Find().SetProjection(bson.M{"_id": 0}))
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collectionName, err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	docs := []bson.M{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding %s documents: %w", collectionName, err)
	}
	return docs, nil
}
