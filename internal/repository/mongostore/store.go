// Package mongostore implements the user, token and event stores on MongoDB
// with mongo-go-driver v2. Documents are (de)serialized through the bson
// tags on the model structs; collection names and indexes are managed in
// ensureIndexes.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	ColUsers  = "users"
	ColEvents = "events"
)

// Store owns the client connection and hands out the per-collection stores.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    zerolog.Logger
}

// NewStore connects, pings and makes sure indexes exist.
//
// uri: MongoDB connection URI, e.g. "mongodb://localhost:27017"
// dbName: database name, e.g. "campus_events"
func NewStore(uri, dbName string, logger zerolog.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect failed: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping failed: %w", err)
	}

	s := &Store{client: client, db: client.Database(dbName), log: logger.With().Str("component", "mongostore").Logger()}
	if err := s.EnsureIndexes(ctx); err != nil {
		s.log.Warn().Err(err).Msg("ensure indexes failed")
	}
	return s, nil
}

// Users returns the UserStore/TokenStore backed by the users collection.
func (s *Store) Users() *UserRepo { return &UserRepo{col: s.db.Collection(ColUsers)} }

// Events returns the EventStore backed by the events collection.
func (s *Store) Events() *EventRepo { return &EventRepo{col: s.db.Collection(ColEvents)} }

func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

// EnsureIndexes creates the unique and query indexes. It is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	users := s.db.Collection(ColUsers)
	userIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "external_id", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
	}
	if _, err := users.Indexes().CreateMany(ctx, userIdx); err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}

	events := s.db.Collection(ColEvents)
	eventIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "occurs_at", Value: 1}}},
		{Keys: bson.D{{Key: "domains", Value: 1}}},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "occurs_at", Value: -1}}},
	}
	if _, err := events.Indexes().CreateMany(ctx, eventIdx); err != nil {
		return fmt.Errorf("events indexes: %w", err)
	}
	return nil
}
