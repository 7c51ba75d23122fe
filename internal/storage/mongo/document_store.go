// Package mongo implements crawler.Sink on MongoDB.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/JakeFAU/review-crawler/internal/crawler"
)

// Config holds the connection string and startup ping timeout.
type Config struct {
	URI         string
	PingTimeout time.Duration
}

// inserter is the part of *mongo.Collection the store uses.
type inserter interface {
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
}

// DocumentStore inserts review documents into collections of one client.
type DocumentStore struct {
	client     *mongo.Client
	collection func(database, collection string) inserter
}

// Open connects and pings the server.
func Open(ctx context.Context, cfg Config) (*DocumentStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("sink.mongo_uri is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &DocumentStore{
		client: client,
		collection: func(database, collection string) inserter {
			return client.Database(database).Collection(collection)
		},
	}, nil
}

// Close disconnects the client.
func (s *DocumentStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// InsertMany writes docs in order with a single InsertMany. An empty batch
// is a no-op, since the server rejects empty inserts.
func (s *DocumentStore) InsertMany(ctx context.Context, database, collection string, docs []crawler.Document) error {
	if len(docs) == 0 {
		return nil
	}
	batch := make([]interface{}, len(docs))
	for i, d := range docs {
		batch[i] = map[string]string(d)
	}
	res, err := s.collection(database, collection).InsertMany(ctx, batch, options.InsertMany().SetOrdered(true))
	if err != nil {
		return fmt.Errorf("insert into %s.%s: %w", database, collection, err)
	}
	if len(res.InsertedIDs) != len(docs) {
		return fmt.Errorf("insert into %s.%s: inserted %d of %d", database, collection, len(res.InsertedIDs), len(docs))
	}
	return nil
}
