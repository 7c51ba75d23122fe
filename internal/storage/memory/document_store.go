package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/JakeFAU/review-crawler/internal/crawler"
)

// Batch is one InsertMany call.
type Batch struct {
	Database   string
	Collection string
	Documents  []crawler.Document
}

// DocumentStore implements crawler.Sink by recording every batch.
type DocumentStore struct {
	mu      sync.RWMutex
	batches []Batch
}

// NewDocumentStore returns an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{}
}

// InsertMany records a copy of docs as one batch.
func (s *DocumentStore) InsertMany(ctx context.Context, database, collection string, docs []crawler.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	copied := make([]crawler.Document, len(docs))
	for i, d := range docs {
		copied[i] = maps.Clone(d)
	}
	s.mu.Lock()
	s.batches = append(s.batches, Batch{Database: database, Collection: collection, Documents: copied})
	s.mu.Unlock()
	return nil
}

// Batches returns the recorded batches in call order.
func (s *DocumentStore) Batches() []Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Batch(nil), s.batches...)
}

// Documents returns every stored document of database.collection.
func (s *DocumentStore) Documents(database, collection string) []crawler.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.Document
	for _, b := range s.batches {
		if b.Database == database && b.Collection == collection {
			out = append(out, b.Documents...)
		}
	}
	return out
}
