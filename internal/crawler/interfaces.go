package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher performs a single HTTP GET. Non-200 responses are returned, not
// treated as errors; errors mean the request itself failed.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Sink inserts documents into a named collection of a named database.
type Sink interface {
	InsertMany(ctx context.Context, database, collection string, docs []Document) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes hex digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time and sleeps (useful for testing).
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
