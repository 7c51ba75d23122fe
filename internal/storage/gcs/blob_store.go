// Package gcs archives crawled pages in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

// Config captures the bucket to archive into.
type Config struct {
	Bucket string
}

// BlobStore writes page bodies to a bucket. Paths are content addressed, so
// an object that already exists is left untouched.
type BlobStore struct {
	client *storage.Client
	bucket string
	logger *zap.Logger
}

// Open creates a storage client from application default credentials and
// verifies the bucket is reachable.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*BlobStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil && logger != nil {
			logger.Warn("close gcs client after bucket check failed", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("get gcs bucket %q attributes: %w", cfg.Bucket, err)
	}
	return New(client, cfg, logger)
}

// New wraps an existing client.
func New(client *storage.Client, cfg Config, logger *zap.Logger) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobStore{client: client, bucket: cfg.Bucket, logger: logger.Named("gcs")}, nil
}

// PutObject uploads data unless the object exists and returns its gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	uri := URI(s.bucket, path)
	obj := s.client.Bucket(s.bucket).Object(path).If(storage.Conditions{DoesNotExist: true})
	writer := obj.NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object %s: %w (close writer: %v)", uri, err, closeErr)
		}
		return "", fmt.Errorf("copy object %s: %w", uri, err)
	}
	if err := writer.Close(); err != nil {
		if alreadyExists(err) {
			s.logger.Debug("object already archived", zap.String("uri", uri))
			return uri, nil
		}
		return "", fmt.Errorf("close writer for %s: %w", uri, err)
	}
	return uri, nil
}

// Close releases the client.
func (s *BlobStore) Close() error {
	return s.client.Close()
}

// URI formats a gs:// object URI.
func URI(bucket, path string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, path)
}

func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
