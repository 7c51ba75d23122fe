// Package postgres stores review documents as JSONB rows, one table per
// collection inside a schema named after the database.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/review-crawler/internal/crawler"
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Close()
}

// DocumentStore implements crawler.Sink on Postgres.
type DocumentStore struct {
	pool    pool
	ensured sync.Map
}

// Open connects a pgx pool.
func Open(ctx context.Context, cfg Config) (*DocumentStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sink.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DocumentStore{pool: p}, nil
}

// NewWithPool wraps an existing pool (primarily for testing).
func NewWithPool(p pool) (*DocumentStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &DocumentStore{pool: p}, nil
}

// Close releases the pool.
func (s *DocumentStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// InsertMany copies docs into database.collection, creating the schema and
// table on first use. An empty batch is a no-op.
func (s *DocumentStore) InsertMany(ctx context.Context, database, collection string, docs []crawler.Document) error {
	if !validIdentifier.MatchString(database) {
		return fmt.Errorf("invalid database name %q", database)
	}
	if !validIdentifier.MatchString(collection) {
		return fmt.Errorf("invalid collection name %q", collection)
	}
	if len(docs) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, database, collection); err != nil {
		return err
	}

	rows := make([][]any, len(docs))
	for i, d := range docs {
		rows[i] = []any{map[string]string(d)}
	}
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{database, collection}, []string{"document"}, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy documents into %s.%s: %w", database, collection, err)
	}
	if n != int64(len(docs)) {
		return fmt.Errorf("copy documents into %s.%s: wrote %d of %d", database, collection, n, len(docs))
	}
	return nil
}

func (s *DocumentStore) ensureCollection(ctx context.Context, database, collection string) error {
	key := database + "." + collection
	if _, ok := s.ensured.Load(key); ok {
		return nil
	}
	schema := pgx.Identifier{database}.Sanitize()
	table := pgx.Identifier{database, collection}.Sanitize()
	if _, err := s.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
		return fmt.Errorf("create schema %s: %w", database, err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	document JSONB NOT NULL,
	inserted_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", key, err)
	}
	s.ensured.Store(key, struct{}{})
	return nil
}
