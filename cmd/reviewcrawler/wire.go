package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-crawler/internal/config"
	"github.com/JakeFAU/review-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/review-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/review-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/review-crawler/internal/fetcher/promote"
	"github.com/JakeFAU/review-crawler/internal/hash"
	"github.com/JakeFAU/review-crawler/internal/headless/detector"
	pubsubpublisher "github.com/JakeFAU/review-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/review-crawler/internal/schedule"
	"github.com/JakeFAU/review-crawler/internal/storage/gcs"
	"github.com/JakeFAU/review-crawler/internal/storage/local"
	"github.com/JakeFAU/review-crawler/internal/storage/memory"
	"github.com/JakeFAU/review-crawler/internal/storage/mongo"
	"github.com/JakeFAU/review-crawler/internal/storage/postgres"
)

const closeTimeout = 10 * time.Second

// closerStack releases resources in reverse order of acquisition.
type closerStack struct {
	fns []namedCloser
}

type namedCloser struct {
	name string
	fn   func(ctx context.Context) error
}

func (s *closerStack) push(name string, fn func(ctx context.Context) error) {
	s.fns = append(s.fns, namedCloser{name: name, fn: fn})
}

func (s *closerStack) closeAll(logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	for i := len(s.fns) - 1; i >= 0; i-- {
		c := s.fns[i]
		if err := c.fn(ctx); err != nil {
			logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
		}
	}
	s.fns = nil
}

// buildFetcher picks the fetch mode. Auto promotes script shells to headless.
func buildFetcher(cfg config.Config, logger *zap.Logger, closers *closerStack) (crawler.Fetcher, error) {
	switch cfg.Fetcher.Mode {
	case config.FetcherColly:
		return newCollyFetcher(cfg), nil
	case config.FetcherHeadless:
		return newHeadlessFetcher(cfg, closers)
	case config.FetcherAuto:
		f, err := newHeadlessFetcher(cfg, closers)
		if err != nil {
			return nil, err
		}
		heuristic := detector.NewHeuristic(cfg.Headless.PromotionThreshold, cfg.Headless.ShellMarkers)
		return promote.New(newCollyFetcher(cfg), f, heuristic, logger), nil
	default:
		return nil, fmt.Errorf("unsupported fetcher mode %q", cfg.Fetcher.Mode)
	}
}

func newCollyFetcher(cfg config.Config) *collyfetcher.Fetcher {
	return collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTP.Timeout(),
	})
}

func newHeadlessFetcher(cfg config.Config, closers *closerStack) (*headlessfetcher.Fetcher, error) {
	f, err := headlessfetcher.New(headlessfetcher.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		UserAgent:         cfg.HTTP.UserAgent,
		NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("headless fetcher: %w", err)
	}
	closers.push("headless browser", func(context.Context) error {
		f.Close()
		return nil
	})
	return f, nil
}

func buildSink(ctx context.Context, cfg config.Config, closers *closerStack) (crawler.Sink, error) {
	switch cfg.Sink.Kind {
	case config.SinkMongo:
		store, err := mongo.Open(ctx, mongo.Config{URI: cfg.Sink.MongoURI})
		if err != nil {
			return nil, err
		}
		closers.push("mongo", store.Close)
		return store, nil
	case config.SinkPostgres:
		store, err := postgres.Open(ctx, postgres.Config{DSN: cfg.Sink.PostgresDSN})
		if err != nil {
			return nil, err
		}
		closers.push("postgres", func(context.Context) error {
			store.Close()
			return nil
		})
		return store, nil
	case config.SinkMemory:
		return memory.NewDocumentStore(), nil
	default:
		return nil, fmt.Errorf("unsupported sink kind %q", cfg.Sink.Kind)
	}
}

// buildArchive returns nil when archiving is disabled.
func buildArchive(ctx context.Context, cfg config.Config, logger *zap.Logger, closers *closerStack) (crawler.BlobStore, error) {
	switch cfg.Archive.Kind {
	case "", config.ArchiveNone:
		return nil, nil
	case config.ArchiveLocal:
		return local.New(local.Config{BaseDir: cfg.Archive.BaseDir})
	case config.ArchiveGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Archive.GCSBucket}, logger)
		if err != nil {
			return nil, err
		}
		closers.push("gcs", func(context.Context) error { return store.Close() })
		return store, nil
	case config.ArchiveMemory:
		return memory.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unsupported archive kind %q", cfg.Archive.Kind)
	}
}

// buildPublisher returns nil unless both a project and a topic are configured.
func buildPublisher(ctx context.Context, cfg config.Config, closers *closerStack) (crawler.Publisher, error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.Topic == "" {
		return nil, nil
	}
	pub, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, err
	}
	closers.push("pubsub", func(context.Context) error { return pub.Close() })
	return pub, nil
}

func buildChooser(cfg config.Config) schedule.Chooser {
	if cfg.Schedule.Chooser == config.ChooserSeeded {
		return schedule.NewSeededChooser(cfg.Schedule.Seed)
	}
	return schedule.NewDigestChooser(hash.NewMD5())
}
