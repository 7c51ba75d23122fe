package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-crawler/internal/api"
	"github.com/JakeFAU/review-crawler/internal/clock/system"
	"github.com/JakeFAU/review-crawler/internal/config"
	"github.com/JakeFAU/review-crawler/internal/discovery"
	"github.com/JakeFAU/review-crawler/internal/extract"
	"github.com/JakeFAU/review-crawler/internal/hash"
	"github.com/JakeFAU/review-crawler/internal/id/uuid"
	"github.com/JakeFAU/review-crawler/internal/logging"
	"github.com/JakeFAU/review-crawler/internal/metrics"
	"github.com/JakeFAU/review-crawler/internal/orchestrator"
	"github.com/JakeFAU/review-crawler/internal/reviews"
	"github.com/JakeFAU/review-crawler/internal/telemetry"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	start := time.Now()
	cfg, err := config.Load(os.Getenv("CRAWLER_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 1
	}
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := 0
	if err := run(ctx, cfg, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("crawl interrupted", zap.Error(err))
		} else {
			logger.Error("crawl failed", zap.Error(err))
		}
		code = 1
	}
	fmt.Printf("The time of execution of above program is : %dms\n", time.Since(start).Milliseconds())
	return code
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	runID, err := uuid.New().NewID()
	if err != nil {
		return err
	}
	logger = logger.With(zap.String("run_id", runID))

	tp, err := telemetry.InitTracerProvider(ctx, cfg.Tracing, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()
	tracer := tp.Tracer(telemetry.InstrumentationName)
	metrics.Init()

	var closers closerStack
	defer closers.closeAll(logger)

	fetcher, err := buildFetcher(cfg, logger, &closers)
	if err != nil {
		return err
	}
	sink, err := buildSink(ctx, cfg, &closers)
	if err != nil {
		return err
	}
	locator, err := extract.NewXPathLocator(cfg.Selectors.ReviewBlock, cfg.Selectors.Fields)
	if err != nil {
		return err
	}
	clock := system.New()

	opts := []reviews.Option{reviews.WithTracer(tracer), reviews.WithLogger(logger)}
	archive, err := buildArchive(ctx, cfg, logger, &closers)
	if err != nil {
		return err
	}
	if archive != nil {
		opts = append(opts, reviews.WithArchive(archive, hash.NewSHA256(), cfg.Archive.Prefix, runID))
	}
	pub, err := buildPublisher(ctx, cfg, &closers)
	if err != nil {
		return err
	}
	if pub != nil {
		opts = append(opts, reviews.WithNotices(pub, cfg.PubSub.Topic, runID))
	}

	orgCrawler := reviews.New(reviews.Config{
		OrgDelayMinSeconds: cfg.Delays.OrgMinSeconds,
		OrgDelayMaxSeconds: cfg.Delays.OrgMaxSeconds,
		PageDelay:          cfg.Delays.Page(),
		MaxWorkers:         cfg.Crawler.MaxWorkers,
		Database:           cfg.Sink.Database,
		Collection:         cfg.Sink.Collection,
	}, fetcher, extract.NewReviewExtractor(locator), sink, clock, opts...)

	orch := orchestrator.New(
		orchestrator.Config{
			RunID:           runID,
			NumListingPages: cfg.Crawler.NumListingPages,
			MaxPagesPerOrg:  cfg.Crawler.MaxPagesPerOrg,
			DedupeURLs:      cfg.Crawler.DedupeURLs,
			IsolateFailures: cfg.Drain.IsolateFailures,
		},
		discovery.NewListingDiscoverer(discovery.ListingConfig{
			Crawler:      cfg.Crawler,
			CardSelector: cfg.Selectors.ListingCard,
			Warmup:       cfg.Delays.Warmup(),
		}, fetcher, clock, logger),
		discovery.NewPaginationProbe(discovery.ProbeConfig{
			PaginationMarker: cfg.Selectors.PaginationMarker,
			Warmup:           cfg.Delays.Warmup(),
		}, fetcher, clock, logger),
		orgCrawler,
		buildChooser(cfg),
		clock,
		tracer,
		logger,
	)

	if cfg.Server.Addr != "" {
		serverCtx, cancelServer := context.WithCancel(ctx)
		serverDone := make(chan struct{})
		go func() {
			defer close(serverDone)
			srv := api.NewServer(orch, cfg.Server, logger)
			if err := srv.ListenAndServe(serverCtx, cfg.Server.Addr); err != nil {
				logger.Error("ops server stopped", zap.Error(err))
			}
		}()
		defer func() {
			cancelServer()
			<-serverDone
		}()
	}

	logger.Info("crawl starting",
		zap.String("category", cfg.Crawler.Category),
		zap.Int("listing_pages", cfg.Crawler.NumListingPages),
		zap.String("fetcher", cfg.Fetcher.Mode),
		zap.String("sink", cfg.Sink.Kind),
	)
	_, err = orch.Run(ctx)
	return err
}
