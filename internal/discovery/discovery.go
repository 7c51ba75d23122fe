// Package discovery finds organization URLs on category listing pages and
// probes each organization for its page count.
package discovery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-crawler/internal/config"
	"github.com/JakeFAU/review-crawler/internal/crawler"
	"github.com/JakeFAU/review-crawler/internal/dispatcher"
	"github.com/JakeFAU/review-crawler/internal/extract"
	"github.com/JakeFAU/review-crawler/internal/metrics"
)

// Page kinds reported to metrics.
const (
	kindListing = "listing"
	kindProbe   = "probe"
)

// ListingConfig configures listing discovery.
type ListingConfig struct {
	Crawler      config.CrawlerConfig
	CardSelector string
	Warmup       time.Duration
}

// ListingDiscoverer fetches every listing page concurrently and collects the
// organization links found on them.
type ListingDiscoverer struct {
	cfg      ListingConfig
	fetcher  crawler.Fetcher
	clock    crawler.Clock
	strategy dispatcher.Strategy
	logger   *zap.Logger
}

// NewListingDiscoverer wires a discoverer that runs its fetches as one batch.
func NewListingDiscoverer(cfg ListingConfig, fetcher crawler.Fetcher, clock crawler.Clock, logger *zap.Logger) *ListingDiscoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListingDiscoverer{
		cfg:      cfg,
		fetcher:  fetcher,
		clock:    clock,
		strategy: dispatcher.BatchJoin{},
		logger:   logger.Named("discovery"),
	}
}

// Discover returns the organization URLs of listing pages 1..numPages, in
// page order and then card order. Any failed page aborts the whole batch.
func (d *ListingDiscoverer) Discover(ctx context.Context, numPages int) ([]string, error) {
	pages := make([]int, numPages)
	for i := range pages {
		pages[i] = i + 1
	}
	perPage, err := dispatcher.Collect(ctx, d.strategy, pages, d.discoverPage)
	if err != nil {
		return nil, fmt.Errorf("discover listings: %w", err)
	}

	var links []string
	for _, l := range perPage {
		links = append(links, l...)
	}
	d.logger.Info("listing discovery complete",
		zap.Int("pages", numPages),
		zap.Int("organizations", len(links)),
	)
	return links, nil
}

func (d *ListingDiscoverer) discoverPage(ctx context.Context, page int) ([]string, error) {
	if err := d.clock.Sleep(ctx, d.cfg.Warmup); err != nil {
		return nil, err
	}
	url := d.cfg.Crawler.ListingURL(page)
	body, err := fetchOK(ctx, d.fetcher, url, kindListing)
	if err != nil {
		return nil, err
	}
	links, err := extract.ListingLinks(body, d.cfg.Crawler.Origin, d.cfg.CardSelector)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("listing page parsed", zap.String("url", url), zap.Int("links", len(links)))
	return links, nil
}

// fetchOK fetches url and returns the body of a 200 response.
func fetchOK(ctx context.Context, fetcher crawler.Fetcher, url, kind string) ([]byte, error) {
	resp, err := fetcher.Fetch(ctx, crawler.FetchRequest{URL: url})
	if err != nil {
		metrics.ObservePage(url, kind, metrics.PageFailed, 0)
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if err := resp.CheckStatus(); err != nil {
		metrics.ObservePage(url, kind, metrics.PageFailed, len(resp.Body))
		return nil, err
	}
	metrics.ObservePage(url, kind, metrics.PageOK, len(resp.Body))
	return resp.Body, nil
}
