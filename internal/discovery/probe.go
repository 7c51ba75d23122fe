package discovery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-crawler/internal/crawler"
	"github.com/JakeFAU/review-crawler/internal/dispatcher"
	"github.com/JakeFAU/review-crawler/internal/extract"
)

// ProbeConfig configures pagination probing.
type ProbeConfig struct {
	PaginationMarker string
	Warmup           time.Duration
}

// PaginationProbe reads the last-page marker of each organization's first page.
type PaginationProbe struct {
	cfg      ProbeConfig
	fetcher  crawler.Fetcher
	clock    crawler.Clock
	strategy dispatcher.Strategy
	logger   *zap.Logger
}

// NewPaginationProbe wires a probe that runs its fetches as one batch.
func NewPaginationProbe(cfg ProbeConfig, fetcher crawler.Fetcher, clock crawler.Clock, logger *zap.Logger) *PaginationProbe {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaginationProbe{
		cfg:      cfg,
		fetcher:  fetcher,
		clock:    clock,
		strategy: dispatcher.BatchJoin{},
		logger:   logger.Named("probe"),
	}
}

// Probe returns the page count of each URL in input order; 0 means no
// pagination marker was found. The warm-up delay is paid once for the batch.
func (p *PaginationProbe) Probe(ctx context.Context, urls []string) ([]int, error) {
	if err := p.clock.Sleep(ctx, p.cfg.Warmup); err != nil {
		return nil, fmt.Errorf("probe warm-up: %w", err)
	}
	counts, err := dispatcher.Collect(ctx, p.strategy, urls, func(ctx context.Context, url string) (int, error) {
		body, err := fetchOK(ctx, p.fetcher, url, kindProbe)
		if err != nil {
			return 0, err
		}
		n, err := extract.LastPage(body, p.cfg.PaginationMarker)
		if err != nil {
			return 0, err
		}
		p.logger.Debug("organization probed", zap.String("url", url), zap.Int("pages", n))
		return n, nil
	})
	if err != nil {
		return nil, fmt.Errorf("probe pagination: %w", err)
	}
	p.logger.Info("pagination probe complete", zap.Int("organizations", len(urls)))
	return counts, nil
}
