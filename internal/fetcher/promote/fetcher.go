// Package promote fetches over plain HTTP first and falls back to a headless
// browser when the response looks like an unrendered shell.
package promote

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-crawler/internal/crawler"
	"github.com/JakeFAU/review-crawler/internal/metrics"
)

// Detector decides whether a response needs a headless fetch.
type Detector interface {
	ShouldPromote(resp crawler.FetchResponse) bool
}

// Fetcher implements crawler.Fetcher over a primary and a headless fetcher.
type Fetcher struct {
	primary  crawler.Fetcher
	headless crawler.Fetcher
	detector Detector
	logger   *zap.Logger
}

// New wires a promoting fetcher.
func New(primary, headless crawler.Fetcher, detector Detector, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		primary:  primary,
		headless: headless,
		detector: detector,
		logger:   logger.Named("promote"),
	}
}

// Fetch returns the primary response unless the detector asks for promotion.
// A failed headless fetch falls back to the primary response.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	resp, err := f.primary.Fetch(ctx, request)
	if err != nil || !f.detector.ShouldPromote(resp) {
		return resp, err
	}

	rendered, err := f.headless.Fetch(ctx, request)
	if err != nil {
		if ctx.Err() != nil {
			return crawler.FetchResponse{}, ctx.Err()
		}
		metrics.ObservePromotion(request.URL, metrics.PageFailed)
		f.logger.Warn("headless fetch failed, keeping http response",
			zap.String("url", request.URL),
			zap.Error(err),
		)
		return resp, nil
	}
	metrics.ObservePromotion(request.URL, metrics.PageOK)
	rendered.UsedHeadless = true
	rendered.Duration += resp.Duration
	return rendered, nil
}
