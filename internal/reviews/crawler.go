// Package reviews crawls the paginated review feed of one organization and
// stores every page's records with a single sink call.
package reviews

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-crawler/internal/crawler"
	"github.com/JakeFAU/review-crawler/internal/dispatcher"
	"github.com/JakeFAU/review-crawler/internal/metrics"
	"github.com/JakeFAU/review-crawler/internal/telemetry"
)

const kindReview = "review"

// ErrInvalidPageLimit is returned by Crawl for a work item with no pages.
var ErrInvalidPageLimit = errors.New("page limit must be at least 1")

// Extractor turns a page body into review records.
type Extractor interface {
	Extract(body []byte) []crawler.Record
}

// Config holds per-organization crawl settings.
type Config struct {
	OrgDelayMinSeconds int
	OrgDelayMaxSeconds int
	PageDelay          time.Duration
	MaxWorkers         int
	Database           string
	Collection         string
}

// Result summarizes one organization.
type Result struct {
	URL     string
	Pages   int
	Records int
	Errors  int
}

// Documents is the number of documents handed to the sink.
func (r Result) Documents() int {
	return r.Records + r.Errors
}

// Crawler fetches an organization's pages on a bounded worker pool.
type Crawler struct {
	cfg       Config
	fetcher   crawler.Fetcher
	extractor Extractor
	sink      crawler.Sink
	clock     crawler.Clock
	intN      func(n int) int
	archive   *archiver
	notices   *notifier
	tracer    trace.Tracer
	logger    *zap.Logger
}

// Option customizes a Crawler.
type Option func(*Crawler)

// WithRand replaces the source used for the organization delay.
func WithRand(intN func(n int) int) Option {
	return func(c *Crawler) { c.intN = intN }
}

// WithArchive stores every successfully fetched page body under
// <prefix>/<runID>/<digest>.html.
func WithArchive(store crawler.BlobStore, hasher crawler.Hasher, prefix, runID string) Option {
	return func(c *Crawler) {
		c.archive = &archiver{store: store, hasher: hasher, prefix: prefix, runID: runID}
	}
}

// WithNotices publishes an OrganizationNotice after each organization is stored.
func WithNotices(pub crawler.Publisher, topic, runID string) Option {
	return func(c *Crawler) {
		c.notices = &notifier{pub: pub, topic: topic, runID: runID}
	}
}

// WithTracer records a span per organization.
func WithTracer(t trace.Tracer) Option {
	return func(c *Crawler) { c.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Crawler) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a Crawler.
func New(cfg Config, fetcher crawler.Fetcher, extractor Extractor, sink crawler.Sink, clock crawler.Clock, opts ...Option) *Crawler {
	c := &Crawler{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: extractor,
		sink:      sink,
		clock:     clock,
		intN:      rand.IntN,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tracer = telemetry.TracerOrNoop(c.tracer)
	c.logger = c.logger.Named("reviews")
	return c
}

// Crawl waits a random whole number of seconds in the configured range,
// fetches pages 1..item.PageLimit and persists all documents in page order.
// A page that cannot be fetched contributes one error document instead of
// failing the organization.
func (c *Crawler) Crawl(ctx context.Context, item crawler.WorkItem) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "reviews.Crawl", trace.WithAttributes(
		attribute.String("organization.url", item.URL),
		attribute.Int("organization.page_limit", item.PageLimit),
	))
	defer span.End()

	res, err := c.crawl(ctx, item)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(
		attribute.Int("organization.records", res.Records),
		attribute.Int("organization.errors", res.Errors),
	)
	return res, nil
}

func (c *Crawler) crawl(ctx context.Context, item crawler.WorkItem) (Result, error) {
	res := Result{URL: item.URL, Pages: item.PageLimit}
	if item.PageLimit < 1 {
		return res, fmt.Errorf("crawl %s: %w: got %d", item.URL, ErrInvalidPageLimit, item.PageLimit)
	}
	logger := c.logger.With(zap.String("url", item.URL), zap.Int("pages", item.PageLimit))

	delay := c.orgDelay()
	logger.Info("waiting before organization", zap.Duration("delay", delay))
	if err := c.clock.Sleep(ctx, delay); err != nil {
		return res, fmt.Errorf("organization delay: %w", err)
	}

	urls := PageURLs(item.URL, item.PageLimit)
	pool := dispatcher.NewPool(c.cfg.MaxWorkers)
	perPage, err := dispatcher.Collect(ctx, pool, urls, func(ctx context.Context, pageURL string) ([]crawler.Document, error) {
		return c.crawlPage(ctx, pageURL, logger)
	})
	if err != nil {
		return res, fmt.Errorf("crawl pages of %s: %w", item.URL, err)
	}

	docs := make([]crawler.Document, 0, len(perPage))
	for _, page := range perPage {
		for _, doc := range page {
			if doc.IsError() {
				res.Errors++
			} else {
				res.Records++
			}
			docs = append(docs, doc)
		}
	}

	if err := c.sink.InsertMany(ctx, c.cfg.Database, c.cfg.Collection, docs); err != nil {
		return res, fmt.Errorf("insert documents for %s: %w", item.URL, err)
	}
	metrics.ObserveDocuments(res.Records, res.Errors)
	logger.Info("organization stored",
		zap.Int("records", res.Records),
		zap.Int("errors", res.Errors),
	)

	if c.notices != nil {
		c.notices.publish(ctx, res, c.clock.Now(), logger)
	}
	return res, nil
}

func (c *Crawler) crawlPage(ctx context.Context, pageURL string, logger *zap.Logger) ([]crawler.Document, error) {
	if err := c.clock.Sleep(ctx, c.cfg.PageDelay); err != nil {
		return nil, fmt.Errorf("page delay: %w", err)
	}
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	resp, err := c.fetcher.Fetch(ctx, crawler.FetchRequest{URL: pageURL})
	if err == nil {
		err = resp.CheckStatus()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s: %w", pageURL, ctx.Err())
		}
		metrics.ObservePage(pageURL, kindReview, metrics.PageFailed, len(resp.Body))
		logger.Warn("page failed", zap.String("page", pageURL), zap.Error(err))
		return []crawler.Document{crawler.ErrorDocument(pageURL)}, nil
	}
	metrics.ObservePage(pageURL, kindReview, metrics.PageOK, len(resp.Body))

	if c.archive != nil {
		if uri, err := c.archive.put(ctx, resp.Body); err != nil {
			logger.Warn("archive page failed", zap.String("page", pageURL), zap.Error(err))
		} else {
			logger.Debug("page archived", zap.String("page", pageURL), zap.String("uri", uri))
		}
	}

	records := c.extractor.Extract(resp.Body)
	docs := make([]crawler.Document, len(records))
	for i, rec := range records {
		docs[i] = rec.Document()
	}
	return docs, nil
}

func (c *Crawler) orgDelay() time.Duration {
	lo, hi := c.cfg.OrgDelayMinSeconds, c.cfg.OrgDelayMaxSeconds
	secs := lo
	if hi > lo {
		secs += c.intN(hi - lo + 1)
	}
	return time.Duration(secs) * time.Second
}

// PageURLs returns base?page=1 .. base?page=limit.
func PageURLs(base string, limit int) []string {
	if limit < 1 {
		return nil
	}
	urls := make([]string, limit)
	for i := range urls {
		urls[i] = base + "?page=" + strconv.Itoa(i+1)
	}
	return urls
}

type archiver struct {
	store  crawler.BlobStore
	hasher crawler.Hasher
	prefix string
	runID  string
}

func (a *archiver) put(ctx context.Context, body []byte) (string, error) {
	digest, err := a.hasher.Hash(body)
	if err != nil {
		return "", fmt.Errorf("hash page: %w", err)
	}
	key := path.Join(a.prefix, a.runID, digest+".html")
	return a.store.PutObject(ctx, key, "text/html; charset=utf-8", bytes.NewReader(body))
}

type notifier struct {
	pub   crawler.Publisher
	topic string
	runID string
}

func (n *notifier) publish(ctx context.Context, res Result, now time.Time, logger *zap.Logger) {
	notice := crawler.OrganizationNotice{
		RunID:     n.runID,
		URL:       res.URL,
		Pages:     res.Pages,
		Records:   res.Records,
		Errors:    res.Errors,
		Timestamp: now,
	}
	id, err := n.pub.Publish(ctx, n.topic, notice)
	if err != nil {
		logger.Warn("publish notice failed", zap.Error(err))
		return
	}
	logger.Debug("notice published", zap.String("message_id", id))
}
