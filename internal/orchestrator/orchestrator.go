// Package orchestrator drives a crawl run through discovery, probing,
// scheduling and draining of the organization work set.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-crawler/internal/crawler"
	"github.com/JakeFAU/review-crawler/internal/metrics"
	"github.com/JakeFAU/review-crawler/internal/reviews"
	"github.com/JakeFAU/review-crawler/internal/schedule"
	"github.com/JakeFAU/review-crawler/internal/telemetry"
)

// State is a phase of the run. States only move forward.
type State string

// Run states in order.
const (
	StateDiscovering State = "DISCOVERING"
	StateProbing     State = "PROBING"
	StateScheduling  State = "SCHEDULING"
	StateDraining    State = "DRAINING"
	StateDone        State = "DONE"
)

// Discoverer lists organization URLs.
type Discoverer interface {
	Discover(ctx context.Context, numPages int) ([]string, error)
}

// Prober returns the page count of each URL, in input order.
type Prober interface {
	Probe(ctx context.Context, urls []string) ([]int, error)
}

// OrganizationCrawler crawls and stores one organization.
type OrganizationCrawler interface {
	Crawl(ctx context.Context, item crawler.WorkItem) (reviews.Result, error)
}

// Config controls one run.
type Config struct {
	RunID           string
	NumListingPages int
	MaxPagesPerOrg  int
	DedupeURLs      bool
	IsolateFailures bool
}

// Summary describes a finished run.
type Summary struct {
	RunID               string
	Discovered          int
	Organizations       int
	Pages               int
	Records             int
	Errors              int
	FailedOrganizations []string
	Phases              map[State]time.Duration
	Elapsed             time.Duration
}

// Status is a point-in-time view of a run for the ops server.
type Status struct {
	RunID     string `json:"run_id"`
	State     State  `json:"state"`
	Remaining int    `json:"remaining"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

// Orchestrator runs the crawl phases in order.
type Orchestrator struct {
	cfg        Config
	discoverer Discoverer
	prober     Prober
	crawler    OrganizationCrawler
	chooser    schedule.Chooser
	clock      crawler.Clock
	tracer     trace.Tracer
	logger     *zap.Logger

	mu        sync.RWMutex
	state     State
	remaining int
	completed int
	failed    int
}

// New builds an Orchestrator. tracer and logger may be nil.
func New(
	cfg Config,
	discoverer Discoverer,
	prober Prober,
	orgCrawler OrganizationCrawler,
	chooser schedule.Chooser,
	clock crawler.Clock,
	tracer trace.Tracer,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:        cfg,
		discoverer: discoverer,
		prober:     prober,
		crawler:    orgCrawler,
		chooser:    chooser,
		clock:      clock,
		tracer:     telemetry.TracerOrNoop(tracer),
		logger:     logger.Named("orchestrator").With(zap.String("run_id", cfg.RunID)),
		state:      StateDiscovering,
	}
}

// State returns the current phase.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Status returns a snapshot for reporting.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Status{
		RunID:     o.cfg.RunID,
		State:     o.state,
		Remaining: o.remaining,
		Completed: o.completed,
		Failed:    o.failed,
	}
}

// Clip bounds a probed page count: anything below 1 or above limit becomes
// limit.
func Clip(count, limit int) int {
	if count <= 0 || count > limit {
		return limit
	}
	return count
}

// Run executes every phase and returns the run summary. Discovery and probe
// failures abort the run. Drain failures abort it unless IsolateFailures is
// set, in which case the organization is logged and skipped.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.Run", trace.WithAttributes(attribute.String("run.id", o.cfg.RunID)))
	defer span.End()

	start := o.clock.Now()
	summary := Summary{RunID: o.cfg.RunID, Phases: make(map[State]time.Duration)}

	var urls []string
	err := o.phase(ctx, StateDiscovering, &summary, func(ctx context.Context) error {
		var err error
		urls, err = o.discoverer.Discover(ctx, o.cfg.NumListingPages)
		if err != nil {
			return err
		}
		summary.Discovered = len(urls)
		if o.cfg.DedupeURLs {
			urls = dedupe(urls)
		}
		return nil
	})
	if err != nil {
		return o.fail(span, summary, err)
	}

	var counts []int
	err = o.phase(ctx, StateProbing, &summary, func(ctx context.Context) error {
		var err error
		counts, err = o.prober.Probe(ctx, urls)
		return err
	})
	if err != nil {
		return o.fail(span, summary, err)
	}

	var set *schedule.WorkSet
	err = o.phase(ctx, StateScheduling, &summary, func(context.Context) error {
		if len(counts) != len(urls) {
			return fmt.Errorf("probe returned %d counts for %d urls", len(counts), len(urls))
		}
		limits := make([]int, len(counts))
		for i, c := range counts {
			limits[i] = Clip(c, o.cfg.MaxPagesPerOrg)
		}
		var err error
		set, err = schedule.Zip(urls, limits)
		if err != nil {
			return err
		}
		o.setRemaining(set.Len())
		o.logger.Info("work set scheduled", zap.Int("organizations", set.Len()))
		return nil
	})
	if err != nil {
		return o.fail(span, summary, err)
	}

	err = o.phase(ctx, StateDraining, &summary, func(ctx context.Context) error {
		return o.drain(ctx, set, &summary)
	})
	if err != nil {
		return o.fail(span, summary, err)
	}

	o.setState(StateDone)
	summary.Elapsed = o.clock.Now().Sub(start)
	o.logSummary(summary)
	return summary, nil
}

func (o *Orchestrator) drain(ctx context.Context, set *schedule.WorkSet, summary *Summary) error {
	for set.Len() > 0 {
		key, err := o.chooser.Next(set)
		if err != nil {
			return fmt.Errorf("choose next organization: %w", err)
		}
		limit, _ := set.Get(key)

		res, err := o.crawler.Crawl(ctx, crawler.WorkItem{URL: key, PageLimit: limit})
		set.Delete(key)
		o.finishOrganization(set.Len(), err == nil)

		if err != nil {
			if !o.cfg.IsolateFailures || ctx.Err() != nil {
				return fmt.Errorf("crawl %s: %w", key, err)
			}
			o.logger.Error("organization failed", zap.String("url", key), zap.Error(err))
			summary.FailedOrganizations = append(summary.FailedOrganizations, key)
			continue
		}
		summary.Organizations++
		summary.Pages += res.Pages
		summary.Records += res.Records
		summary.Errors += res.Errors
	}
	return nil
}

func (o *Orchestrator) phase(ctx context.Context, state State, summary *Summary, fn func(context.Context) error) error {
	o.setState(state)
	ctx, span := o.tracer.Start(ctx, "orchestrator."+strings.ToLower(string(state)))
	defer span.End()

	o.logger.Info("phase started", zap.String("state", string(state)))
	start := o.clock.Now()
	err := fn(ctx)
	elapsed := o.clock.Now().Sub(start)
	summary.Phases[state] = elapsed
	metrics.ObservePhase(strings.ToLower(string(state)), elapsed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s: %w", strings.ToLower(string(state)), err)
	}
	return nil
}

func (o *Orchestrator) fail(span trace.Span, summary Summary, err error) (Summary, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errors.Is(err, context.Canceled) {
		o.logger.Warn("run canceled", zap.Error(err))
	}
	return summary, err
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) setRemaining(n int) {
	o.mu.Lock()
	o.remaining = n
	o.mu.Unlock()
	metrics.SetWorkRemaining(n)
}

func (o *Orchestrator) finishOrganization(remaining int, ok bool) {
	o.mu.Lock()
	o.remaining = remaining
	if ok {
		o.completed++
	} else {
		o.failed++
	}
	o.mu.Unlock()
	metrics.SetWorkRemaining(remaining)
	if ok {
		metrics.ObserveOrganization("ok")
	} else {
		metrics.ObserveOrganization("failed")
	}
}

func (o *Orchestrator) logSummary(s Summary) {
	fields := []zap.Field{
		zap.Int("discovered", s.Discovered),
		zap.Int("organizations", s.Organizations),
		zap.Int("pages", s.Pages),
		zap.Int("records", s.Records),
		zap.Int("error_documents", s.Errors),
		zap.Strings("failed_organizations", s.FailedOrganizations),
		zap.Duration("elapsed", s.Elapsed),
	}
	for _, st := range []State{StateDiscovering, StateProbing, StateScheduling, StateDraining} {
		fields = append(fields, zap.Duration(strings.ToLower(string(st)), s.Phases[st]))
	}
	o.logger.Info("run complete", fields...)
}

// dedupe drops repeated URLs, keeping the first occurrence.
func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
