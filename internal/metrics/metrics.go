// Package metrics exposes Prometheus collectors for the review crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Page outcomes used as the status label.
const (
	PageOK     = "ok"
	PageFailed = "failed"
)

var (
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerBytesTotal          *prometheus.CounterVec
	crawlerDocumentsTotal      *prometheus.CounterVec
	crawlerOrganizationsTotal  *prometheus.CounterVec
	crawlerPhaseDuration       *prometheus.HistogramVec
	crawlerWorkRemaining       prometheus.Gauge
	crawlerActiveWorkers       prometheus.Gauge
	crawlerPromotionsTotal     *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of pages fetched, labeled by site, kind and status.",
			},
			[]string{"site", "kind", "status"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerDocumentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_documents_total",
				Help: "Total number of documents handed to the sink, labeled by type.",
			},
			[]string{"type"},
		)

		crawlerOrganizationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_organizations_total",
				Help: "Total number of organizations drained, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerPhaseDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_phase_duration_seconds",
				Help:    "Duration of each orchestrator phase.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 14400},
			},
			[]string{"phase"},
		)

		crawlerWorkRemaining = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_work_remaining",
				Help: "Organizations left in the work set.",
			},
		)

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "Number of page workers currently fetching.",
			},
		)

		crawlerPromotionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_headless_promotions_total",
				Help: "Pages re-fetched with the headless browser, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage records one fetched page. kind is listing, probe or review.
func ObservePage(rawURL, kind, status string, bytesFetched int) {
	Init()
	site := SanitizeSite(rawURL)
	crawlerPagesTotal.WithLabelValues(site, kind, status).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveDocuments counts documents persisted for an organization.
func ObserveDocuments(records, errors int) {
	Init()
	crawlerDocumentsTotal.WithLabelValues("review").Add(float64(records))
	crawlerDocumentsTotal.WithLabelValues("error").Add(float64(errors))
}

// ObserveOrganization counts a drained organization by outcome.
func ObserveOrganization(outcome string) {
	Init()
	crawlerOrganizationsTotal.WithLabelValues(outcome).Inc()
}

// ObservePhase records how long an orchestrator phase took.
func ObservePhase(phase string, d time.Duration) {
	Init()
	crawlerPhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// SetWorkRemaining publishes the work set size.
func SetWorkRemaining(n int) {
	Init()
	crawlerWorkRemaining.Set(float64(n))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	crawlerActiveWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObservePromotion counts a headless re-fetch. outcome is PageOK or PageFailed.
func ObservePromotion(rawURL, outcome string) {
	Init()
	crawlerPromotionsTotal.WithLabelValues(SanitizeSite(rawURL), outcome).Inc()
}
