package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "https://www.trustpilot.com", cfg.Crawler.Origin)
	require.Equal(t, 20, cfg.Crawler.NumListingPages)
	require.Equal(t, 50, cfg.Crawler.MaxPagesPerOrg)
	require.Equal(t, 30, cfg.Crawler.MaxWorkers)
	require.Equal(t, 2*time.Second, cfg.Delays.Warmup())
	require.Equal(t, 5*time.Second, cfg.Delays.Page())
	require.Equal(t, 100, cfg.Delays.OrgMinSeconds)
	require.Equal(t, 250, cfg.Delays.OrgMaxSeconds)
	require.Zero(t, cfg.HTTP.Timeout())
	require.Equal(t, FetcherColly, cfg.Fetcher.Mode)
	require.Equal(t, 2048, cfg.Headless.PromotionThreshold)
	require.Equal(t, ChooserDigest, cfg.Schedule.Chooser)
	require.True(t, cfg.Drain.IsolateFailures)
	require.False(t, cfg.Crawler.DedupeURLs)
	require.Equal(t, SinkMongo, cfg.Sink.Kind)
	require.Equal(t, "TrustPilotDatabase", cfg.Sink.Database)
	require.Equal(t, "ReviewCollection", cfg.Sink.Collection)
	require.Equal(t, ArchiveNone, cfg.Archive.Kind)
	require.Equal(t, DefaultFieldSelectors(), cfg.Selectors.Fields)
	require.Equal(t,
		"https://www.trustpilot.com/categories/electronics_technology?page=3&sort=latest_review",
		cfg.Crawler.ListingURL(3),
	)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
crawler:
  origin: https://reviews.example.com/
  category: pets
  num_listing_pages: 1
  max_pages_per_org: 7
  max_workers: 4
  dedupe_urls: true
delays:
  warmup_seconds: 0
  org_min_seconds: 1
  org_max_seconds: 3
  page_seconds: 0
http:
  timeout_seconds: 30
selectors:
  review_block: //section/div
  fields:
    rating:
      path: div/img
      attr: title
schedule:
  chooser: seeded
  seed: 42
drain:
  isolate_failures: false
sink:
  kind: postgres
  database: reviews
  collection: items
  postgres_dsn: postgres://localhost/reviews
archive:
  kind: local
  base_dir: /tmp/pages
logging:
  development: false
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "https://reviews.example.com", cfg.Crawler.Origin)
	require.Equal(t, 7, cfg.Crawler.MaxPagesPerOrg)
	require.True(t, cfg.Crawler.DedupeURLs)
	require.Equal(t, 30*time.Second, cfg.HTTP.Timeout())
	require.Equal(t, "//section/div", cfg.Selectors.ReviewBlock)
	require.Equal(t, FieldSelector{Path: "div/img", Attr: "title"}, cfg.Selectors.Fields[FieldRating])
	require.Equal(t, DefaultFieldSelectors()[FieldTitle], cfg.Selectors.Fields[FieldTitle])
	require.Equal(t, ChooserSeeded, cfg.Schedule.Chooser)
	require.Equal(t, uint64(42), cfg.Schedule.Seed)
	require.False(t, cfg.Drain.IsolateFailures)
	require.Equal(t, SinkPostgres, cfg.Sink.Kind)
	require.Equal(t, ArchiveLocal, cfg.Archive.Kind)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t,
		"https://reviews.example.com/categories/pets?page=1&sort=latest_review",
		cfg.Crawler.ListingURL(1),
	)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CRAWLER_CRAWLER_NUM_LISTING_PAGES", "3")
	t.Setenv("CRAWLER_SINK_KIND", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Crawler.NumListingPages)
	require.Equal(t, SinkMemory, cfg.Sink.Kind)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Crawler: CrawlerConfig{
			Origin:          "https://example.com",
			Category:        "tech",
			NumListingPages: 1,
			MaxPagesPerOrg:  50,
			MaxWorkers:      30,
		},
		Delays:  DelaysConfig{OrgMinSeconds: 1, OrgMaxSeconds: 2},
		Fetcher: FetcherConfig{Mode: FetcherColly},
		Selectors: SelectorsConfig{
			ListingCard:      "div.card",
			PaginationMarker: "pagination-button-last",
			ReviewBlock:      "//section/div",
			Fields:           DefaultFieldSelectors(),
		},
		Schedule: ScheduleConfig{Chooser: ChooserDigest},
		Sink:     SinkConfig{Kind: SinkMemory, Database: "db", Collection: "col"},
		Archive:  ArchiveConfig{Kind: ArchiveNone},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "listing pages", mutate: func(c *Config) { c.Crawler.NumListingPages = 0 }, want: "crawler.num_listing_pages"},
		{name: "page ceiling", mutate: func(c *Config) { c.Crawler.MaxPagesPerOrg = 0 }, want: "crawler.max_pages_per_org"},
		{name: "workers", mutate: func(c *Config) { c.Crawler.MaxWorkers = 0 }, want: "crawler.max_workers"},
		{name: "org delay order", mutate: func(c *Config) { c.Delays.OrgMaxSeconds = 0 }, want: "delays.org_max_seconds"},
		{name: "fetcher mode", mutate: func(c *Config) { c.Fetcher.Mode = "curl" }, want: "fetcher.mode"},
		{name: "chooser", mutate: func(c *Config) { c.Schedule.Chooser = "fifo" }, want: "schedule.chooser"},
		{
			name: "promotion threshold",
			mutate: func(c *Config) {
				c.Fetcher.Mode = FetcherAuto
				c.Headless.PromotionThreshold = -1
			},
			want: "headless.promotion_threshold",
		},
		{name: "sink kind", mutate: func(c *Config) { c.Sink.Kind = "redis" }, want: "sink.kind"},
		{name: "mongo uri", mutate: func(c *Config) { c.Sink.Kind = SinkMongo }, want: "sink.mongo_uri"},
		{name: "postgres dsn", mutate: func(c *Config) { c.Sink.Kind = SinkPostgres }, want: "sink.postgres_dsn"},
		{name: "collection", mutate: func(c *Config) { c.Sink.Collection = "" }, want: "sink.collection"},
		{name: "archive bucket", mutate: func(c *Config) { c.Archive.Kind = ArchiveGCS }, want: "archive.gcs_bucket"},
		{name: "archive dir", mutate: func(c *Config) { c.Archive.Kind = ArchiveLocal }, want: "archive.base_dir"},
		{
			name: "field path",
			mutate: func(c *Config) {
				c.Selectors.Fields = map[string]FieldSelector{FieldUsername: {Path: "a"}}
			},
			want: "selectors.fields.location.path",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Selectors.Fields = DefaultFieldSelectors()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
