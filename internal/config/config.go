// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Delays    DelaysConfig    `mapstructure:"delays"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Selectors SelectorsConfig `mapstructure:"selectors"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Drain     DrainConfig     `mapstructure:"drain"`
	Sink      SinkConfig      `mapstructure:"sink"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// CrawlerConfig governs discovery and per-organization pagination.
type CrawlerConfig struct {
	Origin          string `mapstructure:"origin"`
	Category        string `mapstructure:"category"`
	Sort            string `mapstructure:"sort"`
	NumListingPages int    `mapstructure:"num_listing_pages"`
	MaxPagesPerOrg  int    `mapstructure:"max_pages_per_org"`
	MaxWorkers      int    `mapstructure:"max_workers"`
	DedupeURLs      bool   `mapstructure:"dedupe_urls"`
}

// DelaysConfig holds the artificial sleeps, in seconds.
type DelaysConfig struct {
	WarmupSeconds int `mapstructure:"warmup_seconds"`
	OrgMinSeconds int `mapstructure:"org_min_seconds"`
	OrgMaxSeconds int `mapstructure:"org_max_seconds"`
	PageSeconds   int `mapstructure:"page_seconds"`
}

// HTTPConfig configures the HTTP client. A zero timeout means none.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// FetcherConfig picks the page fetcher implementation. Auto fetches over HTTP
// and re-fetches headless when a page looks script-rendered.
type FetcherConfig struct {
	Mode string `mapstructure:"mode"`
}

// HeadlessConfig configures the headless rendering fetcher.
type HeadlessConfig struct {
	MaxParallel        int      `mapstructure:"max_parallel"`
	NavTimeoutSec      int      `mapstructure:"nav_timeout_seconds"`
	PromotionThreshold int      `mapstructure:"promotion_threshold"`
	ShellMarkers       []string `mapstructure:"shell_markers"`
}

// FieldSelector locates one review field relative to a review block.
type FieldSelector struct {
	Path string `mapstructure:"path"`
	Attr string `mapstructure:"attr"`
}

// SelectorsConfig holds every structural selector, so markup drift is a config change.
type SelectorsConfig struct {
	ListingCard      string                   `mapstructure:"listing_card"`
	PaginationMarker string                   `mapstructure:"pagination_marker"`
	ReviewBlock      string                   `mapstructure:"review_block"`
	Fields           map[string]FieldSelector `mapstructure:"fields"`
}

// ScheduleConfig selects the next-key chooser.
type ScheduleConfig struct {
	Chooser string `mapstructure:"chooser"`
	Seed    uint64 `mapstructure:"seed"`
}

// DrainConfig controls failure isolation while draining the work set.
type DrainConfig struct {
	IsolateFailures bool `mapstructure:"isolate_failures"`
}

// SinkConfig selects and configures the document store.
type SinkConfig struct {
	Kind        string `mapstructure:"kind"`
	Database    string `mapstructure:"database"`
	Collection  string `mapstructure:"collection"`
	MongoURI    string `mapstructure:"mongo_uri"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// ArchiveConfig sets where raw page bodies are archived, if anywhere.
type ArchiveConfig struct {
	Kind      string `mapstructure:"kind"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the optional ops HTTP server.
type ServerConfig struct {
	Addr   string `mapstructure:"addr"`
	APIKey string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TracingConfig configures OpenTelemetry span export. An empty endpoint keeps
// spans in-process only.
type TracingConfig struct {
	ServiceName  string            `mapstructure:"service_name"`
	OTLPEndpoint string            `mapstructure:"otlp_endpoint"`
	Headers      map[string]string `mapstructure:"headers"`
}

// Supported enum values.
const (
	FetcherColly    = "colly"
	FetcherHeadless = "headless"
	FetcherAuto     = "auto"

	ChooserDigest = "digest"
	ChooserSeeded = "seeded"

	SinkMongo    = "mongo"
	SinkPostgres = "postgres"
	SinkMemory   = "memory"

	ArchiveNone   = "none"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
	ArchiveMemory = "memory"
)

// Review field names used as keys under selectors.fields.
const (
	FieldUsername = "username"
	FieldLocation = "location"
	FieldReview   = "review"
	FieldRating   = "rating"
	FieldTitle    = "title"
)

// ReviewFields lists the field selector keys every config must define.
var ReviewFields = []string{FieldUsername, FieldLocation, FieldReview, FieldRating, FieldTitle}

// Load builds a Config from disk/environment. An empty path searches the
// default locations and tolerates a missing file.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/reviewcrawler/")
		v.AddConfigPath("$HOME/.reviewcrawler")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.origin", "https://www.trustpilot.com")
	v.SetDefault("crawler.category", "electronics_technology")
	v.SetDefault("crawler.sort", "latest_review")
	v.SetDefault("crawler.num_listing_pages", 20)
	v.SetDefault("crawler.max_pages_per_org", 50)
	v.SetDefault("crawler.max_workers", 30)
	v.SetDefault("crawler.dedupe_urls", false)
	v.SetDefault("delays.warmup_seconds", 2)
	v.SetDefault("delays.org_min_seconds", 100)
	v.SetDefault("delays.org_max_seconds", 250)
	v.SetDefault("delays.page_seconds", 5)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.timeout_seconds", 0)
	v.SetDefault("fetcher.mode", FetcherColly)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("headless.shell_markers", []string{})
	v.SetDefault("selectors.listing_card",
		"div.paper_paper__1PY90.paper_outline__lwsUX.card_card__lQWDv.card_noPadding__D8PcU.styles_wrapper__2JOo2")
	v.SetDefault("selectors.pagination_marker", "pagination-button-last")
	v.SetDefault("selectors.review_block", "/html/body/div[1]/div/div/main/div/div[4]/section/div")
	v.SetDefault("schedule.chooser", ChooserDigest)
	v.SetDefault("schedule.seed", 1)
	v.SetDefault("drain.isolate_failures", true)
	v.SetDefault("sink.kind", SinkMongo)
	v.SetDefault("sink.database", "TrustPilotDatabase")
	v.SetDefault("sink.collection", "ReviewCollection")
	v.SetDefault("sink.mongo_uri", "mongodb://localhost:27017/")
	v.SetDefault("archive.kind", ArchiveNone)
	v.SetDefault("sink.postgres_dsn", "")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("archive.base_dir", "")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("server.addr", "")
	v.SetDefault("server.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("tracing.service_name", "review-crawler")
	v.SetDefault("tracing.otlp_endpoint", "")
}

// DefaultFieldSelectors returns the review field paths relative to a review block.
func DefaultFieldSelectors() map[string]FieldSelector {
	return map[string]FieldSelector{
		FieldUsername: {Path: "article/div/aside/div/a/span"},
		FieldLocation: {Path: "article/div/aside/div/a/div/div/span"},
		FieldReview:   {Path: "article/div/section/div[2]/p[1]"},
		FieldRating:   {Path: "article/div/section/div[1]/div[1]/img", Attr: "alt"},
		FieldTitle:    {Path: "article/div/section/div[2]/a/h2"},
	}
}

func (c *Config) normalize() {
	c.Crawler.Origin = strings.TrimRight(strings.TrimSpace(c.Crawler.Origin), "/")
	c.Fetcher.Mode = strings.ToLower(strings.TrimSpace(c.Fetcher.Mode))
	c.Schedule.Chooser = strings.ToLower(strings.TrimSpace(c.Schedule.Chooser))
	c.Sink.Kind = strings.ToLower(strings.TrimSpace(c.Sink.Kind))
	c.Archive.Kind = strings.ToLower(strings.TrimSpace(c.Archive.Kind))
	if c.Archive.Kind == "" {
		c.Archive.Kind = ArchiveNone
	}
	defaults := DefaultFieldSelectors()
	if c.Selectors.Fields == nil {
		c.Selectors.Fields = defaults
		return
	}
	for name, sel := range defaults {
		if _, ok := c.Selectors.Fields[name]; !ok {
			c.Selectors.Fields[name] = sel
		}
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.validateCrawler(); err != nil {
		return err
	}
	if err := c.validateSelectors(); err != nil {
		return err
	}
	switch c.Fetcher.Mode {
	case FetcherColly:
	case FetcherHeadless, FetcherAuto:
		if c.Headless.MaxParallel < 0 {
			return fmt.Errorf("headless.max_parallel must be >= 0")
		}
		if c.Headless.PromotionThreshold < 0 {
			return fmt.Errorf("headless.promotion_threshold must be >= 0")
		}
	default:
		return fmt.Errorf("fetcher.mode must be one of colly, headless, auto")
	}
	switch c.Schedule.Chooser {
	case ChooserDigest, ChooserSeeded:
	default:
		return fmt.Errorf("schedule.chooser must be one of digest, seeded")
	}
	if err := c.validateSink(); err != nil {
		return err
	}
	return c.validateArchive()
}

func (c Config) validateCrawler() error {
	if c.Crawler.Origin == "" {
		return fmt.Errorf("crawler.origin must be set")
	}
	if c.Crawler.Category == "" {
		return fmt.Errorf("crawler.category must be set")
	}
	if c.Crawler.NumListingPages <= 0 {
		return fmt.Errorf("crawler.num_listing_pages must be > 0")
	}
	if c.Crawler.MaxPagesPerOrg <= 0 {
		return fmt.Errorf("crawler.max_pages_per_org must be > 0")
	}
	if c.Crawler.MaxWorkers <= 0 {
		return fmt.Errorf("crawler.max_workers must be > 0")
	}
	if c.Delays.WarmupSeconds < 0 || c.Delays.PageSeconds < 0 || c.Delays.OrgMinSeconds < 0 {
		return fmt.Errorf("delays.* must be >= 0")
	}
	if c.Delays.OrgMaxSeconds < c.Delays.OrgMinSeconds {
		return fmt.Errorf("delays.org_max_seconds must be >= delays.org_min_seconds")
	}
	if c.HTTP.TimeoutSeconds < 0 {
		return fmt.Errorf("http.timeout_seconds must be >= 0")
	}
	return nil
}

func (c Config) validateSelectors() error {
	if strings.TrimSpace(c.Selectors.ListingCard) == "" {
		return fmt.Errorf("selectors.listing_card must be set")
	}
	if strings.TrimSpace(c.Selectors.PaginationMarker) == "" {
		return fmt.Errorf("selectors.pagination_marker must be set")
	}
	if strings.TrimSpace(c.Selectors.ReviewBlock) == "" {
		return fmt.Errorf("selectors.review_block must be set")
	}
	for _, name := range ReviewFields {
		if strings.TrimSpace(c.Selectors.Fields[name].Path) == "" {
			return fmt.Errorf("selectors.fields.%s.path must be set", name)
		}
	}
	return nil
}

func (c Config) validateSink() error {
	if c.Sink.Database == "" {
		return fmt.Errorf("sink.database must be set")
	}
	if c.Sink.Collection == "" {
		return fmt.Errorf("sink.collection must be set")
	}
	switch c.Sink.Kind {
	case SinkMongo:
		if c.Sink.MongoURI == "" {
			return fmt.Errorf("sink.mongo_uri must be set for the mongo sink")
		}
	case SinkPostgres:
		if c.Sink.PostgresDSN == "" {
			return fmt.Errorf("sink.postgres_dsn must be set for the postgres sink")
		}
	case SinkMemory:
	default:
		return fmt.Errorf("sink.kind must be one of mongo, postgres, memory")
	}
	return nil
}

func (c Config) validateArchive() error {
	switch c.Archive.Kind {
	case ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local archive")
		}
	case ArchiveGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.kind must be one of none, local, gcs, memory")
	}
	return nil
}

// ListingURL returns the 1-based listing page URL for the configured category.
func (c CrawlerConfig) ListingURL(page int) string {
	return fmt.Sprintf("%s/categories/%s?page=%d&sort=%s", c.Origin, c.Category, page, c.Sort)
}

// Warmup is the delay before discovery and probe requests.
func (d DelaysConfig) Warmup() time.Duration {
	return time.Duration(d.WarmupSeconds) * time.Second
}

// Page is the delay before each review page request.
func (d DelaysConfig) Page() time.Duration {
	return time.Duration(d.PageSeconds) * time.Second
}

// Timeout converts http.timeout_seconds; zero disables the timeout.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}
