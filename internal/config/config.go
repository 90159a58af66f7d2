// Package config loads the topicminer configuration from a YAML file and
// TOPICMINER_* environment variables (environment wins). Every knob has a
// usable default; the only values with no default are the site under research
// and the API keys.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Site       SiteConfig       `mapstructure:"site"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Search     SearchConfig     `mapstructure:"search"`
	Feeds      FeedsConfig      `mapstructure:"feeds"`
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Competitor CompetitorConfig `mapstructure:"competitor"`
	Validation ValidationConfig `mapstructure:"validation"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SiteConfig identifies the customer site and target market.
type SiteConfig struct {
	URL      string `mapstructure:"url"`
	Domain   string `mapstructure:"domain"`
	Vertical string `mapstructure:"vertical"`
	Market   string `mapstructure:"market"`
	Language string `mapstructure:"language"`
}

// LLMConfig configures the structured-generate provider.
type LLMConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SearchConfig configures the paid search fallback.
type SearchConfig struct {
	TavilyAPIKey string        `mapstructure:"tavily_api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// FeedsConfig configures the curated feed store.
type FeedsConfig struct {
	// Backend is one of "json", "sqlite", "postgres".
	Backend string `mapstructure:"backend"`
	// Path is the JSON file or SQLite DSN; DSN is the Postgres connection
	// string.
	Path             string  `mapstructure:"path"`
	DSN              string  `mapstructure:"dsn"`
	QualityThreshold float64 `mapstructure:"quality_threshold"`
}

// CrawlConfig bounds the keyword-extraction crawl.
type CrawlConfig struct {
	MaxDepth      int    `mapstructure:"max_depth"`
	MaxPages      int    `mapstructure:"max_pages"`
	Concurrency   int    `mapstructure:"concurrency"`
	RespectRobots bool   `mapstructure:"respect_robots"`
	UserAgent     string `mapstructure:"user_agent"`
}

// DiscoveryConfig tunes the collector fan-out.
type DiscoveryConfig struct {
	MaxTopicsPerCollector int     `mapstructure:"max_topics_per_collector"`
	EnglishSourceRatio    float64 `mapstructure:"english_source_ratio"`
	MaxArticlesPerFeed    int     `mapstructure:"max_articles_per_feed"`
	MaxFeeds              int     `mapstructure:"max_feeds"`
}

// CompetitorConfig tunes the competitor-research stage.
type CompetitorConfig struct {
	MaxCompetitors int  `mapstructure:"max_competitors"`
	DiscoverFeeds  bool `mapstructure:"discover_feeds"`
}

// ValidationConfig tunes topic scoring and filtering.
type ValidationConfig struct {
	// Weights maps metric names to their share; empty selects the defaults.
	Weights        map[string]float64 `mapstructure:"weights"`
	HalfLifeDays   float64            `mapstructure:"half_life_days"`
	ScoreThreshold float64            `mapstructure:"score_threshold"`
	TopN           int                `mapstructure:"top_n"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is "text" or "json".
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	// Keys without a meaningful default still get registered so that
	// AutomaticEnv can see them during Unmarshal.
	v.SetDefault("site.url", "")
	v.SetDefault("site.domain", "")
	v.SetDefault("site.vertical", "")
	v.SetDefault("site.language", "en")
	v.SetDefault("site.market", "US")

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("search.tavily_api_key", "")
	v.SetDefault("search.timeout", 30*time.Second)

	v.SetDefault("feeds.backend", "json")
	v.SetDefault("feeds.path", "feeds.json")
	v.SetDefault("feeds.dsn", "")
	v.SetDefault("feeds.quality_threshold", 0.5)

	v.SetDefault("crawl.max_depth", 2)
	v.SetDefault("crawl.max_pages", 30)
	v.SetDefault("crawl.concurrency", 3)
	v.SetDefault("crawl.respect_robots", true)
	v.SetDefault("crawl.user_agent", "topicminer")

	v.SetDefault("discovery.max_topics_per_collector", 10)
	v.SetDefault("discovery.english_source_ratio", 0.70)
	v.SetDefault("discovery.max_articles_per_feed", 5)
	v.SetDefault("discovery.max_feeds", 10)

	v.SetDefault("competitor.max_competitors", 10)
	v.SetDefault("competitor.discover_feeds", true)

	v.SetDefault("validation.half_life_days", 7.0)
	v.SetDefault("validation.score_threshold", 0.3)
	v.SetDefault("validation.top_n", 10)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9190)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Load reads the configuration. path may be empty, in which case only
// defaults and environment variables apply; a missing file at an explicit
// path is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TOPICMINER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Feeds.Backend {
	case "json", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown feeds backend %q", c.Feeds.Backend)
	}
	if c.Feeds.Backend == "postgres" && c.Feeds.DSN == "" {
		return fmt.Errorf("config: postgres feeds backend requires a dsn")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown logging format %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown logging level %q", c.Logging.Level)
	}

	if c.Discovery.EnglishSourceRatio <= 0 || c.Discovery.EnglishSourceRatio > 1 {
		return fmt.Errorf("config: english_source_ratio must be in (0,1], got %v", c.Discovery.EnglishSourceRatio)
	}
	return nil
}
