// Command topicminer mines a customer site for validated content topics. It
// wires the full pipeline: keyword extraction, competitor research with
// cost-aware fallback, the collector fan-out, and topic validation.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fhalamzie/topicminer/internal/competitor"
	"github.com/fhalamzie/topicminer/internal/config"
	"github.com/fhalamzie/topicminer/internal/costtrack"
	"github.com/fhalamzie/topicminer/internal/discover"
	"github.com/fhalamzie/topicminer/internal/feeds"
	"github.com/fhalamzie/topicminer/internal/feedstore"
	"github.com/fhalamzie/topicminer/internal/feedstore/jsonstore"
	"github.com/fhalamzie/topicminer/internal/feedstore/postgres"
	"github.com/fhalamzie/topicminer/internal/feedstore/sqlitestore"
	"github.com/fhalamzie/topicminer/internal/fetch"
	"github.com/fhalamzie/topicminer/internal/keywords"
	"github.com/fhalamzie/topicminer/internal/llm"
	"github.com/fhalamzie/topicminer/internal/metrics"
	"github.com/fhalamzie/topicminer/internal/pipeline"
	"github.com/fhalamzie/topicminer/internal/report"
	"github.com/fhalamzie/topicminer/internal/serp"
	"github.com/fhalamzie/topicminer/internal/translate"
	"github.com/fhalamzie/topicminer/internal/validator"
)

var (
	cfgFile      string
	outputFormat string
	costsPath    string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "topicminer",
	Short: "Multi-signal topic discovery for content research",
	Long: `topicminer crawls a customer site for seed keywords, researches the
competitive landscape with a free-first/paid-fallback strategy, fans out to
independent topic collectors, and scores the merged candidates into a
validated topic list.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		logger = newLogger(cfg.Logging)
		slog.SetDefault(logger)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run [site-url]",
	Short: "Run the full pipeline for a site",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		siteURL := siteURLFrom(args)
		if siteURL == "" {
			return fmt.Errorf("no site URL given (argument or site.url in config)")
		}

		if cfg.Metrics.Enabled {
			srv := metrics.Start(cfg.Metrics.Port)
			defer srv.Stop(context.Background())
		}

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		tracker := costtrack.NewTracker()
		p, err := buildPipeline(store, tracker)
		if err != nil {
			return err
		}

		result := p.Run(ctx, pipeline.Request{SiteURL: siteURL, Locale: locale()})
		summary := pipeline.Summarize(pipeline.Request{SiteURL: siteURL, Locale: locale()}, result)

		if costsPath != "" {
			if err := writeCosts(costsPath, tracker); err != nil {
				return err
			}
		}

		switch outputFormat {
		case "json":
			if err := report.WriteJSON(os.Stdout, summary); err != nil {
				return err
			}
		default:
			if err := report.WriteText(os.Stdout, summary); err != nil {
				return err
			}
		}
		if result.Error != "" {
			return fmt.Errorf("run failed: %s", result.Error)
		}
		return nil
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover [site-url]",
	Short: "Extract keywords and fan out the collectors, skipping competitor research and validation",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		siteURL := siteURLFrom(args)
		if siteURL == "" {
			return fmt.Errorf("no site URL given (argument or site.url in config)")
		}

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		extractor, err := newExtractor()
		if err != nil {
			return err
		}
		extraction, err := extractor.Extract(ctx, siteURL)
		if err != nil {
			return fmt.Errorf("keyword extraction: %w", err)
		}

		tracker := costtrack.NewTracker()
		disc := newDiscoverer(store, tracker)
		result := disc.Discover(ctx, extraction.Keywords, extraction.Tags, locale())

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "Manage the curated feed store",
}

var feedsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List curated feeds for the configured domain and vertical",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		found, err := store.GetFeeds(ctx, feedstore.Filter{
			Domain:          cfg.Site.Domain,
			Vertical:        cfg.Site.Vertical,
			MinQualityScore: cfg.Feeds.QualityThreshold,
		})
		if err != nil {
			return err
		}
		for _, f := range found {
			fmt.Printf("%.2f  %s  %s\n", f.QualityScore, f.URL, f.Title)
		}
		if len(found) == 0 {
			fmt.Println("no feeds stored")
		}
		return nil
	},
}

var feedsAddCmd = &cobra.Command{
	Use:   "add <site-url>",
	Short: "Discover feeds on a site and store the valid ones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		discoverer := feeds.NewDiscoverer(feeds.Config{Logger: logger})
		found, err := discoverer.Discover(ctx, args[0], cfg.Site.Domain, cfg.Site.Vertical)
		if err != nil {
			return err
		}
		added := 0
		for _, f := range found {
			ok, err := store.AddFeed(ctx, f, false)
			if err != nil {
				return err
			}
			if ok {
				added++
			}
		}
		fmt.Printf("discovered %d feeds, stored %d new\n", len(found), added)
		return nil
	},
}

func newLogger(lc config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func locale() discover.Locale {
	return discover.Locale{
		Domain:   cfg.Site.Domain,
		Vertical: cfg.Site.Vertical,
		Market:   cfg.Site.Market,
		Language: cfg.Site.Language,
	}
}

func siteURLFrom(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.Site.URL
}

func openStore(ctx context.Context) (feedstore.Store, error) {
	switch cfg.Feeds.Backend {
	case "sqlite":
		return sqlitestore.New(cfg.Feeds.Path)
	case "postgres":
		return postgres.New(ctx, cfg.Feeds.DSN)
	default:
		return jsonstore.New(cfg.Feeds.Path)
	}
}

func newExtractor() (*keywords.Extractor, error) {
	fetcher, err := fetch.New(fetch.Config{Timeout: 30 * time.Second})
	if err != nil {
		return nil, err
	}
	return keywords.NewExtractor(keywords.Config{
		Fetcher:       fetcher,
		Logger:        logger,
		MaxDepth:      cfg.Crawl.MaxDepth,
		MaxPages:      cfg.Crawl.MaxPages,
		Concurrency:   cfg.Crawl.Concurrency,
		RespectRobots: cfg.Crawl.RespectRobots,
		UserAgent:     cfg.Crawl.UserAgent,
	})
}

// newLLM returns nil when no API key is configured; the collectors and the
// competitor stage that depend on it then degrade or are skipped.
func newLLM() llm.Client {
	if cfg.LLM.APIKey == "" {
		logger.Warn("no LLM API key configured, LLM-backed stages disabled")
		return nil
	}
	client, err := llm.NewGemini(llm.GeminiConfig{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: cfg.LLM.Timeout,
	})
	if err != nil {
		logger.Warn("LLM client unavailable", "error", err)
		return nil
	}
	return client
}

func newSearch() serp.Provider {
	if cfg.Search.TavilyAPIKey == "" {
		logger.Warn("no Tavily API key configured, paid fallback disabled")
		return nil
	}
	provider, err := serp.NewTavily(cfg.Search.TavilyAPIKey, cfg.Search.Timeout)
	if err != nil {
		logger.Warn("search provider unavailable", "error", err)
		return nil
	}
	return provider
}

func newDiscoverer(store feedstore.Store, tracker *costtrack.Tracker) *discover.Discoverer {
	llmClient := newLLM()
	var translator translate.Translator
	if llmClient != nil {
		translator = translate.NewLLMTranslator(llmClient, logger)
	}
	suggest := discover.NewGoogleSuggest(10 * time.Second)
	return discover.New(discover.Config{
		Suggest:               suggest,
		Trends:                suggest,
		Reddit:                discover.NewReddit(10 * time.Second),
		LLM:                   llmClient,
		Puller:                feeds.NewPuller(logger),
		FeedStore:             store,
		Translator:            translator,
		Tracker:               tracker,
		Logger:                logger,
		MaxTopicsPerCollector: cfg.Discovery.MaxTopicsPerCollector,
		EnglishSourceRatio:    cfg.Discovery.EnglishSourceRatio,
		MaxArticlesPerFeed:    cfg.Discovery.MaxArticlesPerFeed,
		MaxFeeds:              cfg.Discovery.MaxFeeds,
		FeedQualityThreshold:  cfg.Feeds.QualityThreshold,
	})
}

func buildPipeline(store feedstore.Store, tracker *costtrack.Tracker) (*pipeline.Pipeline, error) {
	extractor, err := newExtractor()
	if err != nil {
		return nil, err
	}

	v, err := newValidator()
	if err != nil {
		return nil, err
	}

	var comp pipeline.CompetitorResearcher
	if llmClient := newLLM(); llmClient != nil {
		coord, err := competitor.New(competitor.Config{
			LLM:            llmClient,
			Search:         newSearch(),
			Tracker:        tracker,
			Logger:         logger,
			FeedDiscoverer: feeds.NewDiscoverer(feeds.Config{Logger: logger}),
			FeedStore:      store,
			DiscoverFeeds:  cfg.Competitor.DiscoverFeeds,
			MaxCompetitors: cfg.Competitor.MaxCompetitors,
		})
		if err != nil {
			return nil, err
		}
		comp = coord
	}

	return pipeline.New(pipeline.Config{
		Extractor:      extractor,
		Competitor:     comp,
		Discoverer:     newDiscoverer(store, tracker),
		Validator:      v,
		Tracker:        tracker,
		Logger:         logger,
		ScoreThreshold: cfg.Validation.ScoreThreshold,
		TopN:           cfg.Validation.TopN,
	})
}

func newValidator() (*validator.Validator, error) {
	return validator.New(validator.Config{
		Weights:      cfg.Validation.Weights,
		HalfLifeDays: cfg.Validation.HalfLifeDays,
	})
}

func writeCosts(path string, tracker *costtrack.Tracker) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating cost ledger %s: %w", path, err)
	}
	defer f.Close()
	return report.WriteCostCSV(f, tracker.Calls())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	runCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "report format: text or json")
	runCmd.Flags().StringVar(&costsPath, "costs", "", "write the API cost ledger to this CSV file")

	feedsCmd.AddCommand(feedsListCmd, feedsAddCmd)
	rootCmd.AddCommand(runCmd, discoverCmd, feedsCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
