// Package competitor obtains structured competitor research from a free
// grounded-LLM capability and transparently substitutes a paid search backend
// when the primary call fails with a rate-limit-class error. Every call on
// either tier is recorded in the cost ledger.
package competitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fhalamzie/topicminer/internal/costtrack"
	"github.com/fhalamzie/topicminer/internal/discover"
	"github.com/fhalamzie/topicminer/internal/feedstore"
	"github.com/fhalamzie/topicminer/internal/llm"
	"github.com/fhalamzie/topicminer/internal/serp"
)

// FallbackCost is the fixed per-call cost attached to a paid search fallback.
const FallbackCost = 0.02

// Result-size caps.
const (
	maxAdditionalKeywords = 50
	maxMarketTopics       = 20
)

// rateLimitVocabulary drives the substring heuristic for opaque errors. Typed
// errors from the llm and serp packages are preferred; this is a
// compatibility shim for third-party errors that carry no structure.
var rateLimitVocabulary = []string{"429", "rate", "quota", "limit"}

// Competitor is one discovered competitor.
type Competitor struct {
	Name   string   `json:"name"`
	URL    string   `json:"url,omitempty"`
	Topics []string `json:"topics,omitempty"`
}

// Research is the structured outcome of one competitor-research call. The
// three list fields are always present (possibly empty); Error is set instead
// of returning a Go error for every recoverable failure.
type Research struct {
	Competitors        []Competitor `json:"competitors"`
	AdditionalKeywords []string     `json:"additional_keywords"`
	MarketTopics       []string     `json:"market_topics"`
	Cost               float64      `json:"cost"`
	Error              string       `json:"error,omitempty"`
	// UsedFallback reports whether the paid backend produced this result.
	UsedFallback bool `json:"used_fallback"`
}

// FeedDiscoverer is the optional feed-discovery side effect chained after a
// successful primary call. *feeds.Discoverer satisfies it.
type FeedDiscoverer interface {
	Discover(ctx context.Context, siteURL, domain, vertical string) ([]feedstore.Feed, error)
}

// Config wires the coordinator.
type Config struct {
	LLM     llm.Client
	Search  serp.Provider // paid fallback; nil means fallback unavailable
	Tracker *costtrack.Tracker
	Logger  *slog.Logger

	// FeedDiscoverer and FeedStore enable the feed-discovery side effect for
	// competitor URLs when DiscoverFeeds is set.
	FeedDiscoverer FeedDiscoverer
	FeedStore      feedstore.Store
	DiscoverFeeds  bool

	// MaxCompetitors caps the competitor list (default 10).
	MaxCompetitors int
	// Stage labels ledger entries (default "competitor_research").
	Stage string
	// SearchResults is the fallback's max_results (default 10).
	SearchResults int
}

// Coordinator runs the free-primary / paid-fallback competitor research.
type Coordinator struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Coordinator. The LLM client is required.
func New(cfg Config) (*Coordinator, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("competitor: llm client is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxCompetitors <= 0 {
		cfg.MaxCompetitors = 10
	}
	if cfg.Stage == "" {
		cfg.Stage = "competitor_research"
	}
	if cfg.SearchResults <= 0 {
		cfg.SearchResults = 10
	}
	return &Coordinator{cfg: cfg, logger: cfg.Logger}, nil
}

// Research runs the primary grounded call and, on a rate-limit-class failure,
// the paid fallback. It returns an error only for caller mistakes (empty
// keyword list); every external failure lands in Research.Error.
func (c *Coordinator) Research(ctx context.Context, keywords []string, loc discover.Locale) (*Research, error) {
	if len(keywords) == 0 {
		return nil, fmt.Errorf("competitor: no seed keywords")
	}

	resp, err := c.cfg.LLM.GenerateStructured(ctx, llm.Request{
		Prompt:      c.primaryPrompt(keywords, loc),
		Grounding:   true,
		Temperature: 0.3,
	})
	if err == nil {
		c.track(costtrack.APIGeminiFree, true, resp.Cost, "")
		research := parsePrimary(resp.Content, c.cfg.MaxCompetitors)
		research.Cost = resp.Cost
		if c.cfg.DiscoverFeeds {
			c.discoverCompetitorFeeds(ctx, research.Competitors, loc)
		}
		return research, nil
	}

	// Failed free calls are recorded on both branches so the ledger shows
	// every primary attempt, not only the ones that informed a fallback.
	c.track(costtrack.APIGeminiFree, false, 0.0, err.Error())

	if !isRateLimit(err) {
		c.logger.Warn("competitor research failed, no fallback", "error", err)
		return &Research{Error: err.Error()}, nil
	}

	c.logger.Info("primary rate limited, switching to paid search fallback", "error", err)
	return c.fallback(ctx, keywords, loc), nil
}

func (c *Coordinator) primaryPrompt(keywords []string, loc discover.Locale) string {
	return fmt.Sprintf(
		"Research the competitive landscape for a %s company in the %s market. "+
			"Seed keywords: %s. "+
			"Respond with JSON: {\"competitors\": [{\"name\", \"url\", \"topics\"}], "+
			"\"additional_keywords\": [...], \"market_topics\": [...]}.",
		loc.Vertical, loc.Market, strings.Join(keywords, ", "),
	)
}

// fallback queries the paid search backend and shapes its results into the
// primary's output schema.
func (c *Coordinator) fallback(ctx context.Context, keywords []string, loc discover.Locale) *Research {
	if c.cfg.Search == nil {
		c.track(costtrack.APITavily, false, 0.0, "fallback unavailable")
		return &Research{Error: "competitor: paid fallback not configured"}
	}

	query := fallbackQuery(keywords, loc)
	results, err := c.cfg.Search.Search(ctx, query, c.cfg.SearchResults, "advanced")
	if err != nil {
		c.track(costtrack.APITavily, false, 0.0, err.Error())
		return &Research{Error: fmt.Sprintf("competitor: fallback search failed: %v", err)}
	}

	c.track(costtrack.APITavily, true, FallbackCost, "")

	research := parseSearchResults(results, c.cfg.MaxCompetitors)
	research.Cost = FallbackCost
	research.UsedFallback = true
	return research
}

func fallbackQuery(keywords []string, loc discover.Locale) string {
	seeds := keywords
	if len(seeds) > 5 {
		seeds = seeds[:5]
	}
	parts := []string{strings.Join(seeds, " ")}
	if loc.Vertical != "" {
		parts = append(parts, loc.Vertical)
	}
	parts = append(parts, "competitors")
	if loc.Market != "" {
		parts = append(parts, loc.Market)
	}
	return strings.Join(parts, " ")
}

// discoverCompetitorFeeds is a best-effort side effect: failures are logged,
// never surfaced.
func (c *Coordinator) discoverCompetitorFeeds(ctx context.Context, competitors []Competitor, loc discover.Locale) {
	if c.cfg.FeedDiscoverer == nil || c.cfg.FeedStore == nil {
		return
	}
	for _, comp := range competitors {
		if comp.URL == "" {
			continue
		}
		found, err := c.cfg.FeedDiscoverer.Discover(ctx, comp.URL, loc.Domain, loc.Vertical)
		if err != nil {
			c.logger.Warn("competitor feed discovery failed", "url", comp.URL, "error", err)
			continue
		}
		for _, f := range found {
			if _, err := c.cfg.FeedStore.AddFeed(ctx, f, false); err != nil {
				c.logger.Warn("storing discovered feed failed", "url", f.URL, "error", err)
			}
		}
	}
}

func (c *Coordinator) track(apiType costtrack.APIType, success bool, cost float64, errMsg string) {
	if c.cfg.Tracker == nil {
		return
	}
	c.cfg.Tracker.Track(apiType, c.cfg.Stage, success, cost, errMsg)
}

// isRateLimit classifies an error as rate/quota exhaustion. Typed errors win;
// the substring heuristic only handles opaque errors and accepts false
// positives by design.
func isRateLimit(err error) bool {
	var rl *llm.RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	if errors.Is(err, serp.ErrRateLimited) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, word := range rateLimitVocabulary {
		if strings.Contains(msg, word) {
			return true
		}
	}
	return false
}
