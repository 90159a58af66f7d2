// Package discover fans out to up to nine independent topic collectors and
// merges their output into a deduplicated candidate set tagged by source. No
// single collector failure aborts the others; the worst case is an empty
// result, never an error.
package discover

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/fhalamzie/topicminer/internal/costtrack"
	"github.com/fhalamzie/topicminer/internal/feeds"
	"github.com/fhalamzie/topicminer/internal/feedstore"
	"github.com/fhalamzie/topicminer/internal/llm"
	"github.com/fhalamzie/topicminer/internal/metrics"
	"github.com/fhalamzie/topicminer/internal/topic"
	"github.com/fhalamzie/topicminer/internal/translate"
	"github.com/fhalamzie/topicminer/pkg/ratelimit"
)

// Seed windows. The fan-out is bounded on purpose: a run never hits external
// capabilities for more than these slices of the consolidated inputs.
const (
	seedKeywordWindow = 15
	seedTagWindow     = 10
	autocompleteSeeds = 5
	trendSeeds        = 3
	newsSeeds         = 2
	rssSeeds          = 3
	maxSubreddits     = 3
	redditPostsPerSub = 5
)

// Locale describes the target market of a discovery run.
type Locale struct {
	Domain   string
	Vertical string
	// Market is the country/region code, e.g. "US" or "DE".
	Market string
	// Language is the target content language, e.g. "en" or "de".
	Language string
}

// Suggestion is one autocomplete result with its provenance.
type Suggestion struct {
	Text  string
	Query string
	// Position is the 1-based rank within the suggestion list that produced it.
	Position int
}

// Suggester provides question-style autocomplete expansions for a seed
// keyword.
type Suggester interface {
	Questions(ctx context.Context, seed, language string) ([]Suggestion, error)
}

// TrendSource provides related-query expansions for a keyword.
type TrendSource interface {
	RelatedQueries(ctx context.Context, keyword string) ([]string, error)
}

// RedditSource samples top post titles from a subreddit.
type RedditSource interface {
	TopPosts(ctx context.Context, subreddit string, limit int) ([]string, error)
}

// FeedPuller fetches articles from a feed URL. *feeds.Puller satisfies it.
type FeedPuller interface {
	Pull(ctx context.Context, feedURL string, maxArticles int) ([]feeds.Article, error)
}

// Config wires the collectors' capabilities and tunables. Any nil capability
// simply disables its collector (it degrades to an empty contribution).
type Config struct {
	Suggest    Suggester
	Trends     TrendSource
	Reddit     RedditSource
	LLM        llm.Client
	Puller     FeedPuller
	FeedStore  feedstore.Store
	Translator translate.Translator
	Tracker    *costtrack.Tracker
	Logger     *slog.Logger

	// MaxTopicsPerCollector caps each collector's contribution (default 10).
	MaxTopicsPerCollector int
	// EnglishSourceRatio splits the rss collector's cap between English and
	// local-language sources for non-English targets (default 0.70). This is
	// a tunable, not a constant the algorithm enforces elsewhere.
	EnglishSourceRatio float64
	// MaxArticlesPerFeed caps articles pulled per feed URL (default 5).
	MaxArticlesPerFeed int
	// MaxFeeds caps the number of feed URLs the rss collector reads (default 10).
	MaxFeeds int
	// FeedQualityThreshold filters curated feeds from the store (default 0.5).
	FeedQualityThreshold float64
	// PauseBase and PauseJitter space out external calls inside collector
	// loops: each pause is base plus up to jitter*base of random delay
	// (defaults 500ms and 1.0, i.e. 0.5-1s between calls).
	PauseBase   time.Duration
	PauseJitter float64
}

// Result is the outcome of one discovery run.
type Result struct {
	// Topics is the deduplicated, alphabetically sorted union of all
	// collector output. Callers needing discovery order use BySource.
	Topics []string `json:"discovered_topics"`
	// BySource preserves each collector's list in discovery order.
	BySource map[string][]string `json:"topics_by_source"`
	// Metadata carries per-topic scoring signals, keyed by topic text.
	Metadata map[string]topic.Metadata `json:"-"`
	// Total is the deduplicated topic count.
	Total int `json:"total_topics"`
}

// rawTopic is a collector's output item before aggregation.
type rawTopic struct {
	text     string
	position *int
	queryLen int
}

func plain(texts []string) []rawTopic {
	out := make([]rawTopic, 0, len(texts))
	for _, t := range texts {
		out = append(out, rawTopic{text: t})
	}
	return out
}

// Discoverer runs the collector fan-out.
type Discoverer struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Discoverer.
func New(cfg Config) *Discoverer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxTopicsPerCollector <= 0 {
		cfg.MaxTopicsPerCollector = 10
	}
	if cfg.EnglishSourceRatio <= 0 || cfg.EnglishSourceRatio > 1 {
		cfg.EnglishSourceRatio = 0.70
	}
	if cfg.MaxArticlesPerFeed <= 0 {
		cfg.MaxArticlesPerFeed = 5
	}
	if cfg.MaxFeeds <= 0 {
		cfg.MaxFeeds = 10
	}
	if cfg.FeedQualityThreshold <= 0 {
		cfg.FeedQualityThreshold = 0.5
	}
	if cfg.PauseBase <= 0 {
		cfg.PauseBase = 500 * time.Millisecond
	}
	if cfg.PauseJitter <= 0 || cfg.PauseJitter > 1 {
		cfg.PauseJitter = 1.0
	}
	return &Discoverer{cfg: cfg, logger: cfg.Logger}
}

// Discover invokes every collector sequentially and aggregates their output.
// It never returns an error: each collector is wrapped in its own failure
// boundary and degrades to an empty contribution.
func (d *Discoverer) Discover(ctx context.Context, keywords, tags []string, loc Locale) *Result {
	start := time.Now()

	seedKeywords := window(keywords, seedKeywordWindow)
	seedTags := window(tags, seedTagWindow)

	collected := make(map[string][]rawTopic)

	collected[topic.CollectorKeywords] = d.runCollector(ctx, topic.CollectorKeywords, func(context.Context) ([]rawTopic, error) {
		return plain(seedKeywords), nil
	})
	collected[topic.CollectorTags] = d.runCollector(ctx, topic.CollectorTags, func(context.Context) ([]rawTopic, error) {
		return plain(seedTags), nil
	})
	// Disabled generator, kept as a named source slot for interface stability.
	collected[topic.CollectorCompound] = nil

	collected[topic.CollectorAutocomplete] = d.runCollector(ctx, topic.CollectorAutocomplete, func(ctx context.Context) ([]rawTopic, error) {
		return d.collectAutocomplete(ctx, seedKeywords, loc)
	})
	collected[topic.CollectorTrends] = d.runCollector(ctx, topic.CollectorTrends, func(ctx context.Context) ([]rawTopic, error) {
		return d.collectTrends(ctx, seedKeywords)
	})

	var exp expansion
	collected[topic.CollectorLLM] = d.runCollector(ctx, topic.CollectorLLM, func(ctx context.Context) ([]rawTopic, error) {
		var err error
		exp, err = d.collectLLM(ctx, seedKeywords, loc)
		return plain(exp.Topics), err
	})

	collected[topic.CollectorReddit] = d.runCollector(ctx, topic.CollectorReddit, func(ctx context.Context) ([]rawTopic, error) {
		return d.collectReddit(ctx, exp.Subreddits, loc)
	})
	collected[topic.CollectorNews] = d.runCollector(ctx, topic.CollectorNews, func(ctx context.Context) ([]rawTopic, error) {
		return d.collectNews(ctx, seedKeywords, loc)
	})
	collected[topic.CollectorRSS] = d.runCollector(ctx, topic.CollectorRSS, func(ctx context.Context) ([]rawTopic, error) {
		return d.collectRSS(ctx, seedKeywords, loc)
	})

	result := aggregate(collected)

	d.logger.Info("topic discovery finished",
		"total_topics", result.Total,
		"duration", time.Since(start),
	)
	return result
}

// runCollector is the per-collector failure boundary: an error degrades to an
// empty contribution and is logged, never propagated.
func (d *Discoverer) runCollector(ctx context.Context, name string, fn func(context.Context) ([]rawTopic, error)) []rawTopic {
	topics, err := fn(ctx)
	if len(topics) > d.cfg.MaxTopicsPerCollector {
		topics = topics[:d.cfg.MaxTopicsPerCollector]
	}
	if err != nil {
		d.logger.Warn("collector failed", "collector", name, "error", err)
		metrics.RecordCollector(name, len(topics), true)
		return topics
	}
	metrics.RecordCollector(name, len(topics), false)
	d.logger.Debug("collector finished", "collector", name, "topics", len(topics))
	return topics
}

// aggregationOrder fixes which collector counts as a topic's primary source
// when several produce the same string.
var aggregationOrder = []string{
	topic.CollectorKeywords,
	topic.CollectorTags,
	topic.CollectorCompound,
	topic.CollectorAutocomplete,
	topic.CollectorTrends,
	topic.CollectorLLM,
	topic.CollectorReddit,
	topic.CollectorNews,
	topic.CollectorRSS,
}

func aggregate(collected map[string][]rawTopic) *Result {
	result := &Result{
		BySource: make(map[string][]string, len(collected)),
		Metadata: make(map[string]topic.Metadata),
	}

	for _, name := range aggregationOrder {
		raws := collected[name]
		texts := make([]string, 0, len(raws))
		for _, r := range raws {
			texts = append(texts, r.text)

			meta, seen := result.Metadata[r.text]
			if !seen {
				meta = topic.NewMetadata(name)
				if r.position != nil {
					pos := *r.position
					meta.AutocompletePosition = &pos
					meta.AutocompleteQueryLength = r.queryLen
				}
				result.Metadata[r.text] = meta
				continue
			}
			meta.Sources = append(meta.Sources, name)
			result.Metadata[r.text] = meta
		}
		result.BySource[name] = texts
	}

	result.Topics = make([]string, 0, len(result.Metadata))
	for t := range result.Metadata {
		result.Topics = append(result.Topics, t)
	}
	sort.Strings(result.Topics)
	result.Total = len(result.Topics)
	return result
}

// pause spaces out external calls inside a collector loop.
func (d *Discoverer) pause(ctx context.Context) error {
	return ratelimit.Pause(ctx, d.cfg.PauseBase, d.cfg.PauseJitter)
}

func window(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
