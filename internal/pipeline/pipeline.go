// Package pipeline sequences a full research run: site keyword extraction,
// competitor research with cost-aware fallback, collector fan-out, topic
// validation, and downstream per-topic research. Every stage degrades to a
// well-typed empty contribution; the only Go error Run can produce is a
// caller mistake, everything else lands in Result.Error.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fhalamzie/topicminer/internal/competitor"
	"github.com/fhalamzie/topicminer/internal/costtrack"
	"github.com/fhalamzie/topicminer/internal/discover"
	"github.com/fhalamzie/topicminer/internal/keywords"
	"github.com/fhalamzie/topicminer/internal/metrics"
	"github.com/fhalamzie/topicminer/internal/report"
	"github.com/fhalamzie/topicminer/internal/topic"
	"github.com/fhalamzie/topicminer/internal/validator"
)

// KeywordExtractor mines a site for keywords and tags. *keywords.Extractor
// satisfies it.
type KeywordExtractor interface {
	Extract(ctx context.Context, siteURL string) (*keywords.Extraction, error)
}

// CompetitorResearcher runs the free-primary / paid-fallback competitor
// stage. *competitor.Coordinator satisfies it.
type CompetitorResearcher interface {
	Research(ctx context.Context, keywords []string, loc discover.Locale) (*competitor.Research, error)
}

// TopicDiscoverer runs the collector fan-out. *discover.Discoverer satisfies it.
type TopicDiscoverer interface {
	Discover(ctx context.Context, keywords, tags []string, loc discover.Locale) *discover.Result
}

// Article is the downstream research output for one validated topic.
type Article struct {
	Topic   string `json:"topic"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Researcher is the downstream deep-research capability: topic in, article
// out.
type Researcher interface {
	Research(ctx context.Context, topicText string) (*Article, error)
}

// Config wires the pipeline stages.
type Config struct {
	Extractor  KeywordExtractor
	Competitor CompetitorResearcher
	Discoverer TopicDiscoverer
	Validator  *validator.Validator
	Researcher Researcher // optional; nil skips the downstream stage
	Tracker    *costtrack.Tracker
	Logger     *slog.Logger

	// ScoreThreshold filters validated topics (default 0.3).
	ScoreThreshold float64
	// TopN caps the validated topic list (default 10).
	TopN int
	// ResearchConcurrency bounds parallel downstream research (default 3).
	ResearchConcurrency int
}

// Request describes one run.
type Request struct {
	SiteURL string
	Locale  discover.Locale
}

// Result is the outcome of one run.
type Result struct {
	Keywords    []string                `json:"keywords"`
	Tags        []string                `json:"tags"`
	Competitors []competitor.Competitor `json:"competitors"`
	Discovery   *discover.Result        `json:"discovery"`
	Validated   []topic.Scored          `json:"validated"`
	Articles    []Article               `json:"articles"`
	TotalCost   float64                 `json:"total_cost_usd"`
	Fallback    bool                    `json:"fallback_used"`
	StartTime   time.Time               `json:"start_time"`
	EndTime     time.Time               `json:"end_time"`
	Duration    time.Duration           `json:"duration"`
	Error       string                  `json:"error,omitempty"`
}

// Pipeline orchestrates one research run at a time.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Pipeline. Extractor, Discoverer and Validator are required;
// the competitor and downstream stages are optional.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("pipeline: keyword extractor is required")
	}
	if cfg.Discoverer == nil {
		return nil, fmt.Errorf("pipeline: topic discoverer is required")
	}
	if cfg.Validator == nil {
		return nil, fmt.Errorf("pipeline: validator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ScoreThreshold <= 0 {
		cfg.ScoreThreshold = 0.3
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 10
	}
	if cfg.ResearchConcurrency <= 0 {
		cfg.ResearchConcurrency = 3
	}
	return &Pipeline{cfg: cfg, logger: cfg.Logger}, nil
}

// Run executes all stages for one site.
func (p *Pipeline) Run(ctx context.Context, req Request) *Result {
	start := time.Now()
	result := &Result{StartTime: start.UTC()}
	defer func() {
		result.EndTime = time.Now().UTC()
		result.Duration = time.Since(start)
		metrics.PipelineDuration.Observe(result.Duration.Seconds())
		if p.cfg.Tracker != nil {
			result.TotalCost = p.cfg.Tracker.TotalCost()
		}
	}()

	// Stage 1: site keyword extraction. Without keywords nothing downstream
	// can work, so this is the one stage whose failure ends the run.
	extraction, err := p.cfg.Extractor.Extract(ctx, req.SiteURL)
	if err != nil {
		p.logger.Error("keyword extraction failed", "site", req.SiteURL, "error", err)
		result.Error = fmt.Sprintf("keyword extraction: %v", err)
		return result
	}
	result.Keywords = extraction.Keywords
	result.Tags = extraction.Tags

	// Stage 2: competitor research. Its keywords and market topics feed the
	// consolidated seed list; failure degrades to the extraction output.
	if p.cfg.Competitor != nil {
		research, err := p.cfg.Competitor.Research(ctx, result.Keywords, req.Locale)
		if err != nil {
			p.logger.Error("competitor research misconfigured", "error", err)
		} else {
			if research.Error != "" {
				p.logger.Warn("competitor research degraded", "error", research.Error)
			}
			result.Competitors = research.Competitors
			result.Fallback = research.UsedFallback
			result.Keywords = consolidate(result.Keywords, research.AdditionalKeywords, research.MarketTopics)
		}
	}

	// Stage 3: collector fan-out. Never fails.
	result.Discovery = p.cfg.Discoverer.Discover(ctx, result.Keywords, result.Tags, req.Locale)

	// Stage 4: validation.
	entries := make([]validator.Entry, 0, len(result.Discovery.Topics))
	for _, t := range result.Discovery.Topics {
		entries = append(entries, validator.Entry{Topic: t, Meta: result.Discovery.Metadata[t]})
	}
	result.Validated = p.cfg.Validator.FilterTopics(entries, result.Keywords, nil, p.cfg.ScoreThreshold, p.cfg.TopN)

	// Stage 5: downstream research, bounded fan-out, per-topic isolation.
	if p.cfg.Researcher != nil && len(result.Validated) > 0 {
		result.Articles = p.research(ctx, result.Validated)
	}

	p.logger.Info("pipeline run finished",
		"site", req.SiteURL,
		"keywords", len(result.Keywords),
		"discovered", result.Discovery.Total,
		"validated", len(result.Validated),
		"articles", len(result.Articles),
		"cost", result.TotalCost,
	)
	return result
}

func (p *Pipeline) research(ctx context.Context, validated []topic.Scored) []Article {
	var mu sync.Mutex
	var articles []Article

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ResearchConcurrency)

	for _, scored := range validated {
		g.Go(func() error {
			article, err := p.cfg.Researcher.Research(gCtx, scored.Topic)
			if err != nil {
				p.logger.Warn("topic research failed", "topic", scored.Topic, "error", err)
				return nil
			}
			mu.Lock()
			articles = append(articles, *article)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return articles
}

// consolidate merges keyword lists preserving first-occurrence order.
func consolidate(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, item := range list {
			if _, dup := seen[item]; dup {
				continue
			}
			seen[item] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

// Summarize shapes a run result into a report summary.
func Summarize(req Request, result *Result) report.Summary {
	s := report.Summary{
		Domain:           req.Locale.Domain,
		Vertical:         req.Locale.Vertical,
		Market:           req.Locale.Market,
		Keywords:         len(result.Keywords),
		Tags:             len(result.Tags),
		Competitors:      len(result.Competitors),
		ValidatedTopics:  len(result.Validated),
		ResearchedTopics: len(result.Articles),
		TotalCost:        result.TotalCost,
		FallbackUsed:     result.Fallback,
		StartTime:        result.StartTime,
		EndTime:          result.EndTime,
		Duration:         result.Duration,
		Error:            result.Error,
	}
	if result.Discovery != nil {
		s.DiscoveredTopics = result.Discovery.Total
		s.TopicsBySource = make(map[string]int, len(result.Discovery.BySource))
		for src, topics := range result.Discovery.BySource {
			s.TopicsBySource[src] = len(topics)
		}
	}
	return s
}
