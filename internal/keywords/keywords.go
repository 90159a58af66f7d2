// Package keywords extracts ranked keywords and explicit tags from a customer
// site. It seeds a bounded same-domain crawl from the site's sitemap (falling
// back to the landing page), harvests titles, meta descriptions, headings and
// body text, and ranks terms by weighted frequency.
package keywords

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/fhalamzie/topicminer/internal/fetch"
)

// DefaultMaxKeywords caps the ranked keyword list.
const DefaultMaxKeywords = 50

// Config controls the extraction crawl.
type Config struct {
	Fetcher       *fetch.Fetcher
	Logger        *slog.Logger
	MaxDepth      int
	MaxPages      int
	Concurrency   int
	RespectRobots bool
	UserAgent     string
	MaxKeywords   int
}

// Extraction is the result of mining one site.
type Extraction struct {
	Keywords []string `json:"keywords"`
	Tags     []string `json:"tags"`
	Pages    int      `json:"pages"`
}

// Extractor mines a customer site for keywords and tags.
type Extractor struct {
	cfg     Config
	fetcher *fetch.Fetcher
	logger  *slog.Logger
	auditor *robotsAuditor
	seeder  *sitemapSeeder
}

// NewExtractor creates an Extractor.
func NewExtractor(cfg Config) (*Extractor, error) {
	if cfg.Fetcher == nil {
		f, err := fetch.New(fetch.Config{Timeout: 20 * time.Second, MaxRedirects: 5})
		if err != nil {
			return nil, fmt.Errorf("keywords: %w", err)
		}
		cfg.Fetcher = f
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 2
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 30
	}
	if cfg.MaxKeywords <= 0 {
		cfg.MaxKeywords = DefaultMaxKeywords
	}

	return &Extractor{
		cfg:     cfg,
		fetcher: cfg.Fetcher,
		logger:  cfg.Logger,
		auditor: newRobotsAuditor(cfg.Fetcher, cfg.Logger),
		seeder:  newSitemapSeeder(cfg.Fetcher, cfg.Logger),
	}, nil
}

// Extract crawls siteURL and returns ranked keywords plus the explicit tags
// found on its pages.
func (e *Extractor) Extract(ctx context.Context, siteURL string) (*Extraction, error) {
	base, err := url.Parse(siteURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("keywords: invalid site url %q", siteURL)
	}

	seeds := e.seedURLs(ctx, base)

	cr := newCrawler(crawlConfig{
		MaxDepth:      e.cfg.MaxDepth,
		MaxPages:      e.cfg.MaxPages,
		Concurrency:   e.cfg.Concurrency,
		Domains:       []string{base.Hostname()},
		RespectRobots: e.cfg.RespectRobots,
		UserAgent:     e.cfg.UserAgent,
	}, e.fetcher, e.auditor, e.logger)

	pages, err := cr.run(ctx, seeds)
	if err != nil && len(pages) == 0 {
		return nil, fmt.Errorf("keywords: crawling %s: %w", siteURL, err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("keywords: no pages fetched from %s", siteURL)
	}

	counts := make(map[string]int)
	tagSeen := make(map[string]struct{})
	var tags []string
	for _, p := range pages {
		h := harvestPage(p.Body)
		for term, c := range h.terms {
			counts[term] += c
		}
		for _, t := range h.tags {
			if _, ok := tagSeen[t]; ok {
				continue
			}
			tagSeen[t] = struct{}{}
			tags = append(tags, t)
		}
	}

	ext := &Extraction{
		Keywords: rankTerms(counts, e.cfg.MaxKeywords),
		Tags:     tags,
		Pages:    len(pages),
	}

	e.logger.Info("keyword extraction finished",
		"site", siteURL,
		"pages", ext.Pages,
		"keywords", len(ext.Keywords),
		"tags", len(ext.Tags),
	)
	return ext, nil
}

// seedURLs prefers sitemap URLs (from robots.txt, then /sitemap.xml) and
// falls back to the landing page.
func (e *Extractor) seedURLs(ctx context.Context, base *url.URL) []string {
	host := base.Scheme + "://" + base.Host

	sitemapURLs := e.auditor.sitemaps(ctx, host)
	if len(sitemapURLs) == 0 {
		sitemapURLs = []string{host + "/sitemap.xml"}
	}

	var seeds []string
	for _, sm := range sitemapURLs {
		urls, err := e.seeder.seeds(ctx, sm, e.cfg.MaxPages)
		if err != nil {
			e.logger.Debug("sitemap seeding failed", "url", sm, "error", err)
			continue
		}
		seeds = append(seeds, urls...)
		if len(seeds) >= e.cfg.MaxPages {
			break
		}
	}

	if len(seeds) == 0 {
		seeds = []string{base.String()}
	}
	if len(seeds) > e.cfg.MaxPages {
		seeds = seeds[:e.cfg.MaxPages]
	}
	return seeds
}
