// Package feeds discovers and pulls RSS/Atom feeds for customer and
// competitor sites. Discovery combines in-page autodiscovery links with
// well-known path probing; every candidate is validated by actually parsing
// it before it is reported.
package feeds

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/fhalamzie/topicminer/internal/feedstore"
	"github.com/fhalamzie/topicminer/pkg/httpclient"
)

// commonPaths are probed on the site root when autodiscovery finds nothing
// (and in addition to it, to catch sites that forget the link tag).
var commonPaths = []string{
	"/feed",
	"/feed/",
	"/rss",
	"/rss.xml",
	"/atom.xml",
	"/feed.xml",
	"/index.xml",
	"/blog/feed",
	"/blog/rss",
}

// Config controls feed discovery.
type Config struct {
	Client  *httpclient.Client
	Timeout time.Duration
	Logger  *slog.Logger
	// MaxCandidates caps how many candidate URLs are validated per site.
	MaxCandidates int
}

// Discoverer finds valid feeds for a site.
type Discoverer struct {
	client        *httpclient.Client
	parser        *gofeed.Parser
	logger        *slog.Logger
	maxCandidates int
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(cfg Config) *Discoverer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		// Config with no transport cannot fail to construct.
		client, _ = httpclient.New(httpclient.Config{Timeout: timeout, MaxRedirects: 5})
	}
	maxCandidates := cfg.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = 10
	}
	parser := gofeed.NewParser()
	parser.UserAgent = "Mozilla/5.0 (compatible; topicminer/1.0)"
	return &Discoverer{
		client:        client,
		parser:        parser,
		logger:        logger,
		maxCandidates: maxCandidates,
	}
}

// Discover returns validated feeds for siteURL, tagged with the given domain
// and vertical. Candidates that fail to parse are skipped, not reported as
// errors; an error is returned only when the site itself cannot be read.
func (d *Discoverer) Discover(ctx context.Context, siteURL, domain, vertical string) ([]feedstore.Feed, error) {
	base, err := url.Parse(siteURL)
	if err != nil {
		return nil, fmt.Errorf("feeds: parsing site url %s: %w", siteURL, err)
	}

	candidates := d.autodiscover(ctx, base)
	for _, p := range commonPaths {
		ref, err := base.Parse(p)
		if err != nil {
			continue
		}
		candidates = append(candidates, ref.String())
	}
	candidates = dedupe(candidates)
	if len(candidates) > d.maxCandidates {
		candidates = candidates[:d.maxCandidates]
	}

	var feeds []feedstore.Feed
	seen := make(map[string]bool)
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return feeds, err
		}
		parsed, err := d.validate(ctx, cand)
		if err != nil {
			d.logger.Debug("feed candidate rejected", "url", cand, "error", err)
			continue
		}
		// The same feed is often reachable under several paths.
		key := parsed.FeedLink
		if key == "" {
			key = cand
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		feeds = append(feeds, feedstore.Feed{
			URL:          cand,
			Title:        strings.TrimSpace(parsed.Title),
			Domain:       domain,
			Vertical:     vertical,
			Language:     strings.ToLower(parsed.Language),
			QualityScore: qualityScore(parsed),
			IsValid:      true,
			DiscoveredAt: time.Now().UTC(),
		})
	}

	d.logger.Info("feed discovery finished",
		"site", siteURL,
		"candidates", len(candidates),
		"valid", len(feeds),
	)
	return feeds, nil
}

// autodiscover fetches the site's HTML and extracts
// <link rel="alternate" type="application/rss+xml|application/atom+xml"> URLs.
func (d *Discoverer) autodiscover(ctx context.Context, base *url.URL) []string {
	body, err := d.client.GetBody(ctx, base.String(), nil)
	if err != nil {
		d.logger.Debug("site fetch failed during autodiscovery", "url", base.String(), "error", err)
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var found []string
	doc.Find(`link[rel="alternate"]`).Each(func(_ int, sel *goquery.Selection) {
		typ, _ := sel.Attr("type")
		typ = strings.ToLower(typ)
		if typ != "application/rss+xml" && typ != "application/atom+xml" {
			return
		}
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		ref, err := base.Parse(href)
		if err != nil {
			return
		}
		found = append(found, ref.String())
	})
	return found
}

// validate fetches and parses a candidate URL; a feed with no items is
// treated as invalid.
func (d *Discoverer) validate(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	parsed, err := d.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("feeds: parsing %s: %w", feedURL, err)
	}
	if len(parsed.Items) == 0 {
		return nil, fmt.Errorf("feeds: %s has no items", feedURL)
	}
	return parsed, nil
}

// qualityScore rates a parsed feed in [0,1]. Item count, recency and a
// non-empty description each raise the score above the 0.5 baseline.
func qualityScore(f *gofeed.Feed) float64 {
	score := 0.5
	if len(f.Items) >= 5 {
		score += 0.2
	}
	if newest := newestItem(f); newest != nil && time.Since(*newest) < 30*24*time.Hour {
		score += 0.2
	}
	if strings.TrimSpace(f.Description) != "" {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func newestItem(f *gofeed.Feed) *time.Time {
	var newest *time.Time
	for _, item := range f.Items {
		ts := item.PublishedParsed
		if ts == nil {
			ts = item.UpdatedParsed
		}
		if ts == nil {
			continue
		}
		if newest == nil || ts.After(*newest) {
			newest = ts
		}
	}
	return newest
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	var out []string
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
