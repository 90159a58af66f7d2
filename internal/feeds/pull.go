package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Article is one entry pulled from a feed.
type Article struct {
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Summary   string    `json:"summary,omitempty"`
	Source    string    `json:"source"`
	Published time.Time `json:"published,omitempty"`
}

// Puller fetches articles from feeds.
type Puller struct {
	parser *gofeed.Parser
	logger *slog.Logger
}

// NewPuller creates a Puller.
func NewPuller(logger *slog.Logger) *Puller {
	if logger == nil {
		logger = slog.Default()
	}
	parser := gofeed.NewParser()
	parser.UserAgent = "Mozilla/5.0 (compatible; topicminer/1.0)"
	return &Puller{parser: parser, logger: logger}
}

// Pull fetches a feed and returns up to maxArticles of its newest entries.
// maxArticles <= 0 means all entries.
func (p *Puller) Pull(ctx context.Context, feedURL string, maxArticles int) ([]Article, error) {
	parsed, err := p.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("feeds: pulling %s: %w", feedURL, err)
	}

	source := strings.TrimSpace(parsed.Title)
	if source == "" {
		source = feedURL
	}

	var articles []Article
	for _, item := range parsed.Items {
		if maxArticles > 0 && len(articles) >= maxArticles {
			break
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		a := Article{
			Title:   title,
			URL:     item.Link,
			Summary: strings.TrimSpace(item.Description),
			Source:  source,
		}
		if item.PublishedParsed != nil {
			a.Published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			a.Published = *item.UpdatedParsed
		}
		articles = append(articles, a)
	}

	p.logger.Debug("feed pulled", "url", feedURL, "articles", len(articles))
	return articles, nil
}

// PullAll pulls every feed URL in order, skipping feeds that fail and
// capping each at maxPerFeed articles.
func (p *Puller) PullAll(ctx context.Context, feedURLs []string, maxPerFeed int) []Article {
	var all []Article
	for _, u := range feedURLs {
		if ctx.Err() != nil {
			return all
		}
		articles, err := p.Pull(ctx, u, maxPerFeed)
		if err != nil {
			p.logger.Warn("feed pull failed", "url", u, "error", err)
			continue
		}
		all = append(all, articles...)
	}
	return all
}
