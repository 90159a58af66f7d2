package keywords

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	sitemap "github.com/oxffaa/gopher-parse-sitemap"

	"github.com/fhalamzie/topicminer/internal/fetch"
)

// sitemapSeeder fetches sitemap XML (or sitemap indexes) and extracts page
// URLs to seed the extraction crawl.
type sitemapSeeder struct {
	fetcher *fetch.Fetcher
	logger  *slog.Logger
}

func newSitemapSeeder(fetcher *fetch.Fetcher, logger *slog.Logger) *sitemapSeeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &sitemapSeeder{fetcher: fetcher, logger: logger}
}

// seeds fetches sitemapURL and returns up to max page URLs, recursing into
// sitemap indexes.
func (s *sitemapSeeder) seeds(ctx context.Context, sitemapURL string, max int) ([]string, error) {
	s.logger.Debug("fetching sitemap", "url", sitemapURL)

	result, err := s.fetcher.Fetch(ctx, sitemapURL)
	if err != nil {
		return nil, fmt.Errorf("keywords: fetching sitemap: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("keywords: fetching sitemap: %s", result.Error)
	}
	if result.StatusCode >= 400 {
		return nil, fmt.Errorf("keywords: sitemap status %d", result.StatusCode)
	}

	var urls []string
	err = sitemap.Parse(bytes.NewReader(result.Body), func(e sitemap.Entry) error {
		if max > 0 && len(urls) >= max {
			return nil
		}
		urls = append(urls, e.GetLocation())
		return nil
	})

	if err != nil || len(urls) == 0 {
		// Possibly a sitemap index rather than a plain sitemap.
		var nested []string
		indexErr := sitemap.ParseIndex(bytes.NewReader(result.Body), func(e sitemap.IndexEntry) error {
			nested = append(nested, e.GetLocation())
			return nil
		})
		if indexErr != nil || (len(urls) == 0 && len(nested) == 0) {
			return nil, fmt.Errorf("keywords: parsing sitemap %s: %w", sitemapURL, err)
		}

		for _, nestedURL := range nested {
			if max > 0 && len(urls) >= max {
				break
			}
			nestedURLs, fetchErr := s.seeds(ctx, nestedURL, max-len(urls))
			if fetchErr != nil {
				s.logger.Warn("failed to fetch nested sitemap", "url", nestedURL, "error", fetchErr)
				continue
			}
			urls = append(urls, nestedURLs...)
		}
	}

	if max > 0 && len(urls) > max {
		urls = urls[:max]
	}
	return urls, nil
}
