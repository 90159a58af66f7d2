package keywords

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"

	"github.com/fhalamzie/topicminer/internal/fetch"
)

// robotsAuditor caches per-host robots.txt data for the extraction crawl.
type robotsAuditor struct {
	fetcher *fetch.Fetcher
	logger  *slog.Logger
	mu      sync.RWMutex
	cache   map[string]*robotstxt.RobotsData
}

func newRobotsAuditor(fetcher *fetch.Fetcher, logger *slog.Logger) *robotsAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &robotsAuditor{
		fetcher: fetcher,
		logger:  logger,
		cache:   make(map[string]*robotstxt.RobotsData),
	}
}

// isAllowed reports whether targetURL may be fetched under the host's
// robots.txt. Fetch or parse failures fail open.
func (r *robotsAuditor) isAllowed(ctx context.Context, targetURL, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("keywords: invalid url: %w", err)
	}

	host := u.Scheme + "://" + u.Host

	data, err := r.getOrFetch(ctx, host)
	if err != nil {
		r.logger.Debug("robots.txt fetch failed, defaulting to allow", "host", host, "error", err)
		return true, nil
	}
	if data == nil {
		return true, nil
	}

	group := data.FindGroup(userAgent)
	return group.Test(u.Path), nil
}

// sitemaps returns the sitemap URLs listed in the host's robots.txt.
func (r *robotsAuditor) sitemaps(ctx context.Context, host string) []string {
	data, err := r.getOrFetch(ctx, host)
	if err != nil || data == nil {
		return nil
	}
	return data.Sitemaps
}

func (r *robotsAuditor) getOrFetch(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	r.mu.RLock()
	data, exists := r.cache[host]
	r.mu.RUnlock()
	if exists {
		return data, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data, exists = r.cache[host]
	if exists {
		return data, nil
	}

	result, err := r.fetcher.Fetch(ctx, fmt.Sprintf("%s/robots.txt", host))
	if err != nil {
		r.cache[host] = nil
		return nil, fmt.Errorf("keywords: %w", err)
	}
	if result.Error != "" {
		r.cache[host] = nil
		return nil, fmt.Errorf("keywords: fetching robots.txt: %s", result.Error)
	}
	if result.StatusCode >= 400 {
		// Missing robots.txt means everything is allowed.
		r.cache[host] = nil
		return nil, nil
	}

	parsed, err := robotstxt.FromBytes(result.Body)
	if err != nil {
		r.cache[host] = nil
		return nil, fmt.Errorf("keywords: parsing robots.txt: %w", err)
	}

	r.cache[host] = parsed
	return parsed, nil
}
