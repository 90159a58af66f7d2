// Package feedstore persists curated RSS feeds keyed by customer domain and
// vertical. The rss collector reads it; the feed-discovery side effect of
// competitor research writes it.
package feedstore

import (
	"context"
	"time"
)

// Feed describes one curated feed.
type Feed struct {
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Domain       string    `json:"domain"`
	Vertical     string    `json:"vertical"`
	Language     string    `json:"language,omitempty"`
	QualityScore float64   `json:"quality_score"`
	IsValid      bool      `json:"is_valid"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Filter selects feeds for retrieval.
type Filter struct {
	Domain          string
	Vertical        string
	MinQualityScore float64
	// Limit caps the number of returned feeds; 0 means no cap.
	Limit int
}

// Store is the persistence interface for curated feeds.
type Store interface {
	// GetFeeds returns valid feeds matching the filter, best quality first.
	GetFeeds(ctx context.Context, filter Filter) ([]Feed, error)
	// AddFeed stores a feed under the given domain/vertical. It reports
	// whether the feed was added; a duplicate URL is skipped unless
	// allowDuplicates is set.
	AddFeed(ctx context.Context, feed Feed, allowDuplicates bool) (bool, error)
	Close() error
}
