package sqlitestore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fhalamzie/topicminer/internal/feedstore"
)

func newTestStore(t *testing.T) feedstore.Store {
	t.Helper()
	// Named in-memory DB so pooled connections share state but tests stay isolated.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	s, err := New(dsn)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testFeed(url string, quality float64) feedstore.Feed {
	return feedstore.Feed{
		URL:          url,
		Title:        "Test Feed",
		Domain:       "example.com",
		Vertical:     "proptech",
		Language:     "en",
		QualityScore: quality,
		IsValid:      true,
		DiscoveredAt: time.Now().UTC(),
	}
}

func TestSQLiteStore_AddAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, err := s.AddFeed(ctx, testFeed("https://example.com/feed", 0.8), false)
	if err != nil {
		t.Fatalf("failed to add feed: %v", err)
	}
	if !added {
		t.Fatal("expected feed to be added")
	}

	feeds, err := s.GetFeeds(ctx, feedstore.Filter{Domain: "example.com", MinQualityScore: 0.5})
	if err != nil {
		t.Fatalf("failed to get feeds: %v", err)
	}
	if len(feeds) != 1 {
		t.Fatalf("expected 1 feed, got %d", len(feeds))
	}
	if feeds[0].Language != "en" {
		t.Errorf("language not round-tripped: %q", feeds[0].Language)
	}
}

func TestSQLiteStore_DuplicateSkipped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _ = s.AddFeed(ctx, testFeed("https://example.com/dup", 0.8), false)

	added, err := s.AddFeed(ctx, testFeed("https://example.com/dup", 0.9), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added {
		t.Error("duplicate should be skipped")
	}

	feeds, _ := s.GetFeeds(ctx, feedstore.Filter{})
	var count int
	for _, f := range feeds {
		if f.URL == "https://example.com/dup" {
			count++
			if f.QualityScore != 0.8 {
				t.Errorf("original quality should be preserved, got %f", f.QualityScore)
			}
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one row for the URL, got %d", count)
	}
}

func TestSQLiteStore_FilterAndOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	low := testFeed("https://example.com/low", 0.2)
	mid := testFeed("https://example.com/mid", 0.6)
	high := testFeed("https://example.com/high", 0.9)
	other := testFeed("https://other.example/feed", 0.9)
	other.Domain = "other.example"
	other.Vertical = "fintech"

	for _, f := range []feedstore.Feed{low, mid, high, other} {
		if _, err := s.AddFeed(ctx, f, false); err != nil {
			t.Fatalf("failed to add feed: %v", err)
		}
	}

	feeds, err := s.GetFeeds(ctx, feedstore.Filter{Vertical: "proptech", MinQualityScore: 0.5})
	if err != nil {
		t.Fatalf("failed to get feeds: %v", err)
	}
	if len(feeds) != 2 {
		t.Fatalf("expected 2 feeds, got %d", len(feeds))
	}
	if feeds[0].URL != "https://example.com/high" {
		t.Errorf("expected best-quality feed first, got %s", feeds[0].URL)
	}

	feeds, _ = s.GetFeeds(ctx, feedstore.Filter{Limit: 1})
	if len(feeds) != 1 {
		t.Errorf("limit not applied, got %d feeds", len(feeds))
	}
}
