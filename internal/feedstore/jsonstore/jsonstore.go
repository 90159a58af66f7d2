// Package jsonstore is the reference feedstore backend: one JSON file holding
// the full feed list, rewritten on every mutation. Writes are last-writer-wins
// with no cross-process locking; within one pipeline run writes are
// sequential, which is the supported usage.
package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/fhalamzie/topicminer/internal/feedstore"
)

// ensure jsonStore implements feedstore.Store
var _ feedstore.Store = (*jsonStore)(nil)

type jsonStore struct {
	mu    sync.Mutex
	path  string
	feeds []feedstore.Feed
}

// New creates a JSON-file-backed feedstore.Store, loading any existing feeds.
func New(path string) (feedstore.Store, error) {
	s := &jsonStore{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("feedstore: reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.feeds); err != nil {
		return nil, fmt.Errorf("feedstore: parsing %s: %w", path, err)
	}
	return s, nil
}

func (s *jsonStore) GetFeeds(ctx context.Context, filter feedstore.Filter) ([]feedstore.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []feedstore.Feed
	for _, f := range s.feeds {
		if !f.IsValid {
			continue
		}
		if filter.Domain != "" && f.Domain != filter.Domain {
			continue
		}
		if filter.Vertical != "" && f.Vertical != filter.Vertical {
			continue
		}
		if f.QualityScore < filter.MinQualityScore {
			continue
		}
		matched = append(matched, f)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].QualityScore != matched[j].QualityScore {
			return matched[i].QualityScore > matched[j].QualityScore
		}
		return matched[i].URL < matched[j].URL
	})

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *jsonStore) AddFeed(ctx context.Context, feed feedstore.Feed, allowDuplicates bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !allowDuplicates {
		for _, f := range s.feeds {
			if f.URL == feed.URL && f.Domain == feed.Domain {
				return false, nil
			}
		}
	}

	s.feeds = append(s.feeds, feed)
	if err := s.persist(); err != nil {
		// Roll back the in-memory append so memory and disk stay consistent.
		s.feeds = s.feeds[:len(s.feeds)-1]
		return false, err
	}
	return true, nil
}

func (s *jsonStore) Close() error {
	return nil
}

// persist rewrites the whole file. Caller holds the lock.
func (s *jsonStore) persist() error {
	data, err := json.MarshalIndent(s.feeds, "", "  ")
	if err != nil {
		return fmt.Errorf("feedstore: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("feedstore: writing %s: %w", s.path, err)
	}
	return nil
}
