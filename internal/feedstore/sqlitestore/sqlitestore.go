package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fhalamzie/topicminer/internal/feedstore"
	_ "modernc.org/sqlite"
)

// ensure sqliteStore implements feedstore.Store
var _ feedstore.Store = (*sqliteStore)(nil)

type sqliteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS feeds (
	url TEXT NOT NULL,
	title TEXT NOT NULL,
	domain TEXT NOT NULL,
	vertical TEXT NOT NULL,
	language TEXT,
	quality_score REAL NOT NULL,
	is_valid BOOLEAN NOT NULL,
	discovered_at DATETIME NOT NULL,
	PRIMARY KEY (url, domain)
);
`

// New creates a SQLite-backed feedstore.Store.
func New(dsn string) (feedstore.Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("feedstore: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("feedstore: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) GetFeeds(ctx context.Context, filter feedstore.Filter) ([]feedstore.Feed, error) {
	query := `SELECT url, title, domain, vertical, language, quality_score, is_valid, discovered_at
	FROM feeds WHERE is_valid = 1 AND quality_score >= ?`
	args := []any{filter.MinQualityScore}

	if filter.Domain != "" {
		query += ` AND domain = ?`
		args = append(args, filter.Domain)
	}
	if filter.Vertical != "" {
		query += ` AND vertical = ?`
		args = append(args, filter.Vertical)
	}

	query += ` ORDER BY quality_score DESC, url ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("feedstore: %w", err)
	}
	defer rows.Close()

	var feeds []feedstore.Feed
	for rows.Next() {
		var f feedstore.Feed
		var lang sql.NullString
		if err := rows.Scan(&f.URL, &f.Title, &f.Domain, &f.Vertical, &lang, &f.QualityScore, &f.IsValid, &f.DiscoveredAt); err != nil {
			return nil, fmt.Errorf("feedstore: %w", err)
		}
		f.Language = lang.String
		feeds = append(feeds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("feedstore: %w", err)
	}
	return feeds, nil
}

func (s *sqliteStore) AddFeed(ctx context.Context, feed feedstore.Feed, allowDuplicates bool) (bool, error) {
	if !allowDuplicates {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM feeds WHERE url = ? AND domain = ?`,
			feed.URL, feed.Domain,
		).Scan(&exists)
		if err != nil {
			return false, fmt.Errorf("feedstore: %w", err)
		}
		if exists > 0 {
			return false, nil
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO feeds (url, title, domain, vertical, language, quality_score, is_valid, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		feed.URL, feed.Title, feed.Domain, feed.Vertical, feed.Language, feed.QualityScore, feed.IsValid, feed.DiscoveredAt,
	)
	if err != nil {
		return false, fmt.Errorf("feedstore: %w", err)
	}
	return true, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
