package postgres

import (
	"context"
	"fmt"

	"github.com/fhalamzie/topicminer/internal/feedstore"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresStore implements feedstore.Store
var _ feedstore.Store = (*postgresStore)(nil)

type postgresStore struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS feeds (
	url TEXT NOT NULL,
	title TEXT NOT NULL,
	domain TEXT NOT NULL,
	vertical TEXT NOT NULL,
	language TEXT,
	quality_score DOUBLE PRECISION NOT NULL,
	is_valid BOOLEAN NOT NULL,
	discovered_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (url, domain)
);
`

// New creates a Postgres-backed feedstore.Store.
func New(ctx context.Context, dsn string) (feedstore.Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("feedstore: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("feedstore: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("feedstore: %w", err)
	}

	return &postgresStore{pool: pool}, nil
}

func (s *postgresStore) GetFeeds(ctx context.Context, filter feedstore.Filter) ([]feedstore.Feed, error) {
	query := `SELECT url, title, domain, vertical, COALESCE(language, ''), quality_score, is_valid, discovered_at
	FROM feeds WHERE is_valid AND quality_score >= $1`
	args := []any{filter.MinQualityScore}
	paramCount := 2

	if filter.Domain != "" {
		query += fmt.Sprintf(` AND domain = $%d`, paramCount)
		args = append(args, filter.Domain)
		paramCount++
	}
	if filter.Vertical != "" {
		query += fmt.Sprintf(` AND vertical = $%d`, paramCount)
		args = append(args, filter.Vertical)
		paramCount++
	}

	query += ` ORDER BY quality_score DESC, url ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("feedstore: %w", err)
	}
	defer rows.Close()

	var feeds []feedstore.Feed
	for rows.Next() {
		var f feedstore.Feed
		if err := rows.Scan(&f.URL, &f.Title, &f.Domain, &f.Vertical, &f.Language, &f.QualityScore, &f.IsValid, &f.DiscoveredAt); err != nil {
			return nil, fmt.Errorf("feedstore: %w", err)
		}
		feeds = append(feeds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("feedstore: %w", err)
	}
	return feeds, nil
}

func (s *postgresStore) AddFeed(ctx context.Context, feed feedstore.Feed, allowDuplicates bool) (bool, error) {
	if !allowDuplicates {
		var exists int
		err := s.pool.QueryRow(ctx,
			`SELECT COUNT(1) FROM feeds WHERE url = $1 AND domain = $2`,
			feed.URL, feed.Domain,
		).Scan(&exists)
		if err != nil {
			return false, fmt.Errorf("feedstore: %w", err)
		}
		if exists > 0 {
			return false, nil
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO feeds (url, title, domain, vertical, language, quality_score, is_valid, discovered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (url, domain) DO UPDATE SET
			title = EXCLUDED.title,
			quality_score = EXCLUDED.quality_score,
			is_valid = EXCLUDED.is_valid`,
		feed.URL, feed.Title, feed.Domain, feed.Vertical, feed.Language, feed.QualityScore, feed.IsValid, feed.DiscoveredAt,
	)
	if err != nil {
		return false, fmt.Errorf("feedstore: %w", err)
	}
	return true, nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
