package db

import (
	"context"
	"fmt"
)

// Source is an article source with its feed URL and authority score
type Source struct {
	ID        int64
	Code      string
	Name      string
	FeedURL   string
	Authority float64
	Enabled   bool
}

// UpsertSource inserts or updates a source by code
func (db *DB) UpsertSource(ctx context.Context, src *Source) error {
	query := `
		INSERT INTO sources (code, name, feed_url, authority, enabled)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET name = excluded.name, feed_url = excluded.feed_url,
			authority = excluded.authority, enabled = excluded.enabled`

	_, err := db.conn.ExecContext(ctx, query, src.Code, src.Name, src.FeedURL, src.Authority, src.Enabled)
	if err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	return nil
}

// EnabledSources returns all enabled sources
func (db *DB) EnabledSources(ctx context.Context) ([]Source, error) {
	var rows []sourceRow
	err := db.conn.SelectContext(ctx, &rows, "SELECT * FROM sources WHERE enabled = 1 ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("get enabled sources: %w", err)
	}

	sources := make([]Source, len(rows))
	for i, r := range rows {
		sources[i] = Source{ID: r.ID, Code: r.Code, Name: r.Name, FeedURL: r.FeedURL, Authority: r.Authority, Enabled: r.Enabled}
	}
	return sources, nil
}

// SourceAuthorities returns the per-source authority table used as the
// popularity fallback in ranking
func (db *DB) SourceAuthorities(ctx context.Context) (map[string]float64, error) {
	rows := []struct {
		Code      string  `db:"code"`
		Authority float64 `db:"authority"`
	}{}
	err := db.conn.SelectContext(ctx, &rows, "SELECT code, authority FROM sources")
	if err != nil {
		return nil, fmt.Errorf("get source authorities: %w", err)
	}

	authorities := make(map[string]float64, len(rows))
	for _, r := range rows {
		authorities[r.Code] = r.Authority
	}
	return authorities, nil
}

// RefreshPopularity recomputes stored article popularity from the trailing
// interaction counts, squashed into [0,1]. Batch maintenance operation.
func (db *DB) RefreshPopularity(ctx context.Context, window string) error {
	// min(count/50, 1) keeps popularity in [0,1] without an extension function
	query := `
		UPDATE articles SET popularity = (
			SELECT MIN(CAST(COUNT(*) AS REAL) / 50.0, 1.0)
			FROM interactions i
			WHERE i.article_id = articles.id AND i.created_at >= datetime('now', ?)
		)
		WHERE EXISTS (
			SELECT 1 FROM interactions i
			WHERE i.article_id = articles.id AND i.created_at >= datetime('now', ?)
		)`

	_, err := db.conn.ExecContext(ctx, query, window, window)
	if err != nil {
		return fmt.Errorf("refresh popularity: %w", err)
	}
	return nil
}
