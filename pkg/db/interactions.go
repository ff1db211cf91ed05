package db

import (
	"context"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"

	"github.com/umputun/feedrank/pkg/domain"
)

// interaction log operations, append-only

// AddInteraction records a new user interaction. The write is retried
// with backoff on sqlite lock errors.
func (db *DB) AddInteraction(ctx context.Context, interaction *domain.Interaction) error {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	return retrier.Do(ctx, func() error {
		res, err := db.conn.ExecContext(ctx,
			"INSERT INTO interactions (user_id, article_id, kind, read_time_sec) VALUES (?, ?, ?, ?)",
			interaction.UserID, interaction.ArticleID, string(interaction.Kind), interaction.ReadTimeSec)
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("add interaction: %w", err)}
		}

		id, err := res.LastInsertId()
		if err != nil {
			return &criticalError{err: fmt.Errorf("get interaction id: %w", err)}
		}
		interaction.ID = id
		return nil
	})
}

// UserInteractions returns a user's interactions after the cutoff, joined
// with article source, language and topic codes
func (db *DB) UserInteractions(ctx context.Context, userID int64, since time.Time) ([]domain.InteractionContext, error) {
	query := `
		SELECT i.*, a.source, a.language, group_concat(at.topic_code) AS topic_codes
		FROM interactions i
		JOIN articles a ON a.id = i.article_id
		LEFT JOIN article_topics at ON at.article_id = i.article_id
		WHERE i.user_id = ? AND i.created_at >= ?
		GROUP BY i.id
		ORDER BY i.created_at DESC`

	var rows []interactionRow
	if err := db.conn.SelectContext(ctx, &rows, query, userID, since); err != nil {
		return nil, fmt.Errorf("get user interactions: %w", err)
	}

	interactions := make([]domain.InteractionContext, len(rows))
	for i := range rows {
		interactions[i] = rows[i].toDomain()
	}
	return interactions, nil
}

// InteractionCounts returns per-article interaction counts after the cutoff,
// used by the trending sort mode
func (db *DB) InteractionCounts(ctx context.Context, articleIDs []int64, since time.Time) (map[int64]int, error) {
	if len(articleIDs) == 0 {
		return map[int64]int{}, nil
	}

	query, args, err := sqlx.In(
		"SELECT article_id, COUNT(*) AS cnt FROM interactions WHERE article_id IN (?) AND created_at >= ? GROUP BY article_id",
		articleIDs, since)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	query = db.conn.Rebind(query)

	rows := []struct {
		ArticleID int64 `db:"article_id"`
		Count     int   `db:"cnt"`
	}{}
	if err := db.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("get interaction counts: %w", err)
	}

	counts := make(map[int64]int, len(rows))
	for _, r := range rows {
		counts[r.ArticleID] = r.Count
	}
	return counts, nil
}
