package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"

	"github.com/umputun/feedrank/pkg/domain"
)

// article-related database operations

// CreateArticle inserts a new article and sets its ID. The write is retried
// with backoff on sqlite lock errors.
func (db *DB) CreateArticle(ctx context.Context, article *domain.Article) error {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	return retrier.Do(ctx, func() error {
		query := `
			INSERT INTO articles (source, url, url_hash, title, summary, content, language, published, popularity)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

		var published any
		if !article.Published.IsZero() {
			published = article.Published
		}

		res, err := db.conn.ExecContext(ctx, query,
			article.Source, article.URL, article.URLHash, article.Title,
			article.Summary, article.Content, article.Language, published, article.Popularity)
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("create article: %w", err)}
		}

		id, err := res.LastInsertId()
		if err != nil {
			return &criticalError{err: fmt.Errorf("get article id: %w", err)}
		}
		article.ID = id
		return nil
	})
}

// GetArticle retrieves a single article with its topic codes
func (db *DB) GetArticle(ctx context.Context, id int64) (*domain.Article, error) {
	query := `
		SELECT a.*, group_concat(at.topic_code) AS topic_codes
		FROM articles a
		LEFT JOIN article_topics at ON at.article_id = a.id
		WHERE a.id = ?
		GROUP BY a.id`

	var row articleRow
	err := db.conn.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("article %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get article: %w", err)
	}
	article := row.toDomain()
	return &article, nil
}

// ArticleExists checks if an article with the given canonical URL hash exists
func (db *DB) ArticleExists(ctx context.Context, urlHash string) (bool, error) {
	var count int
	err := db.conn.GetContext(ctx, &count, "SELECT COUNT(*) FROM articles WHERE url_hash = ?", urlHash)
	if err != nil {
		return false, fmt.Errorf("check article existence: %w", err)
	}
	return count > 0, nil
}

// GetRecentArticles returns articles published after the cutoff,
// newest first, with their topic codes attached
func (db *DB) GetRecentArticles(ctx context.Context, since time.Time, limit int) ([]domain.Article, error) {
	query := `
		SELECT a.*, group_concat(at.topic_code) AS topic_codes
		FROM articles a
		LEFT JOIN article_topics at ON at.article_id = a.id
		WHERE a.published >= ?
		GROUP BY a.id
		ORDER BY a.published DESC
		LIMIT ?`

	var rows []articleRow
	if err := db.conn.SelectContext(ctx, &rows, query, since, limit); err != nil {
		return nil, fmt.Errorf("get recent articles: %w", err)
	}

	articles := make([]domain.Article, len(rows))
	for i := range rows {
		articles[i] = rows[i].toDomain()
	}
	return articles, nil
}

// SetArticleTopics replaces topic assignments for an article
func (db *DB) SetArticleTopics(ctx context.Context, articleID int64, topics []domain.TopicScore) error {
	return db.InTransaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM article_topics WHERE article_id = ?", articleID); err != nil {
			return fmt.Errorf("clear article topics: %w", err)
		}
		for _, t := range topics {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO article_topics (article_id, topic_code, confidence) VALUES (?, ?, ?)",
				articleID, t.Code, t.Confidence)
			if err != nil {
				return fmt.Errorf("insert article topic %s: %w", t.Code, err)
			}
		}
		return nil
	})
}

// UpdateArticlePopularity sets the stored popularity score for an article
func (db *DB) UpdateArticlePopularity(ctx context.Context, articleID int64, popularity float64) error {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	return retrier.Do(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			"UPDATE articles SET popularity = ? WHERE id = ?", popularity, articleID)
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("update article popularity: %w", err)}
		}
		return nil
	})
}

// criticalError wraps an error to signal repeater to stop retrying
type criticalError struct {
	err error
}

func (e *criticalError) Error() string {
	return e.err.Error()
}
