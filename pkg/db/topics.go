package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/umputun/feedrank/pkg/domain"
)

// topic-related database operations

// GetTopic retrieves a topic by code, nil if not found
func (db *DB) GetTopic(ctx context.Context, code string) (*domain.Topic, error) {
	var row topicRow
	err := db.conn.GetContext(ctx, &row, "SELECT * FROM topics WHERE code = ?", code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get topic: %w", err)
	}
	topic := row.toDomain()
	return &topic, nil
}

// CreateTopic inserts a topic, a no-op when the code already exists
func (db *DB) CreateTopic(ctx context.Context, code, name string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO topics (code, name) VALUES (?, ?) ON CONFLICT(code) DO NOTHING", code, name)
	if err != nil {
		return fmt.Errorf("create topic: %w", err)
	}
	return nil
}

// ListTopics returns all topics ordered by weight descending
func (db *DB) ListTopics(ctx context.Context) ([]domain.Topic, error) {
	var rows []topicRow
	err := db.conn.SelectContext(ctx, &rows, "SELECT * FROM topics ORDER BY weight DESC, code ASC")
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	topics := make([]domain.Topic, len(rows))
	for i := range rows {
		topics[i] = rows[i].toDomain()
	}
	return topics, nil
}

// TopicArticleCounts returns the number of tagged articles per topic code
func (db *DB) TopicArticleCounts(ctx context.Context) (map[string]int, error) {
	rows := []struct {
		Code  string `db:"topic_code"`
		Count int    `db:"cnt"`
	}{}
	err := db.conn.SelectContext(ctx, &rows,
		"SELECT topic_code, COUNT(*) AS cnt FROM article_topics GROUP BY topic_code")
	if err != nil {
		return nil, fmt.Errorf("get topic article counts: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Code] = r.Count
	}
	return counts, nil
}

// UpdateTopicWeight sets the recomputed popularity weight for a topic
func (db *DB) UpdateTopicWeight(ctx context.Context, code string, weight int) error {
	_, err := db.conn.ExecContext(ctx, "UPDATE topics SET weight = ? WHERE code = ?", weight, code)
	if err != nil {
		return fmt.Errorf("update topic weight: %w", err)
	}
	return nil
}
