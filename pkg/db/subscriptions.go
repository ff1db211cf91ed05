package db

import (
	"context"
	"fmt"

	"github.com/umputun/feedrank/pkg/domain"
)

// subscription operations, owned and mutated by the user

// CreateSubscription inserts a new subscription and sets its ID
func (db *DB) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (user_id, keywords, combinator, topics, sources, priority, daily_cap, quiet_from, quiet_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var quietFrom, quietTo any
	if sub.QuietFrom != nil {
		quietFrom = *sub.QuietFrom
	}
	if sub.QuietTo != nil {
		quietTo = *sub.QuietTo
	}

	res, err := db.conn.ExecContext(ctx, query,
		sub.UserID, toJSONList(sub.Keywords), string(sub.Combinator),
		toJSONList(sub.Topics), toJSONList(sub.Sources),
		sub.Priority, sub.DailyCap, quietFrom, quietTo)
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get subscription id: %w", err)
	}
	sub.ID = id
	return nil
}

// UserSubscriptions returns all subscriptions for a user
func (db *DB) UserSubscriptions(ctx context.Context, userID int64) ([]domain.Subscription, error) {
	var rows []subscriptionRow
	err := db.conn.SelectContext(ctx, &rows,
		"SELECT * FROM subscriptions WHERE user_id = ? ORDER BY priority DESC, id ASC", userID)
	if err != nil {
		return nil, fmt.Errorf("get user subscriptions: %w", err)
	}

	subs := make([]domain.Subscription, len(rows))
	for i := range rows {
		subs[i] = rows[i].toDomain()
	}
	return subs, nil
}

// DeleteSubscription removes a subscription owned by the given user
func (db *DB) DeleteSubscription(ctx context.Context, userID, subID int64) error {
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM subscriptions WHERE id = ? AND user_id = ?", subID, userID)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("subscription %d not found for user %d", subID, userID)
	}
	return nil
}
