package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/umputun/feedrank/pkg/domain"
)

// cluster-related database operations

// CreateCluster creates a new cluster with the given article as
// representative and first member
func (db *DB) CreateCluster(ctx context.Context, fingerprint uint64, articleID int64) (*domain.ArticleCluster, error) {
	var cluster *domain.ArticleCluster

	err := db.InTransaction(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO clusters (fingerprint, representative_id) VALUES (?, ?)",
			int64(fingerprint), articleID) //nolint:gosec // stored as the raw 64-bit pattern
		if err != nil {
			return fmt.Errorf("insert cluster: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("get cluster id: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO cluster_members (cluster_id, article_id, position) VALUES (?, ?, 1)",
			id, articleID)
		if err != nil {
			return fmt.Errorf("insert first member: %w", err)
		}

		_, err = tx.ExecContext(ctx, "UPDATE articles SET cluster_id = ? WHERE id = ?", id, articleID)
		if err != nil {
			return fmt.Errorf("link article to cluster: %w", err)
		}

		cluster = &domain.ArticleCluster{
			ID:               id,
			Fingerprint:      fingerprint,
			RepresentativeID: articleID,
			MemberIDs:        []int64{articleID},
			CreatedAt:        time.Now(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cluster, nil
}

// GetRecentClusters returns clusters created after the cutoff with their
// member lists, oldest first so earlier clusters win ties
func (db *DB) GetRecentClusters(ctx context.Context, since time.Time) ([]domain.ArticleCluster, error) {
	var rows []clusterRow
	err := db.conn.SelectContext(ctx, &rows,
		"SELECT * FROM clusters WHERE created_at >= ? ORDER BY created_at ASC", since)
	if err != nil {
		return nil, fmt.Errorf("get recent clusters: %w", err)
	}

	clusters := make([]domain.ArticleCluster, 0, len(rows))
	for i := range rows {
		members, err := db.clusterMembers(ctx, rows[i].ID)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, rows[i].toDomain(members))
	}
	return clusters, nil
}

// AddClusterMember appends an article to a cluster and links the article.
// The size cap is checked inside the transaction, so concurrent writers
// cannot push membership past maxMembers; a full cluster returns
// domain.ErrClusterFull and leaves membership untouched.
func (db *DB) AddClusterMember(ctx context.Context, clusterID, articleID int64, maxMembers int) error {
	return db.InTransaction(ctx, func(tx *sqlx.Tx) error {
		var count int
		err := tx.GetContext(ctx, &count,
			"SELECT COUNT(*) FROM cluster_members WHERE cluster_id = ?", clusterID)
		if err != nil {
			return fmt.Errorf("count cluster members: %w", err)
		}
		if maxMembers > 0 && count >= maxMembers {
			return fmt.Errorf("cluster %d has %d members: %w", clusterID, count, domain.ErrClusterFull)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO cluster_members (cluster_id, article_id, position) VALUES (?, ?, ?)",
			clusterID, articleID, count+1)
		if err != nil {
			return fmt.Errorf("insert cluster member: %w", err)
		}

		_, err = tx.ExecContext(ctx, "UPDATE articles SET cluster_id = ? WHERE id = ?", clusterID, articleID)
		if err != nil {
			return fmt.Errorf("link article to cluster: %w", err)
		}
		return nil
	})
}

// clusterMembers returns member article ids in insertion order
func (db *DB) clusterMembers(ctx context.Context, clusterID int64) ([]int64, error) {
	var ids []int64
	err := db.conn.SelectContext(ctx, &ids,
		"SELECT article_id FROM cluster_members WHERE cluster_id = ? ORDER BY position", clusterID)
	if err != nil {
		return nil, fmt.Errorf("get cluster members: %w", err)
	}
	return ids, nil
}
