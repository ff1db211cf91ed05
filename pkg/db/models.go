package db

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/umputun/feedrank/pkg/domain"
)

// articleRow is the sqlx representation of an article, optionally joined
// with its topic codes via group_concat
type articleRow struct {
	ID         int64          `db:"id"`
	Source     string         `db:"source"`
	URL        string         `db:"url"`
	URLHash    string         `db:"url_hash"`
	Title      string         `db:"title"`
	Summary    string         `db:"summary"`
	Content    string         `db:"content"`
	Language   string         `db:"language"`
	Published  sql.NullTime   `db:"published"`
	Popularity float64        `db:"popularity"`
	ClusterID  sql.NullInt64  `db:"cluster_id"`
	CreatedAt  time.Time      `db:"created_at"`
	TopicCodes sql.NullString `db:"topic_codes"`
}

func (r *articleRow) toDomain() domain.Article {
	a := domain.Article{
		ID:         r.ID,
		Source:     r.Source,
		URL:        r.URL,
		URLHash:    r.URLHash,
		Title:      r.Title,
		Summary:    r.Summary,
		Content:    r.Content,
		Language:   r.Language,
		Popularity: r.Popularity,
		CreatedAt:  r.CreatedAt,
	}
	if r.Published.Valid {
		a.Published = r.Published.Time
	}
	if r.ClusterID.Valid {
		a.ClusterID = r.ClusterID.Int64
	}
	if r.TopicCodes.Valid && r.TopicCodes.String != "" {
		a.Topics = splitCodes(r.TopicCodes.String)
	}
	return a
}

// clusterRow is the sqlx representation of an article cluster
type clusterRow struct {
	ID               int64     `db:"id"`
	Fingerprint      int64     `db:"fingerprint"`
	RepresentativeID int64     `db:"representative_id"`
	CreatedAt        time.Time `db:"created_at"`
}

func (r *clusterRow) toDomain(members []int64) domain.ArticleCluster {
	return domain.ArticleCluster{
		ID:               r.ID,
		Fingerprint:      uint64(r.Fingerprint), //nolint:gosec // round-trip of the stored 64-bit value
		RepresentativeID: r.RepresentativeID,
		MemberIDs:        members,
		CreatedAt:        r.CreatedAt,
	}
}

// topicRow is the sqlx representation of a topic
type topicRow struct {
	ID        int64     `db:"id"`
	Code      string    `db:"code"`
	Name      string    `db:"name"`
	Weight    int       `db:"weight"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *topicRow) toDomain() domain.Topic {
	return domain.Topic{ID: r.ID, Code: r.Code, Name: r.Name, Weight: r.Weight, CreatedAt: r.CreatedAt}
}

// interactionRow is an interaction joined with article context
type interactionRow struct {
	ID          int64          `db:"id"`
	UserID      int64          `db:"user_id"`
	ArticleID   int64          `db:"article_id"`
	Kind        string         `db:"kind"`
	ReadTimeSec int            `db:"read_time_sec"`
	CreatedAt   time.Time      `db:"created_at"`
	Source      sql.NullString `db:"source"`
	Language    sql.NullString `db:"language"`
	TopicCodes  sql.NullString `db:"topic_codes"`
}

func (r *interactionRow) toDomain() domain.InteractionContext {
	ic := domain.InteractionContext{
		Interaction: domain.Interaction{
			ID:          r.ID,
			UserID:      r.UserID,
			ArticleID:   r.ArticleID,
			Kind:        domain.InteractionKind(r.Kind),
			ReadTimeSec: r.ReadTimeSec,
			CreatedAt:   r.CreatedAt,
		},
		Source:   r.Source.String,
		Language: r.Language.String,
	}
	if r.TopicCodes.Valid && r.TopicCodes.String != "" {
		ic.Topics = splitCodes(r.TopicCodes.String)
	}
	return ic
}

// subscriptionRow is the sqlx representation of a subscription,
// list fields are stored as JSON arrays
type subscriptionRow struct {
	ID         int64         `db:"id"`
	UserID     int64         `db:"user_id"`
	Keywords   string        `db:"keywords"`
	Combinator string        `db:"combinator"`
	Topics     string        `db:"topics"`
	Sources    string        `db:"sources"`
	Priority   int           `db:"priority"`
	DailyCap   int           `db:"daily_cap"`
	QuietFrom  sql.NullInt64 `db:"quiet_from"`
	QuietTo    sql.NullInt64 `db:"quiet_to"`
	CreatedAt  time.Time     `db:"created_at"`
}

func (r *subscriptionRow) toDomain() domain.Subscription {
	s := domain.Subscription{
		ID:         r.ID,
		UserID:     r.UserID,
		Keywords:   fromJSONList(r.Keywords),
		Combinator: domain.Combinator(r.Combinator),
		Topics:     fromJSONList(r.Topics),
		Sources:    fromJSONList(r.Sources),
		Priority:   r.Priority,
		DailyCap:   r.DailyCap,
		CreatedAt:  r.CreatedAt,
	}
	if r.QuietFrom.Valid {
		v := int(r.QuietFrom.Int64)
		s.QuietFrom = &v
	}
	if r.QuietTo.Valid {
		v := int(r.QuietTo.Int64)
		s.QuietTo = &v
	}
	return s
}

// sourceRow is the sqlx representation of an article source
type sourceRow struct {
	ID        int64     `db:"id"`
	Code      string    `db:"code"`
	Name      string    `db:"name"`
	FeedURL   string    `db:"feed_url"`
	Authority float64   `db:"authority"`
	Enabled   bool      `db:"enabled"`
	CreatedAt time.Time `db:"created_at"`
}

// splitCodes parses a group_concat output into a sorted-unique code list
func splitCodes(s string) []string {
	parts := strings.Split(s, ",")
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// toJSONList marshals a string list for storage, nil becomes "[]"
func toJSONList(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// fromJSONList unmarshals a stored JSON array, returns nil on bad data
func fromJSONList(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil
	}
	return list
}
