package domain

import (
	"errors"
	"time"
)

// ErrClusterFull is returned by stores when adding a member would exceed
// the cluster size cap
var ErrClusterFull = errors.New("cluster is full")

// Article represents a single syndicated article after ingestion.
// It is created by the feed collector, enriched in place by the cluster
// engine and the classifier, and immutable afterwards except for
// popularity updates.
type Article struct {
	ID         int64
	Source     string // source code, e.g. "bbc"
	URL        string
	URLHash    string // hash of the canonical (tracking-stripped) URL
	Title      string
	Summary    string
	Content    string
	Language   string // ISO 639-1 code, may be empty
	Published  time.Time
	Popularity float64 // [0,1], 0 means unknown
	ClusterID  int64   // 0 when unclustered
	Topics     []string
	CreatedAt  time.Time
}

// ArticleCluster groups articles believed to report the same story.
// The fingerprint is fixed at creation; membership only grows until
// the configured cap, after which similar articles start a new cluster.
type ArticleCluster struct {
	ID               int64
	Fingerprint      uint64
	RepresentativeID int64
	MemberIDs        []int64
	CreatedAt        time.Time
}

// Topic is a classification target with a recomputed popularity weight
type Topic struct {
	ID        int64
	Code      string
	Name      string
	Weight    int
	CreatedAt time.Time
}

// TopicScore is a single classification result for an article
type TopicScore struct {
	Code       string
	Confidence float64
}
