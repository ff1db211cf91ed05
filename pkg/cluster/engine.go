package cluster

import (
	"context"
	"errors"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/feedrank/pkg/domain"
)

// Engine assigns incoming articles to near-duplicate clusters.
// Deduplication is a quality enhancement, not a correctness requirement:
// every internal failure is logged and treated as "no cluster", never
// surfaced to the caller.
type Engine struct {
	store           Store
	threshold       float64
	maxClusterSize  int
	window          time.Duration
	maxCompareChars int
	nowFn           func() time.Time
}

// Store is the persistence surface the engine needs
type Store interface {
	GetArticle(ctx context.Context, id int64) (*domain.Article, error)
	GetRecentClusters(ctx context.Context, since time.Time) ([]domain.ArticleCluster, error)
	AddClusterMember(ctx context.Context, clusterID, articleID int64, maxMembers int) error
	CreateCluster(ctx context.Context, fingerprint uint64, articleID int64) (*domain.ArticleCluster, error)
}

// Config holds clustering parameters
type Config struct {
	SimilarityThreshold float64       // default 0.8
	MaxClusterSize      int           // default 10
	Window              time.Duration // default 7 days
	MaxCompareChars     int           // default 1000
}

// NewEngine creates a cluster engine with the provided store and config
func NewEngine(store Store, cfg Config) *Engine {
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = 0.8
	}
	if cfg.MaxClusterSize == 0 {
		cfg.MaxClusterSize = 10
	}
	if cfg.Window == 0 {
		cfg.Window = 7 * 24 * time.Hour
	}
	if cfg.MaxCompareChars == 0 {
		cfg.MaxCompareChars = 1000
	}
	return &Engine{
		store:           store,
		threshold:       cfg.SimilarityThreshold,
		maxClusterSize:  cfg.MaxClusterSize,
		window:          cfg.Window,
		maxCompareChars: cfg.MaxCompareChars,
		nowFn:           time.Now,
	}
}

// Assign places the article into an existing near-duplicate cluster or
// creates a new one with the article as representative. Returns nil when
// the article cannot be clustered; it never returns an error.
func (e *Engine) Assign(ctx context.Context, article *domain.Article) *domain.ArticleCluster {
	if article == nil || article.Title == "" || article.URL == "" {
		return nil // malformed input is skipped, not fatal
	}

	cluster, err := e.assign(ctx, article)
	if err != nil {
		lgr.Printf("[WARN] cluster assignment failed for %q: %v", article.URL, err)
		return nil
	}
	return cluster
}

func (e *Engine) assign(ctx context.Context, article *domain.Article) (*domain.ArticleCluster, error) {
	fp := Fingerprint(e.comparisonText(article))

	candidates, err := e.store.GetRecentClusters(ctx, e.nowFn().Add(-e.window))
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		c := &candidates[i]
		// a full matching cluster does not stop the scan, later candidates may accept
		if len(c.MemberIDs) >= e.maxClusterSize {
			continue
		}

		rep, err := e.store.GetArticle(ctx, c.RepresentativeID)
		if err != nil {
			lgr.Printf("[DEBUG] skip cluster %d, representative unavailable: %v", c.ID, err)
			continue
		}

		sim := Similarity(article.Title, rep.Title, article.URL, rep.URL, fp, c.Fingerprint)
		if sim < e.threshold {
			continue
		}

		err = e.store.AddClusterMember(ctx, c.ID, article.ID, e.maxClusterSize)
		if errors.Is(err, domain.ErrClusterFull) {
			// candidate filled up since we read it, keep scanning
			lgr.Printf("[DEBUG] cluster %d is full, trying remaining candidates", c.ID)
			continue
		}
		if err != nil {
			return nil, err
		}
		article.ClusterID = c.ID
		c.MemberIDs = append(c.MemberIDs, article.ID)
		lgr.Printf("[DEBUG] article %d joined cluster %d, similarity %.3f", article.ID, c.ID, sim)
		return c, nil
	}

	created, err := e.store.CreateCluster(ctx, fp, article.ID)
	if err != nil {
		return nil, err
	}
	article.ClusterID = created.ID
	return created, nil
}

// comparisonText builds the truncated title+summary string fingerprints
// are computed from
func (e *Engine) comparisonText(article *domain.Article) string {
	text := article.Title
	if article.Summary != "" {
		text += " " + article.Summary
	}
	runes := []rune(text)
	if len(runes) > e.maxCompareChars {
		runes = runes[:e.maxCompareChars]
	}
	return string(runes)
}
