package cluster

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/feedrank/pkg/domain"
)

// fakeStore is an in-memory cluster store
type fakeStore struct {
	articles    map[int64]*domain.Article
	clusters    []domain.ArticleCluster
	nextID      int64
	recentErr   error
	addErr      error
	lastSince   time.Time
	addedCalls  int
	createCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{articles: map[int64]*domain.Article{}, nextID: 100}
}

func (f *fakeStore) GetArticle(_ context.Context, id int64) (*domain.Article, error) {
	a, ok := f.articles[id]
	if !ok {
		return nil, errors.New("article not found")
	}
	return a, nil
}

func (f *fakeStore) GetRecentClusters(_ context.Context, since time.Time) ([]domain.ArticleCluster, error) {
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	f.lastSince = since
	var out []domain.ArticleCluster
	for _, c := range f.clusters {
		if !c.CreatedAt.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) AddClusterMember(_ context.Context, clusterID, articleID int64, maxMembers int) error {
	if f.addErr != nil {
		return f.addErr
	}
	for i := range f.clusters {
		if f.clusters[i].ID == clusterID {
			if maxMembers > 0 && len(f.clusters[i].MemberIDs) >= maxMembers {
				return fmt.Errorf("cluster %d: %w", clusterID, domain.ErrClusterFull)
			}
			f.addedCalls++
			f.clusters[i].MemberIDs = append(f.clusters[i].MemberIDs, articleID)
			return nil
		}
	}
	return errors.New("cluster not found")
}

func (f *fakeStore) CreateCluster(_ context.Context, fingerprint uint64, articleID int64) (*domain.ArticleCluster, error) {
	f.createCalls++
	f.nextID++
	c := domain.ArticleCluster{
		ID:               f.nextID,
		Fingerprint:      fingerprint,
		RepresentativeID: articleID,
		MemberIDs:        []int64{articleID},
		CreatedAt:        time.Now(),
	}
	f.clusters = append(f.clusters, c)
	return &c, nil
}

// seed registers an article and a single-member cluster around it
func (f *fakeStore) seed(article *domain.Article, createdAt time.Time) domain.ArticleCluster {
	f.articles[article.ID] = article
	f.nextID++
	c := domain.ArticleCluster{
		ID:               f.nextID,
		Fingerprint:      Fingerprint(article.Title),
		RepresentativeID: article.ID,
		MemberIDs:        []int64{article.ID},
		CreatedAt:        createdAt,
	}
	f.clusters = append(f.clusters, c)
	return c
}

func TestEngineAssign(t *testing.T) {
	t.Run("first article creates a cluster", func(t *testing.T) {
		store := newFakeStore()
		e := NewEngine(store, Config{})

		article := &domain.Article{ID: 1, Title: "company releases new product", URL: "https://example.com/p"}
		c := e.Assign(context.Background(), article)

		require.NotNil(t, c)
		assert.Equal(t, c.ID, article.ClusterID)
		assert.Equal(t, []int64{1}, c.MemberIDs)
		assert.Equal(t, 1, store.createCalls)
	})

	t.Run("tracking variant of same url joins", func(t *testing.T) {
		store := newFakeStore()
		e := NewEngine(store, Config{})

		seeded := store.seed(&domain.Article{
			ID: 1, Title: "company releases new product", URL: "https://example.com/p?utm_source=rss",
		}, time.Now())

		article := &domain.Article{ID: 2, Title: "company releases new product", URL: "https://example.com/p?utm_source=mail"}
		c := e.Assign(context.Background(), article)

		require.NotNil(t, c)
		assert.Equal(t, seeded.ID, c.ID)
		assert.Equal(t, seeded.ID, article.ClusterID)
		assert.Equal(t, []int64{1, 2}, c.MemberIDs)
		assert.Equal(t, 0, store.createCalls)
	})

	t.Run("cjk near duplicate joins", func(t *testing.T) {
		store := newFakeStore()
		e := NewEngine(store, Config{SimilarityThreshold: 0.7})

		seeded := store.seed(&domain.Article{
			ID: 1, Title: "Apple 发布新品", URL: "https://site-a.example.com/apple",
		}, time.Now())

		// same story, different punctuation and spacing, different outlet
		article := &domain.Article{ID: 2, Title: "Apple发布新品!", URL: "https://site-b.example.com/apple"}
		c := e.Assign(context.Background(), article)

		require.NotNil(t, c)
		assert.Equal(t, seeded.ID, c.ID)
	})

	t.Run("dissimilar article starts its own cluster", func(t *testing.T) {
		store := newFakeStore()
		e := NewEngine(store, Config{})

		seeded := store.seed(&domain.Article{
			ID: 1, Title: "stock market hits record high", URL: "https://a.example.com/1",
		}, time.Now())

		article := &domain.Article{ID: 2, Title: "rare bird spotted in city park", URL: "https://b.example.com/2"}
		c := e.Assign(context.Background(), article)

		require.NotNil(t, c)
		assert.NotEqual(t, seeded.ID, c.ID)
		assert.Equal(t, 1, store.createCalls)
	})

	t.Run("full cluster is skipped, new cluster created", func(t *testing.T) {
		store := newFakeStore()
		e := NewEngine(store, Config{MaxClusterSize: 3})

		seeded := store.seed(&domain.Article{
			ID: 1, Title: "company releases new product", URL: "https://example.com/p",
		}, time.Now())
		store.clusters[0].MemberIDs = []int64{1, 5, 6} // at capacity

		article := &domain.Article{ID: 2, Title: "company releases new product", URL: "https://example.com/p?utm_source=x"}
		c := e.Assign(context.Background(), article)

		require.NotNil(t, c)
		assert.NotEqual(t, seeded.ID, c.ID, "full cluster must not accept new members")
		assert.Equal(t, 0, store.addedCalls)
		assert.Equal(t, 1, store.createCalls)
	})

	t.Run("cluster filled after the candidate read falls through", func(t *testing.T) {
		store := newFakeStore()
		e := NewEngine(store, Config{MaxClusterSize: 2})

		seeded := store.seed(&domain.Article{
			ID: 1, Title: "company releases new product", URL: "https://example.com/p",
		}, time.Now())
		// the candidate list showed room, but another writer filled the
		// cluster before our insert landed
		store.addErr = fmt.Errorf("cluster %d: %w", seeded.ID, domain.ErrClusterFull)

		article := &domain.Article{ID: 2, Title: "company releases new product", URL: "https://example.com/p?utm_source=x"}
		c := e.Assign(context.Background(), article)

		require.NotNil(t, c)
		assert.NotEqual(t, seeded.ID, c.ID, "rejected insert must fall through to a new cluster")
		assert.Equal(t, 1, store.createCalls)
	})

	t.Run("member insert failure degrades to no cluster", func(t *testing.T) {
		store := newFakeStore()
		e := NewEngine(store, Config{})

		store.seed(&domain.Article{
			ID: 1, Title: "company releases new product", URL: "https://example.com/p",
		}, time.Now())
		store.addErr = errors.New("db gone")

		article := &domain.Article{ID: 2, Title: "company releases new product", URL: "https://example.com/p?utm_source=x"}
		assert.Nil(t, e.Assign(context.Background(), article))
		assert.Zero(t, article.ClusterID)
	})

	t.Run("clusters outside the window are ignored", func(t *testing.T) {
		store := newFakeStore()
		e := NewEngine(store, Config{Window: 24 * time.Hour})

		store.seed(&domain.Article{
			ID: 1, Title: "company releases new product", URL: "https://example.com/p",
		}, time.Now().Add(-48*time.Hour))

		article := &domain.Article{ID: 2, Title: "company releases new product", URL: "https://example.com/p?utm_term=x"}
		c := e.Assign(context.Background(), article)

		require.NotNil(t, c)
		assert.Equal(t, 1, store.createCalls, "stale cluster should not be a candidate")
	})

	t.Run("malformed input returns nil", func(t *testing.T) {
		e := NewEngine(newFakeStore(), Config{})

		assert.Nil(t, e.Assign(context.Background(), nil))
		assert.Nil(t, e.Assign(context.Background(), &domain.Article{ID: 1, URL: "https://example.com"}))
		assert.Nil(t, e.Assign(context.Background(), &domain.Article{ID: 1, Title: "no url"}))
	})

	t.Run("store failure degrades to no cluster", func(t *testing.T) {
		store := newFakeStore()
		store.recentErr = errors.New("db gone")
		e := NewEngine(store, Config{})

		article := &domain.Article{ID: 1, Title: "some title", URL: "https://example.com/p"}
		assert.Nil(t, e.Assign(context.Background(), article))
		assert.Zero(t, article.ClusterID)
	})

	t.Run("unavailable representative skips candidate", func(t *testing.T) {
		store := newFakeStore()
		e := NewEngine(store, Config{})

		// cluster whose representative article is missing from the store
		store.nextID++
		store.clusters = append(store.clusters, domain.ArticleCluster{
			ID: store.nextID, Fingerprint: Fingerprint("company releases new product"),
			RepresentativeID: 999, MemberIDs: []int64{999}, CreatedAt: time.Now(),
		})

		article := &domain.Article{ID: 2, Title: "company releases new product", URL: "https://example.com/p"}
		c := e.Assign(context.Background(), article)

		require.NotNil(t, c)
		assert.Equal(t, 1, store.createCalls)
	})
}

func TestEngineComparisonText(t *testing.T) {
	e := NewEngine(newFakeStore(), Config{MaxCompareChars: 10})

	got := e.comparisonText(&domain.Article{Title: "0123456789extra", Summary: "more"})
	assert.Equal(t, "0123456789", got)

	e2 := NewEngine(newFakeStore(), Config{})
	got2 := e2.comparisonText(&domain.Article{Title: "title", Summary: "summary"})
	assert.Equal(t, "title summary", got2)
}
