package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/feedrank/pkg/domain"
	"github.com/umputun/feedrank/pkg/ranking"
)

type fakeDB struct {
	articles    []domain.Article
	articlesErr error

	interactions []*domain.Interaction
	interactErr  error

	subs      []domain.Subscription
	createErr error
	deleteErr error
	deleted   []int64

	topics []domain.Topic
}

func (f *fakeDB) GetRecentArticles(_ context.Context, _ time.Time, limit int) ([]domain.Article, error) {
	if f.articlesErr != nil {
		return nil, f.articlesErr
	}
	if limit < len(f.articles) {
		return f.articles[:limit], nil
	}
	return f.articles, nil
}

func (f *fakeDB) AddInteraction(_ context.Context, interaction *domain.Interaction) error {
	if f.interactErr != nil {
		return f.interactErr
	}
	interaction.ID = int64(len(f.interactions) + 1)
	f.interactions = append(f.interactions, interaction)
	return nil
}

func (f *fakeDB) CreateSubscription(_ context.Context, sub *domain.Subscription) error {
	if f.createErr != nil {
		return f.createErr
	}
	sub.ID = int64(len(f.subs) + 1)
	f.subs = append(f.subs, *sub)
	return nil
}

func (f *fakeDB) UserSubscriptions(_ context.Context, userID int64) ([]domain.Subscription, error) {
	var res []domain.Subscription
	for _, s := range f.subs {
		if s.UserID == userID {
			res = append(res, s)
		}
	}
	return res, nil
}

func (f *fakeDB) DeleteSubscription(_ context.Context, _, subID int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, subID)
	return nil
}

func (f *fakeDB) ListTopics(_ context.Context) ([]domain.Topic, error) { return f.topics, nil }

type fakeRanker struct {
	lastOpts   ranking.Options
	lastUserID int64
}

func (f *fakeRanker) Rank(_ context.Context, articles []domain.Article, userID int64, opts ranking.Options) []domain.ScoredArticle {
	f.lastOpts = opts
	f.lastUserID = userID
	res := make([]domain.ScoredArticle, 0, len(articles))
	for i, a := range articles {
		res = append(res, domain.ScoredArticle{
			Article: a,
			Score:   1.0 - float64(i)*0.1,
			Reasons: []string{"test-reason"},
		})
	}
	return res
}

type fakeProfiles struct {
	profile     *domain.UserProfile
	profileErr  error
	invalidated []int64
}

func (f *fakeProfiles) Profile(_ context.Context, userID int64) (*domain.UserProfile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	if f.profile != nil {
		return f.profile, nil
	}
	return &domain.UserProfile{UserID: userID}, nil
}

func (f *fakeProfiles) Invalidate(userID int64) { f.invalidated = append(f.invalidated, userID) }

type fakeScheduler struct {
	polls   int
	pollErr error
}

func (f *fakeScheduler) PollNow(context.Context) error {
	f.polls++
	return f.pollErr
}

type fakeConfig struct{}

func (fakeConfig) GetServerConfig() (string, time.Duration) { return "127.0.0.1:0", 5 * time.Second }
func (fakeConfig) GetFeedConfig() (time.Duration, int)      { return 72 * time.Hour, 50 }

func testServer(db *fakeDB, ranker *fakeRanker, profiles *fakeProfiles, sched *fakeScheduler) *httptest.Server {
	srv := New(fakeConfig{}, db, ranker, profiles, sched, "test", false)
	return httptest.NewServer(srv.router)
}

func testArticles(n int) []domain.Article {
	res := make([]domain.Article, 0, n)
	for i := 0; i < n; i++ {
		res = append(res, domain.Article{
			ID:        int64(i + 1),
			Source:    "bbc",
			URL:       fmt.Sprintf("https://bbc.example.com/%d", i+1),
			Title:     fmt.Sprintf("article %d", i+1),
			Published: time.Now().Add(-time.Duration(i) * time.Hour),
			Topics:    []string{"tech"},
		})
	}
	return res
}

func TestFeedHandler(t *testing.T) {
	t.Run("personal feed", func(t *testing.T) {
		db := &fakeDB{articles: testArticles(3)}
		ranker := &fakeRanker{}
		ts := testServer(db, ranker, &fakeProfiles{}, &fakeScheduler{})
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/api/v1/feed?user_id=42")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body feedResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, int64(42), body.UserID)
		assert.Equal(t, "personal", body.Sort)
		require.Len(t, body.Articles, 3)
		assert.Equal(t, "article 1", body.Articles[0].Title)
		assert.InDelta(t, 1.0, body.Articles[0].Score, 0.001)
		assert.Equal(t, []string{"test-reason"}, body.Articles[0].Reasons)

		assert.Equal(t, int64(42), ranker.lastUserID)
		assert.True(t, ranker.lastOpts.DiversityEnabled, "diversity on by default")
	})

	t.Run("missing user_id", func(t *testing.T) {
		ts := testServer(&fakeDB{}, &fakeRanker{}, &fakeProfiles{}, &fakeScheduler{})
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/api/v1/feed")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid sort", func(t *testing.T) {
		ts := testServer(&fakeDB{}, &fakeRanker{}, &fakeProfiles{}, &fakeScheduler{})
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/api/v1/feed?user_id=1&sort=bogus")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("limit caps results", func(t *testing.T) {
		db := &fakeDB{articles: testArticles(10)}
		ts := testServer(db, &fakeRanker{}, &fakeProfiles{}, &fakeScheduler{})
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/api/v1/feed?user_id=1&limit=2")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body feedResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Len(t, body.Articles, 2)
	})

	t.Run("invalid limit", func(t *testing.T) {
		ts := testServer(&fakeDB{}, &fakeRanker{}, &fakeProfiles{}, &fakeScheduler{})
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/api/v1/feed?user_id=1&limit=0")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("diversity and exploration options", func(t *testing.T) {
		ranker := &fakeRanker{}
		ts := testServer(&fakeDB{}, ranker, &fakeProfiles{}, &fakeScheduler{})
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/api/v1/feed?user_id=1&diversity=false&exploration=0.25")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		assert.False(t, ranker.lastOpts.DiversityEnabled)
		assert.InDelta(t, 0.25, ranker.lastOpts.ExplorationRate, 0.001)
	})

	t.Run("invalid exploration rate", func(t *testing.T) {
		ts := testServer(&fakeDB{}, &fakeRanker{}, &fakeProfiles{}, &fakeScheduler{})
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/api/v1/feed?user_id=1&exploration=1.5")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("db failure", func(t *testing.T) {
		db := &fakeDB{articlesErr: errors.New("db down")}
		ts := testServer(db, &fakeRanker{}, &fakeProfiles{}, &fakeScheduler{})
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/api/v1/feed?user_id=1")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestProfileHandler(t *testing.T) {
	t.Run("returns profile", func(t *testing.T) {
		profiles := &fakeProfiles{profile: &domain.UserProfile{
			UserID: 7,
			Topics: map[string]domain.Preference{"ai": {Score: 1.0, Weight: 0.8}},
		}}
		ts := testServer(&fakeDB{}, &fakeRanker{}, profiles, &fakeScheduler{})
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/api/v1/profile?user_id=7")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var prof domain.UserProfile
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&prof))
		assert.Equal(t, int64(7), prof.UserID)
		assert.InDelta(t, 1.0, prof.Topics["ai"].Score, 0.001)
	})

	t.Run("profile failure", func(t *testing.T) {
		profiles := &fakeProfiles{profileErr: errors.New("boom")}
		ts := testServer(&fakeDB{}, &fakeRanker{}, profiles, &fakeScheduler{})
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/api/v1/profile?user_id=7")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestAddInteractionHandler(t *testing.T) {
	t.Run("records interaction and invalidates profile", func(t *testing.T) {
		db := &fakeDB{}
		profiles := &fakeProfiles{}
		ts := testServer(db, &fakeRanker{}, profiles, &fakeScheduler{})
		defer ts.Close()

		payload := `{"user_id": 3, "article_id": 11, "kind": "read", "read_time_seconds": 95}`
		resp, err := http.Post(ts.URL+"/api/v1/interactions", "application/json", bytes.NewBufferString(payload))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		require.Len(t, db.interactions, 1)
		assert.Equal(t, domain.InteractionRead, db.interactions[0].Kind)
		assert.Equal(t, 95, db.interactions[0].ReadTimeSec)
		assert.Equal(t, []int64{3}, profiles.invalidated)
	})

	t.Run("missing fields", func(t *testing.T) {
		ts := testServer(&fakeDB{}, &fakeRanker{}, &fakeProfiles{}, &fakeScheduler{})
		defer ts.Close()

		resp, err := http.Post(ts.URL+"/api/v1/interactions", "application/json",
			bytes.NewBufferString(`{"user_id": 3}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		ts := testServer(&fakeDB{}, &fakeRanker{}, &fakeProfiles{}, &fakeScheduler{})
		defer ts.Close()

		resp, err := http.Post(ts.URL+"/api/v1/interactions", "application/json",
			bytes.NewBufferString(`{not json`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("store failure", func(t *testing.T) {
		db := &fakeDB{interactErr: errors.New("db down")}
		profiles := &fakeProfiles{}
		ts := testServer(db, &fakeRanker{}, profiles, &fakeScheduler{})
		defer ts.Close()

		payload := `{"user_id": 3, "article_id": 11, "kind": "click"}`
		resp, err := http.Post(ts.URL+"/api/v1/interactions", "application/json", bytes.NewBufferString(payload))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Empty(t, profiles.invalidated, "no invalidation on failed write")
	})
}

func TestSubscriptionHandlers(t *testing.T) {
	t.Run("create list delete", func(t *testing.T) {
		db := &fakeDB{}
		profiles := &fakeProfiles{}
		ts := testServer(db, &fakeRanker{}, profiles, &fakeScheduler{})
		defer ts.Close()

		payload := `{"user_id": 5, "keywords": ["golang", "compiler"], "combinator": "and", "priority": 8}`
		resp, err := http.Post(ts.URL+"/api/v1/subscriptions", "application/json", bytes.NewBufferString(payload))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.Len(t, db.subs, 1)
		assert.Equal(t, domain.CombinatorAnd, db.subs[0].Combinator)

		resp, err = http.Get(ts.URL + "/api/v1/subscriptions?user_id=5")
		require.NoError(t, err)
		var subs []domain.Subscription
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&subs))
		resp.Body.Close()
		require.Len(t, subs, 1)
		assert.Equal(t, []string{"golang", "compiler"}, subs[0].Keywords)

		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/subscriptions/1?user_id=5", http.NoBody)
		require.NoError(t, err)
		resp, err = http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []int64{1}, db.deleted)

		assert.Equal(t, []int64{5, 5}, profiles.invalidated, "create and delete both invalidate")
	})

	t.Run("default combinator is or", func(t *testing.T) {
		db := &fakeDB{}
		ts := testServer(db, &fakeRanker{}, &fakeProfiles{}, &fakeScheduler{})
		defer ts.Close()

		payload := `{"user_id": 5, "topics": ["ai"], "priority": 3}`
		resp, err := http.Post(ts.URL+"/api/v1/subscriptions", "application/json", bytes.NewBufferString(payload))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, domain.CombinatorOr, db.subs[0].Combinator)
	})

	t.Run("validation failures", func(t *testing.T) {
		ts := testServer(&fakeDB{}, &fakeRanker{}, &fakeProfiles{}, &fakeScheduler{})
		defer ts.Close()

		bad := []string{
			`{"keywords": ["x"], "priority": 5}`,                             // no user
			`{"user_id": 5, "priority": 5}`,                                  // no criteria
			`{"user_id": 5, "keywords": ["x"], "priority": 0}`,               // priority too low
			`{"user_id": 5, "keywords": ["x"], "priority": 11}`,              // priority too high
			`{"user_id": 5, "keywords": ["x"], "priority": 5, "combinator": "xor"}`, // bad combinator
		}
		for _, payload := range bad {
			resp, err := http.Post(ts.URL+"/api/v1/subscriptions", "application/json", bytes.NewBufferString(payload))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "payload: %s", payload)
		}
	})

	t.Run("delete not found", func(t *testing.T) {
		db := &fakeDB{deleteErr: errors.New("subscription not found")}
		ts := testServer(db, &fakeRanker{}, &fakeProfiles{}, &fakeScheduler{})
		defer ts.Close()

		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/subscriptions/99?user_id=5", http.NoBody)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestListTopicsHandler(t *testing.T) {
	db := &fakeDB{topics: []domain.Topic{
		{ID: 1, Code: "ai", Name: "Artificial Intelligence", Weight: 12},
		{ID: 2, Code: "sports", Name: "Sports", Weight: 3},
	}}
	ts := testServer(db, &fakeRanker{}, &fakeProfiles{}, &fakeScheduler{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/topics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var topics []domain.Topic
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&topics))
	require.Len(t, topics, 2)
	assert.Equal(t, "ai", topics[0].Code)
}

func TestPollNowHandler(t *testing.T) {
	t.Run("triggers poll", func(t *testing.T) {
		sched := &fakeScheduler{}
		ts := testServer(&fakeDB{}, &fakeRanker{}, &fakeProfiles{}, sched)
		defer ts.Close()

		resp, err := http.Post(ts.URL+"/api/v1/poll", "application/json", http.NoBody)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 1, sched.polls)
	})

	t.Run("poll failure", func(t *testing.T) {
		sched := &fakeScheduler{pollErr: errors.New("poll in progress")}
		ts := testServer(&fakeDB{}, &fakeRanker{}, &fakeProfiles{}, sched)
		defer ts.Close()

		resp, err := http.Post(ts.URL+"/api/v1/poll", "application/json", http.NoBody)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestStatusHandler(t *testing.T) {
	ts := testServer(&fakeDB{}, &fakeRanker{}, &fakeProfiles{}, &fakeScheduler{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "ok", status["status"])
	assert.Equal(t, "test", status["version"])
	assert.Equal(t, "feedrank/test", resp.Header.Get("App-Name")+"/"+resp.Header.Get("App-Version"))
}

func TestPing(t *testing.T) {
	ts := testServer(&fakeDB{}, &fakeRanker{}, &fakeProfiles{}, &fakeScheduler{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
