package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/umputun/feedrank/pkg/domain"
	"github.com/umputun/feedrank/pkg/ranking"
)

// feedHandler returns the ranked personalized feed for a user.
// Query parameters: user_id (required), sort, limit, diversity, exploration.
func (s *Server) feedHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := queryInt64(r, "user_id")
	if err != nil {
		RenderError(w, r, err, http.StatusBadRequest)
		return
	}

	sortMode, err := ranking.ParseSort(r.URL.Query().Get("sort"))
	if err != nil {
		RenderError(w, r, err, http.StatusBadRequest)
		return
	}

	window, limit := s.config.GetFeedConfig()
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			RenderError(w, r, fmt.Errorf("invalid limit %q", v), http.StatusBadRequest)
			return
		}
		if n < limit {
			limit = n
		}
	}

	opts := ranking.Options{Sort: sortMode, DiversityEnabled: true}
	if v := r.URL.Query().Get("diversity"); v != "" {
		opts.DiversityEnabled = v != "false" && v != "0"
	}
	if v := r.URL.Query().Get("exploration"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil || rate < 0 || rate > 1 {
			RenderError(w, r, fmt.Errorf("invalid exploration rate %q", v), http.StatusBadRequest)
			return
		}
		opts.ExplorationRate = rate
	}

	articles, err := s.db.GetRecentArticles(r.Context(), time.Now().Add(-window), limit)
	if err != nil {
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}

	ranked := s.ranker.Rank(r.Context(), articles, userID, opts)
	RenderJSON(w, r, http.StatusOK, feedResponse{
		UserID:   userID,
		Sort:     sortMode.String(),
		Articles: toFeedEntries(ranked),
	})
}

// profileHandler exposes the computed preference profile for inspection
func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := queryInt64(r, "user_id")
	if err != nil {
		RenderError(w, r, err, http.StatusBadRequest)
		return
	}

	prof, err := s.profiles.Profile(r.Context(), userID)
	if err != nil {
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}
	RenderJSON(w, r, http.StatusOK, prof)
}

// interactionRequest is the POST /interactions payload
type interactionRequest struct {
	UserID      int64  `json:"user_id"`
	ArticleID   int64  `json:"article_id"`
	Kind        string `json:"kind"`
	ReadTimeSec int    `json:"read_time_seconds,omitempty"`
}

// addInteractionHandler appends an interaction to the log and invalidates
// the user's cached profile so the next feed request sees it
func (s *Server) addInteractionHandler(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RenderError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}
	if req.UserID == 0 || req.ArticleID == 0 || req.Kind == "" {
		RenderError(w, r, fmt.Errorf("user_id, article_id and kind are required"), http.StatusBadRequest)
		return
	}

	interaction := &domain.Interaction{
		UserID:      req.UserID,
		ArticleID:   req.ArticleID,
		Kind:        domain.InteractionKind(req.Kind),
		ReadTimeSec: req.ReadTimeSec,
	}
	if err := s.db.AddInteraction(r.Context(), interaction); err != nil {
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}

	s.profiles.Invalidate(req.UserID)
	RenderJSON(w, r, http.StatusCreated, interaction)
}

// subscriptionRequest is the POST /subscriptions payload
type subscriptionRequest struct {
	UserID     int64    `json:"user_id"`
	Keywords   []string `json:"keywords"`
	Combinator string   `json:"combinator,omitempty"`
	Topics     []string `json:"topics,omitempty"`
	Sources    []string `json:"sources,omitempty"`
	Priority   int      `json:"priority"`
	DailyCap   int      `json:"daily_cap,omitempty"`
	QuietFrom  *int     `json:"quiet_from,omitempty"`
	QuietTo    *int     `json:"quiet_to,omitempty"`
}

// createSubscriptionHandler creates a subscription for a user
func (s *Server) createSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RenderError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}
	if req.UserID == 0 {
		RenderError(w, r, fmt.Errorf("user_id is required"), http.StatusBadRequest)
		return
	}
	if len(req.Keywords) == 0 && len(req.Topics) == 0 && len(req.Sources) == 0 {
		RenderError(w, r, fmt.Errorf("subscription needs at least one keyword, topic or source"), http.StatusBadRequest)
		return
	}
	if req.Priority < 1 || req.Priority > 10 {
		RenderError(w, r, fmt.Errorf("priority must be between 1 and 10"), http.StatusBadRequest)
		return
	}

	combinator := domain.CombinatorOr
	if req.Combinator != "" {
		combinator = domain.Combinator(req.Combinator)
		if combinator != domain.CombinatorAnd && combinator != domain.CombinatorOr {
			RenderError(w, r, fmt.Errorf("combinator must be %q or %q", domain.CombinatorAnd, domain.CombinatorOr), http.StatusBadRequest)
			return
		}
	}

	sub := &domain.Subscription{
		UserID:     req.UserID,
		Keywords:   req.Keywords,
		Combinator: combinator,
		Topics:     req.Topics,
		Sources:    req.Sources,
		Priority:   req.Priority,
		DailyCap:   req.DailyCap,
		QuietFrom:  req.QuietFrom,
		QuietTo:    req.QuietTo,
	}
	if err := s.db.CreateSubscription(r.Context(), sub); err != nil {
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}

	s.profiles.Invalidate(req.UserID)
	RenderJSON(w, r, http.StatusCreated, sub)
}

// listSubscriptionsHandler returns all subscriptions of a user
func (s *Server) listSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := queryInt64(r, "user_id")
	if err != nil {
		RenderError(w, r, err, http.StatusBadRequest)
		return
	}

	subs, err := s.db.UserSubscriptions(r.Context(), userID)
	if err != nil {
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}
	RenderJSON(w, r, http.StatusOK, subs)
}

// deleteSubscriptionHandler removes a subscription owned by the user
func (s *Server) deleteSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := queryInt64(r, "user_id")
	if err != nil {
		RenderError(w, r, err, http.StatusBadRequest)
		return
	}
	subID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		RenderError(w, r, fmt.Errorf("invalid subscription id"), http.StatusBadRequest)
		return
	}

	if err := s.db.DeleteSubscription(r.Context(), userID, subID); err != nil {
		RenderError(w, r, err, http.StatusNotFound)
		return
	}

	s.profiles.Invalidate(userID)
	RenderJSON(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

// listTopicsHandler returns all known topics with their weights
func (s *Server) listTopicsHandler(w http.ResponseWriter, r *http.Request) {
	topics, err := s.db.ListTopics(r.Context())
	if err != nil {
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}
	RenderJSON(w, r, http.StatusOK, topics)
}

// feedResponse is the GET /feed payload
type feedResponse struct {
	UserID   int64       `json:"user_id"`
	Sort     string      `json:"sort"`
	Articles []feedEntry `json:"articles"`
}

// feedEntry is a single ranked article in the feed response
type feedEntry struct {
	ID        int64     `json:"id"`
	Source    string    `json:"source"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	Language  string    `json:"language,omitempty"`
	Published time.Time `json:"published"`
	Topics    []string  `json:"topics,omitempty"`
	Score     float64   `json:"score"`
	Reasons   []string  `json:"reasons,omitempty"`
}

func toFeedEntries(ranked []domain.ScoredArticle) []feedEntry {
	entries := make([]feedEntry, 0, len(ranked))
	for _, sa := range ranked {
		entries = append(entries, feedEntry{
			ID:        sa.Article.ID,
			Source:    sa.Article.Source,
			URL:       sa.Article.URL,
			Title:     sa.Article.Title,
			Summary:   sa.Article.Summary,
			Language:  sa.Article.Language,
			Published: sa.Article.Published,
			Topics:    sa.Article.Topics,
			Score:     sa.Score,
			Reasons:   sa.Reasons,
		})
	}
	return entries
}

// queryInt64 extracts a required positive int64 query parameter
func queryInt64(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}
