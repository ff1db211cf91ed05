package ranking

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/feedrank/pkg/domain"
)

// Engine scores and orders candidate article lists for a user. It never
// lets a failure escape its public boundary: personalization problems
// degrade to a recency-ordered fallback.
type Engine struct {
	profiles  ProfileProvider
	store     Store
	authority map[string]float64

	rndMu sync.Mutex
	rnd   *rand.Rand
	nowFn func() time.Time
}

// ProfileProvider supplies user preference profiles
type ProfileProvider interface {
	Profile(ctx context.Context, userID int64) (*domain.UserProfile, error)
}

// Store is the persistence surface used by the trending sort mode
type Store interface {
	InteractionCounts(ctx context.Context, articleIDs []int64, since time.Time) (map[int64]int, error)
}

// personal blend weights
const (
	topicWeight      = 0.30
	sourceWeight     = 0.20
	recencyWeight    = 0.20
	popularityWeight = 0.15
	behaviorWeight   = 0.15
)

// Config holds ranking engine dependencies and parameters
type Config struct {
	Profiles  ProfileProvider
	Store     Store
	Authority map[string]float64 // per-source authority, popularity fallback
	Rand      *rand.Rand         // injectable for deterministic tests, defaults to time-seeded
}

// NewEngine creates a ranking engine
func NewEngine(cfg Config) *Engine {
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // exploration shuffle, not crypto
	}
	return &Engine{
		profiles:  cfg.Profiles,
		store:     cfg.Store,
		authority: cfg.Authority,
		rnd:       rnd,
		nowFn:     time.Now,
	}
}

// Rank scores the candidate articles for the user and returns them in
// descending score order, with the diversity and exploration passes
// applied per options
func (e *Engine) Rank(ctx context.Context, articles []domain.Article, userID int64, opts Options) []domain.ScoredArticle {
	if len(articles) == 0 {
		return []domain.ScoredArticle{}
	}

	scored, ok := e.score(ctx, articles, userID, opts.Sort)
	if !ok {
		return e.fallback(articles)
	}

	sortByScore(scored)

	if opts.DiversityEnabled {
		scored = diversify(scored)
	}

	if opts.ExplorationRate > 0 && e.randFloat() < opts.ExplorationRate {
		scored = e.explore(scored)
	}

	return scored
}

// score computes per-article scores for the given mode; ok=false signals
// the personalization fallback
func (e *Engine) score(ctx context.Context, articles []domain.Article, userID int64, mode Sort) ([]domain.ScoredArticle, bool) {
	var prof *domain.UserProfile
	if mode == SortPersonal {
		p, err := e.profiles.Profile(ctx, userID)
		if err != nil || p == nil {
			lgr.Printf("[WARN] profile lookup failed for user %d, recency fallback: %v", userID, err)
			return nil, false
		}
		prof = p
	}

	var trendCounts map[int64]int
	if mode == SortTrending {
		ids := make([]int64, len(articles))
		for i := range articles {
			ids[i] = articles[i].ID
		}
		counts, err := e.store.InteractionCounts(ctx, ids, e.nowFn().Add(-24*time.Hour))
		if err != nil {
			lgr.Printf("[WARN] trending counts unavailable: %v", err)
			counts = map[int64]int{}
		}
		trendCounts = counts
	}

	scored := make([]domain.ScoredArticle, len(articles))
	for i := range articles {
		a := articles[i]
		var score float64
		var reasons []string

		switch mode {
		case SortPersonal:
			score, reasons = e.personalScore(&a, prof)
		case SortRecency:
			score = e.recencyScore(&a)
			reasons = []string{"recent publication"}
		case SortPopularity:
			score = e.popularityScore(&a)
			reasons = []string{"popularity"}
		case SortTrending:
			score = trendingScore(trendCounts[a.ID])
			reasons = []string{fmt.Sprintf("trending, %d interactions in 24h", trendCounts[a.ID])}
		}

		scored[i] = domain.ScoredArticle{Article: a, Score: clamp01(score), Reasons: reasons}
	}
	return scored, true
}

// personalScore is the weighted blend of topic, source, recency,
// popularity and behavioral fit
func (e *Engine) personalScore(a *domain.Article, prof *domain.UserProfile) (float64, []string) {
	topic := topicMatchScore(a, prof)
	source := sourcePrefScore(a, prof)
	recency := e.recencyScore(a)
	popularity := e.popularityScore(a)
	behavior := e.behaviorScore(a, prof)

	score := topicWeight*topic + sourceWeight*source + recencyWeight*recency +
		popularityWeight*popularity + behaviorWeight*behavior

	var reasons []string
	if topic >= 0.6 {
		reasons = append(reasons, "matches preferred topics")
	}
	if source >= 0.6 {
		reasons = append(reasons, "from a preferred source")
	}
	if recency >= 0.8 {
		reasons = append(reasons, "fresh")
	}
	if popularity >= 0.7 {
		reasons = append(reasons, "popular")
	}
	if len(reasons) == 0 {
		reasons = []string{"personalized blend"}
	}
	return score, reasons
}

// topicMatchScore is the weighted average of preference score*weight over
// the article's topics; 0.5 with no signal, 0.3 with no overlap
func topicMatchScore(a *domain.Article, prof *domain.UserProfile) float64 {
	if len(prof.Topics) == 0 || len(a.Topics) == 0 {
		return 0.5
	}

	sum, n := 0.0, 0
	for _, code := range a.Topics {
		if pref, ok := prof.Topics[code]; ok {
			sum += pref.Score * pref.Weight
			n++
		}
	}
	if n == 0 {
		return 0.3
	}
	return sum / float64(n)
}

// sourcePrefScore is a direct source preference lookup with the same
// 0.5/0.3 defaults as topic match
func sourcePrefScore(a *domain.Article, prof *domain.UserProfile) float64 {
	if len(prof.Sources) == 0 {
		return 0.5
	}
	pref, ok := prof.Sources[a.Source]
	if !ok {
		return 0.3
	}
	return pref.Score * pref.Weight
}

// recencyScore is a step function of article age
func (e *Engine) recencyScore(a *domain.Article) float64 {
	if a.Published.IsZero() {
		return 0.1
	}
	age := e.nowFn().Sub(a.Published)
	switch {
	case age < 6*time.Hour:
		return 1.0
	case age < 24*time.Hour:
		return 0.8
	case age < 72*time.Hour:
		return 0.6
	case age < 168*time.Hour:
		return 0.4
	default:
		return 0.2
	}
}

// popularityScore uses the stored popularity, falling back to the static
// source authority table, then 0.5
func (e *Engine) popularityScore(a *domain.Article) float64 {
	if a.Popularity > 0 {
		return a.Popularity
	}
	if authority, ok := e.authority[a.Source]; ok {
		return authority
	}
	return 0.5
}

// behaviorScore is the mean of reading-time compatibility, time-of-day
// preference and language match
func (e *Engine) behaviorScore(a *domain.Article, prof *domain.UserProfile) float64 {
	return (e.readTimeFit(a, prof) + e.timeOfDayScore(prof) + languageScore(a, prof)) / 3.0
}

// readTimeFit compares the estimated read time (content length at 200
// chars per minute) against the user's historical average, closer is better
func (e *Engine) readTimeFit(a *domain.Article, prof *domain.UserProfile) float64 {
	content := a.Content
	if content == "" {
		content = a.Summary
	}
	if content == "" || prof.AvgReadTimeSec <= 0 {
		return 0.5
	}

	estimatedSec := float64(len([]rune(content))) / 200.0 * 60.0
	if estimatedSec <= 0 {
		return 0.5
	}

	ratio := estimatedSec / prof.AvgReadTimeSec
	if ratio > 1 {
		ratio = 1 / ratio
	}
	return ratio
}

func (e *Engine) timeOfDayScore(prof *domain.UserProfile) float64 {
	if prof.ActiveAt(e.nowFn().Hour()) {
		return 1.0
	}
	return 0.3
}

func languageScore(a *domain.Article, prof *domain.UserProfile) float64 {
	if a.Language != "" && a.Language == prof.Language {
		return 1.0
	}
	return 0.3
}

// trendingScore squashes a 24h interaction count into [0,1]
func trendingScore(count int) float64 {
	return math.Min(1.0, math.Log(float64(count)+1)/10.0)
}

// fallback orders strictly by recency and annotates every item
func (e *Engine) fallback(articles []domain.Article) []domain.ScoredArticle {
	scored := make([]domain.ScoredArticle, len(articles))
	for i := range articles {
		scored[i] = domain.ScoredArticle{
			Article: articles[i],
			Score:   clamp01(e.recencyScore(&articles[i])),
			Reasons: []string{"fallback: recency order"},
		}
	}
	sortByScore(scored)
	return scored
}

// sortByScore orders by score descending with deterministic tie-breaking:
// newer first, then lower id
func sortByScore(scored []domain.ScoredArticle) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if !scored[i].Article.Published.Equal(scored[j].Article.Published) {
			return scored[i].Article.Published.After(scored[j].Article.Published)
		}
		return scored[i].Article.ID < scored[j].Article.ID
	})
}

func (e *Engine) randFloat() float64 {
	e.rndMu.Lock()
	defer e.rndMu.Unlock()
	return e.rnd.Float64()
}

func (e *Engine) randPerm(n int) []int {
	e.rndMu.Lock()
	defer e.rndMu.Unlock()
	return e.rnd.Perm(n)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
