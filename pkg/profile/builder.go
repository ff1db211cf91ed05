package profile

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/singleflight"

	"github.com/umputun/feedrank/pkg/domain"
)

// Builder constructs user preference profiles from the trailing
// interaction history and explicit subscriptions, with a TTL cache.
// Reads and invalidations on unrelated users never block each other;
// no lock is held during store calls, and concurrent rebuilds of the
// same user are collapsed via singleflight.
type Builder struct {
	store  Store
	ttl    time.Duration
	window time.Duration
	nowFn  func() time.Time

	mu      sync.RWMutex
	entries map[int64]cacheEntry
	group   singleflight.Group
}

type cacheEntry struct {
	profile *domain.UserProfile
	builtAt time.Time
}

// Store is the persistence surface the builder reads from
type Store interface {
	UserInteractions(ctx context.Context, userID int64, since time.Time) ([]domain.InteractionContext, error)
	UserSubscriptions(ctx context.Context, userID int64) ([]domain.Subscription, error)
}

// Config holds profile builder parameters
type Config struct {
	CacheTTL      time.Duration // default 30 minutes
	HistoryWindow time.Duration // default 30 days
}

// interaction kind weights for preference accumulation
var kindWeights = map[domain.InteractionKind]float64{
	domain.InteractionClick:            0.3,
	domain.InteractionRead:             0.7,
	domain.InteractionLike:             1.0,
	domain.InteractionShare:            1.2,
	domain.InteractionNotificationOpen: 0.5,
	domain.InteractionDislike:          -0.8,
}

const unknownKindWeight = 0.1

// NewBuilder creates a profile builder with the provided store and config
func NewBuilder(store Store, cfg Config) *Builder {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 30 * time.Minute
	}
	if cfg.HistoryWindow == 0 {
		cfg.HistoryWindow = 30 * 24 * time.Hour
	}
	return &Builder{
		store:   store,
		ttl:     cfg.CacheTTL,
		window:  cfg.HistoryWindow,
		nowFn:   time.Now,
		entries: map[int64]cacheEntry{},
	}
}

// Profile returns the user's preference profile, from cache when fresh.
// A rebuild failure falls back to a fixed default profile; the caller
// never sees an error from the underlying store.
func (b *Builder) Profile(ctx context.Context, userID int64) (*domain.UserProfile, error) {
	b.mu.RLock()
	entry, ok := b.entries[userID]
	b.mu.RUnlock()
	if ok && b.nowFn().Sub(entry.builtAt) < b.ttl {
		return entry.profile, nil
	}

	// collapse concurrent rebuilds of the same user into one store round
	v, err, _ := b.group.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		p, err := b.rebuild(ctx, userID)
		if err != nil {
			lgr.Printf("[WARN] profile rebuild failed for user %d, using defaults: %v", userID, err)
			return b.defaultProfile(userID), nil // default is not cached, next call retries
		}
		b.mu.Lock()
		b.entries[userID] = cacheEntry{profile: p, builtAt: b.nowFn()}
		b.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return b.defaultProfile(userID), nil
	}
	return v.(*domain.UserProfile), nil
}

// Invalidate eagerly drops the cached profile so the next Profile call
// rebuilds. Must be called whenever a new interaction is recorded.
func (b *Builder) Invalidate(userID int64) {
	b.mu.Lock()
	delete(b.entries, userID)
	b.mu.Unlock()
}

// rebuild constructs the profile from scratch
func (b *Builder) rebuild(ctx context.Context, userID int64) (*domain.UserProfile, error) {
	now := b.nowFn()

	interactions, err := b.store.UserInteractions(ctx, userID, now.Add(-b.window))
	if err != nil {
		return nil, fmt.Errorf("get interactions: %w", err)
	}
	subs, err := b.store.UserSubscriptions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get subscriptions: %w", err)
	}

	p := &domain.UserProfile{
		UserID:         userID,
		Topics:         buildPreferences(interactions, subs, topicSignals, 10),
		Sources:        buildPreferences(interactions, subs, sourceSignals, 20),
		Language:       dominantLanguage(interactions),
		AvgReadTimeSec: averageReadTime(interactions),
		ActiveHours:    activeHours(interactions),
		BuiltAt:        now,
	}
	return p, nil
}

// accumulator gathers raw preference evidence for one key
type accumulator struct {
	score        float64
	interactions int
}

// topicSignals extracts topic keys from an interaction and a subscription
func topicSignals(ic *domain.InteractionContext, sub *domain.Subscription) []string {
	if ic != nil {
		return ic.Topics
	}
	return sub.Topics
}

// sourceSignals extracts source keys from an interaction and a subscription
func sourceSignals(ic *domain.InteractionContext, sub *domain.Subscription) []string {
	if ic != nil {
		if ic.Source == "" {
			return nil
		}
		return []string{ic.Source}
	}
	return sub.Sources
}

// buildPreferences runs the shared accumulate-normalize scheme for topics
// and sources; evidenceDivisor scales how fast the confidence weight grows
func buildPreferences(interactions []domain.InteractionContext,
	subs []domain.Subscription,
	signals func(*domain.InteractionContext, *domain.Subscription) []string,
	evidenceDivisor float64) map[string]domain.Preference {

	acc := map[string]*accumulator{}

	for i := range interactions {
		ic := &interactions[i]
		weight := interactionWeight(ic.Kind)
		for _, key := range signals(ic, nil) {
			a := acc[key]
			if a == nil {
				a = &accumulator{}
				acc[key] = a
			}
			a.score += weight
			a.interactions++
		}
	}

	// subscriptions boost preference independent of interaction history
	for i := range subs {
		boost := float64(subs[i].Priority) * 0.2
		for _, key := range signals(nil, &subs[i]) {
			a := acc[key]
			if a == nil {
				a = &accumulator{}
				acc[key] = a
			}
			a.score += boost
		}
	}

	if len(acc) == 0 {
		return map[string]domain.Preference{}
	}

	maxScore := 0.0
	for _, a := range acc {
		if a.score > maxScore {
			maxScore = a.score
		}
	}
	if maxScore <= 0 {
		maxScore = 0.5 // no positive signal at all
	}

	prefs := make(map[string]domain.Preference, len(acc))
	for key, a := range acc {
		score := a.score / maxScore
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		weight := float64(a.interactions) / evidenceDivisor
		if weight > 1 {
			weight = 1
		}
		if weight < 0.1 {
			weight = 0.1
		}
		prefs[key] = domain.Preference{Score: score, Weight: weight}
	}
	return prefs
}

// interactionWeight maps an interaction kind to its preference weight
func interactionWeight(kind domain.InteractionKind) float64 {
	if w, ok := kindWeights[kind]; ok {
		return w
	}
	return unknownKindWeight
}

// averageReadTime is the mean read time over "read" interactions with a
// positive duration, 60 seconds when there is no signal
func averageReadTime(interactions []domain.InteractionContext) float64 {
	sum, n := 0.0, 0
	for i := range interactions {
		if interactions[i].Kind == domain.InteractionRead && interactions[i].ReadTimeSec > 0 {
			sum += float64(interactions[i].ReadTimeSec)
			n++
		}
	}
	if n == 0 {
		return 60
	}
	return sum / float64(n)
}

// activeHours marks hours whose interaction count exceeds 1.2x the mean
// hourly count
func activeHours(interactions []domain.InteractionContext) map[int]bool {
	if len(interactions) == 0 {
		return map[int]bool{}
	}

	var histogram [24]int
	for i := range interactions {
		histogram[interactions[i].CreatedAt.Hour()]++
	}

	mean := float64(len(interactions)) / 24.0
	active := map[int]bool{}
	for hour, count := range histogram {
		if float64(count) > 1.2*mean {
			active[hour] = true
		}
	}
	return active
}

// dominantLanguage is the most frequent article language in the history
func dominantLanguage(interactions []domain.InteractionContext) string {
	counts := map[string]int{}
	for i := range interactions {
		if interactions[i].Language != "" {
			counts[interactions[i].Language]++
		}
	}

	best, bestCount := "en", 0
	for lang, count := range counts {
		if count > bestCount || (count == bestCount && lang < best) {
			best, bestCount = lang, count
		}
	}
	return best
}

// defaultProfile is the fixed fallback returned when a rebuild fails
func (b *Builder) defaultProfile(userID int64) *domain.UserProfile {
	return &domain.UserProfile{
		UserID: userID,
		Topics: map[string]domain.Preference{
			"tech":     {Score: 0.8, Weight: 0.3},
			"business": {Score: 0.6, Weight: 0.3},
			"science":  {Score: 0.6, Weight: 0.3},
		},
		Sources:        map[string]domain.Preference{},
		Language:       "en",
		AvgReadTimeSec: 60,
		ActiveHours:    map[int]bool{7: true, 8: true, 9: true, 19: true, 20: true, 21: true, 22: true},
		BuiltAt:        b.nowFn(),
	}
}
