package classify

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/feedrank/pkg/domain"
)

// TopicStore is the persistence surface for topic maintenance
type TopicStore interface {
	GetTopic(ctx context.Context, code string) (*domain.Topic, error)
	CreateTopic(ctx context.Context, code, name string) error
	TopicArticleCounts(ctx context.Context) (map[string]int, error)
	UpdateTopicWeight(ctx context.Context, code string, weight int) error
}

// topicNames maps well-known topic codes to display names; codes outside
// the table get a capitalized fallback
var topicNames = map[string]string{
	"tech":          "Technology",
	"ai":            "Artificial Intelligence",
	"business":      "Business",
	"finance":       "Finance",
	"science":       "Science",
	"health":        "Health",
	"sports":        "Sports",
	"politics":      "Politics",
	"entertainment": "Entertainment",
	"world":         "World News",
}

// Topics manages the topic registry on top of a store
type Topics struct {
	store TopicStore
}

// NewTopics creates a topic registry
func NewTopics(store TopicStore) *Topics {
	return &Topics{store: store}
}

// GetOrCreate looks up a topic by code, creating it with a generated
// display name when missing. Idempotent.
func (t *Topics) GetOrCreate(ctx context.Context, code string) (*domain.Topic, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("empty topic code")
	}

	topic, err := t.store.GetTopic(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("lookup topic %s: %w", code, err)
	}
	if topic != nil {
		return topic, nil
	}

	if err := t.store.CreateTopic(ctx, code, DisplayName(code)); err != nil {
		return nil, fmt.Errorf("create topic %s: %w", code, err)
	}

	topic, err = t.store.GetTopic(ctx, code)
	if err != nil || topic == nil {
		return nil, fmt.Errorf("reload topic %s: %w", code, err)
	}
	return topic, nil
}

// UpdateWeights recomputes each topic's popularity weight from its tagged
// article count: min(count/10, 100), rounded. Batch maintenance, not part
// of the classification hot path.
func (t *Topics) UpdateWeights(ctx context.Context) error {
	counts, err := t.store.TopicArticleCounts(ctx)
	if err != nil {
		return fmt.Errorf("get topic counts: %w", err)
	}

	for code, count := range counts {
		weight := int(math.Round(math.Min(float64(count)/10.0, 100.0)))
		if err := t.store.UpdateTopicWeight(ctx, code, weight); err != nil {
			return fmt.Errorf("update weight for %s: %w", code, err)
		}
	}

	lgr.Printf("[INFO] updated weights for %d topics", len(counts))
	return nil
}

// DisplayName resolves a topic code to a human-readable name
func DisplayName(code string) string {
	if name, ok := topicNames[code]; ok {
		return name
	}
	runes := []rune(code)
	if len(runes) == 0 {
		return code
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
