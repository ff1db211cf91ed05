package ranking

import (
	"sort"

	"github.com/umputun/feedrank/pkg/domain"
)

const (
	diversityHeadSize = 20  // admitted head list size
	diversityOverride = 0.9 // raw score that bypasses the constraint
)

// diversify greedily scans the score-descending list and admits an article
// into the head while its source and all its topics are unused, or its raw
// score exceeds the override. Non-admitted articles follow in their
// original order.
func diversify(scored []domain.ScoredArticle) []domain.ScoredArticle {
	if len(scored) <= 1 {
		return scored
	}

	usedSources := map[string]bool{}
	usedTopics := map[string]bool{}
	head := make([]domain.ScoredArticle, 0, diversityHeadSize)
	rest := make([]domain.ScoredArticle, 0, len(scored))

	for _, item := range scored {
		if len(head) >= diversityHeadSize {
			rest = append(rest, item)
			continue
		}

		conflict := usedSources[item.Article.Source]
		for _, topic := range item.Article.Topics {
			if usedTopics[topic] {
				conflict = true
				break
			}
		}

		if conflict && item.Score <= diversityOverride {
			rest = append(rest, item)
			continue
		}

		usedSources[item.Article.Source] = true
		for _, topic := range item.Article.Topics {
			usedTopics[topic] = true
		}
		head = append(head, item)
	}

	return append(head, rest...)
}

// explore pulls a few random articles out of the list, tags them and
// reinserts them at scattered positions near the front (index*3). The
// random source is owned by the engine so tests can seed it.
func (e *Engine) explore(scored []domain.ScoredArticle) []domain.ScoredArticle {
	picks := min(3, len(scored)/10)
	if picks == 0 {
		return scored
	}

	indices := e.randPerm(len(scored))[:picks]
	sort.Sort(sort.Reverse(sort.IntSlice(indices))) // remove back to front

	pulled := make([]domain.ScoredArticle, 0, picks)
	for _, idx := range indices {
		pulled = append(pulled, scored[idx])
		scored = append(scored[:idx], scored[idx+1:]...)
	}

	for i := range pulled {
		item := pulled[i]
		item.Reasons = append(item.Reasons, "exploration pick")

		pos := i * 3
		if pos > len(scored) {
			pos = len(scored)
		}
		scored = append(scored, domain.ScoredArticle{})
		copy(scored[pos+1:], scored[pos:])
		scored[pos] = item
	}

	return scored
}
