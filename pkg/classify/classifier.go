package classify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/feedrank/pkg/domain"
)

// Classifier scores article text against per-topic keyword lexicons.
// The lexicon is immutable after construction; a Classifier is safe for
// concurrent use.
type Classifier struct {
	threshold float64
	maxTopics int
	topics    []topicMatcher
}

// topicMatcher holds the precompiled keyword matchers for one topic
type topicMatcher struct {
	code     string
	keywords []keywordMatcher
}

// keywordMatcher matches a single keyword. ASCII keywords use word-boundary
// regexp matching; keywords with non-ASCII letters (CJK terms have no word
// boundaries) fall back to substring counting.
type keywordMatcher struct {
	keyword string
	weight  float64
	re      *regexp.Regexp // nil for substring matching
}

// Config holds classifier parameters
type Config struct {
	ConfidenceThreshold float64             // default 0.6
	MaxTopics           int                 // default 3
	Lexicon             map[string][]string // topic code -> keyword list, required
}

// New creates a classifier from the given lexicon. An empty lexicon is a
// configuration error and aborts startup.
func New(cfg Config) (*Classifier, error) {
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = 0.6
	}
	if cfg.MaxTopics == 0 {
		cfg.MaxTopics = 3
	}
	if len(cfg.Lexicon) == 0 {
		return nil, fmt.Errorf("keyword lexicon is empty")
	}

	c := &Classifier{threshold: cfg.ConfidenceThreshold, maxTopics: cfg.MaxTopics}

	codes := make([]string, 0, len(cfg.Lexicon))
	for code := range cfg.Lexicon {
		codes = append(codes, code)
	}
	sort.Strings(codes) // deterministic scan order

	for _, code := range codes {
		keywords := cfg.Lexicon[code]
		if len(keywords) == 0 {
			return nil, fmt.Errorf("topic %q has no keywords", code)
		}
		tm := topicMatcher{code: code}
		for _, kw := range keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			m := keywordMatcher{keyword: kw, weight: keywordWeight(kw)}
			if isASCII(kw) {
				m.re = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
			}
			tm.keywords = append(tm.keywords, m)
		}
		if len(tm.keywords) == 0 {
			return nil, fmt.Errorf("topic %q has no usable keywords", code)
		}
		c.topics = append(c.topics, tm)
	}

	return c, nil
}

// Classify returns the ranked topic assignments for an article, at most
// MaxTopics results, all above the confidence threshold. Failures yield an
// empty result, never an error: classification must not block persistence.
func (c *Classifier) Classify(article *domain.Article) []domain.TopicScore {
	if article == nil || article.Title == "" {
		return nil
	}

	content := strings.ToLower(article.Title)
	if article.Summary != "" {
		content += " " + strings.ToLower(article.Summary)
	}

	wordCount := len(strings.Fields(content))
	if wordCount == 0 {
		return nil
	}

	var results []domain.TopicScore
	for _, tm := range c.topics {
		confidence := tm.score(content, wordCount)
		if confidence >= c.threshold {
			results = append(results, domain.TopicScore{Code: tm.code, Confidence: confidence})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		return results[i].Code < results[j].Code
	})

	if len(results) > c.maxTopics {
		results = results[:c.maxTopics]
	}
	if len(results) > 0 {
		lgr.Printf("[DEBUG] classified %q as %v", article.Title, results)
	}
	return results
}

// score computes min(coverage*0.6 + density*50*0.4, 1.0) for one topic
func (tm *topicMatcher) score(content string, wordCount int) float64 {
	var matchedWeight, weightedMatches float64
	for _, kw := range tm.keywords {
		n := kw.count(content)
		if n == 0 {
			continue
		}
		matchedWeight += kw.weight
		weightedMatches += float64(n) * kw.weight
	}
	if weightedMatches == 0 {
		return 0
	}

	coverage := matchedWeight / float64(len(tm.keywords))
	density := weightedMatches / float64(wordCount)

	score := coverage*0.6 + density*50*0.4
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// count returns how many times the keyword occurs in the content
func (kw *keywordMatcher) count(content string) int {
	if kw.re != nil {
		return len(kw.re.FindAllStringIndex(content, -1))
	}
	return strings.Count(content, kw.keyword)
}

// keywordWeight scales keyword significance by its length, capped at 2
func keywordWeight(kw string) float64 {
	w := float64(len([]rune(kw))) / 5.0
	if w > 2.0 {
		w = 2.0
	}
	return w
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}
