package scheduler

import (
	"context"
	"strings"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/feedrank/pkg/cluster"
	"github.com/umputun/feedrank/pkg/db"
	"github.com/umputun/feedrank/pkg/domain"
)

// minContentForClassify is the content length below which extraction is
// attempted when an extractor is configured
const minContentForClassify = 200

// pollSource fetches one source and runs every new item through the
// processing pipeline
func (s *Scheduler) pollSource(ctx context.Context, src db.Source) {
	lgr.Printf("[DEBUG] polling source %s: %s", src.Code, src.FeedURL)

	parsed, err := s.parser.Parse(ctx, src.FeedURL)
	if err != nil {
		lgr.Printf("[WARN] failed to parse feed %s: %v", src.FeedURL, err)
		return
	}

	newCount := 0
	for i := range parsed.Items {
		if ctx.Err() != nil {
			return
		}
		if s.processItem(ctx, src, &parsed.Items[i]) {
			newCount++
		}
	}

	if newCount > 0 {
		lgr.Printf("[INFO] added %d new articles from source %s", newCount, src.Code)
	}
}

// processItem runs a single parsed item through dedup, storage,
// clustering and classification. Returns true if a new article was
// created. Failures in one stage never block the following items.
func (s *Scheduler) processItem(ctx context.Context, src db.Source, item *domain.ParsedItem) bool {
	urlHash := cluster.URLHash(item.Link)

	exists, err := s.store.ArticleExists(ctx, urlHash)
	if err != nil {
		lgr.Printf("[ERROR] failed to check article existence: %v", err)
		return false
	}
	if exists {
		return false
	}

	article := &domain.Article{
		Source:    src.Code,
		URL:       item.Link,
		URLHash:   urlHash,
		Title:     item.Title,
		Summary:   item.Summary,
		Content:   item.Content,
		Language:  item.Language,
		Published: item.Published,
	}

	// pull full content when the feed gives too little to work with
	if s.extractor != nil && len(article.Content) < minContentForClassify {
		if text, err := s.extractor.Extract(ctx, article.URL); err != nil {
			lgr.Printf("[DEBUG] extraction failed for %s: %v", article.URL, err)
		} else {
			article.Content = text
		}
	}

	s.dbMutex.Lock()
	err = s.store.CreateArticle(ctx, article)
	s.dbMutex.Unlock()
	if err != nil {
		lgr.Printf("[ERROR] failed to create article %q: %v", article.Title, err)
		return false
	}

	s.clusterArticle(ctx, article)
	s.classifyArticle(ctx, article)
	return true
}

// clusterArticle assigns the article to a near-duplicate cluster. A nil
// result means the article stands alone or assignment failed; either way
// the pipeline continues. Assignment is a read-then-insert on the cluster
// tables, so it runs under the same mutex as the other writes to keep
// membership checks atomic across poll workers.
func (s *Scheduler) clusterArticle(ctx context.Context, article *domain.Article) {
	s.dbMutex.Lock()
	assigned := s.clusterer.Assign(ctx, article)
	s.dbMutex.Unlock()
	if assigned == nil {
		return
	}
	article.ClusterID = assigned.ID
	if len(assigned.MemberIDs) > 1 {
		lgr.Printf("[DEBUG] article %d joined cluster %d (%d members)",
			article.ID, assigned.ID, len(assigned.MemberIDs))
	}
}

// classifyArticle tags the article with topics and persists them
func (s *Scheduler) classifyArticle(ctx context.Context, article *domain.Article) {
	scores := s.classifier.Classify(article)
	if len(scores) == 0 {
		return
	}

	codes := make([]string, 0, len(scores))
	for _, ts := range scores {
		if _, err := s.topics.GetOrCreate(ctx, ts.Code); err != nil {
			lgr.Printf("[ERROR] failed to register topic %s: %v", ts.Code, err)
			return
		}
		codes = append(codes, ts.Code)
	}

	s.dbMutex.Lock()
	err := s.store.SetArticleTopics(ctx, article.ID, scores)
	s.dbMutex.Unlock()
	if err != nil {
		lgr.Printf("[ERROR] failed to store topics for article %d: %v", article.ID, err)
		return
	}

	article.Topics = codes
	lgr.Printf("[DEBUG] article %d classified as %s", article.ID, strings.Join(codes, ", "))
}
