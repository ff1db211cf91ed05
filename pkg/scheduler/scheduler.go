package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/feedrank/pkg/db"
	"github.com/umputun/feedrank/pkg/domain"
)

// Scheduler drives the ingestion pipeline: it polls sources on a timer,
// pushes new articles through clustering and classification, and runs
// periodic maintenance (topic weights, popularity refresh).
type Scheduler struct {
	store      Store
	parser     Parser
	clusterer  Clusterer
	classifier Classifier
	topics     TopicRegistry
	extractor  Extractor // optional, nil disables full-content extraction

	pollInterval        time.Duration
	maintenanceInterval time.Duration
	maxWorkers          int

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	dbMutex sync.Mutex // serialize database writes
}

// Store interface for scheduler operations
type Store interface {
	EnabledSources(ctx context.Context) ([]db.Source, error)
	ArticleExists(ctx context.Context, urlHash string) (bool, error)
	CreateArticle(ctx context.Context, article *domain.Article) error
	SetArticleTopics(ctx context.Context, articleID int64, topics []domain.TopicScore) error
	RefreshPopularity(ctx context.Context, window string) error
}

// Parser interface for feed parsing
type Parser interface {
	Parse(ctx context.Context, url string) (*domain.ParsedFeed, error)
}

// Clusterer interface for near-duplicate cluster assignment
type Clusterer interface {
	Assign(ctx context.Context, article *domain.Article) *domain.ArticleCluster
}

// Classifier interface for topic classification
type Classifier interface {
	Classify(article *domain.Article) []domain.TopicScore
}

// TopicRegistry interface for topic bookkeeping
type TopicRegistry interface {
	GetOrCreate(ctx context.Context, code string) (*domain.Topic, error)
	UpdateWeights(ctx context.Context) error
}

// Extractor interface for full content extraction
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Config holds scheduler configuration
type Config struct {
	PollInterval        time.Duration
	MaintenanceInterval time.Duration
	MaxWorkers          int
}

// NewScheduler creates a new scheduler instance. Pass a nil extractor to
// keep feed-provided content only.
func NewScheduler(store Store, parser Parser, clusterer Clusterer, classifier Classifier,
	topics TopicRegistry, extractor Extractor, cfg Config) *Scheduler {

	if cfg.PollInterval == 0 {
		cfg.PollInterval = 30 * time.Minute
	}
	if cfg.MaintenanceInterval == 0 {
		cfg.MaintenanceInterval = time.Hour
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = 5
	}

	return &Scheduler{
		store:               store,
		parser:              parser,
		clusterer:           clusterer,
		classifier:          classifier,
		topics:              topics,
		extractor:           extractor,
		pollInterval:        cfg.PollInterval,
		maintenanceInterval: cfg.MaintenanceInterval,
		maxWorkers:          cfg.MaxWorkers,
	}
}

// Start begins the scheduler workers
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.pollWorker(ctx)

	s.wg.Add(1)
	go s.maintenanceWorker(ctx)

	lgr.Printf("[INFO] scheduler started with poll interval %v, maintenance interval %v, %d workers",
		s.pollInterval, s.maintenanceInterval, s.maxWorkers)
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	lgr.Printf("[INFO] stopping scheduler...")
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	lgr.Printf("[INFO] scheduler stopped")
}

// pollWorker periodically polls all enabled sources
func (s *Scheduler) pollWorker(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	// run immediately on start
	s.pollAllSources(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollAllSources(ctx)
		}
	}
}

// pollAllSources fetches and processes all enabled sources concurrently
func (s *Scheduler) pollAllSources(ctx context.Context) {
	sources, err := s.store.EnabledSources(ctx)
	if err != nil {
		lgr.Printf("[ERROR] failed to get enabled sources: %v", err)
		return
	}

	lgr.Printf("[INFO] polling %d sources", len(sources))

	sem := make(chan struct{}, s.maxWorkers)
	var wg sync.WaitGroup

	for _, src := range sources {
		wg.Add(1)
		go func(source db.Source) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			s.pollSource(ctx, source)
		}(src)
	}

	wg.Wait()
	lgr.Printf("[INFO] source poll completed")
}

// maintenanceWorker periodically recomputes topic weights and article
// popularity from accumulated interactions
func (s *Scheduler) maintenanceWorker(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runMaintenance(ctx)
		}
	}
}

// runMaintenance executes one maintenance pass
func (s *Scheduler) runMaintenance(ctx context.Context) {
	lgr.Printf("[DEBUG] running maintenance pass")

	if err := s.topics.UpdateWeights(ctx); err != nil {
		lgr.Printf("[ERROR] failed to update topic weights: %v", err)
	}

	s.dbMutex.Lock()
	if err := s.store.RefreshPopularity(ctx, "-7 days"); err != nil {
		lgr.Printf("[ERROR] failed to refresh popularity: %v", err)
	}
	s.dbMutex.Unlock()
}

// PollNow triggers an immediate poll of all enabled sources
func (s *Scheduler) PollNow(ctx context.Context) error {
	lgr.Printf("[INFO] triggered immediate poll")
	s.pollAllSources(ctx)
	if ctx.Err() != nil {
		return fmt.Errorf("poll interrupted: %w", ctx.Err())
	}
	return nil
}
