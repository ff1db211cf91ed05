package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/umputun/feedrank/pkg/domain"
	"github.com/umputun/feedrank/pkg/ranking"
)

// Server represents HTTP server instance
type Server struct {
	config    ConfigProvider
	db        Database
	ranker    Ranker
	profiles  Profiles
	scheduler Scheduler
	version   string
	debug     bool

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// Database interface for server operations
type Database interface {
	GetRecentArticles(ctx context.Context, since time.Time, limit int) ([]domain.Article, error)
	AddInteraction(ctx context.Context, interaction *domain.Interaction) error
	CreateSubscription(ctx context.Context, sub *domain.Subscription) error
	UserSubscriptions(ctx context.Context, userID int64) ([]domain.Subscription, error)
	DeleteSubscription(ctx context.Context, userID, subID int64) error
	ListTopics(ctx context.Context) ([]domain.Topic, error)
}

// Ranker interface for personalized feed ordering
type Ranker interface {
	Rank(ctx context.Context, articles []domain.Article, userID int64, opts ranking.Options) []domain.ScoredArticle
}

// Profiles interface for preference profile access
type Profiles interface {
	Profile(ctx context.Context, userID int64) (*domain.UserProfile, error)
	Invalidate(userID int64)
}

// Scheduler interface for on-demand operations
type Scheduler interface {
	PollNow(ctx context.Context) error
}

// ConfigProvider provides server configuration
type ConfigProvider interface {
	GetServerConfig() (listen string, timeout time.Duration)
	GetFeedConfig() (window time.Duration, limit int)
}

// New initializes a new server instance
func New(cfg ConfigProvider, db Database, ranker Ranker, profiles Profiles, scheduler Scheduler, version string, debug bool) *Server {
	s := &Server{
		config:    cfg,
		db:        db,
		ranker:    ranker,
		profiles:  profiles,
		scheduler: scheduler,
		version:   version,
		debug:     debug,
		router:    routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	listen, timeout := s.config.GetServerConfig()
	log.Printf("[INFO] starting server on %s", listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:         listen,
		Handler:      s.router,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		log.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("feedrank", "umputun", s.version))
	s.router.Use(rest.Ping)

	if s.debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(1024 * 1024)) // 1MB
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	s.router.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /feed", s.feedHandler)
		r.HandleFunc("GET /profile", s.profileHandler)
		r.HandleFunc("POST /interactions", s.addInteractionHandler)
		r.HandleFunc("GET /subscriptions", s.listSubscriptionsHandler)
		r.HandleFunc("POST /subscriptions", s.createSubscriptionHandler)
		r.HandleFunc("DELETE /subscriptions/{id}", s.deleteSubscriptionHandler)
		r.HandleFunc("GET /topics", s.listTopicsHandler)
		r.HandleFunc("POST /poll", s.pollNowHandler)
		r.HandleFunc("GET /status", s.statusHandler)
	})
}

// statusHandler returns server status
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC(),
	}
	RenderJSON(w, r, http.StatusOK, status)
}

// pollNowHandler triggers an immediate source poll
func (s *Server) pollNowHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.PollNow(r.Context()); err != nil {
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}
	RenderJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// RenderJSON sends JSON response
func RenderJSON(w http.ResponseWriter, _ *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// RenderError sends error response as JSON
func RenderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	RenderJSON(w, r, code, map[string]string{"error": errMsg})
}
