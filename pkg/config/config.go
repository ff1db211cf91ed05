package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the application configuration
type Config struct {
	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
	} `yaml:"server" json:"server" jsonschema:"description=Server configuration"`

	Database struct {
		DSN             string `yaml:"dsn" json:"dsn" jsonschema:"default=file:feedrank.db?cache=shared&mode=rwc,description=Database connection string"`
		MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns" jsonschema:"default=10,description=Maximum number of open connections"`
		MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns" jsonschema:"default=5,description=Maximum number of idle connections"`
		ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime" jsonschema:"default=3600,description=Connection maximum lifetime in seconds"`
	} `yaml:"database" json:"database" jsonschema:"description=Database configuration"`

	Schedule struct {
		PollInterval        time.Duration `yaml:"poll_interval" json:"poll_interval" jsonschema:"default=30m,description=Feed poll interval"`
		MaintenanceInterval time.Duration `yaml:"maintenance_interval" json:"maintenance_interval" jsonschema:"default=1h,description=Topic weight and popularity recompute interval"`
		MaxWorkers          int           `yaml:"max_workers" json:"max_workers" jsonschema:"default=5,description=Maximum concurrent workers"`
	} `yaml:"schedule" json:"schedule" jsonschema:"description=Scheduler configuration"`

	Clustering ClusteringConfig `yaml:"clustering" json:"clustering" jsonschema:"description=Near-duplicate clustering configuration"`
	Classifier ClassifierConfig `yaml:"classifier" json:"classifier" jsonschema:"description=Topic classifier configuration"`
	Profile    ProfileConfig    `yaml:"profile" json:"profile" jsonschema:"description=Preference profile configuration"`
	Ranking    RankingConfig    `yaml:"ranking" json:"ranking" jsonschema:"description=Ranking engine configuration"`
	Extraction ExtractionConfig `yaml:"extraction" json:"extraction" jsonschema:"description=Content extraction configuration"`

	Sources []SourceConfig `yaml:"sources" json:"sources" jsonschema:"description=Article sources to poll"`
}

// ClusteringConfig holds near-duplicate clustering settings
type ClusteringConfig struct {
	SimilarityThreshold float64       `yaml:"similarity_threshold" json:"similarity_threshold" jsonschema:"default=0.8,minimum=0,maximum=1,description=Minimum blended similarity to join a cluster"`
	MaxClusterSize      int           `yaml:"max_cluster_size" json:"max_cluster_size" jsonschema:"default=10,minimum=1,description=Cluster membership cap"`
	Window              time.Duration `yaml:"window" json:"window" jsonschema:"default=168h,description=How far back candidate clusters are considered"`
	MaxCompareChars     int           `yaml:"max_compare_chars" json:"max_compare_chars" jsonschema:"default=1000,description=Comparison string truncation length"`
}

// ClassifierConfig holds topic classification settings
type ClassifierConfig struct {
	ConfidenceThreshold float64             `yaml:"confidence_threshold" json:"confidence_threshold" jsonschema:"default=0.6,minimum=0,maximum=1,description=Minimum confidence to accept a topic"`
	MaxTopics           int                 `yaml:"max_topics" json:"max_topics" jsonschema:"default=3,minimum=1,description=Maximum topics per article"`
	Lexicon             map[string][]string `yaml:"lexicon" json:"lexicon" jsonschema:"description=Topic code to keyword list mapping, built-in lexicon when empty"`
}

// ProfileConfig holds preference profile settings
type ProfileConfig struct {
	CacheTTL      time.Duration `yaml:"cache_ttl" json:"cache_ttl" jsonschema:"default=30m,description=Profile cache time to live"`
	HistoryWindow time.Duration `yaml:"history_window" json:"history_window" jsonschema:"default=720h,description=Interaction history window for profile building"`
}

// RankingConfig holds ranking engine settings
type RankingConfig struct {
	ExplorationRate  float64 `yaml:"exploration_rate" json:"exploration_rate" jsonschema:"default=0.1,minimum=0,maximum=1,description=Default probability of the exploration pass"`
	DiversityEnabled bool    `yaml:"diversity_enabled" json:"diversity_enabled" jsonschema:"default=true,description=Apply the diversity constraint by default"`
	CandidateWindow  time.Duration `yaml:"candidate_window" json:"candidate_window" jsonschema:"default=72h,description=Publication window for feed candidates"`
	CandidateLimit   int           `yaml:"candidate_limit" json:"candidate_limit" jsonschema:"default=200,description=Maximum candidates per ranking call"`
}

// ExtractionConfig holds content extraction settings
type ExtractionConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled" jsonschema:"default=false,description=Enable full content extraction"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Extraction timeout per article"`
	UserAgent     string        `yaml:"user_agent" json:"user_agent" jsonschema:"default=feedrank/1.0,description=User agent for HTTP requests"`
	MinTextLength int           `yaml:"min_text_length" json:"min_text_length" jsonschema:"default=100,description=Minimum text length to consider valid"`
}

// SourceConfig describes a single article source
type SourceConfig struct {
	Code      string  `yaml:"code" json:"code" jsonschema:"required,description=Source code used throughout the pipeline"`
	Name      string  `yaml:"name" json:"name" jsonschema:"description=Display name"`
	FeedURL   string  `yaml:"feed_url" json:"feed_url" jsonschema:"required,description=RSS/Atom feed URL"`
	Authority float64 `yaml:"authority" json:"authority" jsonschema:"default=0.5,minimum=0,maximum=1,description=Static authority used as popularity fallback"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// embedded schema drift is a developer mistake, not an operator one,
	// so it warns instead of failing the load
	if err := VerifySchema(); err != nil {
		fmt.Printf("warning: schema validation failed: %v\n", err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 30 * time.Second
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:feedrank.db?cache=shared&mode=rwc&_txlock=immediate"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 3600
	}

	if cfg.Schedule.PollInterval == 0 {
		cfg.Schedule.PollInterval = 30 * time.Minute
	}
	if cfg.Schedule.MaintenanceInterval == 0 {
		cfg.Schedule.MaintenanceInterval = time.Hour
	}
	if cfg.Schedule.MaxWorkers == 0 {
		cfg.Schedule.MaxWorkers = 5
	}

	if cfg.Clustering.SimilarityThreshold == 0 {
		cfg.Clustering.SimilarityThreshold = 0.8
	}
	if cfg.Clustering.MaxClusterSize == 0 {
		cfg.Clustering.MaxClusterSize = 10
	}
	if cfg.Clustering.Window == 0 {
		cfg.Clustering.Window = 168 * time.Hour
	}
	if cfg.Clustering.MaxCompareChars == 0 {
		cfg.Clustering.MaxCompareChars = 1000
	}

	if cfg.Classifier.ConfidenceThreshold == 0 {
		cfg.Classifier.ConfidenceThreshold = 0.6
	}
	if cfg.Classifier.MaxTopics == 0 {
		cfg.Classifier.MaxTopics = 3
	}

	if cfg.Profile.CacheTTL == 0 {
		cfg.Profile.CacheTTL = 30 * time.Minute
	}
	if cfg.Profile.HistoryWindow == 0 {
		cfg.Profile.HistoryWindow = 720 * time.Hour
	}

	if cfg.Ranking.CandidateWindow == 0 {
		cfg.Ranking.CandidateWindow = 72 * time.Hour
	}
	if cfg.Ranking.CandidateLimit == 0 {
		cfg.Ranking.CandidateLimit = 200
	}

	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = 30 * time.Second
	}
	if cfg.Extraction.UserAgent == "" {
		cfg.Extraction.UserAgent = "feedrank/1.0"
	}
	if cfg.Extraction.MinTextLength == 0 {
		cfg.Extraction.MinTextLength = 100
	}

	for i := range cfg.Sources {
		if cfg.Sources[i].Authority == 0 {
			cfg.Sources[i].Authority = 0.5
		}
	}
}

// validate checks configuration for correctness; these are deployment
// errors and abort startup
func validate(cfg *Config) error {
	if cfg.Clustering.SimilarityThreshold < 0 || cfg.Clustering.SimilarityThreshold > 1 {
		return fmt.Errorf("clustering.similarity_threshold must be between 0 and 1")
	}
	if cfg.Clustering.MaxClusterSize < 1 {
		return fmt.Errorf("clustering.max_cluster_size must be at least 1")
	}

	if cfg.Classifier.ConfidenceThreshold < 0 || cfg.Classifier.ConfidenceThreshold > 1 {
		return fmt.Errorf("classifier.confidence_threshold must be between 0 and 1")
	}
	if cfg.Classifier.MaxTopics < 1 {
		return fmt.Errorf("classifier.max_topics must be at least 1")
	}
	for code, keywords := range cfg.Classifier.Lexicon {
		if len(keywords) == 0 {
			return fmt.Errorf("classifier.lexicon topic %q has no keywords", code)
		}
	}

	if cfg.Ranking.ExplorationRate < 0 || cfg.Ranking.ExplorationRate > 1 {
		return fmt.Errorf("ranking.exploration_rate must be between 0 and 1")
	}

	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}

	for i, src := range cfg.Sources {
		if src.Code == "" {
			return fmt.Errorf("sources[%d].code is required", i)
		}
		if src.FeedURL == "" {
			return fmt.Errorf("sources[%d].feed_url is required", i)
		}
		if src.Authority < 0 || src.Authority > 1 {
			return fmt.Errorf("sources[%d].authority must be between 0 and 1", i)
		}
	}

	return nil
}

// GetServerConfig returns server configuration
func (c *Config) GetServerConfig() (listen string, timeout time.Duration) {
	return c.Server.Listen, c.Server.Timeout
}

// GetFeedConfig returns feed candidate selection parameters
func (c *Config) GetFeedConfig() (window time.Duration, limit int) {
	return c.Ranking.CandidateWindow, c.Ranking.CandidateLimit
}
