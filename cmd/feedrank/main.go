package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/umputun/feedrank/pkg/classify"
	"github.com/umputun/feedrank/pkg/cluster"
	"github.com/umputun/feedrank/pkg/config"
	"github.com/umputun/feedrank/pkg/content"
	"github.com/umputun/feedrank/pkg/db"
	"github.com/umputun/feedrank/pkg/feed"
	"github.com/umputun/feedrank/pkg/profile"
	"github.com/umputun/feedrank/pkg/ranking"
	"github.com/umputun/feedrank/pkg/scheduler"
	"github.com/umputun/feedrank/server"
)

// Opts with all CLI options
type Opts struct {
	Config string `short:"c" long:"config" env:"CONFIG" default:"config.yml" description:"configuration file"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	setupLog(opts.Debug)

	log.Printf("[INFO] starting feedrank version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	err := run(ctx, opts)
	cancel()

	if err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}

	log.Print("[INFO] shutdown complete")
}

// run wires all components together and blocks until shutdown
func run(ctx context.Context, opts Opts) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	database, err := db.New(db.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Printf("[WARN] failed to close database: %v", err)
		}
	}()

	if err := database.InitSchema(ctx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	// register configured sources
	for _, src := range cfg.Sources {
		s := db.Source{Code: src.Code, Name: src.Name, FeedURL: src.FeedURL, Authority: src.Authority, Enabled: true}
		if err := database.UpsertSource(ctx, &s); err != nil {
			return fmt.Errorf("register source %s: %w", src.Code, err)
		}
	}
	log.Printf("[INFO] registered %d sources", len(cfg.Sources))

	lexicon := cfg.Classifier.Lexicon
	if len(lexicon) == 0 {
		lexicon = classify.DefaultLexicon()
	}
	classifier, err := classify.New(classify.Config{
		ConfidenceThreshold: cfg.Classifier.ConfidenceThreshold,
		MaxTopics:           cfg.Classifier.MaxTopics,
		Lexicon:             lexicon,
	})
	if err != nil {
		return fmt.Errorf("create classifier: %w", err)
	}

	topics := classify.NewTopics(database)

	clusterer := cluster.NewEngine(database, cluster.Config{
		SimilarityThreshold: cfg.Clustering.SimilarityThreshold,
		MaxClusterSize:      cfg.Clustering.MaxClusterSize,
		Window:              cfg.Clustering.Window,
		MaxCompareChars:     cfg.Clustering.MaxCompareChars,
	})

	feedParser := feed.NewParser(cfg.Extraction.Timeout, cfg.Extraction.UserAgent)

	var extractor scheduler.Extractor
	if cfg.Extraction.Enabled {
		extractor = content.NewExtractor(content.Config{
			Timeout:   cfg.Extraction.Timeout,
			UserAgent: cfg.Extraction.UserAgent,
			MinLength: cfg.Extraction.MinTextLength,
		})
	}

	profiles := profile.NewBuilder(database, profile.Config{
		CacheTTL:      cfg.Profile.CacheTTL,
		HistoryWindow: cfg.Profile.HistoryWindow,
	})

	authorities, err := database.SourceAuthorities(ctx)
	if err != nil {
		return fmt.Errorf("load source authorities: %w", err)
	}

	ranker := ranking.NewEngine(ranking.Config{
		Profiles:  profiles,
		Store:     database,
		Authority: authorities,
	})

	sched := scheduler.NewScheduler(database, feedParser, clusterer, classifier, topics, extractor,
		scheduler.Config{
			PollInterval:        cfg.Schedule.PollInterval,
			MaintenanceInterval: cfg.Schedule.MaintenanceInterval,
			MaxWorkers:          cfg.Schedule.MaxWorkers,
		})
	sched.Start(ctx)
	defer sched.Stop()

	srv := server.New(cfg, database, ranker, profiles, sched, revision, opts.Debug)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func setupLog(dbg bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))
	if len(secs) > 0 {
		logOpts = append(logOpts, lgr.Secret(secs...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
