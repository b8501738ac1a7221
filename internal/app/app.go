// Package app wires configuration, storage and services into one runnable unit
// shared by the HTTP server and the command line tool.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"orgwatch/internal/adapters/extractor"
	pg "orgwatch/internal/adapters/postgres"
	"orgwatch/internal/config"
	"orgwatch/internal/fetcher"
	"orgwatch/internal/logger"
	"orgwatch/internal/metrics"
	"orgwatch/internal/ports"
	"orgwatch/internal/rules"
	"orgwatch/internal/services/duplicates"
	"orgwatch/internal/services/gate"
	"orgwatch/internal/services/scanner"
)

type App struct {
	Config   config.Config
	Log      logger.Logger
	DB       *pg.DB
	Rules    *rules.Rules
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Engine     *scanner.Engine
	Scanner    *scanner.Service
	Batch      *scanner.Batch
	Gate       *gate.Service
	Duplicates *duplicates.Detector
}

// New connects to the database, applies migrations when configured and builds
// every service. The caller owns Close.
func New(ctx context.Context, cfg config.Config, log logger.Logger) (*App, error) {
	r, err := rules.Load(cfg.RulesFile)
	if err != nil {
		return nil, err
	}

	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		log.Info("migrations applied")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	f := fetcher.New(fetcher.Config{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.FetchTimeout,
	}, fetcher.WithObserver(m))

	var ex ports.EventExtractor
	if cfg.ExtractorURL != "" {
		ex = extractor.New(extractor.Config{BaseURL: cfg.ExtractorURL})
	} else {
		log.Warn("EXTRACTOR_URL not set, event extraction and render checks disabled")
	}

	engine := scanner.NewEngine(f, r, ex, scanner.EngineConfig{
		Session: fetcher.SessionOptions{
			Pacing:  fetcher.Pacing{Min: cfg.PolitenessMin, Max: cfg.PolitenessMax},
			Backoff: fetcher.Backoff{Base: cfg.BackoffBase, Max: cfg.BackoffMax},
		},
		RespectRobots: cfg.RespectRobots,
		UserAgent:     cfg.UserAgent,
	}, log.With(logger.String("component", "engine")))

	svc := scanner.New(db, db, db, engine, m, log.With(logger.String("component", "scanner")))

	return &App{
		Config:     cfg,
		Log:        log,
		DB:         db,
		Rules:      r,
		Registry:   reg,
		Metrics:    m,
		Engine:     engine,
		Scanner:    svc,
		Batch:      scanner.NewBatch(svc, cfg.ScanConcurrency, log.With(logger.String("component", "batch"))),
		Gate:       gate.New(db, m, log.With(logger.String("component", "gate"))),
		Duplicates: duplicates.New(db, r, log.With(logger.String("component", "duplicates")), duplicates.WithObserver(m)),
	}, nil
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
	_ = a.Log.Sync()
}

// Describe is a short startup line for logs.
func (a *App) Describe() string {
	return fmt.Sprintf("workers=%d concurrency=%d robots=%t extractor=%t",
		a.Config.ScanWorkers, a.Config.ScanConcurrency, a.Config.RespectRobots, a.Config.ExtractorURL != "")
}
