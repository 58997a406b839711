// Package app assembles the process-wide object graph from configuration.
// Both binaries build on it.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	pg "threatlens/internal/adapters/postgres"
	"threatlens/internal/adapters/providers"
	"threatlens/internal/adapters/reasoner"
	"threatlens/internal/adapters/sqlite"
	"threatlens/internal/config"
	"threatlens/internal/observability"
	"threatlens/internal/ports"
	"threatlens/internal/services/analysis"
	"threatlens/internal/services/classifier"
	"threatlens/internal/services/enrichment"
	"threatlens/internal/services/reports"
	"threatlens/internal/services/sources"
)

const userAgent = "threatlens/1.0"

type preloader interface {
	ID() string
	Preload(ctx context.Context) error
}

type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Store    ports.Store

	Providers    *enrichment.Registry
	Orchestrator *enrichment.Orchestrator
	Pipeline     *classifier.Pipeline

	Analysis *analysis.Service
	Reports  *reports.Service
	Sources  *sources.Service

	feeds []preloader
}

// New wires every component. The caller owns Close.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	a := &App{Config: cfg, Logger: logger, Registry: reg, Metrics: metrics}

	var err error
	if a.Providers, a.feeds, err = BuildProviders(cfg.Providers, logger); err != nil {
		return nil, err
	}
	a.Orchestrator, err = enrichment.NewOrchestrator(a.Providers, enrichment.Options{
		Concurrency: cfg.Enrichment.Concurrency,
		Policy:      cfg.Enrichment.Policy(),
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, err
	}
	a.Pipeline, err = classifier.NewPipeline(BuildReasoner(cfg.OpenAI, logger), classifier.Options{
		Thresholds:    cfg.Classification.Thresholds(),
		ReasonTimeout: cfg.Classification.ReasonTimeout,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		return nil, err
	}

	if a.Store, err = OpenStore(ctx, cfg.Database, logger); err != nil {
		return nil, err
	}
	a.Analysis = analysis.New(a.Store, a.Orchestrator, a.Pipeline, analysis.Options{
		BatchConcurrency: cfg.Classification.BatchConcurrency,
		BatchMax:         cfg.Classification.BatchMax,
		Logger:           logger,
	})
	a.Reports = reports.New(a.Store)
	a.Sources = sources.New(a.Providers)
	return a, nil
}

// OpenStore connects to the configured database and applies migrations.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (ports.Store, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := pg.Connect(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("db connect error: %w", err)
		}
		n, err := db.Migrate(ctx)
		if err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("postgres store ready", zap.Int("migrations_applied", n))
		return db, nil
	case "sqlite":
		return sqlite.Open(ctx, cfg.SQLitePath, logger)
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// BuildProviders registers the configured providers and seals the registry.
// Simulated providers stand in for remote ones that have no API key.
func BuildProviders(cfg config.ProvidersConfig, logger *zap.Logger) (*enrichment.Registry, []preloader, error) {
	opts := providers.HTTPOptions{
		Client:            &http.Client{Timeout: 60 * time.Second},
		RequestsPerMinute: cfg.RequestsPerMinute,
		UserAgent:         userAgent,
	}
	var (
		list  []ports.Provider
		feeds []preloader
	)
	if cfg.AbuseIPDBKey != "" {
		list = append(list, providers.NewAbuseIPDB(cfg.AbuseIPDBKey, cfg.AbuseIPDBURL, opts))
	}
	if cfg.MalShareKey != "" {
		list = append(list, providers.NewMalShare(cfg.MalShareKey, cfg.MalShareURL, opts))
	}
	if cfg.OpenPhishEnabled {
		p := providers.NewOpenPhish(cfg.OpenPhishFeedURL, cfg.OpenPhishTTL, opts, logger)
		list = append(list, p)
		feeds = append(feeds, p)
	}
	if cfg.PhishTankEnabled {
		p := providers.NewPhishTank(cfg.PhishTankFeedURL, cfg.PhishTankTTL, opts, logger)
		list = append(list, p)
		feeds = append(feeds, p)
	}
	if cfg.Simulated {
		list = append(list, providers.NewSimulatedWhois())
		if cfg.AbuseIPDBKey == "" {
			list = append(list, providers.NewSimulatedReputation())
		}
		if cfg.MalShareKey == "" {
			list = append(list, providers.NewSimulatedHash())
		}
	}

	reg := enrichment.NewRegistry()
	if err := reg.RegisterAll(list...); err != nil {
		return nil, nil, err
	}
	reg.Seal()
	ids := make([]string, 0, len(list))
	for _, p := range list {
		ids = append(ids, p.ID())
	}
	logger.Info("providers registered", zap.Strings("providers", ids))
	return reg, feeds, nil
}

// BuildReasoner picks the OpenAI reasoner when an API key is configured and
// the offline heuristic otherwise.
func BuildReasoner(cfg config.OpenAIConfig, logger *zap.Logger) ports.Reasoner {
	if cfg.APIKey == "" {
		logger.Warn("OPENAI_API_KEY not set, using heuristic reasoner")
		return reasoner.Heuristic{}
	}
	return reasoner.NewOpenAI(reasoner.OpenAIConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: float32(cfg.Temperature),
		MaxTokens:   cfg.MaxTokens,
	}, logger)
}

// PreloadFeeds warms the feed caches. Failures are logged; lookups retry the
// download on demand.
func (a *App) PreloadFeeds(ctx context.Context) {
	for _, f := range a.feeds {
		if err := f.Preload(ctx); err != nil {
			a.Logger.Warn("feed preload failed", zap.String("provider", f.ID()), zap.Error(err))
			continue
		}
		a.Logger.Info("feed preloaded", zap.String("provider", f.ID()))
	}
}

func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
}
