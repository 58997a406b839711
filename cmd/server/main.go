package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	httpadapter "threatlens/internal/adapters/http"
	"threatlens/internal/app"
	"threatlens/internal/config"
	"threatlens/internal/logging"
	"threatlens/internal/workers/classifyrunner"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()
	go a.PreloadFeeds(ctx)

	srv := httpadapter.New(httpadapter.Deps{
		Analyzer:  a.Analysis,
		Reports:   a.Reports,
		Sources:   a.Sources,
		Jobs:      a.Store,
		Processor: a.Analysis,
		Metrics:   a.Metrics,
		Gatherer:  a.Registry,
		Logger:    logger,
	})
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())

	var workers sync.WaitGroup
	if cfg.ClassifyWorkers > 0 {
		workers.Add(1)
		go func() {
			defer workers.Done()
			classifyrunner.Run(ctx, a.Store, a.Analysis, classifyrunner.Options{
				Concurrency:  cfg.ClassifyWorkers,
				PollInterval: cfg.JobPollInterval,
				Logger:       logger,
				Metrics:      a.Metrics,
			})
		}()
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	logger.Info("listening", zap.String("addr", cfg.ListenAddr), zap.String("database", cfg.Database.Driver))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	workers.Wait()
}
