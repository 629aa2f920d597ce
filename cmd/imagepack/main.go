// Package main wires together the imagepack service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"imagepack/internal/api"
	"imagepack/internal/artifact"
	artifactfs "imagepack/internal/artifact/fs"
	artifactgcs "imagepack/internal/artifact/gcs"
	artifactmemory "imagepack/internal/artifact/memory"
	"imagepack/internal/clock/system"
	"imagepack/internal/config"
	"imagepack/internal/fetcher"
	"imagepack/internal/id/token"
	"imagepack/internal/logging"
	"imagepack/internal/metrics"
	"imagepack/internal/publisher"
	memorypublisher "imagepack/internal/publisher/memory"
	gcppublisher "imagepack/internal/publisher/pubsub"
	"imagepack/internal/resolver"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("artifact store init failed", zap.Error(err))
	}
	pub, err := buildPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}

	var renderer resolver.Renderer
	if cfg.Headless.Enabled {
		chrome, err := resolver.NewChromeRenderer(resolver.HeadlessConfig{
			MaxParallel: cfg.Headless.MaxParallel,
			UserAgent:   cfg.Search.UserAgent,
			NavTimeout:  time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		}, logger.Named("headless"))
		if err != nil {
			logger.Warn("headless renderer init failed, continuing without it", zap.Error(err))
		} else {
			defer chrome.Close()
			renderer = chrome
		}
	}

	searchResolver := resolver.New(resolver.Config{
		Endpoint:      cfg.Search.Endpoint,
		UserAgent:     cfg.Search.UserAgent,
		Timeout:       cfg.SearchTimeout(),
		MaxCandidates: cfg.Search.MaxCandidates,
	}, renderer, logger.Named("resolver"))

	imageFetcher := fetcher.New(fetcher.Config{
		Timeout:      cfg.FetchTimeout(),
		MaxRedirects: cfg.Fetch.MaxRedirects,
		MinBytes:     cfg.Fetch.MinBytes,
		UserAgent:    cfg.Search.UserAgent,
	}, logger.Named("fetcher"))

	apiServer := api.NewServer(
		cfg,
		searchResolver,
		imageFetcher,
		store,
		pub,
		token.New(),
		system.New(),
		logger.Named("api"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		// WriteTimeout stays zero: /api/process keeps the response open for
		// the whole batch.
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (artifact.Store, error) {
	switch cfg.Store.Provider {
	case "local":
		store, err := artifactfs.New(artifactfs.Config{
			BaseDir:       cfg.Store.BaseDir,
			TTL:           time.Duration(cfg.Store.TTLMinutes) * time.Minute,
			SweepInterval: time.Duration(cfg.Store.SweepMinutes) * time.Minute,
		}, logger.Named("artifacts"))
		if err != nil {
			return nil, err
		}
		store.StartSweeper(ctx)
		return store, nil
	case "memory":
		return artifactmemory.New(), nil
	case "gcs":
		return artifactgcs.New(ctx, cfg.Store.GCSBucket, cfg.Store.GCSPrefix, logger.Named("artifacts"))
	default:
		return nil, fmt.Errorf("unknown store provider %q", cfg.Store.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (publisher.Publisher, error) {
	switch cfg.PubSub.Provider {
	case "noop":
		return publisher.NoOp{}, nil
	case "memory":
		return memorypublisher.New(), nil
	case "pubsub":
		return gcppublisher.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
	default:
		return nil, fmt.Errorf("unknown pubsub provider %q", cfg.PubSub.Provider)
	}
}
