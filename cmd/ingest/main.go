package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SDG223157/trendwise0706-sub001/internal/config"
	"github.com/SDG223157/trendwise0706-sub001/internal/logger"
	"github.com/SDG223157/trendwise0706-sub001/internal/repository"
	"github.com/SDG223157/trendwise0706-sub001/internal/resolver"
	"github.com/SDG223157/trendwise0706-sub001/internal/service"
	"github.com/SDG223157/trendwise0706-sub001/internal/source/finfeed"
)

// One-shot pipeline runner for cron jobs and backlog catch-up. The API
// binary runs the same jobs on schedulers; this runs a single pass and
// exits.
func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "trendwise-ingest",
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Parse command line flags
	job := flag.String("job", "ingest", "Job to run: ingest, enrich, sync, sync-full")
	drain := flag.Bool("drain", false, "For enrich: keep running batches until the buffer is empty")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	appLogger.WithFields(logger.Fields{
		"job":   *job,
		"drain": *drain,
	}).Info("Starting pipeline run")

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	bufferRepo := repository.NewBufferRepository(db)
	indexRepo := repository.NewIndexRepository(db)

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	start := time.Now()
	switch *job {
	case "ingest":
		res := resolver.New(bufferRepo, indexRepo, resolver.Config{
			SimilarityThreshold: cfg.Resolver.SimilarityThreshold,
			Lookback:            time.Duration(cfg.Resolver.LookbackDays) * 24 * time.Hour,
			RecentLimit:         cfg.Resolver.RecentLimit,
		})
		fetcher := finfeed.NewAdapter(&finfeed.Config{
			BaseURL: cfg.Source.BaseURL,
			APIKey:  cfg.Source.APIKey,
			Timeout: cfg.Source.Timeout,
		})
		svc := service.NewIngestService(fetcher, res, bufferRepo, cfg.Ingest)
		if err := svc.Run(ctx); err != nil {
			appLogger.WithError(err).Fatal("Ingestion run failed")
		}

	case "enrich":
		enricher := service.NewAIEnricher(&service.AIConfig{
			Model:   cfg.AI.Model,
			APIKey:  cfg.AI.APIKey,
			BaseURL: cfg.AI.BaseURL,
			Timeout: cfg.AI.Timeout,
		})
		svc := service.NewEnrichService(enricher, bufferRepo, indexRepo, cfg.Enrich)
		for {
			if err := svc.Run(ctx); err != nil {
				appLogger.WithError(err).Fatal("Enrichment run failed")
			}
			if !*drain {
				break
			}
			pending, err := bufferRepo.CountPending(ctx)
			if err != nil {
				appLogger.WithError(err).Fatal("Failed to count pending items")
			}
			if pending == 0 {
				break
			}
		}

	case "sync", "sync-full":
		svc := service.NewSyncService(bufferRepo, indexRepo, nil, cfg.Sync)
		if *job == "sync" {
			err = svc.RunIncremental(ctx)
		} else {
			err = svc.RunFull(ctx)
		}
		if err != nil {
			appLogger.WithError(err).Fatal("Sync run failed")
		}
		if report := svc.LastReport(); report != nil {
			appLogger.WithFields(logger.Fields{
				"scanned": report.Scanned,
				"removed": report.Removed,
			}).Info("Sync report")
		}

	default:
		appLogger.WithField("job", *job).Fatal("Unknown job")
	}

	appLogger.WithField(logger.FieldDurationMs, time.Since(start).Milliseconds()).Info("Pipeline run completed")
}
