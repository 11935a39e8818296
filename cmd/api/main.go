package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SDG223157/trendwise0706-sub001/internal/api"
	"github.com/SDG223157/trendwise0706-sub001/internal/cache"
	"github.com/SDG223157/trendwise0706-sub001/internal/config"
	"github.com/SDG223157/trendwise0706-sub001/internal/logger"
	"github.com/SDG223157/trendwise0706-sub001/internal/repository"
	"github.com/SDG223157/trendwise0706-sub001/internal/resolver"
	"github.com/SDG223157/trendwise0706-sub001/internal/scheduler"
	"github.com/SDG223157/trendwise0706-sub001/internal/service"
	"github.com/SDG223157/trendwise0706-sub001/internal/source/finfeed"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Format:      "json",
		ServiceName: "trendwise-api",
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	bufferRepo := repository.NewBufferRepository(db)
	indexRepo := repository.NewIndexRepository(db)

	// Initialize cache tiers
	var remote cache.Remote
	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisCache = cache.NewRedisCache(&cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Cache.KeyPrefix,
		})
		remote = redisCache
		defer redisCache.Close()
	}
	tieredCache := cache.New(remote, cfg.Cache.LocalSize, cache.TTLs{
		Hot:  cfg.Cache.HotTTL,
		Warm: cfg.Cache.WarmTTL,
		Cold: cfg.Cache.ColdTTL,
	}, appLogger)

	// Initialize duplicate resolution
	res := resolver.New(bufferRepo, indexRepo, resolver.Config{
		SimilarityThreshold: cfg.Resolver.SimilarityThreshold,
		Lookback:            time.Duration(cfg.Resolver.LookbackDays) * 24 * time.Hour,
		RecentLimit:         cfg.Resolver.RecentLimit,
	})

	// Initialize external clients
	fetcher := finfeed.NewAdapter(&finfeed.Config{
		BaseURL: cfg.Source.BaseURL,
		APIKey:  cfg.Source.APIKey,
		Timeout: cfg.Source.Timeout,
	})
	enricher := service.NewAIEnricher(&service.AIConfig{
		Model:   cfg.AI.Model,
		APIKey:  cfg.AI.APIKey,
		BaseURL: cfg.AI.BaseURL,
		Timeout: cfg.AI.Timeout,
	})

	// Initialize services
	popularity := service.NewPopularityTracker(cfg.Warming.Window)
	ingestService := service.NewIngestService(fetcher, res, bufferRepo, cfg.Ingest)
	enrichService := service.NewEnrichService(enricher, bufferRepo, indexRepo, cfg.Enrich)
	syncService := service.NewSyncService(bufferRepo, indexRepo, tieredCache, cfg.Sync)
	searchService := service.NewSearchService(indexRepo, bufferRepo, tieredCache, popularity)
	warmingService := service.NewWarmingService(searchService, tieredCache, popularity, cfg.Warming)

	// Background schedulers
	schedulers := map[string]*scheduler.Scheduler{
		"ingest":    scheduler.New("ingest", cfg.Ingest.Interval, ingestService.Run, appLogger),
		"enrich":    scheduler.New("enrich", cfg.Enrich.Interval, enrichService.Run, appLogger),
		"sync":      scheduler.New("sync", cfg.Sync.IncrementalInterval, syncService.RunIncremental, appLogger),
		"sync-full": scheduler.New("sync-full", cfg.Sync.FullInterval, syncService.RunFull, appLogger),
		"warming":   scheduler.New("warming", cfg.Warming.Interval, warmingService.Run, appLogger),
	}
	for name, s := range schedulers {
		firstRun, err := s.Start()
		if err != nil {
			appLogger.WithError(err).WithField(logger.FieldScheduler, name).Fatal("Failed to start scheduler")
		}
		// Drain first-run results without blocking startup
		go func(name string, ch <-chan error) {
			if runErr := <-ch; runErr != nil {
				appLogger.WithError(runErr).WithField(logger.FieldScheduler, name).Warn("First scheduler run failed")
			}
		}(name, firstRun)
	}

	// Setup router
	router := api.SetupRouter(&api.Deps{
		DB:         db,
		Cache:      tieredCache,
		Search:     searchService,
		Sync:       syncService,
		Buffer:     bufferRepo,
		Schedulers: schedulers,
		Logger:     appLogger,
	}, &cfg.Server)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithField("port", cfg.Server.Port).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Stop schedulers first so no new job starts during shutdown
	for name, s := range schedulers {
		if err := s.Stop(); err != nil {
			appLogger.WithError(err).WithField(logger.FieldScheduler, name).Warn("Scheduler stop failed")
		}
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
