package api

import (
	"github.com/SDG223157/trendwise0706-sub001/internal/api/handler"
	"github.com/SDG223157/trendwise0706-sub001/internal/api/middleware"
	"github.com/SDG223157/trendwise0706-sub001/internal/cache"
	"github.com/SDG223157/trendwise0706-sub001/internal/config"
	"github.com/SDG223157/trendwise0706-sub001/internal/logger"
	"github.com/SDG223157/trendwise0706-sub001/internal/repository"
	"github.com/SDG223157/trendwise0706-sub001/internal/scheduler"
	"github.com/SDG223157/trendwise0706-sub001/internal/service"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	DB         *gorm.DB
	Cache      *cache.Tiered
	Search     *service.SearchService
	Sync       *service.SyncService
	Buffer     *repository.BufferRepository
	Schedulers map[string]*scheduler.Scheduler
	Logger     *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps *Deps, cfg *config.ServerConfig) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	// Create handlers
	healthHandler := handler.NewHealthHandler(deps.DB, deps.Cache)
	searchHandler := handler.NewSearchHandler(deps.Search)
	adminHandler := handler.NewAdminHandler(deps.Schedulers, deps.Buffer, deps.Sync)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Search
		v1.GET("/search/symbol/:symbol", searchHandler.SearchBySymbol)
		v1.GET("/search/keyword", searchHandler.SearchByKeyword)
		v1.GET("/trending", searchHandler.Trending)

		// Stats
		v1.GET("/stats", searchHandler.GetStats)

		// Admin
		admin := v1.Group("/admin")
		{
			admin.GET("/schedulers", adminHandler.ListSchedulers)
			admin.POST("/schedulers/:name/start", adminHandler.StartScheduler)
			admin.POST("/schedulers/:name/stop", adminHandler.StopScheduler)
			admin.POST("/schedulers/:name/force-kill", adminHandler.ForceKillScheduler)
			admin.POST("/schedulers/:name/run-once", adminHandler.RunSchedulerOnce)
			admin.POST("/buffer/clear", adminHandler.ClearBuffer)
			admin.GET("/backlog", adminHandler.GetBacklog)
			admin.POST("/sync", adminHandler.TriggerSync)
			admin.GET("/sync/report", adminHandler.GetSyncReport)
		}
	}

	return r
}
