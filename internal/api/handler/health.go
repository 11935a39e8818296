package handler

import (
	"net/http"

	"github.com/SDG223157/trendwise0706-sub001/internal/cache"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db    *gorm.DB
	cache *cache.Tiered
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *gorm.DB, c *cache.Tiered) *HealthHandler {
	return &HealthHandler{db: db, cache: c}
}

// Health returns the health status of the service. The cache tier being
// down degrades the response but does not fail it, since reads fall
// through to the store.
func (h *HealthHandler) Health(c *gin.Context) {
	status := "ok"
	dbOK := true
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		dbOK = false
		status = "unhealthy"
	}

	cacheOK := h.cache.Healthy(c.Request.Context())
	if dbOK && !cacheOK {
		status = "degraded"
	}

	code := http.StatusOK
	if !dbOK {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":   status,
		"database": dbOK,
		"cache":    cacheOK,
	})
}
