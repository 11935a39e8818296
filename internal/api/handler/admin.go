package handler

import (
	"net/http"

	"github.com/SDG223157/trendwise0706-sub001/internal/logger"
	"github.com/SDG223157/trendwise0706-sub001/internal/repository"
	"github.com/SDG223157/trendwise0706-sub001/internal/scheduler"
	"github.com/SDG223157/trendwise0706-sub001/internal/service"
	"github.com/gin-gonic/gin"
)

// AdminHandler exposes operational controls: scheduler lifecycle, buffer
// maintenance, and reconciliation runs.
type AdminHandler struct {
	schedulers map[string]*scheduler.Scheduler
	buffer     *repository.BufferRepository
	sync       *service.SyncService
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - schedulers: background schedulers keyed by name.
//   - buffer: buffer repository for maintenance operations.
//   - sync: reconciliation service.
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(schedulers map[string]*scheduler.Scheduler, buffer *repository.BufferRepository, sync *service.SyncService) *AdminHandler {
	return &AdminHandler{
		schedulers: schedulers,
		buffer:     buffer,
		sync:       sync,
	}
}

// ListSchedulers handles GET /api/v1/admin/schedulers.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) ListSchedulers(c *gin.Context) {
	states := make(map[string]scheduler.State, len(h.schedulers))
	for name, s := range h.schedulers {
		states[name] = s.State()
	}
	c.JSON(http.StatusOK, gin.H{"schedulers": states})
}

// StartScheduler handles POST /api/v1/admin/schedulers/:name/start.
// Responds as soon as the scheduler accepts the start. The immediate first
// run may take a full ingest or sync cycle, so its outcome is not awaited
// here; it lands in the scheduler state as last_error for the list endpoint.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) StartScheduler(c *gin.Context) {
	s, ok := h.scheduler(c)
	if !ok {
		return
	}

	firstRun, err := s.Start()
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	go func(name string, ch <-chan error) {
		if runErr := <-ch; runErr != nil {
			// Scheduler keeps ticking; the operator just sees the first failure
			logger.GetDefault().WithError(runErr).WithField(logger.FieldScheduler, name).
				Error("First scheduled run failed")
		}
	}(s.Name(), firstRun)

	c.JSON(http.StatusAccepted, gin.H{"state": "starting"})
}

// StopScheduler handles POST /api/v1/admin/schedulers/:name/stop.
// Blocks until an in-flight run finishes.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) StopScheduler(c *gin.Context) {
	s, ok := h.scheduler(c)
	if !ok {
		return
	}

	if err := s.Stop(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": "stopped"})
}

// ForceKillScheduler handles POST /api/v1/admin/schedulers/:name/force-kill.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) ForceKillScheduler(c *gin.Context) {
	s, ok := h.scheduler(c)
	if !ok {
		return
	}

	s.ForceKill()
	logger.CtxWarn(c.Request.Context(), "Scheduler force killed: name=%s, client_ip=%s", s.Name(), c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"state": "stopped"})
}

// RunSchedulerOnce handles POST /api/v1/admin/schedulers/:name/run-once.
// Executes one job cycle synchronously without touching the ticker loop.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) RunSchedulerOnce(c *gin.Context) {
	s, ok := h.scheduler(c)
	if !ok {
		return
	}

	if err := s.RunOnce(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": "completed"})
}

// ClearBuffer handles POST /api/v1/admin/buffer/clear.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) ClearBuffer(c *gin.Context) {
	removed, err := h.buffer.Clear(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.CtxInfo(c.Request.Context(), "Buffer cleared: removed=%d, client_ip=%s", removed, c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// GetBacklog handles GET /api/v1/admin/backlog.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) GetBacklog(c *gin.Context) {
	pending, err := h.buffer.CountPending(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending})
}

// TriggerSync handles POST /api/v1/admin/sync.
// Runs a reconciliation pass synchronously; overlapping runs are skipped
// by the service.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) TriggerSync(c *gin.Context) {
	mode := c.DefaultQuery("mode", "incremental")

	var err error
	switch mode {
	case "incremental":
		err = h.sync.RunIncremental(c.Request.Context())
	case "full":
		err = h.sync.RunFull(c.Request.Context())
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown sync mode: " + mode})
		return
	}

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": h.sync.LastReport()})
}

// GetSyncReport handles GET /api/v1/admin/sync/report.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) GetSyncReport(c *gin.Context) {
	report := h.sync.LastReport()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No sync run has completed yet"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *AdminHandler) scheduler(c *gin.Context) (*scheduler.Scheduler, bool) {
	name := c.Param("name")
	s, ok := h.schedulers[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown scheduler: " + name})
		return nil, false
	}
	return s, true
}
