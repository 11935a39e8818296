package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SDG223157/trendwise0706-sub001/internal/logger"
	"github.com/SDG223157/trendwise0706-sub001/internal/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "json", ServiceName: "test"})
}

func adminRouter(h *AdminHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin/schedulers", h.ListSchedulers)
	r.POST("/admin/schedulers/:name/start", h.StartScheduler)
	r.POST("/admin/schedulers/:name/stop", h.StopScheduler)
	return r
}

func TestStartSchedulerRespondsBeforeFirstRunFinishes(t *testing.T) {
	release := make(chan struct{})
	s := scheduler.New("ingest", time.Hour, func(ctx context.Context) error {
		<-release
		return nil
	}, testLogger())
	t.Cleanup(func() {
		close(release)
		s.ForceKill()
	})

	h := NewAdminHandler(map[string]*scheduler.Scheduler{"ingest": s}, nil, nil)
	r := adminRouter(h)

	// The first run is blocked on the release channel; the response must
	// come back anyway.
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/admin/schedulers/ingest/start", nil)
		r.ServeHTTP(w, req)
		done <- w
	}()

	select {
	case w := <-done:
		assert.Equal(t, http.StatusAccepted, w.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "starting", body["state"])
	case <-time.After(2 * time.Second):
		t.Fatal("start endpoint blocked on the first run")
	}
}

func TestStartSchedulerConflictWhenRunning(t *testing.T) {
	s := scheduler.New("ingest", time.Hour, func(ctx context.Context) error { return nil }, testLogger())
	t.Cleanup(s.ForceKill)

	h := NewAdminHandler(map[string]*scheduler.Scheduler{"ingest": s}, nil, nil)
	r := adminRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/schedulers/ingest/start", nil))
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		return s.State().Status == scheduler.StatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/schedulers/ingest/start", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStartSchedulerUnknownName(t *testing.T) {
	h := NewAdminHandler(map[string]*scheduler.Scheduler{}, nil, nil)
	r := adminRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/schedulers/nope/start", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListSchedulersExposesFirstRunFailure(t *testing.T) {
	s := scheduler.New("ingest", time.Hour, func(ctx context.Context) error {
		return errors.New("source unreachable")
	}, testLogger())
	t.Cleanup(s.ForceKill)

	h := NewAdminHandler(map[string]*scheduler.Scheduler{"ingest": s}, nil, nil)
	r := adminRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/schedulers/ingest/start", nil))
	require.Equal(t, http.StatusAccepted, w.Code)

	// The failed first run surfaces on the list endpoint once it completes.
	require.Eventually(t, func() bool {
		return s.State().LastError != ""
	}, 2*time.Second, 10*time.Millisecond)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/schedulers", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Schedulers map[string]scheduler.State `json:"schedulers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "source unreachable", body.Schedulers["ingest"].LastError)
}
