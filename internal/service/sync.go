package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SDG223157/trendwise0706-sub001/internal/cache"
	"github.com/SDG223157/trendwise0706-sub001/internal/config"
	"github.com/SDG223157/trendwise0706-sub001/internal/domain"
	"github.com/SDG223157/trendwise0706-sub001/internal/logger"
	"github.com/SDG223157/trendwise0706-sub001/internal/repository"
)

// SyncReport summarizes one reconciliation run between the buffer and the
// permanent index.
type SyncReport struct {
	Mode           string    `json:"mode"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Scanned        int       `json:"scanned"`
	Removed        int       `json:"removed"`
	SkippedInGrace int       `json:"skipped_in_grace"`
	// StaleCacheEntries is the number of cache entries purged after a full
	// run; always 0 for incremental runs, which leave the cache alone.
	StaleCacheEntries int64 `json:"stale_cache_entries"`
	BufferPending     int64 `json:"buffer_pending"`
	IndexCount        int64 `json:"index_count"`
}

// SyncService reconciles the buffer against the permanent index. Buffer rows
// whose external id already exists in the index are leftovers from
// interrupted migrations and get removed. Rows updated within the grace
// window are left alone since a migration may still be in flight.
type SyncService struct {
	buffer *repository.BufferRepository
	index  *repository.IndexRepository
	cache  *cache.Tiered
	cfg    config.SyncConfig

	active atomic.Bool

	mu              sync.Mutex
	lastIncremental time.Time
	lastReport      *SyncReport
}

// NewSyncService creates a sync service.
// Parameters:
//   - buffer: buffer repository.
//   - index: permanent index repository.
//   - c: tiered cache flushed after a full sync (may be nil).
//   - cfg: sync settings (grace window, page size).
//
// Returns:
//   - *SyncService: initialized service.
func NewSyncService(buffer *repository.BufferRepository, index *repository.IndexRepository, c *cache.Tiered, cfg config.SyncConfig) *SyncService {
	return &SyncService{
		buffer: buffer,
		index:  index,
		cache:  c,
		cfg:    cfg,
	}
}

// LastReport returns the most recent completed sync report, or nil when no
// run has completed yet.
func (s *SyncService) LastReport() *SyncReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport
}

// RunIncremental reconciles buffer rows modified since the previous
// incremental run. Overlapping runs are skipped rather than queued.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//
// Returns:
//   - error: non-nil if the store fails mid-run.
func (s *SyncService) RunIncremental(ctx context.Context) error {
	if !s.active.CompareAndSwap(false, true) {
		logger.FromContext(ctx).Info("sync already running, skipping incremental run")
		return nil
	}
	defer s.active.Store(false)

	s.mu.Lock()
	since := s.lastIncremental
	s.mu.Unlock()

	report := &SyncReport{Mode: "incremental", StartedAt: time.Now()}
	cutoff := report.StartedAt.Add(-s.cfg.GraceWindow)

	cursor := since
	for {
		rows, err := s.buffer.ListModifiedSince(ctx, cursor, s.pageSize())
		if err != nil {
			return fmt.Errorf("list modified buffer rows: %w", err)
		}
		if len(rows) == 0 {
			break
		}

		if err := s.reconcile(ctx, rows, cutoff, report); err != nil {
			return err
		}

		last := rows[len(rows)-1].UpdatedAt
		if len(rows) < s.pageSize() || !last.After(cursor) {
			break
		}
		cursor = last
	}

	s.finish(ctx, report)

	s.mu.Lock()
	// Next run re-examines the grace window we just skipped.
	s.lastIncremental = cutoff
	s.mu.Unlock()
	return nil
}

// RunFull reconciles the entire buffer against the index and flushes the
// cache afterwards so stale search results are rebuilt from the
// reconciled stores. Overlapping runs are skipped rather than queued.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//
// Returns:
//   - error: non-nil if the store fails mid-run.
func (s *SyncService) RunFull(ctx context.Context) error {
	if !s.active.CompareAndSwap(false, true) {
		logger.FromContext(ctx).Info("sync already running, skipping full run")
		return nil
	}
	defer s.active.Store(false)

	report := &SyncReport{Mode: "full", StartedAt: time.Now()}
	cutoff := report.StartedAt.Add(-s.cfg.GraceWindow)

	offset := 0
	for {
		rows, err := s.buffer.ListPage(ctx, offset, s.pageSize())
		if err != nil {
			return fmt.Errorf("list buffer page at %d: %w", offset, err)
		}
		if len(rows) == 0 {
			break
		}

		removed, err := s.reconcileBatch(ctx, rows, cutoff, report)
		if err != nil {
			return err
		}
		// Deletions shift subsequent pages back.
		offset += len(rows) - removed
		if len(rows) < s.pageSize() {
			break
		}
	}

	if s.cache != nil {
		report.StaleCacheEntries = s.cache.Flush(ctx)
		logger.FromContext(ctx).WithField(logger.FieldCount, report.StaleCacheEntries).Info("cache flushed after full sync")
	}

	s.finish(ctx, report)
	return nil
}

// reconcile checks rows one by one against the index; used on the small
// incremental pages where per-row Exists keeps the window tight.
func (s *SyncService) reconcile(ctx context.Context, rows []domain.NewsItem, cutoff time.Time, report *SyncReport) error {
	for i := range rows {
		report.Scanned++
		if rows[i].UpdatedAt.After(cutoff) {
			report.SkippedInGrace++
			continue
		}
		exists, err := s.index.Exists(ctx, rows[i].ExternalID)
		if err != nil {
			return fmt.Errorf("check index for %s: %w", rows[i].ExternalID, err)
		}
		if !exists {
			continue
		}
		if err := s.buffer.Delete(ctx, rows[i].ExternalID); err != nil {
			return fmt.Errorf("remove migrated row %s: %w", rows[i].ExternalID, err)
		}
		report.Removed++
	}
	return nil
}

// reconcileBatch checks a full page of rows with a single index query.
func (s *SyncService) reconcileBatch(ctx context.Context, rows []domain.NewsItem, cutoff time.Time, report *SyncReport) (int, error) {
	ids := make([]string, 0, len(rows))
	for i := range rows {
		report.Scanned++
		if rows[i].UpdatedAt.After(cutoff) {
			report.SkippedInGrace++
			continue
		}
		ids = append(ids, rows[i].ExternalID)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	existing, err := s.index.ExistsBatch(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("check index batch: %w", err)
	}

	removed := 0
	for _, id := range ids {
		if !existing[id] {
			continue
		}
		if err := s.buffer.Delete(ctx, id); err != nil {
			return removed, fmt.Errorf("remove migrated row %s: %w", id, err)
		}
		removed++
	}
	report.Removed += removed
	return removed, nil
}

func (s *SyncService) finish(ctx context.Context, report *SyncReport) {
	report.FinishedAt = time.Now()
	if n, err := s.buffer.CountPending(ctx); err == nil {
		report.BufferPending = n
	}
	if n, err := s.index.Count(ctx); err == nil {
		report.IndexCount = n
	}

	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()

	logger.FromContext(ctx).WithFields(logger.Fields{
		"mode":                 report.Mode,
		"scanned":              report.Scanned,
		"removed":              report.Removed,
		"skipped_in_grace":     report.SkippedInGrace,
		logger.FieldDurationMs: report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	}).Info("sync run completed")
}

func (s *SyncService) pageSize() int {
	if s.cfg.PageSize <= 0 {
		return 500
	}
	return s.cfg.PageSize
}
