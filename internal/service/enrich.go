package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SDG223157/trendwise0706-sub001/internal/config"
	"github.com/SDG223157/trendwise0706-sub001/internal/domain"
	"github.com/SDG223157/trendwise0706-sub001/internal/logger"
	"github.com/SDG223157/trendwise0706-sub001/internal/repository"
)

// EnrichService drains the buffer: each pending item is enriched by the AI
// client, migrated into the permanent index, and removed from the buffer.
type EnrichService struct {
	enricher Enricher
	buffer   *repository.BufferRepository
	index    *repository.IndexRepository
	cfg      config.EnrichConfig
}

// NewEnrichService creates an enrichment service.
// Parameters:
//   - enricher: AI enrichment client.
//   - buffer: buffer repository.
//   - index: permanent index repository.
//   - cfg: enrichment settings (batch size, per-item timeout, retry cap).
//
// Returns:
//   - *EnrichService: initialized service.
func NewEnrichService(enricher Enricher, buffer *repository.BufferRepository, index *repository.IndexRepository, cfg config.EnrichConfig) *EnrichService {
	return &EnrichService{
		enricher: enricher,
		buffer:   buffer,
		index:    index,
		cfg:      cfg,
	}
}

// Run executes one enrichment cycle over a batch of pending items.
// Per-item failures are recorded on the buffer row and do not stop the
// batch; an item that exhausts its retries is dead-lettered.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//
// Returns:
//   - error: non-nil if the batch cannot be listed or the store fails.
func (s *EnrichService) Run(ctx context.Context) error {
	items, err := s.buffer.ListUnprocessed(ctx, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list pending items: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	migrated := 0
	failed := 0
	for i := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.processItem(ctx, &items[i]); err != nil {
			if errors.Is(err, domain.ErrStoreUnavailable) {
				return err
			}
			failed++
			continue
		}
		migrated++
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldCount: migrated,
		"failed":          failed,
	}).Info("enrichment cycle completed")
	return nil
}

// processItem enriches and migrates a single buffered item, recording the
// failure on the buffer row when enrichment does not produce usable output.
func (s *EnrichService) processItem(ctx context.Context, item *domain.NewsItem) error {
	itemCtx := ctx
	if s.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, s.cfg.ItemTimeout)
		defer cancel()
	}

	enrichment, err := s.enricher.Enrich(itemCtx, item)
	if err != nil {
		logger.FromContext(ctx).WithField(logger.FieldExternalID, item.ExternalID).
			WithError(err).Warn("enrichment failed")
		if markErr := s.buffer.MarkFailure(ctx, item.ExternalID, err.Error(), s.cfg.MaxRetries); markErr != nil {
			return markErr
		}
		return err
	}

	return s.MigrateAndRemove(ctx, item.Enrich(enrichment, time.Now()))
}

// MigrateAndRemove inserts an enriched article into the permanent index and
// deletes the corresponding buffer row. A uniqueness conflict on the index
// means another worker already migrated the item; the buffer row is still
// removed and the operation reports success, so retrying a half-completed
// migration converges.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - article: enriched record to migrate.
//
// Returns:
//   - error: non-nil only on store failure.
func (s *EnrichService) MigrateAndRemove(ctx context.Context, article *domain.EnrichedArticle) error {
	if err := s.index.Insert(ctx, article); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return fmt.Errorf("insert into index: %w", err)
		}
		logger.FromContext(ctx).WithField(logger.FieldExternalID, article.ExternalID).
			Debug("article already migrated, removing buffer row")
	}
	if err := s.buffer.Delete(ctx, article.ExternalID); err != nil {
		return fmt.Errorf("delete buffer row %s: %w", article.ExternalID, err)
	}
	return nil
}
