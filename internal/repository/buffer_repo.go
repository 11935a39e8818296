package repository

import (
	"context"
	"errors"
	"time"

	"github.com/SDG223157/trendwise0706-sub001/internal/domain"
	"gorm.io/gorm"
)

// BufferRepository handles the buffer store of not-yet-enriched news items.
type BufferRepository struct {
	db *gorm.DB
}

// NewBufferRepository creates a new BufferRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *BufferRepository: repository instance bound to db.
func NewBufferRepository(db *gorm.DB) *BufferRepository {
	return &BufferRepository{db: db}
}

// Insert stores a freshly ingested item.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - item: item to persist.
// Returns:
//   - error: domain.ErrConflict if the external id already exists.
func (r *BufferRepository) Insert(ctx context.Context, item *domain.NewsItem) error {
	if item.Status == "" {
		item.Status = domain.BufferStatusPending
	}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return translateError(err)
	}
	return nil
}

// Get retrieves a buffered item by external id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - externalID: external article identifier.
// Returns:
//   - *domain.NewsItem: item if found.
//   - error: domain.ErrNotFound if absent.
func (r *BufferRepository) Get(ctx context.Context, externalID string) (*domain.NewsItem, error) {
	var item domain.NewsItem
	if err := r.db.WithContext(ctx).First(&item, "external_id = ?", externalID).Error; err != nil {
		return nil, translateError(err)
	}
	return &item, nil
}

// ListUnprocessed returns pending items oldest-first for fair scheduling.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of items to return.
// Returns:
//   - []domain.NewsItem: pending items ordered by creation time.
//   - error: non-nil if the query fails.
func (r *BufferRepository) ListUnprocessed(ctx context.Context, limit int) ([]domain.NewsItem, error) {
	var items []domain.NewsItem
	if err := r.db.WithContext(ctx).
		Where("status = ?", domain.BufferStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, translateError(err)
	}
	return items, nil
}

// Delete removes a buffered item by external id. Deleting an absent row is
// not an error; migration retries rely on that.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - externalID: external article identifier.
// Returns:
//   - error: non-nil if the delete fails.
func (r *BufferRepository) Delete(ctx context.Context, externalID string) error {
	if err := r.db.WithContext(ctx).Delete(&domain.NewsItem{}, "external_id = ?", externalID).Error; err != nil {
		return translateError(err)
	}
	return nil
}

// GetByExternalIDs retrieves buffered items matching any of the given ids
// with a single set query.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ids: external article identifiers.
// Returns:
//   - []domain.NewsItem: matching items.
//   - error: non-nil if the query fails.
func (r *BufferRepository) GetByExternalIDs(ctx context.Context, ids []string) ([]domain.NewsItem, error) {
	if len(ids) == 0 {
		return []domain.NewsItem{}, nil
	}
	var items []domain.NewsItem
	if err := r.db.WithContext(ctx).Where("external_id IN ?", ids).Find(&items).Error; err != nil {
		return nil, translateError(err)
	}
	return items, nil
}

// GetByURLs retrieves buffered items matching any of the given canonical URLs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - urls: canonical article URLs.
// Returns:
//   - []domain.NewsItem: matching items.
//   - error: non-nil if the query fails.
func (r *BufferRepository) GetByURLs(ctx context.Context, urls []string) ([]domain.NewsItem, error) {
	if len(urls) == 0 {
		return []domain.NewsItem{}, nil
	}
	var items []domain.NewsItem
	if err := r.db.WithContext(ctx).Where("url IN ?", urls).Find(&items).Error; err != nil {
		return nil, translateError(err)
	}
	return items, nil
}

// ListRecent returns items published after the given cutoff, newest-first.
// Used by the resolver's content-similarity lookback.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - since: publication cutoff.
//   - limit: maximum number of items to return.
// Returns:
//   - []domain.NewsItem: recent items.
//   - error: non-nil if the query fails.
func (r *BufferRepository) ListRecent(ctx context.Context, since time.Time, limit int) ([]domain.NewsItem, error) {
	var items []domain.NewsItem
	if err := r.db.WithContext(ctx).
		Where("published_at >= ?", since).
		Order("published_at DESC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, translateError(err)
	}
	return items, nil
}

// ListModifiedSince returns items touched after the given time, used by the
// incremental reconciliation pass.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - since: modification cutoff.
//   - limit: maximum number of items to return.
// Returns:
//   - []domain.NewsItem: modified items oldest-first.
//   - error: non-nil if the query fails.
func (r *BufferRepository) ListModifiedSince(ctx context.Context, since time.Time, limit int) ([]domain.NewsItem, error) {
	var items []domain.NewsItem
	if err := r.db.WithContext(ctx).
		Where("updated_at >= ?", since).
		Order("updated_at ASC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, translateError(err)
	}
	return items, nil
}

// ListPage returns a page of all buffered items for full-scan reconciliation.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - offset: number of rows to skip.
//   - limit: page size.
// Returns:
//   - []domain.NewsItem: page of items ordered by external id.
//   - error: non-nil if the query fails.
func (r *BufferRepository) ListPage(ctx context.Context, offset, limit int) ([]domain.NewsItem, error) {
	var items []domain.NewsItem
	if err := r.db.WithContext(ctx).
		Order("external_id ASC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, translateError(err)
	}
	return items, nil
}

// MarkFailure records an enrichment failure on a buffered item, moving it to
// the dead status once maxRetries is exhausted.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - externalID: external article identifier.
//   - lastError: failure description for operator inspection.
//   - maxRetries: retry budget before dead-lettering.
// Returns:
//   - error: non-nil if the update fails.
func (r *BufferRepository) MarkFailure(ctx context.Context, externalID, lastError string, maxRetries int) error {
	item, err := r.Get(ctx, externalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	updates := map[string]interface{}{
		"retry_count": item.RetryCount + 1,
		"last_error":  lastError,
	}
	if item.RetryCount+1 >= maxRetries {
		updates["status"] = domain.BufferStatusDead
	}

	if err := r.db.WithContext(ctx).
		Model(&domain.NewsItem{}).
		Where("external_id = ?", externalID).
		Updates(updates).Error; err != nil {
		return translateError(err)
	}
	return nil
}

// Clear deletes every buffered row. The permanent index is never touched.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: number of rows removed.
//   - error: non-nil if the delete fails.
func (r *BufferRepository) Clear(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("1 = 1").Delete(&domain.NewsItem{})
	if res.Error != nil {
		return 0, translateError(res.Error)
	}
	return res.RowsAffected, nil
}

// Count returns the total number of buffered rows.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: row count.
//   - error: non-nil if the query fails.
func (r *BufferRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.NewsItem{}).Count(&count).Error; err != nil {
		return 0, translateError(err)
	}
	return count, nil
}

// CountPending returns the processing backlog size exposed to operators.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: number of pending rows.
//   - error: non-nil if the query fails.
func (r *BufferRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.NewsItem{}).
		Where("status = ?", domain.BufferStatusPending).
		Count(&count).Error; err != nil {
		return 0, translateError(err)
	}
	return count, nil
}
