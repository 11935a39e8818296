package repository

import (
	"context"
	"time"

	"github.com/SDG223157/trendwise0706-sub001/internal/domain"
	"gorm.io/gorm"
)

// IndexRepository handles the permanent index store of enriched articles.
type IndexRepository struct {
	db *gorm.DB
}

// NewIndexRepository creates a new IndexRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *IndexRepository: repository instance bound to db.
func NewIndexRepository(db *gorm.DB) *IndexRepository {
	return &IndexRepository{db: db}
}

// Insert stores an enriched article. The primary-key constraint on
// external_id is the last line of defense against racing enrichment workers.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - article: enriched article to persist.
// Returns:
//   - error: domain.ErrConflict if the external id already exists.
func (r *IndexRepository) Insert(ctx context.Context, article *domain.EnrichedArticle) error {
	if err := r.db.WithContext(ctx).Create(article).Error; err != nil {
		return translateError(err)
	}
	return nil
}

// Get retrieves an enriched article by external id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - externalID: external article identifier.
// Returns:
//   - *domain.EnrichedArticle: article if found.
//   - error: domain.ErrNotFound if absent.
func (r *IndexRepository) Get(ctx context.Context, externalID string) (*domain.EnrichedArticle, error) {
	var article domain.EnrichedArticle
	if err := r.db.WithContext(ctx).First(&article, "external_id = ?", externalID).Error; err != nil {
		return nil, translateError(err)
	}
	return &article, nil
}

// Exists checks whether an external id has ever been fully processed.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - externalID: external article identifier.
// Returns:
//   - bool: true if a record exists.
//   - error: non-nil if the lookup fails.
func (r *IndexRepository) Exists(ctx context.Context, externalID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.EnrichedArticle{}).
		Where("external_id = ?", externalID).
		Count(&count).Error; err != nil {
		return false, translateError(err)
	}
	return count > 0, nil
}

// ExistsBatch checks a set of external ids with a single query.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - externalIDs: external article identifiers.
// Returns:
//   - map[string]bool: ids present in the index.
//   - error: non-nil if the query fails.
func (r *IndexRepository) ExistsBatch(ctx context.Context, externalIDs []string) (map[string]bool, error) {
	found := make(map[string]bool, len(externalIDs))
	if len(externalIDs) == 0 {
		return found, nil
	}
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&domain.EnrichedArticle{}).
		Where("external_id IN ?", externalIDs).
		Pluck("external_id", &ids).Error; err != nil {
		return nil, translateError(err)
	}
	for _, id := range ids {
		found[id] = true
	}
	return found, nil
}

// Count returns the total number of indexed articles.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: row count.
//   - error: non-nil if the query fails.
func (r *IndexRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.EnrichedArticle{}).Count(&count).Error; err != nil {
		return 0, translateError(err)
	}
	return count, nil
}

// GetByExternalIDs retrieves indexed articles matching any of the given ids.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ids: external article identifiers.
// Returns:
//   - []domain.EnrichedArticle: matching articles.
//   - error: non-nil if the query fails.
func (r *IndexRepository) GetByExternalIDs(ctx context.Context, ids []string) ([]domain.EnrichedArticle, error) {
	if len(ids) == 0 {
		return []domain.EnrichedArticle{}, nil
	}
	var articles []domain.EnrichedArticle
	if err := r.db.WithContext(ctx).Where("external_id IN ?", ids).Find(&articles).Error; err != nil {
		return nil, translateError(err)
	}
	return articles, nil
}

// GetByURLs retrieves indexed articles matching any of the given URLs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - urls: canonical article URLs.
// Returns:
//   - []domain.EnrichedArticle: matching articles.
//   - error: non-nil if the query fails.
func (r *IndexRepository) GetByURLs(ctx context.Context, urls []string) ([]domain.EnrichedArticle, error) {
	if len(urls) == 0 {
		return []domain.EnrichedArticle{}, nil
	}
	var articles []domain.EnrichedArticle
	if err := r.db.WithContext(ctx).Where("url IN ?", urls).Find(&articles).Error; err != nil {
		return nil, translateError(err)
	}
	return articles, nil
}

// ListRecent returns articles published after the cutoff, newest-first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - since: publication cutoff.
//   - limit: maximum number of articles to return.
// Returns:
//   - []domain.EnrichedArticle: recent articles.
//   - error: non-nil if the query fails.
func (r *IndexRepository) ListRecent(ctx context.Context, since time.Time, limit int) ([]domain.EnrichedArticle, error) {
	var articles []domain.EnrichedArticle
	if err := r.db.WithContext(ctx).
		Where("published_at >= ?", since).
		Order("published_at DESC").
		Limit(limit).
		Find(&articles).Error; err != nil {
		return nil, translateError(err)
	}
	return articles, nil
}

// SearchBySymbol returns indexed articles tagged with the given ticker
// symbol, newest-first. Symbols are stored as a JSON string array, so the
// match is an exact-element containment check.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - symbol: ticker symbol, upper-cased by the caller.
//   - limit: maximum number of articles to return.
// Returns:
//   - []domain.EnrichedArticle: matching articles.
//   - error: non-nil if the query fails.
func (r *IndexRepository) SearchBySymbol(ctx context.Context, symbol string, limit int) ([]domain.EnrichedArticle, error) {
	var articles []domain.EnrichedArticle
	if err := r.db.WithContext(ctx).
		Where("symbols LIKE ?", `%"`+symbol+`"%`).
		Order("published_at DESC").
		Limit(limit).
		Find(&articles).Error; err != nil {
		return nil, translateError(err)
	}
	return articles, nil
}

// SearchByKeyword returns indexed articles whose title, summary, or keyword
// set contains the given term, newest-first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - keyword: search term, lower-cased by the caller.
//   - limit: maximum number of articles to return.
// Returns:
//   - []domain.EnrichedArticle: matching articles.
//   - error: non-nil if the query fails.
func (r *IndexRepository) SearchByKeyword(ctx context.Context, keyword string, limit int) ([]domain.EnrichedArticle, error) {
	pattern := "%" + keyword + "%"
	var articles []domain.EnrichedArticle
	if err := r.db.WithContext(ctx).
		Where(
			r.db.Where("LOWER(title) LIKE ?", pattern).
				Or("LOWER(ai_summary) LIKE ?", pattern).
				Or("keywords LIKE ?", pattern),
		).
		Order("published_at DESC").
		Limit(limit).
		Find(&articles).Error; err != nil {
		return nil, translateError(err)
	}
	return articles, nil
}

// ListModifiedSince returns articles touched after the given time.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - since: modification cutoff.
//   - limit: maximum number of articles to return.
// Returns:
//   - []domain.EnrichedArticle: modified articles oldest-first.
//   - error: non-nil if the query fails.
func (r *IndexRepository) ListModifiedSince(ctx context.Context, since time.Time, limit int) ([]domain.EnrichedArticle, error) {
	var articles []domain.EnrichedArticle
	if err := r.db.WithContext(ctx).
		Where("updated_at >= ?", since).
		Order("updated_at ASC").
		Limit(limit).
		Find(&articles).Error; err != nil {
		return nil, translateError(err)
	}
	return articles, nil
}

// ListPage returns a page of all indexed articles for full reconciliation
// and cache rebuilds.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - offset: number of rows to skip.
//   - limit: page size.
// Returns:
//   - []domain.EnrichedArticle: page ordered by external id.
//   - error: non-nil if the query fails.
func (r *IndexRepository) ListPage(ctx context.Context, offset, limit int) ([]domain.EnrichedArticle, error) {
	var articles []domain.EnrichedArticle
	if err := r.db.WithContext(ctx).
		Order("external_id ASC").
		Offset(offset).
		Limit(limit).
		Find(&articles).Error; err != nil {
		return nil, translateError(err)
	}
	return articles, nil
}
