package source

import (
	"context"
	"time"

	"github.com/SDG223157/trendwise0706-sub001/internal/domain"
)

// Fetcher pulls recent articles for a tracked symbol from the external
// article provider.
type Fetcher interface {
	// GetSourceID returns the stable identifier for this provider.
	// Parameters: none.
	// Returns:
	//   - string: source identifier stamped onto fetched items.
	GetSourceID() string

	// FetchRecent fetches articles for one symbol published since the given
	// date. Network and rate-limit failures are reported as
	// domain.ErrTransientSource so the ingestion cycle can skip the symbol
	// and continue with the rest.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - symbol: ticker symbol to fetch for.
	//   - since: publication cutoff.
	// Returns:
	//   - []domain.NewsItem: fetched items, symbols populated.
	//   - err: non-nil if fetching fails.
	FetchRecent(ctx context.Context, symbol string, since time.Time) ([]domain.NewsItem, error)
}
