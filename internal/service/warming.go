package service

import (
	"context"

	"github.com/SDG223157/trendwise0706-sub001/internal/cache"
	"github.com/SDG223157/trendwise0706-sub001/internal/config"
	"github.com/SDG223157/trendwise0706-sub001/internal/logger"
)

// WarmingService pre-fills the cache with the most popular queries so
// interactive traffic lands on warm entries.
type WarmingService struct {
	search     *SearchService
	cache      *cache.Tiered
	popularity *PopularityTracker
	cfg        config.WarmingConfig
}

// NewWarmingService creates a cache warming service.
// Parameters:
//   - search: search service issuing the warming queries.
//   - c: tiered cache (health checked before warming).
//   - popularity: tracker supplying the popular terms.
//   - cfg: warming settings (top-N counts).
//
// Returns:
//   - *WarmingService: initialized service.
func NewWarmingService(search *SearchService, c *cache.Tiered, popularity *PopularityTracker, cfg config.WarmingConfig) *WarmingService {
	return &WarmingService{
		search:     search,
		cache:      c,
		popularity: popularity,
		cfg:        cfg,
	}
}

// Run executes one warming cycle: the top searched symbols and keywords
// get queried through the normal search path, which populates both cache
// tiers. When the remote cache is unreachable the cycle is skipped, since
// warming only the small local tier would evict live entries.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//
// Returns:
//   - error: always nil; warming failures are logged, never fatal.
func (s *WarmingService) Run(ctx context.Context) error {
	if !s.cache.Healthy(ctx) {
		logger.FromContext(ctx).Warn("remote cache unreachable, skipping warming cycle")
		return nil
	}

	warmed := 0
	for _, symbol := range s.popularity.TopSymbols(s.cfg.TopSymbols) {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := s.search.symbolQuery(ctx, symbol, defaultSearchLimit); err != nil {
			logger.FromContext(ctx).WithField(logger.FieldSymbol, symbol).
				WithError(err).Warn("symbol warming query failed")
			continue
		}
		warmed++
	}
	for _, keyword := range s.popularity.TopKeywords(s.cfg.TopKeywords) {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := s.search.keywordQuery(ctx, keyword, defaultSearchLimit); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("keyword warming query failed")
			continue
		}
		warmed++
	}

	logger.FromContext(ctx).WithField(logger.FieldCount, warmed).Info("cache warming cycle completed")
	return nil
}

// defaultSearchLimit matches the API's default page size so warming fills
// the exact keys interactive queries will request.
const defaultSearchLimit = 20
