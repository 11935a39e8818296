package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SDG223157/trendwise0706-sub001/internal/config"
	"github.com/SDG223157/trendwise0706-sub001/internal/domain"
	"github.com/SDG223157/trendwise0706-sub001/internal/logger"
	"github.com/SDG223157/trendwise0706-sub001/internal/repository"
	"github.com/SDG223157/trendwise0706-sub001/internal/resolver"
	"github.com/SDG223157/trendwise0706-sub001/internal/source"
)

// IngestService pulls recent articles for tracked symbols, filters out
// duplicates, and inserts survivors into the buffer.
type IngestService struct {
	fetcher  source.Fetcher
	resolver *resolver.Resolver
	buffer   *repository.BufferRepository
	cfg      config.IngestConfig

	mu     sync.Mutex
	cursor int
}

// NewIngestService creates an ingestion service.
// Parameters:
//   - fetcher: news source adapter.
//   - res: duplicate resolver.
//   - buffer: buffer repository.
//   - cfg: ingestion settings (symbols, lookback, per-cycle cap).
//
// Returns:
//   - *IngestService: initialized service.
func NewIngestService(fetcher source.Fetcher, res *resolver.Resolver, buffer *repository.BufferRepository, cfg config.IngestConfig) *IngestService {
	return &IngestService{
		fetcher:  fetcher,
		resolver: res,
		buffer:   buffer,
		cfg:      cfg,
	}
}

// cycleSymbols returns this cycle's window of tracked symbols. When the
// per-cycle cap is smaller than the tracked list, the window rotates so
// every symbol is fetched within ceil(len/cap) cycles instead of the tail
// starving behind a fixed prefix.
func (s *IngestService) cycleSymbols() []string {
	all := s.cfg.Symbols
	n := s.cfg.MaxSymbolsPerCycle
	if n <= 0 || len(all) <= n {
		return all
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	start := s.cursor % len(all)
	s.cursor = (start + n) % len(all)

	window := make([]string, 0, n)
	for i := 0; i < n; i++ {
		window = append(window, all[(start+i)%len(all)])
	}
	return window
}

// Run executes one ingestion cycle.
// Transient source failures for a symbol are logged and skipped so the
// remaining symbols still get processed; store failures abort the cycle.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//
// Returns:
//   - error: non-nil if duplicate resolution or buffer writes fail.
func (s *IngestService) Run(ctx context.Context) error {
	since := time.Now().AddDate(0, 0, -s.cfg.LookbackDays)

	symbols := s.cycleSymbols()

	var candidates []domain.NewsItem
	skipped := 0
	for _, symbol := range symbols {
		items, err := s.fetcher.FetchRecent(ctx, symbol, since)
		if err != nil {
			if errors.Is(err, domain.ErrTransientSource) {
				logger.FromContext(ctx).WithField(logger.FieldSymbol, symbol).
					WithError(err).Warn("skipping symbol after transient source failure")
				skipped++
				continue
			}
			return fmt.Errorf("fetch %s: %w", symbol, err)
		}
		candidates = append(candidates, items...)
	}

	if len(candidates) == 0 {
		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldCount: 0,
			"symbols_skipped": skipped,
		}).Info("ingestion cycle found no new articles")
		return nil
	}

	results, err := s.resolver.ResolveBatch(ctx, candidates)
	if err != nil {
		return fmt.Errorf("resolve candidates: %w", err)
	}

	inserted := 0
	duplicates := 0
	for i := range candidates {
		res, ok := results[candidates[i].ExternalID]
		if !ok {
			// Later occurrence of an in-batch duplicate external id.
			continue
		}
		// Mark the id consumed so a later in-batch occurrence is skipped.
		delete(results, candidates[i].ExternalID)
		if res.IsDuplicate() {
			duplicates++
			continue
		}

		if err := s.buffer.Insert(ctx, &candidates[i]); err != nil {
			// A concurrent writer beat us to this id; not a failure.
			if errors.Is(err, domain.ErrConflict) {
				duplicates++
				continue
			}
			return fmt.Errorf("insert %s: %w", candidates[i].ExternalID, err)
		}
		inserted++
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldCount: inserted,
		"duplicates":      duplicates,
		"symbols_skipped": skipped,
	}).Info("ingestion cycle completed")
	return nil
}
