package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/SDG223157/trendwise0706-sub001/internal/cache"
	"github.com/SDG223157/trendwise0706-sub001/internal/domain"
	"github.com/SDG223157/trendwise0706-sub001/internal/repository"
)

// SymbolTrend is one entry in the trending-symbols ranking.
type SymbolTrend struct {
	Symbol       string  `json:"symbol"`
	ArticleCount int     `json:"article_count"`
	AvgSentiment float64 `json:"avg_sentiment"`
}

// StoreStats reports store and cache health for the stats endpoint.
type StoreStats struct {
	BufferTotal   int64       `json:"buffer_total"`
	BufferPending int64       `json:"buffer_pending"`
	IndexTotal    int64       `json:"index_total"`
	CacheHealthy  bool        `json:"cache_healthy"`
	Cache         cache.Stats `json:"cache"`
}

// SearchService answers read queries against the permanent index through
// the tiered cache and feeds the popularity tracker that drives warming.
type SearchService struct {
	index      *repository.IndexRepository
	buffer     *repository.BufferRepository
	cache      *cache.Tiered
	popularity *PopularityTracker
}

// NewSearchService creates a search service.
// Parameters:
//   - index: permanent index repository.
//   - buffer: buffer repository (backlog and stats only).
//   - c: tiered cache.
//   - popularity: query popularity tracker (may be nil).
//
// Returns:
//   - *SearchService: initialized service.
func NewSearchService(index *repository.IndexRepository, buffer *repository.BufferRepository, c *cache.Tiered, popularity *PopularityTracker) *SearchService {
	return &SearchService{
		index:      index,
		buffer:     buffer,
		cache:      c,
		popularity: popularity,
	}
}

// SearchBySymbol returns enriched articles tagged with a ticker symbol,
// newest first. Symbol queries are the hottest path and cache accordingly.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - symbol: ticker symbol (case-insensitive, stored upper-case).
//   - limit: maximum number of results.
//
// Returns:
//   - []domain.EnrichedArticle: matching articles.
//   - error: non-nil if the store and cache both fail.
func (s *SearchService) SearchBySymbol(ctx context.Context, symbol string, limit int) ([]domain.EnrichedArticle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol must not be empty")
	}
	if s.popularity != nil {
		s.popularity.RecordSymbol(symbol)
	}
	return s.symbolQuery(ctx, symbol, limit)
}

// symbolQuery resolves a symbol search through the cache without counting
// it toward popularity. Warming uses it to avoid reinforcing its own picks.
func (s *SearchService) symbolQuery(ctx context.Context, symbol string, limit int) ([]domain.EnrichedArticle, error) {
	key := cache.Key("search:symbol", symbol, strconv.Itoa(limit))
	return s.cachedArticles(ctx, key, cache.ClassHot, func(ctx context.Context) ([]domain.EnrichedArticle, error) {
		return s.index.SearchBySymbol(ctx, symbol, limit)
	})
}

// SearchByKeyword returns enriched articles matching a keyword in the
// title, AI summary, or extracted keywords, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - keyword: search term (case-insensitive).
//   - limit: maximum number of results.
//
// Returns:
//   - []domain.EnrichedArticle: matching articles.
//   - error: non-nil if the store and cache both fail.
func (s *SearchService) SearchByKeyword(ctx context.Context, keyword string, limit int) ([]domain.EnrichedArticle, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return nil, fmt.Errorf("keyword must not be empty")
	}
	if s.popularity != nil {
		s.popularity.RecordKeyword(keyword)
	}
	return s.keywordQuery(ctx, keyword, limit)
}

func (s *SearchService) keywordQuery(ctx context.Context, keyword string, limit int) ([]domain.EnrichedArticle, error) {
	key := cache.Key("search:keyword", keyword, strconv.Itoa(limit))
	return s.cachedArticles(ctx, key, cache.ClassWarm, func(ctx context.Context) ([]domain.EnrichedArticle, error) {
		return s.index.SearchByKeyword(ctx, keyword, limit)
	})
}

// TrendingSymbols ranks symbols by article volume over a recent window and
// reports average AI sentiment per symbol.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - window: how far back to aggregate.
//   - limit: maximum number of ranked symbols.
//
// Returns:
//   - []SymbolTrend: ranking, highest volume first.
//   - error: non-nil if the store and cache both fail.
func (s *SearchService) TrendingSymbols(ctx context.Context, window time.Duration, limit int) ([]SymbolTrend, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if limit <= 0 {
		limit = 10
	}

	key := cache.Key("trending", window.String(), strconv.Itoa(limit))
	data, err := s.cache.Get(ctx, key, cache.ClassCold, func(ctx context.Context) ([]byte, error) {
		trends, err := s.aggregateTrends(ctx, window, limit)
		if err != nil {
			return nil, err
		}
		return json.Marshal(trends)
	})
	if err != nil {
		return nil, err
	}

	var trends []SymbolTrend
	if err := json.Unmarshal(data, &trends); err != nil {
		return nil, fmt.Errorf("decode cached trends: %w", err)
	}
	return trends, nil
}

func (s *SearchService) aggregateTrends(ctx context.Context, window time.Duration, limit int) ([]SymbolTrend, error) {
	articles, err := s.index.ListRecent(ctx, time.Now().Add(-window), 5000)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	sentiment := make(map[string]int)
	for i := range articles {
		for _, sym := range articles[i].Symbols {
			counts[sym]++
			sentiment[sym] += articles[i].AISentiment
		}
	}

	trends := make([]SymbolTrend, 0, len(counts))
	for sym, count := range counts {
		trends = append(trends, SymbolTrend{
			Symbol:       sym,
			ArticleCount: count,
			AvgSentiment: float64(sentiment[sym]) / float64(count),
		})
	}
	sort.Slice(trends, func(i, j int) bool {
		if trends[i].ArticleCount != trends[j].ArticleCount {
			return trends[i].ArticleCount > trends[j].ArticleCount
		}
		return trends[i].Symbol < trends[j].Symbol
	})
	if len(trends) > limit {
		trends = trends[:limit]
	}
	return trends, nil
}

// BacklogCount returns the number of buffer items still waiting for
// enrichment. Not cached so operators see live backlog.
func (s *SearchService) BacklogCount(ctx context.Context) (int64, error) {
	return s.buffer.CountPending(ctx)
}

// Stats reports store sizes and cache health.
func (s *SearchService) Stats(ctx context.Context) (*StoreStats, error) {
	bufferTotal, err := s.buffer.Count(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.buffer.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	indexTotal, err := s.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &StoreStats{
		BufferTotal:   bufferTotal,
		BufferPending: pending,
		IndexTotal:    indexTotal,
		CacheHealthy:  s.cache.Healthy(ctx),
		Cache:         s.cache.Stats(),
	}, nil
}

func (s *SearchService) cachedArticles(ctx context.Context, key string, class cache.Class, load func(context.Context) ([]domain.EnrichedArticle, error)) ([]domain.EnrichedArticle, error) {
	data, err := s.cache.Get(ctx, key, class, func(ctx context.Context) ([]byte, error) {
		articles, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(articles)
	})
	if err != nil {
		return nil, err
	}

	var articles []domain.EnrichedArticle
	if err := json.Unmarshal(data, &articles); err != nil {
		return nil, fmt.Errorf("decode cached articles: %w", err)
	}
	return articles, nil
}
