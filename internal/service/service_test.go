package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/SDG223157/trendwise0706-sub001/internal/cache"
	"github.com/SDG223157/trendwise0706-sub001/internal/config"
	"github.com/SDG223157/trendwise0706-sub001/internal/domain"
	"github.com/SDG223157/trendwise0706-sub001/internal/logger"
	"github.com/SDG223157/trendwise0706-sub001/internal/repository"
	"github.com/SDG223157/trendwise0706-sub001/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "json", ServiceName: "test"})
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "test.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	return db
}

type fakeFetcher struct {
	items map[string][]domain.NewsItem
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) GetSourceID() string { return "fake" }

func (f *fakeFetcher) FetchRecent(ctx context.Context, symbol string, since time.Time) ([]domain.NewsItem, error) {
	f.calls = append(f.calls, symbol)
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	return f.items[symbol], nil
}

type fakeEnricher struct {
	err   error
	calls int
}

func (f *fakeEnricher) Enrich(ctx context.Context, item *domain.NewsItem) (*domain.Enrichment, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Enrichment{
		Summary:   "summary of " + item.Title,
		Insights:  "insights",
		Sentiment: 42,
		Keywords:  domain.StringArray{"earnings"},
	}, nil
}

func newsItem(id, title, symbol string) domain.NewsItem {
	return domain.NewsItem{
		ExternalID:  id,
		URL:         "https://news.example.com/" + id,
		Title:       title,
		Content:     "body of " + title,
		Source:      "wire",
		Symbols:     domain.StringArray{symbol},
		PublishedAt: time.Now().Add(-time.Hour),
	}
}

func newIngest(db *gorm.DB, fetcher *fakeFetcher, cfg config.IngestConfig) *IngestService {
	buffer := repository.NewBufferRepository(db)
	index := repository.NewIndexRepository(db)
	res := resolver.New(buffer, index, resolver.Config{})
	return NewIngestService(fetcher, res, buffer, cfg)
}

func TestIngestInsertsUniqueItems(t *testing.T) {
	db := newTestDB(t)
	fetcher := &fakeFetcher{items: map[string][]domain.NewsItem{
		"AAPL": {newsItem("a1", "Apple earnings beat", "AAPL")},
		"MSFT": {newsItem("m1", "Microsoft cloud growth", "MSFT")},
	}}
	svc := newIngest(db, fetcher, config.IngestConfig{Symbols: []string{"AAPL", "MSFT"}, LookbackDays: 3})

	require.NoError(t, svc.Run(context.Background()))

	count, err := repository.NewBufferRepository(db).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestIngestSkipsTransientSymbolFailures(t *testing.T) {
	db := newTestDB(t)
	fetcher := &fakeFetcher{
		items: map[string][]domain.NewsItem{
			"MSFT": {newsItem("m1", "Microsoft cloud growth", "MSFT")},
		},
		errs: map[string]error{
			"AAPL": fmt.Errorf("%w: rate limited", domain.ErrTransientSource),
		},
	}
	svc := newIngest(db, fetcher, config.IngestConfig{Symbols: []string{"AAPL", "MSFT"}, LookbackDays: 3})

	require.NoError(t, svc.Run(context.Background()))

	// The failing symbol did not stop the cycle
	assert.Equal(t, []string{"AAPL", "MSFT"}, fetcher.calls)
	count, err := repository.NewBufferRepository(db).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestIngestFiltersAlreadyIndexedItems(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	index := repository.NewIndexRepository(db)
	item := newsItem("a1", "Apple earnings beat", "AAPL")
	require.NoError(t, index.Insert(ctx, item.Enrich(&domain.Enrichment{Summary: "s"}, time.Now())))

	fetcher := &fakeFetcher{items: map[string][]domain.NewsItem{
		"AAPL": {item, newsItem("a2", "Apple ships new iPhone", "AAPL")},
	}}
	svc := newIngest(db, fetcher, config.IngestConfig{Symbols: []string{"AAPL"}, LookbackDays: 3})

	require.NoError(t, svc.Run(ctx))

	buffer := repository.NewBufferRepository(db)
	_, err := buffer.Get(ctx, "a1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = buffer.Get(ctx, "a2")
	assert.NoError(t, err)
}

func TestIngestRespectsSymbolCap(t *testing.T) {
	db := newTestDB(t)
	fetcher := &fakeFetcher{}
	svc := newIngest(db, fetcher, config.IngestConfig{
		Symbols:            []string{"AAPL", "MSFT", "GOOGL"},
		MaxSymbolsPerCycle: 2,
		LookbackDays:       3,
	})

	// The window rotates across cycles so the symbols past the cap are not
	// starved behind a fixed prefix.
	require.NoError(t, svc.Run(context.Background()))
	assert.Equal(t, []string{"AAPL", "MSFT"}, fetcher.calls)

	require.NoError(t, svc.Run(context.Background()))
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOGL", "AAPL"}, fetcher.calls)

	require.NoError(t, svc.Run(context.Background()))
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOGL", "AAPL", "MSFT", "GOOGL"}, fetcher.calls)
}

func TestEnrichMigratesAndRemoves(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	buffer := repository.NewBufferRepository(db)
	index := repository.NewIndexRepository(db)
	item := newsItem("a1", "Apple earnings beat", "AAPL")
	require.NoError(t, buffer.Insert(ctx, &item))

	enricher := &fakeEnricher{}
	svc := NewEnrichService(enricher, buffer, index, config.EnrichConfig{BatchSize: 10, MaxRetries: 3})
	require.NoError(t, svc.Run(ctx))

	_, err := buffer.Get(ctx, "a1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	article, err := index.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "summary of Apple earnings beat", article.AISummary)
	assert.Equal(t, 42, article.AISentiment)
	assert.False(t, article.EnrichedAt.IsZero())
}

func TestMigrateAndRemoveIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	buffer := repository.NewBufferRepository(db)
	index := repository.NewIndexRepository(db)
	item := newsItem("a1", "Apple earnings beat", "AAPL")
	require.NoError(t, buffer.Insert(ctx, &item))

	article := item.Enrich(&domain.Enrichment{Summary: "s"}, time.Now())
	// Someone else migrated the same article first
	require.NoError(t, index.Insert(ctx, article))

	svc := NewEnrichService(&fakeEnricher{}, buffer, index, config.EnrichConfig{MaxRetries: 3})
	require.NoError(t, svc.MigrateAndRemove(ctx, article))

	_, err := buffer.Get(ctx, "a1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// A second call with no buffer row left is still a success
	require.NoError(t, svc.MigrateAndRemove(ctx, article))

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMigrateAndRemoveConcurrent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	buffer := repository.NewBufferRepository(db)
	index := repository.NewIndexRepository(db)
	item := newsItem("a1", "Apple earnings beat", "AAPL")
	require.NoError(t, buffer.Insert(ctx, &item))

	article := item.Enrich(&domain.Enrichment{Summary: "s"}, time.Now())
	svc := NewEnrichService(&fakeEnricher{}, buffer, index, config.EnrichConfig{MaxRetries: 3})

	// Two workers racing on the same item, as after a crashed run left the
	// buffer row behind. Both must succeed and the index must hold one row.
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a := *article
			errs <- svc.MigrateAndRemove(ctx, &a)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = buffer.Get(ctx, "a1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEnrichDeadLettersAfterMaxRetries(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	buffer := repository.NewBufferRepository(db)
	index := repository.NewIndexRepository(db)
	item := newsItem("a1", "Apple earnings beat", "AAPL")
	require.NoError(t, buffer.Insert(ctx, &item))

	enricher := &fakeEnricher{err: fmt.Errorf("%w: empty summary", domain.ErrEnrichmentFailed)}
	svc := NewEnrichService(enricher, buffer, index, config.EnrichConfig{BatchSize: 10, MaxRetries: 2})

	require.NoError(t, svc.Run(ctx))
	require.NoError(t, svc.Run(ctx))

	got, err := buffer.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.BufferStatusDead, got.Status)
	assert.Equal(t, 2, got.RetryCount)
	assert.Contains(t, got.LastError, "empty summary")

	// Dead items no longer show up for enrichment
	require.NoError(t, svc.Run(ctx))
	assert.Equal(t, 2, enricher.calls)

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSyncIncrementalRemovesMigratedLeftovers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	buffer := repository.NewBufferRepository(db)
	index := repository.NewIndexRepository(db)

	leftover := newsItem("a1", "Apple earnings beat", "AAPL")
	require.NoError(t, buffer.Insert(ctx, &leftover))
	require.NoError(t, index.Insert(ctx, leftover.Enrich(&domain.Enrichment{Summary: "s"}, time.Now())))

	pending := newsItem("a2", "Apple ships new iPhone", "AAPL")
	require.NoError(t, buffer.Insert(ctx, &pending))

	svc := NewSyncService(buffer, index, nil, config.SyncConfig{GraceWindow: 0, PageSize: 100})
	require.NoError(t, svc.RunIncremental(ctx))

	_, err := buffer.Get(ctx, "a1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = buffer.Get(ctx, "a2")
	assert.NoError(t, err)

	report := svc.LastReport()
	require.NotNil(t, report)
	assert.Equal(t, "incremental", report.Mode)
	assert.Equal(t, 1, report.Removed)
}

func TestSyncRespectsGraceWindow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	buffer := repository.NewBufferRepository(db)
	index := repository.NewIndexRepository(db)

	// Migrated moments ago; its buffer row may be mid-delete by the
	// enrichment worker, so sync must leave it alone.
	leftover := newsItem("a1", "Apple earnings beat", "AAPL")
	require.NoError(t, buffer.Insert(ctx, &leftover))
	require.NoError(t, index.Insert(ctx, leftover.Enrich(&domain.Enrichment{Summary: "s"}, time.Now())))

	svc := NewSyncService(buffer, index, nil, config.SyncConfig{GraceWindow: time.Minute, PageSize: 100})
	require.NoError(t, svc.RunIncremental(ctx))

	_, err := buffer.Get(ctx, "a1")
	assert.NoError(t, err)

	report := svc.LastReport()
	require.NotNil(t, report)
	assert.Zero(t, report.Removed)
	assert.Equal(t, 1, report.SkippedInGrace)
}

func TestSyncFullReconcilesAndReports(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	buffer := repository.NewBufferRepository(db)
	index := repository.NewIndexRepository(db)

	for i := 0; i < 5; i++ {
		item := newsItem(fmt.Sprintf("a%d", i), fmt.Sprintf("Article %d", i), "AAPL")
		require.NoError(t, buffer.Insert(ctx, &item))
		if i < 3 {
			require.NoError(t, index.Insert(ctx, item.Enrich(&domain.Enrichment{Summary: "s"}, time.Now())))
		}
	}

	c := cache.New(nil, 16, cache.TTLs{Hot: time.Minute, Warm: time.Minute, Cold: time.Minute}, testLogger())
	// A cached search result from before the reconciliation is now stale.
	_, err := c.Get(ctx, cache.Key("symbol", "AAPL", "20"), cache.ClassHot, func(context.Context) ([]byte, error) {
		return []byte("[]"), nil
	})
	require.NoError(t, err)

	svc := NewSyncService(buffer, index, c, config.SyncConfig{GraceWindow: 0, PageSize: 2})
	require.NoError(t, svc.RunFull(ctx))

	report := svc.LastReport()
	require.NotNil(t, report)
	assert.Equal(t, "full", report.Mode)
	assert.Equal(t, 5, report.Scanned)
	assert.Equal(t, 3, report.Removed)
	assert.Equal(t, int64(1), report.StaleCacheEntries)
	assert.Equal(t, int64(2), report.BufferPending)
	assert.Equal(t, int64(3), report.IndexCount)
}

func TestPipelineEndToEnd(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	buffer := repository.NewBufferRepository(db)
	index := repository.NewIndexRepository(db)

	fetcher := &fakeFetcher{items: map[string][]domain.NewsItem{
		"AAPL": {newsItem("x1", "Q3 earnings beat expectations", "AAPL")},
	}}
	ingest := newIngest(db, fetcher, config.IngestConfig{Symbols: []string{"AAPL"}, LookbackDays: 3})
	require.NoError(t, ingest.Run(ctx))

	enricher := &fakeEnricher{}
	enrich := NewEnrichService(enricher, buffer, index, config.EnrichConfig{BatchSize: 10, MaxRetries: 3})
	require.NoError(t, enrich.Run(ctx))
	assert.Equal(t, 1, enricher.calls)

	// Buffer drained, index populated
	count, err := buffer.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	article, err := index.Get(ctx, "x1")
	require.NoError(t, err)
	assert.NotEmpty(t, article.AISummary)

	// Re-ingesting the same article is a no-op
	require.NoError(t, ingest.Run(ctx))
	count, err = buffer.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Nothing left for sync to clean up
	syncSvc := NewSyncService(buffer, index, nil, config.SyncConfig{GraceWindow: 0, PageSize: 100})
	require.NoError(t, syncSvc.RunIncremental(ctx))
	assert.Zero(t, syncSvc.LastReport().Removed)
}
