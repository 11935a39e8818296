package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/SDG223157/trendwise0706-sub001/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBuffer and fakeIndex implement the lookup surfaces over in-memory
// slices so the resolver's ordering can be tested without a database.
type fakeBuffer struct {
	items []domain.NewsItem
}

func (f *fakeBuffer) GetByExternalIDs(_ context.Context, ids []string) ([]domain.NewsItem, error) {
	var out []domain.NewsItem
	for _, it := range f.items {
		for _, id := range ids {
			if it.ExternalID == id {
				out = append(out, it)
			}
		}
	}
	return out, nil
}

func (f *fakeBuffer) GetByURLs(_ context.Context, urls []string) ([]domain.NewsItem, error) {
	var out []domain.NewsItem
	for _, it := range f.items {
		for _, u := range urls {
			if it.URL == u {
				out = append(out, it)
			}
		}
	}
	return out, nil
}

func (f *fakeBuffer) ListRecent(_ context.Context, since time.Time, limit int) ([]domain.NewsItem, error) {
	var out []domain.NewsItem
	for _, it := range f.items {
		if it.PublishedAt.After(since) && len(out) < limit {
			out = append(out, it)
		}
	}
	return out, nil
}

type fakeIndex struct {
	articles []domain.EnrichedArticle
}

func (f *fakeIndex) GetByExternalIDs(_ context.Context, ids []string) ([]domain.EnrichedArticle, error) {
	var out []domain.EnrichedArticle
	for _, a := range f.articles {
		for _, id := range ids {
			if a.ExternalID == id {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (f *fakeIndex) GetByURLs(_ context.Context, urls []string) ([]domain.EnrichedArticle, error) {
	var out []domain.EnrichedArticle
	for _, a := range f.articles {
		for _, u := range urls {
			if a.URL == u {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (f *fakeIndex) ListRecent(_ context.Context, since time.Time, limit int) ([]domain.EnrichedArticle, error) {
	var out []domain.EnrichedArticle
	for _, a := range f.articles {
		if a.PublishedAt.After(since) && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func newTestResolver(buf *fakeBuffer, idx *fakeIndex) *Resolver {
	return New(buf, idx, Config{SimilarityThreshold: 0.6, Lookback: 7 * 24 * time.Hour, RecentLimit: 100})
}

func TestResolveUnique(t *testing.T) {
	r := newTestResolver(&fakeBuffer{}, &fakeIndex{})

	res, err := r.Resolve(context.Background(), &domain.NewsItem{
		ExternalID: "X1",
		URL:        "https://example.com/x1",
		Title:      "Q3 earnings beat expectations",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnique, res.Outcome)
	assert.False(t, res.IsDuplicate())
}

func TestResolveExternalIDInPermanentBeatsURLInBuffer(t *testing.T) {
	// The candidate's external id matches the permanent index while its URL
	// matches a different buffer row; the exact permanent match must win.
	idx := &fakeIndex{articles: []domain.EnrichedArticle{
		{ExternalID: "X1", URL: "https://example.com/other"},
	}}
	buf := &fakeBuffer{items: []domain.NewsItem{
		{ExternalID: "B9", URL: "https://example.com/x1"},
	}}
	r := newTestResolver(buf, idx)

	res, err := r.Resolve(context.Background(), &domain.NewsItem{
		ExternalID: "X1",
		URL:        "https://example.com/x1",
		Title:      "irrelevant",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicateInPermanent, res.Outcome)
	assert.Equal(t, domain.BasisExternalID, res.Basis)
	assert.Equal(t, "X1", res.MatchedID)
	assert.Equal(t, domain.LocationPermanent, res.MatchedIn)
}

func TestResolveURLMatch(t *testing.T) {
	buf := &fakeBuffer{items: []domain.NewsItem{
		{ExternalID: "B1", URL: "https://example.com/dup"},
	}}
	r := newTestResolver(buf, &fakeIndex{})

	res, err := r.Resolve(context.Background(), &domain.NewsItem{
		ExternalID: "C1",
		URL:        "https://example.com/dup",
		Title:      "some title",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicateInBuffer, res.Outcome)
	assert.Equal(t, domain.BasisURL, res.Basis)
	assert.Equal(t, "B1", res.MatchedID)
}

func TestResolveURLInBothStores(t *testing.T) {
	idx := &fakeIndex{articles: []domain.EnrichedArticle{
		{ExternalID: "P1", URL: "https://example.com/dup"},
	}}
	buf := &fakeBuffer{items: []domain.NewsItem{
		{ExternalID: "B1", URL: "https://example.com/dup"},
	}}
	r := newTestResolver(buf, idx)

	res, err := r.Resolve(context.Background(), &domain.NewsItem{
		ExternalID: "C1",
		URL:        "https://example.com/dup",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicateInBoth, res.Outcome)
	assert.Equal(t, domain.BasisURL, res.Basis)
	assert.Equal(t, domain.LocationPermanent, res.MatchedIn)
}

func TestResolveContentSimilarity(t *testing.T) {
	now := time.Now()
	buf := &fakeBuffer{items: []domain.NewsItem{
		{ExternalID: "B1", URL: "https://example.com/a", Title: "Apple beats Q3 earnings expectations", PublishedAt: now.Add(-time.Hour)},
	}}
	r := newTestResolver(buf, &fakeIndex{})

	res, err := r.Resolve(context.Background(), &domain.NewsItem{
		ExternalID: "C1",
		URL:        "https://example.com/b",
		Title:      "Apple beats Q3 earnings expectations again",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicateInBuffer, res.Outcome)
	assert.Equal(t, domain.BasisContentSimilarity, res.Basis)
	assert.GreaterOrEqual(t, res.Similarity, 0.6)
}

func TestResolveSimilarityRespectsLookback(t *testing.T) {
	// An almost identical title outside the lookback window must not match.
	old := time.Now().Add(-30 * 24 * time.Hour)
	buf := &fakeBuffer{items: []domain.NewsItem{
		{ExternalID: "B1", URL: "https://example.com/a", Title: "Apple beats Q3 earnings expectations", PublishedAt: old},
	}}
	r := newTestResolver(buf, &fakeIndex{})

	res, err := r.Resolve(context.Background(), &domain.NewsItem{
		ExternalID: "C1",
		URL:        "https://example.com/b",
		Title:      "Apple beats Q3 earnings expectations",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnique, res.Outcome)
}

func TestResolveBatchDedupsWithinBatch(t *testing.T) {
	buf := &fakeBuffer{items: []domain.NewsItem{
		{ExternalID: "X1", URL: "https://example.com/x1"},
	}}
	r := newTestResolver(buf, &fakeIndex{})

	results, err := r.ResolveBatch(context.Background(), []domain.NewsItem{
		{ExternalID: "X1", URL: "https://example.com/x1", Title: "first occurrence"},
		{ExternalID: "X1", URL: "https://example.com/x1-copy", Title: "second occurrence"},
		{ExternalID: "X2", URL: "https://example.com/x2", Title: "fresh item"},
	})

	require.NoError(t, err)
	// One result per unique external id; the in-batch duplicate collapses
	// into the first occurrence.
	require.Len(t, results, 2)
	assert.Equal(t, domain.OutcomeDuplicateInBuffer, results["X1"].Outcome)
	assert.Equal(t, domain.BasisExternalID, results["X1"].Basis)
	assert.Equal(t, domain.OutcomeUnique, results["X2"].Outcome)
}

func TestResolveBatchDuplicateInBoth(t *testing.T) {
	idx := &fakeIndex{articles: []domain.EnrichedArticle{
		{ExternalID: "X1", URL: "https://example.com/x1"},
	}}
	buf := &fakeBuffer{items: []domain.NewsItem{
		{ExternalID: "X1", URL: "https://example.com/x1"},
	}}
	r := newTestResolver(buf, idx)

	results, err := r.ResolveBatch(context.Background(), []domain.NewsItem{
		{ExternalID: "X1", URL: "https://example.com/x1"},
		{ExternalID: "X1", URL: "https://example.com/x1"},
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	// External id in the permanent index takes priority, so the basis is the
	// exact key even though the row also sits in the buffer.
	assert.Equal(t, domain.OutcomeDuplicateInPermanent, results["X1"].Outcome)
	assert.Equal(t, domain.BasisExternalID, results["X1"].Basis)
}

func TestSimilarityNormalization(t *testing.T) {
	a := tokenize("apple q3 earnings beat")
	b := tokenize("apple q3 earnings beat expectations")
	assert.InDelta(t, 0.8, similarity(a, b), 1e-9)

	assert.Zero(t, similarity(tokenize(""), b))
	assert.Equal(t, 1.0, similarity(a, a))
}
