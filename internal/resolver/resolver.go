package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/SDG223157/trendwise0706-sub001/internal/domain"
)

// BufferLookup is the read surface the resolver needs from the buffer store.
type BufferLookup interface {
	GetByExternalIDs(ctx context.Context, ids []string) ([]domain.NewsItem, error)
	GetByURLs(ctx context.Context, urls []string) ([]domain.NewsItem, error)
	ListRecent(ctx context.Context, since time.Time, limit int) ([]domain.NewsItem, error)
}

// IndexLookup is the read surface the resolver needs from the permanent index.
type IndexLookup interface {
	GetByExternalIDs(ctx context.Context, ids []string) ([]domain.EnrichedArticle, error)
	GetByURLs(ctx context.Context, urls []string) ([]domain.EnrichedArticle, error)
	ListRecent(ctx context.Context, since time.Time, limit int) ([]domain.EnrichedArticle, error)
}

// Config holds the resolver's tunables. The similarity threshold and lookback
// window are configuration, not constants; see configs defaults.
type Config struct {
	SimilarityThreshold float64
	Lookback            time.Duration
	RecentLimit         int
}

// Resolver decides whether a candidate item already exists in the buffer
// and/or the permanent index, and by which key. It is purely advisory and
// performs no writes; callers decide what to do with the result.
//
// Checks run in a fixed order with early exit: external id in the permanent
// index, external id in the buffer, canonical URL in either store, then
// title-token similarity against recent items only.
type Resolver struct {
	buffer BufferLookup
	index  IndexLookup
	cfg    Config
}

// New creates a Resolver over the two stores.
// Parameters:
//   - buffer: buffer store lookup surface.
//   - index: permanent index lookup surface.
//   - cfg: similarity threshold and lookback window.
// Returns:
//   - *Resolver: initialized resolver.
func New(buffer BufferLookup, index IndexLookup, cfg Config) *Resolver {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.6
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 7 * 24 * time.Hour
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 1000
	}
	return &Resolver{buffer: buffer, index: index, cfg: cfg}
}

// Resolve checks one candidate against both stores.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - candidate: item to check; ExternalID must be non-empty.
// Returns:
//   - domain.DuplicateCheckResult: advisory outcome, first match wins.
//   - error: non-nil if a store lookup fails.
func (r *Resolver) Resolve(ctx context.Context, candidate *domain.NewsItem) (domain.DuplicateCheckResult, error) {
	results, err := r.ResolveBatch(ctx, []domain.NewsItem{*candidate})
	if err != nil {
		return domain.DuplicateCheckResult{}, err
	}
	return results[candidate.ExternalID], nil
}

// ResolveBatch checks a batch of candidates with one set query per store per
// key. The batch is first deduplicated by external id, keeping the first
// occurrence; the returned map holds one result per surviving external id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - candidates: items to check.
// Returns:
//   - map[string]domain.DuplicateCheckResult: result per unique external id.
//   - error: non-nil if a store lookup fails.
func (r *Resolver) ResolveBatch(ctx context.Context, candidates []domain.NewsItem) (map[string]domain.DuplicateCheckResult, error) {
	survivors := dedupeByExternalID(candidates)
	results := make(map[string]domain.DuplicateCheckResult, len(survivors))
	if len(survivors) == 0 {
		return results, nil
	}

	ids := make([]string, 0, len(survivors))
	urls := make([]string, 0, len(survivors))
	for _, c := range survivors {
		ids = append(ids, c.ExternalID)
		if c.URL != "" {
			urls = append(urls, c.URL)
		}
	}

	indexByID, err := r.index.GetByExternalIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve: index id lookup: %w", err)
	}
	bufferByID, err := r.buffer.GetByExternalIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve: buffer id lookup: %w", err)
	}
	indexByURL, err := r.index.GetByURLs(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("resolve: index url lookup: %w", err)
	}
	bufferByURL, err := r.buffer.GetByURLs(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("resolve: buffer url lookup: %w", err)
	}

	indexIDs := make(map[string]string, len(indexByID))
	for _, a := range indexByID {
		indexIDs[a.ExternalID] = a.ExternalID
	}
	bufferIDs := make(map[string]string, len(bufferByID))
	for _, it := range bufferByID {
		bufferIDs[it.ExternalID] = it.ExternalID
	}
	indexURLs := make(map[string]string, len(indexByURL))
	for _, a := range indexByURL {
		indexURLs[a.URL] = a.ExternalID
	}
	bufferURLs := make(map[string]string, len(bufferByURL))
	for _, it := range bufferByURL {
		bufferURLs[it.URL] = it.ExternalID
	}

	// Recent titles are fetched lazily: only when at least one survivor
	// makes it past the exact-key checks.
	var recent *recentTitles

	for _, c := range survivors {
		res, needSim := resolveExact(&c, indexIDs, bufferIDs, indexURLs, bufferURLs)
		if needSim {
			if recent == nil {
				recent, err = r.loadRecent(ctx)
				if err != nil {
					return nil, err
				}
			}
			res = recent.match(&c, r.cfg.SimilarityThreshold)
		}
		results[c.ExternalID] = res
	}

	return results, nil
}

// resolveExact runs the external-id and URL checks. needSim is true when the
// candidate passed every exact check and still needs the similarity pass.
func resolveExact(c *domain.NewsItem, indexIDs, bufferIDs, indexURLs, bufferURLs map[string]string) (res domain.DuplicateCheckResult, needSim bool) {
	if id, ok := indexIDs[c.ExternalID]; ok {
		return domain.DuplicateCheckResult{
			Outcome:   domain.OutcomeDuplicateInPermanent,
			Basis:     domain.BasisExternalID,
			MatchedID: id,
			MatchedIn: domain.LocationPermanent,
		}, false
	}
	if id, ok := bufferIDs[c.ExternalID]; ok {
		return domain.DuplicateCheckResult{
			Outcome:   domain.OutcomeDuplicateInBuffer,
			Basis:     domain.BasisExternalID,
			MatchedID: id,
			MatchedIn: domain.LocationBuffer,
		}, false
	}

	if c.URL != "" {
		inIndex, idxID := lookupURL(indexURLs, c.URL)
		inBuffer, bufID := lookupURL(bufferURLs, c.URL)
		switch {
		case inIndex && inBuffer:
			return domain.DuplicateCheckResult{
				Outcome:   domain.OutcomeDuplicateInBoth,
				Basis:     domain.BasisURL,
				MatchedID: idxID,
				MatchedIn: domain.LocationPermanent,
			}, false
		case inIndex:
			return domain.DuplicateCheckResult{
				Outcome:   domain.OutcomeDuplicateInPermanent,
				Basis:     domain.BasisURL,
				MatchedID: idxID,
				MatchedIn: domain.LocationPermanent,
			}, false
		case inBuffer:
			return domain.DuplicateCheckResult{
				Outcome:   domain.OutcomeDuplicateInBuffer,
				Basis:     domain.BasisURL,
				MatchedID: bufID,
				MatchedIn: domain.LocationBuffer,
			}, false
		}
	}

	return domain.DuplicateCheckResult{}, true
}

func lookupURL(m map[string]string, url string) (bool, string) {
	id, ok := m[url]
	return ok, id
}

// recentTitles holds tokenized titles of recent items from both stores for
// the content-similarity check.
type recentTitles struct {
	index  []titleEntry
	buffer []titleEntry
}

type titleEntry struct {
	externalID string
	tokens     map[string]struct{}
}

func (r *Resolver) loadRecent(ctx context.Context) (*recentTitles, error) {
	since := time.Now().Add(-r.cfg.Lookback)

	articles, err := r.index.ListRecent(ctx, since, r.cfg.RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("resolve: index recent lookup: %w", err)
	}
	items, err := r.buffer.ListRecent(ctx, since, r.cfg.RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("resolve: buffer recent lookup: %w", err)
	}

	rt := &recentTitles{}
	for _, a := range articles {
		rt.index = append(rt.index, titleEntry{externalID: a.ExternalID, tokens: tokenize(a.Title)})
	}
	for _, it := range items {
		rt.buffer = append(rt.buffer, titleEntry{externalID: it.ExternalID, tokens: tokenize(it.Title)})
	}
	return rt, nil
}

// match scans permanent entries before buffer entries so a permanent match
// keeps priority, mirroring the exact-key ordering. First hit wins.
func (rt *recentTitles) match(c *domain.NewsItem, threshold float64) domain.DuplicateCheckResult {
	tokens := tokenize(c.Title)

	for _, e := range rt.index {
		if e.externalID == c.ExternalID {
			continue
		}
		if sim := similarity(tokens, e.tokens); sim >= threshold {
			return domain.DuplicateCheckResult{
				Outcome:    domain.OutcomeDuplicateInPermanent,
				Basis:      domain.BasisContentSimilarity,
				MatchedID:  e.externalID,
				MatchedIn:  domain.LocationPermanent,
				Similarity: sim,
			}
		}
	}
	for _, e := range rt.buffer {
		if e.externalID == c.ExternalID {
			continue
		}
		if sim := similarity(tokens, e.tokens); sim >= threshold {
			return domain.DuplicateCheckResult{
				Outcome:    domain.OutcomeDuplicateInBuffer,
				Basis:      domain.BasisContentSimilarity,
				MatchedID:  e.externalID,
				MatchedIn:  domain.LocationBuffer,
				Similarity: sim,
			}
		}
	}

	return domain.DuplicateCheckResult{Outcome: domain.OutcomeUnique}
}

// dedupeByExternalID keeps the first occurrence of each external id,
// preserving input order.
func dedupeByExternalID(candidates []domain.NewsItem) []domain.NewsItem {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]domain.NewsItem, 0, len(candidates))
	for _, c := range candidates {
		if c.ExternalID == "" {
			continue
		}
		if _, ok := seen[c.ExternalID]; ok {
			continue
		}
		seen[c.ExternalID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// tokenize lower-cases a title and splits it into a set of alphanumeric
// tokens.
func tokenize(title string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		tokens[tok] = struct{}{}
	}
	return tokens
}

// similarity is the token overlap normalized by the larger set, in [0, 1].
func similarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	overlap := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(large))
}
