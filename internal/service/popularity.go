package service

import (
	"sort"
	"sync"
	"time"
)

// PopularityTracker counts query terms over a sliding window so cache
// warming can target what users actually search for.
type PopularityTracker struct {
	window time.Duration

	mu       sync.Mutex
	symbols  map[string][]time.Time
	keywords map[string][]time.Time
}

// NewPopularityTracker creates a tracker with the given sliding window.
func NewPopularityTracker(window time.Duration) *PopularityTracker {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &PopularityTracker{
		window:   window,
		symbols:  make(map[string][]time.Time),
		keywords: make(map[string][]time.Time),
	}
}

// RecordSymbol notes one symbol search.
func (t *PopularityTracker) RecordSymbol(symbol string) {
	t.record(t.symbols, symbol)
}

// RecordKeyword notes one keyword search.
func (t *PopularityTracker) RecordKeyword(keyword string) {
	t.record(t.keywords, keyword)
}

// TopSymbols returns the n most searched symbols inside the window,
// most popular first.
func (t *PopularityTracker) TopSymbols(n int) []string {
	return t.top(t.symbols, n)
}

// TopKeywords returns the n most searched keywords inside the window,
// most popular first.
func (t *PopularityTracker) TopKeywords(n int) []string {
	return t.top(t.keywords, n)
}

func (t *PopularityTracker) record(m map[string][]time.Time, term string) {
	if term == "" {
		return
	}
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	m[term] = append(prune(m[term], now.Add(-t.window)), now)
}

func (t *PopularityTracker) top(m map[string][]time.Time, n int) []string {
	if n <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-t.window)

	t.mu.Lock()
	type entry struct {
		term  string
		count int
	}
	entries := make([]entry, 0, len(m))
	for term, hits := range m {
		hits = prune(hits, cutoff)
		if len(hits) == 0 {
			delete(m, term)
			continue
		}
		m[term] = hits
		entries = append(entries, entry{term: term, count: len(hits)})
	}
	t.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].term < entries[j].term
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	terms := make([]string, len(entries))
	for i, e := range entries {
		terms[i] = e.term
	}
	return terms
}

// prune drops hits older than the cutoff; hits are appended in time order
// so the suffix after the first survivor is kept as-is.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && hits[i].Before(cutoff) {
		i++
	}
	return hits[i:]
}
