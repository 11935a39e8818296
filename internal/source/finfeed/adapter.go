package finfeed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/SDG223157/trendwise0706-sub001/internal/domain"
	"github.com/go-resty/resty/v2"
)

// Adapter fetches articles from a FinFeed-compatible news API over HTTP.
type Adapter struct {
	client *resty.Client
}

// Config holds connection settings for the news API.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewAdapter creates a FinFeed source adapter.
// Parameters:
//   - cfg: API base URL, key, and request timeout.
// Returns:
//   - *Adapter: initialized adapter.
func NewAdapter(cfg *Config) *Adapter {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Timeout)
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	return &Adapter{client: client}
}

// GetSourceID returns the stable identifier for this provider.
// Parameters: none.
// Returns:
//   - string: source identifier.
func (a *Adapter) GetSourceID() string {
	return "finfeed"
}

type newsResponse struct {
	Articles []struct {
		ID          string    `json:"id"`
		URL         string    `json:"url"`
		Title       string    `json:"title"`
		Body        string    `json:"body"`
		Source      string    `json:"source"`
		Symbols     []string  `json:"symbols"`
		PublishedAt time.Time `json:"published_at"`
	} `json:"articles"`
	Error string `json:"error,omitempty"`
}

// FetchRecent fetches articles for one symbol published since the cutoff.
// Rate-limit, server-side, and transport failures are reported as
// domain.ErrTransientSource.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - symbol: ticker symbol to fetch for.
//   - since: publication cutoff.
// Returns:
//   - []domain.NewsItem: fetched items with the queried symbol guaranteed present.
//   - error: non-nil if fetching fails.
func (a *Adapter) FetchRecent(ctx context.Context, symbol string, since time.Time) ([]domain.NewsItem, error) {
	var resp newsResponse
	httpResp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetQueryParam("since", since.UTC().Format(time.RFC3339)).
		SetResult(&resp).
		Get("/v1/news")

	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %s", domain.ErrTransientSource, symbol, err)
	}

	switch {
	case httpResp.StatusCode() == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: rate limited fetching %s", domain.ErrTransientSource, symbol)
	case httpResp.StatusCode() >= 500:
		return nil, fmt.Errorf("%w: upstream %d fetching %s", domain.ErrTransientSource, httpResp.StatusCode(), symbol)
	case httpResp.StatusCode() != http.StatusOK:
		return nil, fmt.Errorf("news API returned HTTP %d for %s: %s", httpResp.StatusCode(), symbol, resp.Error)
	}

	items := make([]domain.NewsItem, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		if a.ID == "" {
			continue
		}
		symbols := a.Symbols
		if !containsSymbol(symbols, symbol) {
			symbols = append(symbols, symbol)
		}
		items = append(items, domain.NewsItem{
			ExternalID:  a.ID,
			URL:         a.URL,
			Title:       a.Title,
			Content:     a.Body,
			Source:      a.Source,
			Symbols:     domain.StringArray(symbols),
			PublishedAt: a.PublishedAt,
		})
	}
	return items, nil
}

func containsSymbol(symbols []string, symbol string) bool {
	for _, s := range symbols {
		if s == symbol {
			return true
		}
	}
	return false
}
