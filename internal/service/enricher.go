package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/SDG223157/trendwise0706-sub001/internal/domain"
	"github.com/go-resty/resty/v2"
)

// Enricher produces AI enrichment for a raw article.
type Enricher interface {
	// Enrich generates summary, insights, sentiment, and keywords for an item.
	Enrich(ctx context.Context, item *domain.NewsItem) (*domain.Enrichment, error)
}

// AIEnricher calls an OpenAI-compatible chat completion API to enrich articles.
type AIEnricher struct {
	client   *resty.Client
	model    string
	endpoint string
}

// AIConfig holds configuration for the enrichment API.
type AIConfig struct {
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

const enrichSystemPrompt = `You are a financial news analyst. Given an article, respond with a JSON object containing:
- "summary": a concise 2-3 sentence summary
- "insights": key market implications for investors
- "sentiment": an integer from -100 (very bearish) to 100 (very bullish)
- "keywords": an array of 3-8 lowercase topic keywords
Respond with JSON only, no markdown fences.`

// NewAIEnricher creates an enrichment client.
// Parameters:
//   - cfg: model, API key, base URL, and request timeout.
//
// Returns:
//   - *AIEnricher: initialized enrichment client.
func NewAIEnricher(cfg *AIConfig) *AIEnricher {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	client.SetTimeout(timeout)

	// Default to OpenAI compatible endpoint if not specified
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &AIEnricher{
		client:   client,
		model:    cfg.Model,
		endpoint: baseURL + "/chat/completions",
	}
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type enrichmentPayload struct {
	Summary   string   `json:"summary"`
	Insights  string   `json:"insights"`
	Sentiment int      `json:"sentiment"`
	Keywords  []string `json:"keywords"`
}

// Enrich generates AI enrichment for one article.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - item: article to enrich.
//
// Returns:
//   - *domain.Enrichment: summary, insights, clamped sentiment, deduplicated keywords.
//   - error: wraps domain.ErrEnrichmentFailed when the model output is unusable.
func (e *AIEnricher) Enrich(ctx context.Context, item *domain.NewsItem) (*domain.Enrichment, error) {
	userPrompt := fmt.Sprintf("Title: %s\nSource: %s\nSymbols: %s\n\n%s",
		item.Title, item.Source, strings.Join(item.Symbols, ", "), item.Content)

	req := chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: enrichSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens: 600,
	}

	var resp chatResponse
	httpResp, err := e.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(e.endpoint)

	if err != nil {
		return nil, fmt.Errorf("failed to call enrichment API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		}
		return nil, fmt.Errorf("enrichment API returned error: %s", errorMsg)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("enrichment API error: %s", resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", domain.ErrEnrichmentFailed)
	}

	return parseEnrichment(resp.Choices[0].Message.Content)
}

// parseEnrichment decodes and sanitizes the model output.
func parseEnrichment(content string) (*domain.Enrichment, error) {
	cleaned := stripCodeFence(content)

	var payload enrichmentPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON output: %s", domain.ErrEnrichmentFailed, err)
	}

	payload.Summary = strings.TrimSpace(payload.Summary)
	if payload.Summary == "" {
		return nil, fmt.Errorf("%w: empty summary", domain.ErrEnrichmentFailed)
	}

	// Clamp sentiment to the documented range
	if payload.Sentiment > 100 {
		payload.Sentiment = 100
	} else if payload.Sentiment < -100 {
		payload.Sentiment = -100
	}

	seen := make(map[string]bool, len(payload.Keywords))
	keywords := make([]string, 0, len(payload.Keywords))
	for _, kw := range payload.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		keywords = append(keywords, kw)
	}

	return &domain.Enrichment{
		Summary:   payload.Summary,
		Insights:  strings.TrimSpace(payload.Insights),
		Sentiment: payload.Sentiment,
		Keywords:  domain.StringArray(keywords),
	}, nil
}

// stripCodeFence removes a surrounding markdown code fence if the model
// ignored the JSON-only instruction.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
