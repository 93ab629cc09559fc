package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/meta-search/internal/core/domain"
	"github.com/kirillkom/meta-search/internal/infrastructure/resilience"
)

// HTTPJSONProvider talks to an upstream search API over the shared JSON
// contract: POST {query, max_results, content_type} and a results array
// back. Provider-specific shapes are adapted server-side; every upstream
// this service federates exposes this envelope.
type HTTPJSONProvider struct {
	id           string
	endpoint     string
	apiKey       string
	maxResults   int
	contentTypes []domain.ContentType
	costPerQuery decimal.Decimal
	httpClient   *http.Client
	executor     *resilience.Executor
}

type HTTPJSONOptions struct {
	ID           string
	Endpoint     string
	APIKey       string
	MaxResults   int
	ContentTypes []domain.ContentType
	CostPerQuery decimal.Decimal
	Timeout      time.Duration
	HTTPClient   *http.Client
	Executor     *resilience.Executor
}

func NewHTTPJSON(opts HTTPJSONOptions) *HTTPJSONProvider {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 20
	}
	if opts.HTTPClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		opts.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &HTTPJSONProvider{
		id:           opts.ID,
		endpoint:     strings.TrimRight(opts.Endpoint, "/"),
		apiKey:       opts.APIKey,
		maxResults:   opts.MaxResults,
		contentTypes: opts.ContentTypes,
		costPerQuery: opts.CostPerQuery,
		httpClient:   opts.HTTPClient,
		executor:     opts.Executor,
	}
}

func (p *HTTPJSONProvider) ID() string {
	return p.id
}

func (p *HTTPJSONProvider) Capabilities() domain.ProviderCapabilities {
	return domain.ProviderCapabilities{
		ContentTypes: p.contentTypes,
		MaxResults:   p.maxResults,
	}
}

// EstimateCost reports the flat per-call price. Result count does not
// change what upstreams bill.
func (p *HTTPJSONProvider) EstimateCost(domain.SearchQuery) decimal.Decimal {
	return p.costPerQuery
}

type searchRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	ContentType string `json:"content_type,omitempty"`
}

type searchResponse struct {
	Results []wireResult `json:"results"`
}

type wireResult struct {
	Title       string            `json:"title"`
	URL         string            `json:"url"`
	Snippet     string            `json:"snippet"`
	Content     string            `json:"content"`
	Score       float64           `json:"score"`
	PublishedAt string            `json:"published_at"`
	Metadata    map[string]string `json:"metadata"`
}

func (p *HTTPJSONProvider) Search(ctx context.Context, query domain.ProviderQuery) ([]domain.SearchResult, error) {
	limit := query.MaxResults
	if limit <= 0 || limit > p.maxResults {
		limit = p.maxResults
	}
	reqBody := searchRequest{
		Query:       query.Text,
		MaxResults:  limit,
		ContentType: string(query.ContentType),
	}

	var wire searchResponse
	call := func(callCtx context.Context) error {
		return p.postJSON(callCtx, reqBody, &wire)
	}

	var err error
	if p.executor != nil {
		err = p.executor.Execute(ctx, "provider."+p.id+".search", call, retryableSearchError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapProviderError(err)
	}

	results := make([]domain.SearchResult, 0, len(wire.Results))
	for _, raw := range wire.Results {
		if raw.URL == "" {
			continue
		}
		results = append(results, p.toDomain(raw))
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

func (p *HTTPJSONProvider) toDomain(raw wireResult) domain.SearchResult {
	result := domain.SearchResult{
		Title:    StripHTML(raw.Title),
		URL:      raw.URL,
		Snippet:  StripHTML(raw.Snippet),
		Content:  StripHTML(raw.Content),
		Score:    clampScore(raw.Score),
		Provider: p.id,
		Metadata: raw.Metadata,
	}
	if raw.PublishedAt != "" {
		if ts, err := time.Parse(time.RFC3339, raw.PublishedAt); err == nil {
			result.PublishedAt = &ts
		}
	}
	return result
}

func (p *HTTPJSONProvider) postJSON(ctx context.Context, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider %s request: %w", p.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Provider:   p.id,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	return nil
}

// Upstreams report scores normalized to [0,1].
func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
