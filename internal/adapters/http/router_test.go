package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/meta-search/internal/config"
	"github.com/kirillkom/meta-search/internal/core/domain"
)

type fakeSearchService struct {
	response *domain.SearchResponse
	err      error
	queries  []domain.SearchQuery
}

func (f *fakeSearchService) Search(_ context.Context, query domain.SearchQuery) (*domain.SearchResponse, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

type fakeAdminService struct {
	statuses      []domain.ProviderStatus
	invalidateErr error
	patterns      []string
}

func (f *fakeAdminService) ProviderStatuses(context.Context) []domain.ProviderStatus {
	return f.statuses
}

func (f *fakeAdminService) InvalidateCache(_ context.Context, pattern string) error {
	f.patterns = append(f.patterns, pattern)
	return f.invalidateErr
}

func newTestHandler(cfg config.Config) http.Handler {
	search := &fakeSearchService{response: &domain.SearchResponse{Query: "ok"}}
	return NewRouter(cfg, search, &fakeAdminService{}, Options{}).Handler()
}

func TestSearchEndpointReturnsResponse(t *testing.T) {
	search := &fakeSearchService{response: &domain.SearchResponse{
		Query: "golang generics tutorial",
		Results: []domain.MergedResult{{
			SearchResult: domain.SearchResult{
				Title:    "An Introduction To Generics",
				URL:      "https://go.dev/blog/intro-generics",
				Score:    0.91,
				Provider: "brave",
			},
			Rank:       1,
			Consensus:  2,
			FinalScore: 0.88,
			Sources:    []string{"brave", "duck"},
		}},
		TotalResults:  1,
		ProvidersUsed: []string{"brave", "duck"},
		Strategy:      domain.StrategyParallel,
		EstimatedCost: decimal.NewFromFloat(0.008),
	}}
	handler := NewRouter(config.Config{}, search, &fakeAdminService{}, Options{}).Handler()

	payload, _ := json.Marshal(map[string]any{
		"query":       "golang generics tutorial",
		"max_results": 5,
		"strategy":    "parallel",
		"timeout_ms":  1500,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var resp domain.SearchResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalResults != 1 || len(resp.Results) != 1 {
		t.Fatalf("unexpected response body: %+v", resp)
	}
	if resp.Results[0].URL != "https://go.dev/blog/intro-generics" {
		t.Fatalf("unexpected result URL %q", resp.Results[0].URL)
	}
	if len(resp.Results[0].Sources) != 2 {
		t.Fatalf("expected two sources, got %v", resp.Results[0].Sources)
	}

	if len(search.queries) != 1 {
		t.Fatalf("expected one search call, got %d", len(search.queries))
	}
	got := search.queries[0]
	if got.Text != "golang generics tutorial" || got.MaxResults != 5 {
		t.Fatalf("unexpected query passed to service: %+v", got)
	}
	if got.Strategy != domain.StrategyParallel {
		t.Fatalf("expected parallel strategy, got %q", got.Strategy)
	}
	if got.Timeout != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s timeout, got %s", got.Timeout)
	}
}

func TestSearchEndpointRejectsInvalidJSON(t *testing.T) {
	handler := newTestHandler(config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", res.Code)
	}
}

func TestSearchEndpointMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid query", domain.WrapError(domain.ErrInvalidQuery, "validate query", errors.New("empty text")), http.StatusBadRequest},
		{"budget exhausted", domain.WrapError(domain.ErrBudgetExhausted, "route", errors.New("daily cap")), http.StatusPaymentRequired},
		{"throttled", domain.WrapError(domain.ErrProvidersThrottled, "route", errors.New("all rate limited")), http.StatusTooManyRequests},
		{"no providers", domain.WrapError(domain.ErrNoProviders, "route", errors.New("all failed")), http.StatusServiceUnavailable},
		{"temporary", domain.WrapError(domain.ErrTemporary, "cache", errors.New("redis down")), http.StatusServiceUnavailable},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			search := &fakeSearchService{err: tc.err}
			handler := NewRouter(config.Config{}, search, &fakeAdminService{}, Options{}).Handler()

			payload, _ := json.Marshal(map[string]any{"query": "anything"})
			req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader(payload))
			req.Header.Set("Content-Type", "application/json")
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)

			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body["error"] == "" {
				t.Fatalf("expected error message in body")
			}
		})
	}
}

func TestSearchEndpointRejectsWrongMethod(t *testing.T) {
	handler := newTestHandler(config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/search", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET search, got %d", res.Code)
	}
}

func TestProvidersEndpointListsStatuses(t *testing.T) {
	admin := &fakeAdminService{statuses: []domain.ProviderStatus{
		{ProviderID: "brave", Breaker: domain.BreakerClosed, SpentDay: decimal.NewFromFloat(1.25)},
		{ProviderID: "serpapi", Breaker: domain.BreakerOpen, Failures: 5},
	}}
	handler := NewRouter(config.Config{}, &fakeSearchService{}, admin, Options{}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/providers", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body struct {
		Providers []domain.ProviderStatus `json:"providers"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode providers response: %v", err)
	}
	if len(body.Providers) != 2 {
		t.Fatalf("expected 2 provider statuses, got %d", len(body.Providers))
	}
	if body.Providers[0].ProviderID != "brave" || body.Providers[1].Breaker != domain.BreakerOpen {
		t.Fatalf("unexpected provider statuses: %+v", body.Providers)
	}
}

func TestCacheInvalidateForwardsPattern(t *testing.T) {
	admin := &fakeAdminService{}
	handler := NewRouter(config.Config{}, &fakeSearchService{}, admin, Options{}).Handler()

	req := httptest.NewRequest(http.MethodDelete, "/v1/cache?pattern=news%3A*", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if len(admin.patterns) != 1 || admin.patterns[0] != "news:*" {
		t.Fatalf("expected pattern news:* forwarded, got %v", admin.patterns)
	}
	var body map[string]string
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "invalidated" || body["pattern"] != "news:*" {
		t.Fatalf("unexpected response body: %v", body)
	}
}

func TestCacheInvalidateAcceptsKeyParam(t *testing.T) {
	admin := &fakeAdminService{}
	handler := NewRouter(config.Config{}, &fakeSearchService{}, admin, Options{}).Handler()

	req := httptest.NewRequest(http.MethodDelete, "/v1/cache?key=3fa2bc01", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if len(admin.patterns) != 1 || admin.patterns[0] != "3fa2bc01" {
		t.Fatalf("expected key forwarded as pattern, got %v", admin.patterns)
	}
}

func TestCacheInvalidateMapsValidationError(t *testing.T) {
	admin := &fakeAdminService{
		invalidateErr: domain.WrapError(domain.ErrInvalidQuery, "invalidate cache", errors.New("pattern required")),
	}
	handler := NewRouter(config.Config{}, &fakeSearchService{}, admin, Options{}).Handler()

	req := httptest.NewRequest(http.MethodDelete, "/v1/cache", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing pattern, got %d", res.Code)
	}
}

func TestHealthzAlwaysOK(t *testing.T) {
	handler := newTestHandler(config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "ok") {
		t.Fatalf("unexpected health body: %s", res.Body.String())
	}
}
