package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/kirillkom/meta-search/internal/config"
	"github.com/kirillkom/meta-search/internal/core/domain"
	"github.com/kirillkom/meta-search/internal/core/ports"
	"github.com/kirillkom/meta-search/internal/observability/metrics"
)

const backpressureQueueWait = 100 * time.Millisecond

type Router struct {
	cfg     config.Config
	search  ports.SearchService
	admin   ports.AdminService
	logger  *slog.Logger
	metrics *metrics.HTTPServerMetrics
}

type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.HTTPServerMetrics
}

func NewRouter(cfg config.Config, search ports.SearchService, admin ports.AdminService, opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:     cfg,
		search:  search,
		admin:   admin,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/search", rt.handleSearch)
	mux.HandleFunc("/v1/providers", rt.handleProviders)
	mux.HandleFunc("/v1/cache", rt.handleCacheInvalidate)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	// Metrics sit outside traffic control so shed requests still count.
	var handler http.Handler = mux
	if rt.cfg.APIMaxConcurrent > 0 {
		handler = backpressureMiddleware(handler, rt.cfg.APIMaxConcurrent, backpressureQueueWait)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		burst := rt.cfg.APIRateLimitBurst
		if burst < 1 {
			burst = 1
		}
		handler = rateLimitMiddleware(handler, rate.Limit(rt.cfg.APIRateLimitRPS), burst)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type searchRequest struct {
	Query       string           `json:"query"`
	MaxResults  int              `json:"max_results"`
	ContentType string           `json:"content_type"`
	Providers   []string         `json:"providers"`
	Budget      *decimal.Decimal `json:"budget"`
	TimeoutMS   int64            `json:"timeout_ms"`
	Strategy    string           `json:"strategy"`
}

func (rt *Router) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	query := domain.SearchQuery{
		Text:        req.Query,
		MaxResults:  req.MaxResults,
		ContentType: domain.ContentType(req.ContentType),
		Providers:   req.Providers,
		Budget:      req.Budget,
		Timeout:     time.Duration(req.TimeoutMS) * time.Millisecond,
		Strategy:    domain.Strategy(req.Strategy),
	}

	started := time.Now()
	response, err := rt.search.Search(r.Context(), query)
	if err != nil {
		rt.recordSearch(searchErrorLabel(err), "", "", 0, time.Since(started))
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	rt.recordSearch("success", string(response.Strategy), response.CacheTier, response.TotalResults, time.Since(started))
	writeJSON(w, http.StatusOK, response)
}

func (rt *Router) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": rt.admin.ProviderStatuses(r.Context())})
}

func (rt *Router) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		pattern = r.URL.Query().Get("key")
	}
	if err := rt.admin.InvalidateCache(r.Context(), pattern); err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated", "pattern": pattern})
}

func (rt *Router) recordSearch(status, strategy, tier string, results int, duration time.Duration) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordSearch("api", strategy, status, tier, results, duration)
}

func searchErrorLabel(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidQuery):
		return "invalid"
	case domain.IsKind(err, domain.ErrBudgetExhausted):
		return "budget"
	case domain.IsKind(err, domain.ErrProvidersThrottled):
		return "throttled"
	case domain.IsKind(err, domain.ErrNoProviders):
		return "no_providers"
	default:
		return "error"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
