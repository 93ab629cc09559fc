package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/meta-search/internal/core/domain"
	"github.com/kirillkom/meta-search/internal/core/ports"
)

// SearchPipeline is the top-level query flow: validate, consult the
// response cache, analyze, route, merge, cache. It implements
// ports.SearchService.
type SearchPipeline struct {
	cache             ports.ResponseCache
	router            *Router
	merger            *Merger
	logger            *slog.Logger
	defaultMaxResults int
	now               func() time.Time
}

type SearchPipelineOptions struct {
	Cache             ports.ResponseCache
	Router            *Router
	Merger            *Merger
	Logger            *slog.Logger
	DefaultMaxResults int
}

func NewSearchPipeline(opts SearchPipelineOptions) *SearchPipeline {
	defaultMax := opts.DefaultMaxResults
	if defaultMax <= 0 {
		defaultMax = 10
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchPipeline{
		cache:             opts.Cache,
		router:            opts.Router,
		merger:            opts.Merger,
		logger:            logger,
		defaultMaxResults: defaultMax,
		now:               time.Now,
	}
}

func (p *SearchPipeline) Search(ctx context.Context, query domain.SearchQuery) (*domain.SearchResponse, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	if query.MaxResults == 0 {
		query.MaxResults = p.defaultMaxResults
	}

	fingerprint := domain.QueryFingerprint(query)
	if cached, tier, ok := p.cache.Get(ctx, fingerprint); ok {
		response := *cached
		response.Cached = true
		response.CacheTier = tier
		p.logger.Debug("search_cache_hit", "fingerprint", fingerprint, "tier", tier)
		return &response, nil
	}

	started := p.now()
	features := AnalyzeQuery(query.Text)

	routed, err := p.router.Route(ctx, query, features)
	if err != nil {
		return nil, err
	}

	contentType := query.ContentType
	if contentType == "" {
		contentType = features.ContentType
	}
	merged := p.merger.Merge(routed.results, contentType, query.MaxResults)

	response := &domain.SearchResponse{
		Query:         query.Text,
		Results:       merged,
		TotalResults:  len(merged),
		ProvidersUsed: routed.report.Used,
		Strategy:      routed.report.Strategy,
		ElapsedMS:     p.now().Sub(started).Milliseconds(),
		EstimatedCost: routed.cost,
	}
	// An empty result set from live providers is still an answer worth
	// caching; only routing errors skip the cache.
	p.cache.Set(ctx, fingerprint, response)

	// The fingerprint stands in for the query text, which stays out of
	// info-level logs.
	p.logger.Info("search_complete",
		"fingerprint", fingerprint,
		"strategy", string(response.Strategy),
		"providers", response.ProvidersUsed,
		"results", response.TotalResults,
		"elapsed_ms", response.ElapsedMS,
	)
	return response, nil
}

func validateQuery(query domain.SearchQuery) error {
	invalid := func(cause error) error {
		return domain.WrapError(domain.ErrInvalidQuery, "validate query", cause)
	}
	if strings.TrimSpace(query.Text) == "" {
		return invalid(errors.New("empty query text"))
	}
	if query.MaxResults < 0 {
		return invalid(fmt.Errorf("negative max_results %d", query.MaxResults))
	}
	if query.Budget != nil && query.Budget.IsNegative() {
		return invalid(fmt.Errorf("negative budget %s", query.Budget.String()))
	}
	if query.Timeout < 0 {
		return invalid(fmt.Errorf("negative timeout %s", query.Timeout))
	}
	switch query.Strategy {
	case "", domain.StrategyParallel, domain.StrategyCascade:
	default:
		return invalid(fmt.Errorf("unknown strategy %q", query.Strategy))
	}
	switch query.ContentType {
	case "", domain.ContentFactual, domain.ContentAcademic, domain.ContentTechnical,
		domain.ContentNews, domain.ContentCommercial, domain.ContentEducational, domain.ContentMixed:
	default:
		return invalid(fmt.Errorf("unknown content type %q", query.ContentType))
	}
	return nil
}
