package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/meta-search/internal/core/domain"
	"github.com/kirillkom/meta-search/internal/core/ports"
)

type RouterConfig struct {
	TopK              int
	MinScore          float64
	BaseTimeout       time.Duration
	MinTimeout        time.Duration
	MaxTimeout        time.Duration
	ComplexityFactor  float64
	CascadeComplexity float64
	AdequacyCount     int
	AdequacyScore     float64
}

func (c RouterConfig) normalized() RouterConfig {
	if c.TopK <= 0 {
		c.TopK = 3
	}
	if c.MinScore < 0 {
		c.MinScore = 0
	}
	if c.BaseTimeout <= 0 {
		c.BaseTimeout = 5 * time.Second
	}
	if c.MinTimeout <= 0 {
		c.MinTimeout = time.Second
	}
	if c.MaxTimeout <= 0 {
		c.MaxTimeout = 30 * time.Second
	}
	if c.MaxTimeout < c.MinTimeout {
		c.MaxTimeout = c.MinTimeout
	}
	if c.ComplexityFactor < 0 {
		c.ComplexityFactor = 0
	}
	if c.CascadeComplexity <= 0 || c.CascadeComplexity > 1 {
		c.CascadeComplexity = 0.6
	}
	if c.AdequacyCount < 0 {
		c.AdequacyCount = 0
	}
	if c.AdequacyScore < 0 {
		c.AdequacyScore = 0
	}
	return c
}

// Router selects providers for a query, runs the chosen execution
// strategy against admission control, and reports how the query was
// routed. It holds no mutable state of its own.
type Router struct {
	registry   ports.ProviderRegistry
	admission  ports.AdmissionController
	profiles   map[string]domain.ProviderProfile
	scorers    []ports.ProviderScorer
	strategies []executionStrategy
	cfg        RouterConfig
	now        func() time.Time
}

// RouterOptions wires the router's collaborators. Scorers[0] acts as the
// default scorer; later entries are specialists whose verdicts are
// blended with the default when they win on confidence.
type RouterOptions struct {
	Registry  ports.ProviderRegistry
	Admission ports.AdmissionController
	Profiles  []domain.ProviderProfile
	Scorers   []ports.ProviderScorer
	Config    RouterConfig
}

func NewRouter(opts RouterOptions) *Router {
	profiles := make(map[string]domain.ProviderProfile, len(opts.Profiles))
	for _, profile := range opts.Profiles {
		profiles[profile.ID] = profile
	}
	scorers := opts.Scorers
	if len(scorers) == 0 {
		scorers = []ports.ProviderScorer{NewDefaultScorer()}
	}
	return &Router{
		registry:   opts.Registry,
		admission:  opts.Admission,
		profiles:   profiles,
		scorers:    scorers,
		strategies: []executionStrategy{&parallelStrategy{}, &cascadeStrategy{}},
		cfg:        opts.Config.normalized(),
		now:        time.Now,
	}
}

type candidate struct {
	adapter ports.ProviderAdapter
	profile domain.ProviderProfile
	score   domain.ProviderScore
}

type routePlan struct {
	query      domain.ProviderQuery
	timeout    time.Duration
	budget     *queryBudget
	candidates []candidate
}

type dispatchOutcome struct {
	providerID string
	estimate   decimal.Decimal
	results    []domain.SearchResult
	err        error
	excluded   domain.ExclusionReason
	detail     string
}

type routeOutcome struct {
	results []domain.SearchResult
	report  domain.RoutingReport
	cost    decimal.Decimal
}

// Route runs the full selection and dispatch cycle for one query. It
// returns a typed error when no provider produced results; a successful
// return always carries at least one result set.
func (r *Router) Route(ctx context.Context, query domain.SearchQuery, features domain.QueryFeatures) (*routeOutcome, error) {
	candidates, considered := r.selectCandidates(query, features)
	if len(candidates) == 0 {
		return nil, r.classifyFailure(considered, nil)
	}

	strategy := r.strategyFor(chooseStrategy(query.Strategy, features, len(candidates), r.cfg.CascadeComplexity))
	plan := &routePlan{
		query:      r.providerQuery(query, features),
		timeout:    r.computeTimeout(query, features),
		budget:     newQueryBudget(query.Budget),
		candidates: candidates,
	}
	dispatched := strategy.execute(ctx, r, plan)

	outcome := &routeOutcome{
		report: domain.RoutingReport{Strategy: strategy.name(), Considered: considered},
		cost:   decimal.Zero,
	}
	succeeded := 0
	for _, d := range dispatched {
		switch {
		case d.excluded != "":
			outcome.report.Considered = append(outcome.report.Considered, domain.ProviderAttempt{
				ProviderID: d.providerID,
				Excluded:   d.excluded,
				Detail:     d.detail,
			})
		case d.err != nil:
			outcome.report.Considered = append(outcome.report.Considered, domain.ProviderAttempt{
				ProviderID: d.providerID,
				Excluded:   domain.ExcludedFailed,
				Detail:     d.err.Error(),
			})
		default:
			succeeded++
			outcome.report.Considered = append(outcome.report.Considered, domain.ProviderAttempt{ProviderID: d.providerID})
			outcome.report.Used = append(outcome.report.Used, d.providerID)
			outcome.results = append(outcome.results, d.results...)
			outcome.cost = outcome.cost.Add(d.estimate)
		}
	}
	if succeeded == 0 {
		return nil, r.classifyFailure(outcome.report.Considered, dispatched)
	}
	return outcome, nil
}

// selectCandidates resolves the provider set. An explicit provider list
// bypasses score filtering; otherwise every enabled provider is scored
// and the ranked list is cut at MinScore and TopK.
func (r *Router) selectCandidates(query domain.SearchQuery, features domain.QueryFeatures) ([]candidate, []domain.ProviderAttempt) {
	if len(query.Providers) > 0 {
		return r.explicitCandidates(query.Providers, features)
	}
	return r.scoredCandidates(features)
}

func (r *Router) explicitCandidates(ids []string, features domain.QueryFeatures) ([]candidate, []domain.ProviderAttempt) {
	var candidates []candidate
	var considered []domain.ProviderAttempt
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		adapter, ok := r.registry.Get(id)
		if !ok {
			considered = append(considered, domain.ProviderAttempt{ProviderID: id, Excluded: domain.ExcludedUnknown})
			continue
		}
		profile, ok := r.profiles[id]
		if !ok || !profile.Enabled {
			considered = append(considered, domain.ProviderAttempt{ProviderID: id, Excluded: domain.ExcludedDisabled})
			continue
		}
		candidates = append(candidates, candidate{
			adapter: adapter,
			profile: profile,
			score:   r.scoreProvider(features, profile),
		})
	}
	sortCandidates(candidates)
	return candidates, considered
}

func (r *Router) scoredCandidates(features domain.QueryFeatures) ([]candidate, []domain.ProviderAttempt) {
	var scored []candidate
	var considered []domain.ProviderAttempt
	for _, adapter := range r.registry.All() {
		profile, ok := r.profiles[adapter.ID()]
		if !ok || !profile.Enabled {
			considered = append(considered, domain.ProviderAttempt{ProviderID: adapter.ID(), Excluded: domain.ExcludedDisabled})
			continue
		}
		scored = append(scored, candidate{
			adapter: adapter,
			profile: profile,
			score:   r.scoreProvider(features, profile),
		})
	}
	sortCandidates(scored)

	candidates := make([]candidate, 0, len(scored))
	for _, c := range scored {
		if c.score.Score < r.cfg.MinScore {
			considered = append(considered, domain.ProviderAttempt{
				ProviderID: c.profile.ID,
				Excluded:   domain.ExcludedLowScore,
				Detail:     fmt.Sprintf("score %.2f below %.2f", c.score.Score, r.cfg.MinScore),
			})
			continue
		}
		if len(candidates) >= r.cfg.TopK {
			considered = append(considered, domain.ProviderAttempt{
				ProviderID: c.profile.ID,
				Excluded:   domain.ExcludedLowScore,
				Detail:     "outside_top_k",
			})
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, considered
}

func sortCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score.Score != b.score.Score {
			return a.score.Score > b.score.Score
		}
		if a.profile.QualityWeight != b.profile.QualityWeight {
			return a.profile.QualityWeight > b.profile.QualityWeight
		}
		return a.profile.ID < b.profile.ID
	})
}

// scoreProvider runs every registered scorer and keeps the most confident
// verdict. When a specialist wins it is blended with the default scorer
// so one opinion never fully overrides the baseline.
func (r *Router) scoreProvider(features domain.QueryFeatures, profile domain.ProviderProfile) domain.ProviderScore {
	health := r.admission.Health(profile.ID)

	var def domain.ProviderScore
	defOK := false
	var best domain.ProviderScore
	bestIdx := -1
	for i, scorer := range r.scorers {
		score, err := scorer.Score(features, profile, health)
		if err != nil {
			continue
		}
		if i == 0 {
			def, defOK = score, true
		}
		if bestIdx == -1 || score.Confidence > best.Confidence {
			best, bestIdx = score, i
		}
	}
	if bestIdx == -1 {
		return domain.ProviderScore{ProviderID: profile.ID, Cost: profile.CostPerQuery, Role: domain.RoleFallback}
	}
	if bestIdx != 0 && defOK {
		best = blendScores(best, def)
	}
	return best
}

func blendScores(winner, def domain.ProviderScore) domain.ProviderScore {
	total := winner.Confidence + def.Confidence
	if total <= 0 {
		return winner
	}
	winner.Score = (winner.Score*winner.Confidence + def.Score*def.Confidence) / total
	if winner.Cost.IsZero() {
		winner.Cost = def.Cost
	}
	if winner.Latency == 0 {
		winner.Latency = def.Latency
	}
	if winner.Score >= 0.5 {
		winner.Role = domain.RolePrimary
	} else {
		winner.Role = domain.RoleFallback
	}
	return winner
}

// computeTimeout scales the base timeout with query complexity and clamps
// the result. An explicit query timeout skips scaling but not clamping.
func (r *Router) computeTimeout(query domain.SearchQuery, features domain.QueryFeatures) time.Duration {
	if query.Timeout > 0 {
		return clampDuration(query.Timeout, r.cfg.MinTimeout, r.cfg.MaxTimeout)
	}
	scaled := float64(r.cfg.BaseTimeout) * (1 + r.cfg.ComplexityFactor*features.Complexity)
	return clampDuration(time.Duration(scaled), r.cfg.MinTimeout, r.cfg.MaxTimeout)
}

// providerQuery normalizes the per-provider parameters. A mixed content
// classification is not worth forwarding; providers treat absence as
// "anything".
func (r *Router) providerQuery(query domain.SearchQuery, features domain.QueryFeatures) domain.ProviderQuery {
	contentType := query.ContentType
	if contentType == "" {
		contentType = features.ContentType
	}
	if contentType == domain.ContentMixed {
		contentType = ""
	}
	return domain.ProviderQuery{
		Text:        query.Text,
		MaxResults:  query.MaxResults,
		ContentType: contentType,
	}
}

func (r *Router) strategyFor(name domain.Strategy) executionStrategy {
	for _, s := range r.strategies {
		if s.name() == name {
			return s
		}
	}
	return r.strategies[0]
}

// classifyFailure maps a zero-success route to the caller-facing error.
// Budget exclusions outrank throttling so the caller learns the condition
// they can actually fix.
func (r *Router) classifyFailure(considered []domain.ProviderAttempt, dispatched []dispatchOutcome) error {
	dispatchedAny := false
	for _, d := range dispatched {
		if d.excluded == "" && d.err != nil {
			dispatchedAny = true
		}
	}
	if dispatchedAny {
		return domain.WrapError(domain.ErrNoProviders, "route", errors.New("every dispatched provider failed"))
	}

	budget, throttled := 0, 0
	for _, attempt := range considered {
		switch attempt.Excluded {
		case domain.ExcludedBudget:
			budget++
		case domain.ExcludedRateLimited, domain.ExcludedBreakerOpen:
			throttled++
		}
	}
	switch {
	case budget > 0:
		return domain.WrapError(domain.ErrBudgetExhausted, "route", errors.New("every candidate blocked by budget limits"))
	case throttled > 0:
		return domain.WrapError(domain.ErrProvidersThrottled, "route", errors.New("every candidate rate limited or circuit broken"))
	default:
		return domain.WrapError(domain.ErrNoProviders, "route", errors.New("no provider admitted"))
	}
}

// queryBudget is the per-query spend ceiling. It is only touched from one
// goroutine: strategies reserve before dispatching and refund on failure.
type queryBudget struct {
	limit decimal.Decimal
	has   bool
	spent decimal.Decimal
}

func newQueryBudget(limit *decimal.Decimal) *queryBudget {
	if limit == nil {
		return &queryBudget{}
	}
	return &queryBudget{limit: *limit, has: true}
}

func (b *queryBudget) tryReserve(amount decimal.Decimal) bool {
	if !b.has {
		return true
	}
	next := b.spent.Add(amount)
	if next.GreaterThan(b.limit) {
		return false
	}
	b.spent = next
	return true
}

func (b *queryBudget) refund(amount decimal.Decimal) {
	if !b.has {
		return
	}
	b.spent = b.spent.Sub(amount)
}
