package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/meta-search/internal/core/domain"
)

// ProviderAdapter is the uniform boundary to one backend search service.
// The router treats every adapter identically regardless of its transport.
type ProviderAdapter interface {
	ID() string
	Search(ctx context.Context, query domain.ProviderQuery) ([]domain.SearchResult, error)
	EstimateCost(query domain.SearchQuery) decimal.Decimal
	Capabilities() domain.ProviderCapabilities
}

// ProviderRegistry resolves provider adapters by id.
type ProviderRegistry interface {
	Get(id string) (ProviderAdapter, bool)
	All() []ProviderAdapter
}

// DispatchTicket finalizes one admitted dispatch. Exactly one of Succeed or
// Fail must be called; both release the provider's in-flight slot.
type DispatchTicket interface {
	Succeed(latency time.Duration, actualCost decimal.Decimal)
	Fail(cause error)
}

// AdmitDecision is admission control's verdict on one dispatch attempt.
// Ticket is non-nil only when Allowed.
type AdmitDecision struct {
	Allowed    bool
	Reason     domain.ExclusionReason
	Detail     string
	RetryAfter time.Duration
	Ticket     DispatchTicket
}

// AdmissionController owns all mutable per-provider state: rate-limit
// windows, budget counters, and circuit breakers.
type AdmissionController interface {
	Admit(providerID string, estimatedCost decimal.Decimal) AdmitDecision
	Health(providerID string) domain.ProviderHealth
	Statuses() []domain.ProviderStatus
}

// ProviderScorer ranks one provider for one query. Implementations must be
// side-effect-free.
type ProviderScorer interface {
	Name() string
	Score(features domain.QueryFeatures, profile domain.ProviderProfile, health domain.ProviderHealth) (domain.ProviderScore, error)
}

// ResponseCache memoizes merged responses keyed by query fingerprint.
// Lookups and writes never fail the query; tier errors degrade silently.
type ResponseCache interface {
	Get(ctx context.Context, fingerprint string) (*domain.SearchResponse, string, bool)
	Set(ctx context.Context, fingerprint string, response *domain.SearchResponse)
	Invalidate(ctx context.Context, pattern string) error
}

// InvalidationBus fans cache invalidations out to every process instance.
type InvalidationBus interface {
	PublishInvalidation(ctx context.Context, pattern string) error
	SubscribeInvalidation(ctx context.Context, handler func(pattern string)) error
}

// SpendStore persists per-provider spend so budget enforcement survives
// restarts.
type SpendStore interface {
	AddSpend(ctx context.Context, providerID string, day time.Time, amount decimal.Decimal) error
	DailySpend(ctx context.Context, providerID string, day time.Time) (decimal.Decimal, error)
	MonthlySpend(ctx context.Context, providerID string, monthStart time.Time) (decimal.Decimal, error)
}
