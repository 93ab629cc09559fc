package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProviderProfile is the static per-provider descriptor from configuration:
// what the provider is good at and what a query against it costs.
type ProviderProfile struct {
	ID            string
	Name          string
	Enabled       bool
	Affinities    map[ContentType]float64
	QualityWeight float64
	CostPerQuery  decimal.Decimal
}

// ProviderHealth is a read-only snapshot of recent behavior, kept by
// admission control and consumed by scorers.
type ProviderHealth struct {
	ConsecutiveFailures uint32
	LastFailure         time.Time
	LastSuccess         time.Time
	AvgLatency          time.Duration
}

type ProviderRole string

const (
	RolePrimary  ProviderRole = "primary"
	RoleFallback ProviderRole = "fallback"
)

// ProviderScore is ephemeral: produced per (query, provider) pair and
// consumed immediately by the router.
type ProviderScore struct {
	ProviderID string          `json:"provider_id"`
	Score      float64         `json:"score"`
	Confidence float64         `json:"confidence"`
	Cost       decimal.Decimal `json:"estimated_cost"`
	Latency    time.Duration   `json:"estimated_latency"`
	Role       ProviderRole    `json:"role"`
}

type ProviderCapabilities struct {
	ContentTypes []ContentType `json:"content_types"`
	MaxResults   int           `json:"max_results"`
}

type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

type WindowUsage struct {
	Minute   int `json:"minute"`
	Hour     int `json:"hour"`
	Day      int `json:"day"`
	InFlight int `json:"in_flight"`
}

// ProviderStatus is the administrative read-only view of one provider's
// admission state.
type ProviderStatus struct {
	ProviderID    string          `json:"provider_id"`
	Breaker       BreakerState    `json:"breaker"`
	Failures      uint32          `json:"consecutive_failures"`
	CooldownUntil *time.Time      `json:"cooldown_until,omitempty"`
	Usage         WindowUsage     `json:"usage"`
	SpentDay      decimal.Decimal `json:"spent_day"`
	SpentMonth    decimal.Decimal `json:"spent_month"`
}

type ExclusionReason string

const (
	ExcludedUnknown     ExclusionReason = "unknown_provider"
	ExcludedDisabled    ExclusionReason = "disabled"
	ExcludedLowScore    ExclusionReason = "low_score"
	ExcludedRateLimited ExclusionReason = "rate_limited"
	ExcludedBudget      ExclusionReason = "budget_exceeded"
	ExcludedBreakerOpen ExclusionReason = "breaker_open"
	ExcludedFailed      ExclusionReason = "dispatch_failed"
)

type ProviderAttempt struct {
	ProviderID string          `json:"provider_id"`
	Excluded   ExclusionReason `json:"excluded,omitempty"`
	Detail     string          `json:"detail,omitempty"`
}

// RoutingReport records how one query was routed: every provider considered,
// why the excluded ones were excluded, and which ones contributed.
type RoutingReport struct {
	Strategy   Strategy          `json:"strategy"`
	Considered []ProviderAttempt `json:"considered"`
	Used       []string          `json:"used"`
}
