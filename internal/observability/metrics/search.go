package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SearchMetrics covers the search pipeline instruments shared by both
// binaries: pipeline outcomes, cache tiers, provider dispatches, breakers.
type SearchMetrics struct {
	searchTotal    *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	searchResults  *prometheus.HistogramVec

	cacheLookups *prometheus.CounterVec

	providerDispatchTotal *prometheus.CounterVec
	providerLatency       *prometheus.HistogramVec
	breakerState          *prometheus.GaugeVec
}

func newSearchMetrics(registry *prometheus.Registry) *SearchMetrics {
	searchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msa",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total search requests by status, strategy and cache tier.",
		},
		[]string{"service", "status", "strategy", "tier"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msa",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Search pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "strategy"},
	)
	searchResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msa",
			Subsystem: "search",
			Name:      "results",
			Help:      "Distribution of merged results per successful search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msa",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by tier and outcome.",
		},
		[]string{"service", "tier", "outcome"},
	)
	providerDispatchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msa",
			Subsystem: "provider",
			Name:      "dispatch_total",
			Help:      "Provider dispatch attempts by outcome.",
		},
		[]string{"service", "provider", "outcome"},
	)
	providerLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msa",
			Subsystem: "provider",
			Name:      "dispatch_duration_seconds",
			Help:      "Provider dispatch duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "provider"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "msa",
			Subsystem: "provider",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per provider: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"service", "provider"},
	)

	registry.MustRegister(
		searchTotal,
		searchDuration,
		searchResults,
		cacheLookups,
		providerDispatchTotal,
		providerLatency,
		breakerState,
	)

	return &SearchMetrics{
		searchTotal:           searchTotal,
		searchDuration:        searchDuration,
		searchResults:         searchResults,
		cacheLookups:          cacheLookups,
		providerDispatchTotal: providerDispatchTotal,
		providerLatency:       providerLatency,
		breakerState:          breakerState,
	}
}

func (m *SearchMetrics) RecordSearch(service, strategy, status, tier string, resultCount int, duration time.Duration) {
	if strategy == "" {
		strategy = "none"
	}
	if tier == "" {
		tier = "none"
	}
	m.searchTotal.WithLabelValues(service, status, strategy, tier).Inc()
	m.searchDuration.WithLabelValues(service, strategy).Observe(duration.Seconds())
	if status == "success" {
		m.searchResults.WithLabelValues(service).Observe(float64(resultCount))
	}
}

func (m *SearchMetrics) RecordCacheLookup(service, tier string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookups.WithLabelValues(service, tier, outcome).Inc()
}

func (m *SearchMetrics) RecordProviderDispatch(service, provider, outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.providerDispatchTotal.WithLabelValues(service, provider, outcome).Inc()
	if duration > 0 {
		m.providerLatency.WithLabelValues(service, provider).Observe(duration.Seconds())
	}
}

func (m *SearchMetrics) SetBreakerState(service, provider, state string) {
	var v float64
	switch state {
	case "open":
		v = 2
	case "half_open":
		v = 1
	}
	m.breakerState.WithLabelValues(service, provider).Set(v)
}
