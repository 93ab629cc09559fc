package admission

import (
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/meta-search/internal/core/domain"
)

type BreakerSettings struct {
	FailureThreshold uint32
	RecoveryTimeout  time.Duration
}

// breakerGate wraps one provider's circuit breaker. The two-step form fits
// admission: Allow at the gate, the returned callback reports the outcome
// after the dispatch finishes. MaxRequests of one gives a single half-open
// probe.
type breakerGate struct {
	cb *gobreaker.TwoStepCircuitBreaker[struct{}]
}

func newBreakerGate(providerID string, settings BreakerSettings, onChange func(provider string, state domain.BreakerState)) *breakerGate {
	threshold := settings.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	recovery := settings.RecoveryTimeout
	if recovery <= 0 {
		recovery = time.Minute
	}
	cb := gobreaker.NewTwoStepCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        providerID,
		MaxRequests: 1,
		Timeout:     recovery,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, _ gobreaker.State, to gobreaker.State) {
			if onChange != nil {
				onChange(name, toDomainState(to))
			}
		},
	})
	return &breakerGate{cb: cb}
}

func (b *breakerGate) allow() (func(success bool), error) {
	return b.cb.Allow()
}

func (b *breakerGate) state() domain.BreakerState {
	return toDomainState(b.cb.State())
}

func (b *breakerGate) consecutiveFailures() uint32 {
	return b.cb.Counts().ConsecutiveFailures
}

func toDomainState(s gobreaker.State) domain.BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return domain.BreakerOpen
	case gobreaker.StateHalfOpen:
		return domain.BreakerHalfOpen
	default:
		return domain.BreakerClosed
	}
}
