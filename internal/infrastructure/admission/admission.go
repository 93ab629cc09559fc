package admission

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/meta-search/internal/core/domain"
	"github.com/kirillkom/meta-search/internal/core/ports"
)

// ProviderLimits bundles the three gate configurations for one provider.
type ProviderLimits struct {
	Rate    RateLimits
	Budget  BudgetLimits
	Breaker BreakerSettings
}

type Options struct {
	Logger *slog.Logger

	// SpendStore, when set, receives committed spend write-through so budget
	// counters survive restarts.
	SpendStore ports.SpendStore

	// OnBreakerChange and OnOutcome are observability hooks.
	OnBreakerChange func(provider string, state domain.BreakerState)
	OnOutcome       func(provider, outcome string, latency time.Duration)

	Now func() time.Time
}

type providerGates struct {
	mu      sync.Mutex
	rate    *rateGate
	budget  *budgetGate
	breaker *breakerGate
	health  healthState
}

type healthState struct {
	lastFailure time.Time
	lastSuccess time.Time
	avgLatency  time.Duration
}

func (h *healthState) recordSuccess(now time.Time, latency time.Duration) {
	h.lastSuccess = now
	if latency <= 0 {
		return
	}
	if h.avgLatency == 0 {
		h.avgLatency = latency
		return
	}
	h.avgLatency = time.Duration(0.8*float64(h.avgLatency) + 0.2*float64(latency))
}

func (h *healthState) recordFailure(now time.Time) {
	h.lastFailure = now
}

// Controller owns every provider's mutable admission state. All checks and
// updates for one provider run under that provider's lock; providers never
// block each other.
type Controller struct {
	providers map[string]*providerGates
	ids       []string

	logger     *slog.Logger
	spendStore ports.SpendStore
	onOutcome  func(provider, outcome string, latency time.Duration)
	now        func() time.Time
}

func NewController(limits map[string]ProviderLimits, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	c := &Controller{
		providers:  make(map[string]*providerGates, len(limits)),
		logger:     logger,
		spendStore: opts.SpendStore,
		onOutcome:  opts.OnOutcome,
		now:        now,
	}
	onChange := func(provider string, state domain.BreakerState) {
		logger.Warn("breaker_state_change", "provider", provider, "state", string(state))
		if opts.OnBreakerChange != nil {
			opts.OnBreakerChange(provider, state)
		}
	}
	for id, l := range limits {
		c.providers[id] = &providerGates{
			rate:    newRateGate(l.Rate),
			budget:  newBudgetGate(l.Budget),
			breaker: newBreakerGate(id, l.Breaker, onChange),
		}
		c.ids = append(c.ids, id)
	}
	sort.Strings(c.ids)
	return c
}

// SeedSpend loads persisted budget counters for one provider at startup.
func (c *Controller) SeedSpend(providerID string, spentDay, spentMonth decimal.Decimal) {
	p, ok := c.providers[providerID]
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.budget.seed(c.now(), spentDay, spentMonth)
}

// Admit consults the rate limiter, the budget tracker, and the circuit
// breaker in that order. Nothing is recorded for a denied attempt beyond the
// rate limiter's own cooldown.
func (c *Controller) Admit(providerID string, estimatedCost decimal.Decimal) ports.AdmitDecision {
	p, ok := c.providers[providerID]
	if !ok {
		return c.deny(providerID, domain.ExcludedDisabled, "unknown provider", 0)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	now := c.now()

	if retry, ok := p.rate.check(now); !ok {
		return c.deny(providerID, domain.ExcludedRateLimited, "", retry)
	}

	if p.breaker.state() == domain.BreakerOpen {
		return c.deny(providerID, domain.ExcludedBreakerOpen, "", 0)
	}

	allowed, detail := p.budget.tryReserve(now, estimatedCost)
	if !allowed {
		return c.deny(providerID, domain.ExcludedBudget, detail, 0)
	}
	if detail != "" {
		c.logger.Warn("budget_limit_exceeded_log_only", "provider", providerID, "detail", detail)
	}

	done, err := p.breaker.allow()
	if err != nil {
		p.budget.release(estimatedCost)
		return c.deny(providerID, domain.ExcludedBreakerOpen, "", 0)
	}

	p.rate.commit(now)

	return ports.AdmitDecision{
		Allowed: true,
		Ticket: &dispatchTicket{
			controller: c,
			providerID: providerID,
			gates:      p,
			estimated:  estimatedCost,
			done:       done,
		},
	}
}

func (c *Controller) deny(providerID string, reason domain.ExclusionReason, detail string, retryAfter time.Duration) ports.AdmitDecision {
	c.logger.Debug("dispatch_denied",
		"provider", providerID,
		"reason", string(reason),
		"retry_after", retryAfter,
	)
	c.reportOutcome(providerID, "denied_"+denialLabel(reason), 0)
	return ports.AdmitDecision{
		Allowed:    false,
		Reason:     reason,
		Detail:     detail,
		RetryAfter: retryAfter,
	}
}

func denialLabel(reason domain.ExclusionReason) string {
	switch reason {
	case domain.ExcludedRateLimited:
		return "rate"
	case domain.ExcludedBudget:
		return "budget"
	case domain.ExcludedBreakerOpen:
		return "breaker"
	default:
		return "other"
	}
}

func (c *Controller) reportOutcome(providerID, outcome string, latency time.Duration) {
	if c.onOutcome != nil {
		c.onOutcome(providerID, outcome, latency)
	}
}

// Health returns the scorer-facing view of one provider's recent behavior.
func (c *Controller) Health(providerID string) domain.ProviderHealth {
	p, ok := c.providers[providerID]
	if !ok {
		return domain.ProviderHealth{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return domain.ProviderHealth{
		ConsecutiveFailures: p.breaker.consecutiveFailures(),
		LastFailure:         p.health.lastFailure,
		LastSuccess:         p.health.lastSuccess,
		AvgLatency:          p.health.avgLatency,
	}
}

// Statuses snapshots every provider's admission state, ordered by id.
func (c *Controller) Statuses() []domain.ProviderStatus {
	out := make([]domain.ProviderStatus, 0, len(c.ids))
	for _, id := range c.ids {
		p := c.providers[id]
		p.mu.Lock()
		now := c.now()
		p.budget.rollover(now)
		day, month := p.budget.spent()
		status := domain.ProviderStatus{
			ProviderID: id,
			Breaker:    p.breaker.state(),
			Failures:   p.breaker.consecutiveFailures(),
			Usage:      p.rate.usage(now),
			SpentDay:   day,
			SpentMonth: month,
		}
		if p.rate.cooldownUntil.After(now) {
			until := p.rate.cooldownUntil
			status.CooldownUntil = &until
		}
		p.mu.Unlock()
		out = append(out, status)
	}
	return out
}

type dispatchTicket struct {
	controller *Controller
	providerID string
	gates      *providerGates
	estimated  decimal.Decimal
	done       func(success bool)
	once       sync.Once
}

func (t *dispatchTicket) Succeed(latency time.Duration, actualCost decimal.Decimal) {
	t.once.Do(func() {
		c := t.controller
		now := c.now()

		t.gates.mu.Lock()
		t.gates.rate.release()
		t.gates.budget.commit(now, t.estimated, actualCost)
		t.gates.health.recordSuccess(now, latency)
		t.gates.mu.Unlock()

		t.done(true)
		c.reportOutcome(t.providerID, "ok", latency)
		c.persistSpend(t.providerID, now, actualCost)
	})
}

func (t *dispatchTicket) Fail(cause error) {
	t.once.Do(func() {
		c := t.controller
		now := c.now()

		t.gates.mu.Lock()
		t.gates.rate.release()
		t.gates.budget.release(t.estimated)
		t.gates.health.recordFailure(now)
		if domain.IsKind(cause, domain.ErrProviderThrottled) {
			t.gates.rate.enterCooldown(now)
		}
		t.gates.mu.Unlock()

		t.done(false)
		c.reportOutcome(t.providerID, failureOutcome(cause), 0)
	})
}

func failureOutcome(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrProviderTimeout):
		return "timeout"
	case domain.IsKind(err, domain.ErrProviderThrottled):
		return "throttled"
	case domain.IsKind(err, domain.ErrProviderAuth):
		return "auth"
	default:
		return "error"
	}
}

func (c *Controller) persistSpend(providerID string, at time.Time, amount decimal.Decimal) {
	if c.spendStore == nil || amount.IsZero() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.spendStore.AddSpend(ctx, providerID, at, amount); err != nil {
			c.logger.Warn("spend_write_failed", "provider", providerID, "error", err)
		}
	}()
}
