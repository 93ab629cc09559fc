package admission

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/meta-search/internal/core/domain"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time {
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func timeoutErr() error {
	return domain.WrapError(domain.ErrProviderTimeout, "search", context.DeadlineExceeded)
}

func TestAdmitDeniesAfterConsecutiveFailures(t *testing.T) {
	c := NewController(map[string]ProviderLimits{
		"prov": {Breaker: BreakerSettings{FailureThreshold: 3, RecoveryTimeout: time.Minute}},
	}, Options{})

	for i := 0; i < 3; i++ {
		decision := c.Admit("prov", decimal.Zero)
		if !decision.Allowed {
			t.Fatalf("expected admit before threshold on attempt %d, denied: %s", i, decision.Reason)
		}
		decision.Ticket.Fail(timeoutErr())
	}

	denied := c.Admit("prov", decimal.Zero)
	if denied.Allowed {
		t.Fatalf("expected denial after threshold failures")
	}
	if denied.Reason != domain.ExcludedBreakerOpen {
		t.Fatalf("expected breaker_open reason, got %s", denied.Reason)
	}
}

func TestAdmitSuccessResetsFailureStreak(t *testing.T) {
	c := NewController(map[string]ProviderLimits{
		"prov": {Breaker: BreakerSettings{FailureThreshold: 2, RecoveryTimeout: time.Minute}},
	}, Options{})

	first := c.Admit("prov", decimal.Zero)
	first.Ticket.Fail(timeoutErr())

	second := c.Admit("prov", decimal.Zero)
	second.Ticket.Succeed(5*time.Millisecond, decimal.Zero)

	third := c.Admit("prov", decimal.Zero)
	if !third.Allowed {
		t.Fatalf("expected admit after streak reset, denied: %s", third.Reason)
	}
	third.Ticket.Fail(timeoutErr())

	fourth := c.Admit("prov", decimal.Zero)
	if !fourth.Allowed {
		t.Fatalf("expected one failure below threshold to still admit")
	}
	fourth.Ticket.Succeed(5*time.Millisecond, decimal.Zero)
}

func TestAdmitAllowsSingleProbeAfterRecovery(t *testing.T) {
	c := NewController(map[string]ProviderLimits{
		"prov": {Breaker: BreakerSettings{FailureThreshold: 1, RecoveryTimeout: 30 * time.Millisecond}},
	}, Options{})

	opened := c.Admit("prov", decimal.Zero)
	if !opened.Allowed {
		t.Fatalf("expected first admit")
	}
	opened.Ticket.Fail(timeoutErr())

	if d := c.Admit("prov", decimal.Zero); d.Allowed {
		t.Fatalf("expected open breaker to deny")
	}

	time.Sleep(40 * time.Millisecond)

	probe := c.Admit("prov", decimal.Zero)
	if !probe.Allowed {
		t.Fatalf("expected half-open probe to be admitted, denied: %s", probe.Reason)
	}
	blocked := c.Admit("prov", decimal.Zero)
	if blocked.Allowed {
		t.Fatalf("expected only one half-open probe")
	}
	if blocked.Reason != domain.ExcludedBreakerOpen {
		t.Fatalf("expected breaker_open reason, got %s", blocked.Reason)
	}

	probe.Ticket.Succeed(5*time.Millisecond, decimal.Zero)

	closed := c.Admit("prov", decimal.Zero)
	if !closed.Allowed {
		t.Fatalf("expected closed breaker after probe success")
	}
	closed.Ticket.Succeed(5*time.Millisecond, decimal.Zero)
}

func TestAdmitProbeFailureReopens(t *testing.T) {
	c := NewController(map[string]ProviderLimits{
		"prov": {Breaker: BreakerSettings{FailureThreshold: 1, RecoveryTimeout: 30 * time.Millisecond}},
	}, Options{})

	opened := c.Admit("prov", decimal.Zero)
	opened.Ticket.Fail(timeoutErr())

	time.Sleep(40 * time.Millisecond)

	probe := c.Admit("prov", decimal.Zero)
	if !probe.Allowed {
		t.Fatalf("expected half-open probe")
	}
	probe.Ticket.Fail(timeoutErr())

	if d := c.Admit("prov", decimal.Zero); d.Allowed {
		t.Fatalf("expected reopened breaker to deny")
	}
}

func TestAdmitRateLimitWindowAndCooldown(t *testing.T) {
	clock := newManualClock()
	c := NewController(map[string]ProviderLimits{
		"prov": {Rate: RateLimits{PerMinute: 2, Cooldown: 30 * time.Second}},
	}, Options{Now: clock.Now})

	for i := 0; i < 2; i++ {
		d := c.Admit("prov", decimal.Zero)
		if !d.Allowed {
			t.Fatalf("expected admit %d within limit", i)
		}
		d.Ticket.Succeed(time.Millisecond, decimal.Zero)
	}

	denied := c.Admit("prov", decimal.Zero)
	if denied.Allowed {
		t.Fatalf("expected rate denial at limit")
	}
	if denied.Reason != domain.ExcludedRateLimited {
		t.Fatalf("expected rate_limited reason, got %s", denied.Reason)
	}
	if denied.RetryAfter <= 0 {
		t.Fatalf("expected retry-after hint, got %s", denied.RetryAfter)
	}

	clock.Advance(10 * time.Second)
	inCooldown := c.Admit("prov", decimal.Zero)
	if inCooldown.Allowed {
		t.Fatalf("expected cooldown to pre-empt admission")
	}
	if got := c.Statuses()[0].Usage.Minute; got != 2 {
		t.Fatalf("cooldown checks must not consume window quota, count %d", got)
	}

	clock.Advance(80 * time.Second)
	after := c.Admit("prov", decimal.Zero)
	if !after.Allowed {
		t.Fatalf("expected admit after cooldown and window rolloff, denied: %s", after.Reason)
	}
	after.Ticket.Succeed(time.Millisecond, decimal.Zero)
}

func TestAdmitConcurrencyLimit(t *testing.T) {
	clock := newManualClock()
	c := NewController(map[string]ProviderLimits{
		"prov": {Rate: RateLimits{Concurrency: 1}},
	}, Options{Now: clock.Now})

	first := c.Admit("prov", decimal.Zero)
	if !first.Allowed {
		t.Fatalf("expected first admit")
	}

	blocked := c.Admit("prov", decimal.Zero)
	if blocked.Allowed {
		t.Fatalf("expected concurrency denial while in flight")
	}

	first.Ticket.Succeed(time.Millisecond, decimal.Zero)

	next := c.Admit("prov", decimal.Zero)
	if !next.Allowed {
		t.Fatalf("expected admit after slot release, denied: %s", next.Reason)
	}
	next.Ticket.Succeed(time.Millisecond, decimal.Zero)
}

func TestAdmitEnforcesDailyBudget(t *testing.T) {
	clock := newManualClock()
	c := NewController(map[string]ProviderLimits{
		"prov": {Budget: BudgetLimits{Daily: dec("1.00"), Enforce: true}},
	}, Options{Now: clock.Now})

	d := c.Admit("prov", dec("0.60"))
	if !d.Allowed {
		t.Fatalf("expected admit within budget")
	}
	d.Ticket.Succeed(time.Millisecond, dec("0.60"))

	denied := c.Admit("prov", dec("0.60"))
	if denied.Allowed {
		t.Fatalf("expected budget denial")
	}
	if denied.Reason != domain.ExcludedBudget {
		t.Fatalf("expected budget reason, got %s", denied.Reason)
	}
	if denied.Detail == "" {
		t.Fatalf("expected budget denial detail")
	}

	clock.Advance(24 * time.Hour)
	reset := c.Admit("prov", dec("0.60"))
	if !reset.Allowed {
		t.Fatalf("expected daily counter reset, denied: %s", reset.Reason)
	}
	reset.Ticket.Succeed(time.Millisecond, dec("0.60"))
}

func TestAdmitBudgetLogOnlyAdmits(t *testing.T) {
	clock := newManualClock()
	c := NewController(map[string]ProviderLimits{
		"prov": {Budget: BudgetLimits{Daily: dec("0.10"), Enforce: false}},
	}, Options{Now: clock.Now})

	d := c.Admit("prov", dec("0.60"))
	if !d.Allowed {
		t.Fatalf("log-only budget must admit over-limit dispatch")
	}
	d.Ticket.Succeed(time.Millisecond, dec("0.60"))
}

func TestTicketFinalizesOnce(t *testing.T) {
	clock := newManualClock()
	c := NewController(map[string]ProviderLimits{
		"prov": {Budget: BudgetLimits{Daily: dec("1.00"), Enforce: true}},
	}, Options{Now: clock.Now})

	d := c.Admit("prov", dec("0.40"))
	d.Ticket.Succeed(time.Millisecond, dec("0.40"))
	d.Ticket.Succeed(time.Millisecond, dec("0.40"))

	st := c.Statuses()
	if len(st) != 1 {
		t.Fatalf("expected one provider status, got %d", len(st))
	}
	if !st[0].SpentDay.Equal(dec("0.40")) {
		t.Fatalf("expected single commit of 0.40, got %s", st[0].SpentDay)
	}
}

func TestSeedSpendFeedsStatuses(t *testing.T) {
	clock := newManualClock()
	c := NewController(map[string]ProviderLimits{
		"prov": {},
	}, Options{Now: clock.Now})

	c.SeedSpend("prov", dec("0.25"), dec("3.00"))

	st := c.Statuses()
	if st[0].ProviderID != "prov" {
		t.Fatalf("unexpected provider id %q", st[0].ProviderID)
	}
	if !st[0].SpentDay.Equal(dec("0.25")) {
		t.Fatalf("expected seeded day spend, got %s", st[0].SpentDay)
	}
	if !st[0].SpentMonth.Equal(dec("3.00")) {
		t.Fatalf("expected seeded month spend, got %s", st[0].SpentMonth)
	}
}

func TestOutcomeHookSeesDenialsAndSuccesses(t *testing.T) {
	clock := newManualClock()
	var outcomes []string
	c := NewController(map[string]ProviderLimits{
		"prov": {Rate: RateLimits{PerMinute: 1, Cooldown: time.Second}},
	}, Options{
		Now: clock.Now,
		OnOutcome: func(provider, outcome string, _ time.Duration) {
			outcomes = append(outcomes, provider+":"+outcome)
		},
	})

	d := c.Admit("prov", decimal.Zero)
	d.Ticket.Succeed(time.Millisecond, decimal.Zero)
	c.Admit("prov", decimal.Zero)

	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %v", outcomes)
	}
	if outcomes[0] != "prov:ok" {
		t.Fatalf("expected success outcome first, got %q", outcomes[0])
	}
	if outcomes[1] != "prov:denied_rate" {
		t.Fatalf("expected rate denial outcome, got %q", outcomes[1])
	}
}
