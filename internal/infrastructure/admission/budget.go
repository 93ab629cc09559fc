package admission

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BudgetLimits of zero mean unlimited on that window. With Enforce off the
// gate always admits and only reports the overage.
type BudgetLimits struct {
	PerQuery decimal.Decimal
	Daily    decimal.Decimal
	Monthly  decimal.Decimal
	Enforce  bool
}

// budgetGate tracks one provider's spend. Callers hold the provider lock.
// Reservations hold estimated cost between admission and completion; commit
// settles the actual amount into the day and month counters.
type budgetGate struct {
	limits BudgetLimits

	spentDay   decimal.Decimal
	spentMonth decimal.Decimal
	reserved   decimal.Decimal

	dayKey   string
	monthKey string
}

func newBudgetGate(limits BudgetLimits) *budgetGate {
	return &budgetGate{limits: limits}
}

func (g *budgetGate) rollover(now time.Time) {
	day := now.Format("2006-01-02")
	month := now.Format("2006-01")
	if g.dayKey != day {
		g.dayKey = day
		g.spentDay = decimal.Zero
	}
	if g.monthKey != month {
		g.monthKey = month
		g.spentMonth = decimal.Zero
	}
}

// seed loads persisted counters, keeping whatever was already accumulated
// in this process.
func (g *budgetGate) seed(now time.Time, spentDay, spentMonth decimal.Decimal) {
	g.rollover(now)
	if spentDay.GreaterThan(g.spentDay) {
		g.spentDay = spentDay
	}
	if spentMonth.GreaterThan(g.spentMonth) {
		g.spentMonth = spentMonth
	}
}

// tryReserve admits the estimated cost against every configured limit. The
// returned detail is non-empty when a limit was exceeded, even in log-only
// mode where the reservation still goes through.
func (g *budgetGate) tryReserve(now time.Time, cost decimal.Decimal) (bool, string) {
	g.rollover(now)

	detail := ""
	switch {
	case g.limits.PerQuery.IsPositive() && cost.GreaterThan(g.limits.PerQuery):
		detail = fmt.Sprintf("estimated cost %s exceeds per-query limit %s", cost, g.limits.PerQuery)
	case g.limits.Daily.IsPositive() && g.spentDay.Add(g.reserved).Add(cost).GreaterThan(g.limits.Daily):
		detail = fmt.Sprintf("daily spend %s + %s exceeds limit %s", g.spentDay.Add(g.reserved), cost, g.limits.Daily)
	case g.limits.Monthly.IsPositive() && g.spentMonth.Add(g.reserved).Add(cost).GreaterThan(g.limits.Monthly):
		detail = fmt.Sprintf("monthly spend %s + %s exceeds limit %s", g.spentMonth.Add(g.reserved), cost, g.limits.Monthly)
	}

	if detail != "" && g.limits.Enforce {
		return false, detail
	}
	g.reserved = g.reserved.Add(cost)
	return true, detail
}

func (g *budgetGate) release(cost decimal.Decimal) {
	g.reserved = g.reserved.Sub(cost)
	if g.reserved.IsNegative() {
		g.reserved = decimal.Zero
	}
}

func (g *budgetGate) commit(now time.Time, reservedCost, actualCost decimal.Decimal) {
	g.release(reservedCost)
	g.rollover(now)
	g.spentDay = g.spentDay.Add(actualCost)
	g.spentMonth = g.spentMonth.Add(actualCost)
}

func (g *budgetGate) spent() (day, month decimal.Decimal) {
	return g.spentDay, g.spentMonth
}
