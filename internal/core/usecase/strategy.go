package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/kirillkom/meta-search/internal/core/domain"
	"github.com/kirillkom/meta-search/internal/core/ports"
)

// executionStrategy turns an admitted candidate list into per-provider
// dispatch outcomes. Strategies own concurrency and timeouts; admission
// and budget checks happen per dispatch so a stopped cascade never burns
// quota for providers it skipped.
type executionStrategy interface {
	name() domain.Strategy
	execute(ctx context.Context, router *Router, plan *routePlan) []dispatchOutcome
}

// chooseStrategy picks the execution strategy for one query. An explicit
// request always wins. Small candidate sets fan out because there is
// nothing to save by sequencing; complex queries over larger sets cascade
// so cost stays proportional to how hard the query is.
func chooseStrategy(explicit domain.Strategy, features domain.QueryFeatures, candidateCount int, complexityCutoff float64) domain.Strategy {
	if explicit == domain.StrategyParallel || explicit == domain.StrategyCascade {
		return explicit
	}
	if candidateCount <= 2 {
		return domain.StrategyParallel
	}
	if features.Complexity >= complexityCutoff {
		return domain.StrategyCascade
	}
	return domain.StrategyParallel
}

type parallelStrategy struct{}

func (s *parallelStrategy) name() domain.Strategy { return domain.StrategyParallel }

// execute admits every candidate up front, then dispatches the admitted
// ones concurrently under one shared deadline. A provider that fails or
// times out records its own breaker failure and never cancels siblings.
func (s *parallelStrategy) execute(ctx context.Context, router *Router, plan *routePlan) []dispatchOutcome {
	outcomes := make([]dispatchOutcome, len(plan.candidates))
	tickets := make([]ports.DispatchTicket, len(plan.candidates))
	for i, c := range plan.candidates {
		outcomes[i] = dispatchOutcome{providerID: c.profile.ID, estimate: c.score.Cost}
		if !plan.budget.tryReserve(c.score.Cost) {
			outcomes[i].excluded = domain.ExcludedBudget
			outcomes[i].detail = "query budget"
			continue
		}
		decision := router.admission.Admit(c.profile.ID, c.score.Cost)
		if !decision.Allowed {
			plan.budget.refund(c.score.Cost)
			outcomes[i].excluded = decision.Reason
			outcomes[i].detail = decision.Detail
			continue
		}
		tickets[i] = decision.Ticket
	}

	callCtx, cancel := context.WithTimeout(ctx, plan.timeout)
	defer cancel()

	var wg sync.WaitGroup
	for i := range plan.candidates {
		if tickets[i] == nil {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := plan.candidates[i]
			started := router.now()
			results, err := c.adapter.Search(callCtx, plan.query)
			if err != nil {
				tickets[i].Fail(err)
				outcomes[i].err = err
				return
			}
			tickets[i].Succeed(router.now().Sub(started), c.score.Cost)
			outcomes[i].results = results
		}(i)
	}
	wg.Wait()

	for i := range outcomes {
		if outcomes[i].err != nil {
			plan.budget.refund(plan.candidates[i].score.Cost)
		}
	}
	return outcomes
}

type cascadeStrategy struct{}

func (s *cascadeStrategy) name() domain.Strategy { return domain.StrategyCascade }

// execute walks candidates best-first, each dispatch with its own timeout,
// and stops once the accumulated results meet the adequacy threshold.
// A failed dispatch releases its share of the query budget so the next
// candidate can still run.
func (s *cascadeStrategy) execute(ctx context.Context, router *Router, plan *routePlan) []dispatchOutcome {
	outcomes := make([]dispatchOutcome, 0, len(plan.candidates))
	collected := 0
	bestScore := 0.0
	for _, c := range plan.candidates {
		if adequate(router.cfg, collected, bestScore) {
			break
		}
		if ctx.Err() != nil {
			break
		}
		out := dispatchOutcome{providerID: c.profile.ID, estimate: c.score.Cost}
		if !plan.budget.tryReserve(c.score.Cost) {
			out.excluded = domain.ExcludedBudget
			out.detail = "query budget"
			outcomes = append(outcomes, out)
			continue
		}
		decision := router.admission.Admit(c.profile.ID, c.score.Cost)
		if !decision.Allowed {
			plan.budget.refund(c.score.Cost)
			out.excluded = decision.Reason
			out.detail = decision.Detail
			outcomes = append(outcomes, out)
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, plan.timeout)
		started := router.now()
		results, err := c.adapter.Search(callCtx, plan.query)
		cancel()
		if err != nil {
			decision.Ticket.Fail(err)
			plan.budget.refund(c.score.Cost)
			out.err = err
			outcomes = append(outcomes, out)
			continue
		}
		decision.Ticket.Succeed(router.now().Sub(started), c.score.Cost)
		out.results = results
		outcomes = append(outcomes, out)

		collected += len(results)
		for _, result := range results {
			if result.Score > bestScore {
				bestScore = result.Score
			}
		}
	}
	return outcomes
}

func adequate(cfg RouterConfig, collected int, bestScore float64) bool {
	if cfg.AdequacyCount <= 0 {
		return false
	}
	if collected < cfg.AdequacyCount {
		return false
	}
	return cfg.AdequacyScore <= 0 || bestScore >= cfg.AdequacyScore
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
