package usecase

import (
	"time"

	"github.com/kirillkom/meta-search/internal/core/domain"
)

// DefaultScorer combines static content-type affinity, the configured
// quality weight, and recent provider health. It is total: every profile
// gets a score and the error return is always nil.
type DefaultScorer struct {
	now func() time.Time
}

func NewDefaultScorer() *DefaultScorer {
	return &DefaultScorer{now: time.Now}
}

func (s *DefaultScorer) Name() string { return "default" }

func (s *DefaultScorer) Score(features domain.QueryFeatures, profile domain.ProviderProfile, health domain.ProviderHealth) (domain.ProviderScore, error) {
	affinity, confidence := affinityFor(features.ContentType, profile)
	if features.Ambiguous {
		confidence -= 0.2
	}
	if confidence < 0.1 {
		confidence = 0.1
	}

	score := clamp01(0.5*affinity + 0.3*profile.QualityWeight + 0.2*healthScore(health, s.now()))

	role := domain.RoleFallback
	if score >= 0.5 {
		role = domain.RolePrimary
	}
	return domain.ProviderScore{
		ProviderID: profile.ID,
		Score:      score,
		Confidence: confidence,
		Cost:       profile.CostPerQuery,
		Latency:    health.AvgLatency,
		Role:       role,
	}, nil
}

func affinityFor(contentType domain.ContentType, profile domain.ProviderProfile) (affinity, confidence float64) {
	if value, ok := profile.Affinities[contentType]; ok {
		return value, 0.9
	}
	if contentType == domain.ContentMixed {
		return meanAffinity(profile.Affinities), 0.6
	}
	return 0.25, 0.4
}

func meanAffinity(affinities map[domain.ContentType]float64) float64 {
	if len(affinities) == 0 {
		return 0.5
	}
	total := 0.0
	for _, value := range affinities {
		total += value
	}
	return total / float64(len(affinities))
}

func healthScore(health domain.ProviderHealth, now time.Time) float64 {
	score := 1.0 / (1.0 + float64(health.ConsecutiveFailures))
	if !health.LastFailure.IsZero() &&
		health.LastFailure.After(health.LastSuccess) &&
		now.Sub(health.LastFailure) < 5*time.Minute {
		score *= 0.5
	}
	return score
}

// HealthScorer ranks on observed behavior alone: failure streaks and
// latency. Its confidence is high only when there is recent evidence, so
// for quiet providers the default scorer wins the selection.
type HealthScorer struct {
	now func() time.Time
}

func NewHealthScorer() *HealthScorer {
	return &HealthScorer{now: time.Now}
}

func (s *HealthScorer) Name() string { return "health" }

func (s *HealthScorer) Score(_ domain.QueryFeatures, profile domain.ProviderProfile, health domain.ProviderHealth) (domain.ProviderScore, error) {
	now := s.now()
	speed := 1.0
	if health.AvgLatency > 0 {
		speed = 1.0 - clamp01(float64(health.AvgLatency)/float64(3*time.Second))
	}
	score := clamp01(0.6*healthScore(health, now) + 0.4*speed)

	confidence := 0.3
	if recentEvidence(health, now) {
		confidence = 0.85
	}

	role := domain.RoleFallback
	if score >= 0.5 {
		role = domain.RolePrimary
	}
	return domain.ProviderScore{
		ProviderID: profile.ID,
		Score:      score,
		Confidence: confidence,
		Cost:       profile.CostPerQuery,
		Latency:    health.AvgLatency,
		Role:       role,
	}, nil
}

func recentEvidence(health domain.ProviderHealth, now time.Time) bool {
	const window = 10 * time.Minute
	if !health.LastSuccess.IsZero() && now.Sub(health.LastSuccess) < window {
		return true
	}
	return !health.LastFailure.IsZero() && now.Sub(health.LastFailure) < window
}
