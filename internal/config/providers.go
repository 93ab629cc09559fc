package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Money is a decimal currency amount read from its YAML string form.
// An empty or absent value is zero.
type Money struct {
	decimal.Decimal
}

func (m *Money) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		m.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", s, err)
	}
	m.Decimal = d
	return nil
}

type RateLimitSpec struct {
	PerMinute       int `yaml:"per_minute"`
	PerHour         int `yaml:"per_hour"`
	PerDay          int `yaml:"per_day"`
	Concurrency     int `yaml:"concurrency"`
	CooldownSeconds int `yaml:"cooldown_seconds"`
}

// BudgetSpec limits of zero mean unlimited on that window.
type BudgetSpec struct {
	PerQuery Money `yaml:"per_query"`
	Daily    Money `yaml:"daily"`
	Monthly  Money `yaml:"monthly"`
	Enforce  bool  `yaml:"enforce"`
}

type BreakerSpec struct {
	FailureThreshold       int `yaml:"failure_threshold"`
	RecoveryTimeoutSeconds int `yaml:"recovery_timeout_seconds"`
}

type ProviderSpec struct {
	ID            string             `yaml:"id"`
	Name          string             `yaml:"name"`
	Enabled       bool               `yaml:"enabled"`
	Endpoint      string             `yaml:"endpoint"`
	APIKeyEnv     string             `yaml:"api_key_env"`
	QualityWeight float64            `yaml:"quality_weight"`
	CostPerQuery  Money              `yaml:"cost_per_query"`
	MaxResults    int                `yaml:"max_results"`
	Affinities    map[string]float64 `yaml:"affinities"`
	RateLimit     RateLimitSpec      `yaml:"rate_limit"`
	Budget        BudgetSpec         `yaml:"budget"`
	Breaker       BreakerSpec        `yaml:"breaker"`
}

type providersFile struct {
	Providers []ProviderSpec `yaml:"providers"`
}

// LoadProviders reads the provider catalog, validates it, and fills in
// defaults for unset limits.
func LoadProviders(path string) ([]ProviderSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	var f providersFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse providers file: %w", err)
	}
	if len(f.Providers) == 0 {
		return nil, fmt.Errorf("providers file %s lists no providers", path)
	}
	seen := make(map[string]bool, len(f.Providers))
	for i := range f.Providers {
		p := &f.Providers[i]
		if p.ID == "" {
			return nil, fmt.Errorf("provider at index %d has no id", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate provider id %q", p.ID)
		}
		seen[p.ID] = true
		if p.Endpoint == "" {
			return nil, fmt.Errorf("provider %q has no endpoint", p.ID)
		}
		if p.QualityWeight < 0 || p.QualityWeight > 1 {
			return nil, fmt.Errorf("provider %q quality_weight %v out of [0,1]", p.ID, p.QualityWeight)
		}
		for ct, w := range p.Affinities {
			if w < 0 || w > 1 {
				return nil, fmt.Errorf("provider %q affinity %q=%v out of [0,1]", p.ID, ct, w)
			}
		}
		if p.CostPerQuery.IsNegative() {
			return nil, fmt.Errorf("provider %q has negative cost_per_query", p.ID)
		}
		applyProviderDefaults(p)
	}
	return f.Providers, nil
}

func applyProviderDefaults(p *ProviderSpec) {
	if p.Name == "" {
		p.Name = p.ID
	}
	if p.MaxResults <= 0 {
		p.MaxResults = 20
	}
	if p.RateLimit.PerMinute <= 0 {
		p.RateLimit.PerMinute = 60
	}
	if p.RateLimit.PerHour <= 0 {
		p.RateLimit.PerHour = 1000
	}
	if p.RateLimit.PerDay <= 0 {
		p.RateLimit.PerDay = 10000
	}
	if p.RateLimit.Concurrency <= 0 {
		p.RateLimit.Concurrency = 8
	}
	if p.RateLimit.CooldownSeconds <= 0 {
		p.RateLimit.CooldownSeconds = 30
	}
	if p.Breaker.FailureThreshold <= 0 {
		p.Breaker.FailureThreshold = 5
	}
	if p.Breaker.RecoveryTimeoutSeconds <= 0 {
		p.Breaker.RecoveryTimeoutSeconds = 60
	}
}
