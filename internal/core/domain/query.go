package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ContentType string

const (
	ContentFactual     ContentType = "factual"
	ContentAcademic    ContentType = "academic"
	ContentTechnical   ContentType = "technical"
	ContentNews        ContentType = "news"
	ContentCommercial  ContentType = "commercial"
	ContentEducational ContentType = "educational"
	ContentMixed       ContentType = "mixed"
)

type Strategy string

const (
	StrategyParallel Strategy = "parallel"
	StrategyCascade  Strategy = "cascade"
)

// SearchQuery is the immutable pipeline input. Optional fields keep their
// zero value when unset; Budget is nil when no per-query ceiling applies.
type SearchQuery struct {
	Text        string            `json:"text"`
	MaxResults  int               `json:"max_results,omitempty"`
	ContentType ContentType       `json:"content_type,omitempty"`
	Providers   []string          `json:"providers,omitempty"`
	Budget      *decimal.Decimal  `json:"budget,omitempty"`
	Timeout     time.Duration     `json:"timeout,omitempty"`
	Strategy    Strategy          `json:"strategy,omitempty"`
	Hints       map[string]string `json:"hints,omitempty"`
}

// QueryFeatures is derived once per query by the analyzer and never mutated.
type QueryFeatures struct {
	ContentType ContentType `json:"content_type"`
	Complexity  float64     `json:"complexity"`
	Keywords    []string    `json:"keywords"`
	TokenCount  int         `json:"token_count"`
	MultiIntent bool        `json:"multi_intent"`
	Ambiguous   bool        `json:"ambiguous"`
}

// ProviderQuery is the normalized parameter set handed to one provider
// adapter. The per-call timeout travels on the context.
type ProviderQuery struct {
	Text        string      `json:"text"`
	MaxResults  int         `json:"max_results"`
	ContentType ContentType `json:"content_type,omitempty"`
}
