package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SearchResult is one hit from one provider, scores on the provider's own
// scale.
type SearchResult struct {
	Title       string            `json:"title"`
	URL         string            `json:"url"`
	Snippet     string            `json:"snippet,omitempty"`
	Content     string            `json:"content,omitempty"`
	Score       float64           `json:"score"`
	Provider    string            `json:"provider"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// MergedResult is a deduplicated hit with its final rank and the providers
// that contributed to it.
type MergedResult struct {
	SearchResult
	Rank       int      `json:"rank"`
	Consensus  int      `json:"consensus_count"`
	FinalScore float64  `json:"final_score"`
	Sources    []string `json:"sources"`
}

const (
	CacheTierMemory = "memory"
	CacheTierRedis  = "redis"
)

type SearchResponse struct {
	Query         string          `json:"query"`
	Results       []MergedResult  `json:"results"`
	TotalResults  int             `json:"total_results"`
	ProvidersUsed []string        `json:"providers_used"`
	Strategy      Strategy        `json:"strategy,omitempty"`
	ElapsedMS     int64           `json:"elapsed_ms"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	Cached        bool            `json:"cached"`
	CacheTier     string          `json:"cache_tier,omitempty"`
}
