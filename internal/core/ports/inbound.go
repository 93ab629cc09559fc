package ports

import (
	"context"

	"github.com/kirillkom/meta-search/internal/core/domain"
)

// SearchService is the inbound contract for the cached search pipeline.
type SearchService interface {
	Search(ctx context.Context, query domain.SearchQuery) (*domain.SearchResponse, error)
}

// AdminService is the inbound read model for per-provider admission state
// and cache administration.
type AdminService interface {
	ProviderStatuses(ctx context.Context) []domain.ProviderStatus
	InvalidateCache(ctx context.Context, pattern string) error
}
