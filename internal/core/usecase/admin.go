package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/kirillkom/meta-search/internal/core/domain"
	"github.com/kirillkom/meta-search/internal/core/ports"
)

// AdminUseCase exposes the operational read model and cache controls.
// It implements ports.AdminService.
type AdminUseCase struct {
	admission ports.AdmissionController
	cache     ports.ResponseCache
}

func NewAdmin(admission ports.AdmissionController, cache ports.ResponseCache) *AdminUseCase {
	return &AdminUseCase{admission: admission, cache: cache}
}

func (a *AdminUseCase) ProviderStatuses(ctx context.Context) []domain.ProviderStatus {
	return a.admission.Statuses()
}

func (a *AdminUseCase) InvalidateCache(ctx context.Context, pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return domain.WrapError(domain.ErrInvalidQuery, "invalidate cache", errors.New("empty pattern"))
	}
	return a.cache.Invalidate(ctx, pattern)
}
