package httpadapter

import (
	"net/http"

	"github.com/kirillkom/meta-search/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidQuery):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrBudgetExhausted):
		return http.StatusPaymentRequired
	case domain.IsKind(err, domain.ErrProvidersThrottled):
		return http.StatusTooManyRequests
	case domain.IsKind(err, domain.ErrNoProviders), domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
