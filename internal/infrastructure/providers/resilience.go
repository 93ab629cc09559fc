package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/meta-search/internal/core/domain"
)

type HTTPStatusError struct {
	Provider   string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "provider status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("provider %s status: %s", e.Provider, e.Status)
	}
	return fmt.Sprintf("provider %s status: %s: %s", e.Provider, e.Status, strings.TrimSpace(e.Body))
}

// retryableSearchError keeps retries to transient transport faults.
// Throttle responses are never retried here: the admission layer owns
// backoff for those and an immediate retry would burn provider quota.
func retryableSearchError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// wrapProviderError maps a raw dispatch failure onto the provider error
// kinds the dispatch ticket classifies on.
func wrapProviderError(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrProviderTimeout) ||
		domain.IsKind(err, domain.ErrProviderThrottled) ||
		domain.IsKind(err, domain.ErrProviderAuth) ||
		domain.IsKind(err, domain.ErrProviderUnavailable) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrProviderTimeout, "search", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.WrapError(domain.ErrProviderTimeout, "search", err)
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests:
			return domain.WrapError(domain.ErrProviderThrottled, "search", err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.WrapError(domain.ErrProviderAuth, "search", err)
		case http.StatusRequestTimeout:
			return domain.WrapError(domain.ErrProviderTimeout, "search", err)
		}
	}

	return domain.WrapError(domain.ErrProviderUnavailable, "search", err)
}
