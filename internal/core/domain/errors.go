package domain

import (
	"errors"
	"fmt"
)

// Query-level failures surface to the caller as typed errors. Provider-level
// failures stay inside the router and admission control unless they eliminate
// every candidate.
var (
	ErrInvalidQuery       = errors.New("invalid query")
	ErrNoProviders        = errors.New("no providers available")
	ErrBudgetExhausted    = errors.New("budget exhausted")
	ErrProvidersThrottled = errors.New("providers throttled")

	ErrProviderTimeout     = errors.New("provider timeout")
	ErrProviderThrottled   = errors.New("provider throttled")
	ErrProviderAuth        = errors.New("provider auth failure")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrTemporary           = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
