package usecase

import (
	"context"
	"reflect"
	"testing"

	"github.com/kirillkom/meta-search/internal/core/domain"
)

func TestProviderStatusesPassthrough(t *testing.T) {
	admission := newFakeAdmission()
	admission.statuses = []domain.ProviderStatus{
		{ProviderID: "a", Breaker: domain.BreakerClosed},
		{ProviderID: "b", Breaker: domain.BreakerOpen, Failures: 5},
	}
	admin := NewAdmin(admission, newFakeResponseCache())

	got := admin.ProviderStatuses(context.Background())
	if !reflect.DeepEqual(got, admission.statuses) {
		t.Fatalf("unexpected statuses: %+v", got)
	}
}

func TestInvalidateCacheRequiresPattern(t *testing.T) {
	admin := NewAdmin(newFakeAdmission(), newFakeResponseCache())
	for _, pattern := range []string{"", "   "} {
		if err := admin.InvalidateCache(context.Background(), pattern); !domain.IsKind(err, domain.ErrInvalidQuery) {
			t.Fatalf("expected ErrInvalidQuery for pattern %q, got %v", pattern, err)
		}
	}
}

func TestInvalidateCacheDelegates(t *testing.T) {
	cache := newFakeResponseCache()
	admin := NewAdmin(newFakeAdmission(), cache)

	if err := admin.InvalidateCache(context.Background(), "abc*"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "abc*" {
		t.Fatalf("expected pattern forwarded, got %v", cache.invalidated)
	}
}
