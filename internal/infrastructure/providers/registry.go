package providers

import (
	"sort"

	"github.com/kirillkom/meta-search/internal/core/ports"
)

// Registry is the fixed set of provider adapters built at startup.
type Registry struct {
	adapters map[string]ports.ProviderAdapter
	ordered  []ports.ProviderAdapter
}

func NewRegistry(adapters ...ports.ProviderAdapter) *Registry {
	r := &Registry{adapters: make(map[string]ports.ProviderAdapter, len(adapters))}
	for _, adapter := range adapters {
		if _, exists := r.adapters[adapter.ID()]; exists {
			continue
		}
		r.adapters[adapter.ID()] = adapter
		r.ordered = append(r.ordered, adapter)
	}
	sort.Slice(r.ordered, func(i, j int) bool { return r.ordered[i].ID() < r.ordered[j].ID() })
	return r
}

func (r *Registry) Get(id string) (ports.ProviderAdapter, bool) {
	adapter, ok := r.adapters[id]
	return adapter, ok
}

// All returns the adapters in ID order so routing decisions stay
// deterministic across runs.
func (r *Registry) All() []ports.ProviderAdapter {
	out := make([]ports.ProviderAdapter, len(r.ordered))
	copy(out, r.ordered)
	return out
}
