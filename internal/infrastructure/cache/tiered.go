package cache

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/kirillkom/meta-search/internal/core/domain"
	"github.com/kirillkom/meta-search/internal/core/ports"
)

// DistributedCache is the shared-tier contract. *RedisCache implements it.
type DistributedCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Delete(ctx context.Context, pattern string) error
}

// Tiered composes the in-process and distributed tiers behind a single
// response cache. Lookups try memory first, then the distributed tier
// with a write-back, and either tier may be absent.
type Tiered struct {
	memory   *MemoryCache
	redis    DistributedCache
	bus      ports.InvalidationBus
	logger   *slog.Logger
	onLookup func(tier, outcome string)
}

type TieredOptions struct {
	Memory *MemoryCache
	Redis  DistributedCache
	Bus    ports.InvalidationBus
	Logger *slog.Logger
	// OnLookup observes per-tier lookup outcomes ("hit" or "miss").
	OnLookup func(tier, outcome string)
}

func NewTiered(opts TieredOptions) *Tiered {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.OnLookup == nil {
		opts.OnLookup = func(string, string) {}
	}
	return &Tiered{
		memory:   opts.Memory,
		redis:    opts.Redis,
		bus:      opts.Bus,
		logger:   opts.Logger,
		onLookup: opts.OnLookup,
	}
}

func (t *Tiered) Get(ctx context.Context, fingerprint string) (*domain.SearchResponse, string, bool) {
	if t.memory != nil {
		if raw, ok := t.memory.Get(fingerprint); ok {
			if resp := t.decode(fingerprint, raw); resp != nil {
				t.onLookup(domain.CacheTierMemory, "hit")
				return resp, domain.CacheTierMemory, true
			}
			t.memory.Delete(fingerprint)
		}
		t.onLookup(domain.CacheTierMemory, "miss")
	}

	if t.redis != nil {
		if raw, ok := t.redis.Get(ctx, fingerprint); ok {
			if resp := t.decode(fingerprint, raw); resp != nil {
				if t.memory != nil {
					t.memory.Set(fingerprint, raw)
				}
				t.onLookup(domain.CacheTierRedis, "hit")
				return resp, domain.CacheTierRedis, true
			}
		}
		t.onLookup(domain.CacheTierRedis, "miss")
	}

	return nil, "", false
}

func (t *Tiered) Set(ctx context.Context, fingerprint string, resp *domain.SearchResponse) {
	raw, err := json.Marshal(resp)
	if err != nil {
		t.logger.Warn("cache_encode_failed", "fingerprint", fingerprint, "error", err)
		return
	}
	if t.memory != nil {
		t.memory.Set(fingerprint, raw)
	}
	if t.redis != nil {
		t.redis.Set(ctx, fingerprint, raw)
	}
}

// Invalidate drops matching entries from both tiers and broadcasts the
// pattern so other instances drop their memory tier too.
func (t *Tiered) Invalidate(ctx context.Context, pattern string) error {
	if t.memory != nil {
		t.memory.DeleteMatching(pattern)
	}
	if t.redis != nil {
		if err := t.redis.Delete(ctx, pattern); err != nil {
			return err
		}
	}
	if t.bus != nil {
		if err := t.bus.PublishInvalidation(ctx, pattern); err != nil {
			t.logger.Warn("invalidation_publish_failed", "pattern", pattern, "error", err)
		}
	}
	return nil
}

// HandleRemoteInvalidation applies an invalidation received from another
// instance. Only the memory tier is dropped; the sender already cleared
// the shared Redis tier.
func (t *Tiered) HandleRemoteInvalidation(pattern string) {
	if t.memory != nil {
		t.memory.DeleteMatching(pattern)
	}
	t.logger.Debug("cache_remote_invalidation", "pattern", pattern)
}

func (t *Tiered) decode(fingerprint string, raw []byte) *domain.SearchResponse {
	var resp domain.SearchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.logger.Warn("cache_decode_failed", "fingerprint", fingerprint, "error", err)
		return nil
	}
	return &resp
}
