package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/kirillkom/meta-search/internal/config"
	"github.com/kirillkom/meta-search/internal/core/domain"
	"github.com/kirillkom/meta-search/internal/core/ports"
	"github.com/kirillkom/meta-search/internal/core/usecase"
	"github.com/kirillkom/meta-search/internal/infrastructure/admission"
	"github.com/kirillkom/meta-search/internal/infrastructure/cache"
	"github.com/kirillkom/meta-search/internal/infrastructure/providers"
	"github.com/kirillkom/meta-search/internal/infrastructure/queue/nats"
	"github.com/kirillkom/meta-search/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/meta-search/internal/infrastructure/resilience"
	"github.com/kirillkom/meta-search/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	SearchUC ports.SearchService
	AdminUC  ports.AdminService

	Providers []config.ProviderSpec
	Admission *admission.Controller

	cache   *cache.Tiered
	bus     ports.InvalidationBus
	closeFn func()
}

type Options struct {
	Logger *slog.Logger

	// Metrics, when set, receives cache, provider and breaker observations.
	// Both server metric sets embed one.
	Metrics *metrics.SearchMetrics
	Service string
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	service := opts.Service
	if service == "" {
		service = "api"
	}

	specs, err := config.LoadProviders(cfg.ProvidersPath)
	if err != nil {
		return nil, fmt.Errorf("load provider catalog: %w", err)
	}

	var closers []func()
	fail := func(step string, err error) (*App, error) {
		runClosers(closers)
		return nil, fmt.Errorf("%s: %w", step, err)
	}

	// The memory tier always runs; the distributed tier and the
	// invalidation fan-out are optional.
	memory := cache.NewMemory(cfg.CacheMemoryCapacity, cfg.CacheMemoryTTL)

	var redisTier cache.DistributedCache
	if cfg.RedisEnabled {
		redisCache := cache.NewRedis(cache.RedisOptions{
			Addr:   cfg.RedisAddr,
			DB:     cfg.RedisDB,
			TTL:    cfg.CacheRedisTTL,
			Logger: logger,
		})
		redisTier = redisCache
		closers = append(closers, func() { _ = redisCache.Close() })
	}

	var bus ports.InvalidationBus
	if cfg.NATSEnabled {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
		})
		if err != nil {
			return fail("init invalidation bus", err)
		}
		bus = queue
		closers = append(closers, queue.Close)
	}

	tieredOpts := cache.TieredOptions{
		Memory: memory,
		Redis:  redisTier,
		Bus:    bus,
		Logger: logger,
	}
	if opts.Metrics != nil {
		m := opts.Metrics
		tieredOpts.OnLookup = func(tier, outcome string) {
			m.RecordCacheLookup(service, tier, outcome == "hit")
		}
	}
	responseCache := cache.NewTiered(tieredOpts)

	var spendStore ports.SpendStore
	if cfg.PostgresEnabled {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return fail("open postgres", err)
		}
		closers = append(closers, func() { _ = db.Close() })
		ledger := postgres.NewSpendLedger(db)
		if err := ledger.EnsureSchema(ctx); err != nil {
			return fail("ensure spend schema", err)
		}
		spendStore = ledger
	}

	admissionOpts := admission.Options{
		Logger:     logger,
		SpendStore: spendStore,
	}
	if opts.Metrics != nil {
		m := opts.Metrics
		admissionOpts.OnBreakerChange = func(provider string, state domain.BreakerState) {
			m.SetBreakerState(service, provider, string(state))
		}
		admissionOpts.OnOutcome = func(provider, outcome string, latency time.Duration) {
			m.RecordProviderDispatch(service, provider, outcome, latency)
		}
	}
	controller := admission.NewController(providerLimits(specs), admissionOpts)
	if spendStore != nil {
		seedSpend(ctx, controller, spendStore, specs, logger)
	}

	registry := providers.NewRegistry(buildAdapters(specs)...)
	profiles := providerProfiles(specs)

	router := usecase.NewRouter(usecase.RouterOptions{
		Registry:  registry,
		Admission: controller,
		Profiles:  profiles,
		Scorers:   []ports.ProviderScorer{usecase.NewDefaultScorer(), usecase.NewHealthScorer()},
		Config: usecase.RouterConfig{
			TopK:              cfg.RouterTopK,
			MinScore:          cfg.RouterMinScore,
			BaseTimeout:       cfg.BaseTimeout,
			MinTimeout:        cfg.MinTimeout,
			MaxTimeout:        cfg.MaxTimeout,
			ComplexityFactor:  cfg.ComplexityFactor,
			CascadeComplexity: cfg.CascadeComplexity,
			AdequacyCount:     cfg.CascadeAdequacyCount,
			AdequacyScore:     cfg.CascadeAdequacyScore,
		},
	})

	merger := usecase.NewMerger(usecase.MergerConfig{
		FuzzyThreshold:   cfg.FuzzyThreshold,
		ContentThreshold: cfg.ContentThreshold,
		ConsensusBoost:   cfg.ConsensusBoost,
		RecencyPenalty:   cfg.RecencyPenalty,
		RecencyWindow:    cfg.RecencyWindow,
	}, profiles)

	searchUC := usecase.NewSearchPipeline(usecase.SearchPipelineOptions{
		Cache:             responseCache,
		Router:            router,
		Merger:            merger,
		Logger:            logger,
		DefaultMaxResults: cfg.DefaultMaxResults,
	})
	adminUC := usecase.NewAdmin(controller, responseCache)

	logger.Info("bootstrap complete",
		"providers", len(specs),
		"redis", cfg.RedisEnabled,
		"postgres", cfg.PostgresEnabled,
		"nats", cfg.NATSEnabled,
	)

	return &App{
		Config:    cfg,
		Logger:    logger,
		SearchUC:  searchUC,
		AdminUC:   adminUC,
		Providers: specs,
		Admission: controller,
		cache:     responseCache,
		bus:       bus,
		closeFn:   func() { runClosers(closers) },
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// RunInvalidationListener blocks until ctx is canceled, dropping remotely
// invalidated entries from the in-process tier. No-op when NATS is disabled.
func (a *App) RunInvalidationListener(ctx context.Context) error {
	if a.bus == nil {
		return nil
	}
	return a.bus.SubscribeInvalidation(ctx, a.cache.HandleRemoteInvalidation)
}

func runClosers(closers []func()) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

// buildAdapters registers every cataloged provider, disabled ones included,
// so admin surfaces can report them. Routing skips disabled providers via
// their profile.
func buildAdapters(specs []config.ProviderSpec) []ports.ProviderAdapter {
	executor := resilience.NewExecutor(resilience.DefaultConfig())
	adapters := make([]ports.ProviderAdapter, 0, len(specs))
	for _, spec := range specs {
		adapters = append(adapters, providers.NewHTTPJSON(providers.HTTPJSONOptions{
			ID:           spec.ID,
			Endpoint:     spec.Endpoint,
			APIKey:       os.Getenv(spec.APIKeyEnv),
			MaxResults:   spec.MaxResults,
			ContentTypes: affinityContentTypes(spec.Affinities),
			CostPerQuery: spec.CostPerQuery.Decimal,
			Executor:     executor,
		}))
	}
	return adapters
}

func providerProfiles(specs []config.ProviderSpec) []domain.ProviderProfile {
	profiles := make([]domain.ProviderProfile, 0, len(specs))
	for _, spec := range specs {
		affinities := make(map[domain.ContentType]float64, len(spec.Affinities))
		for ct, w := range spec.Affinities {
			affinities[domain.ContentType(ct)] = w
		}
		profiles = append(profiles, domain.ProviderProfile{
			ID:            spec.ID,
			Name:          spec.Name,
			Enabled:       spec.Enabled,
			Affinities:    affinities,
			QualityWeight: spec.QualityWeight,
			CostPerQuery:  spec.CostPerQuery.Decimal,
		})
	}
	return profiles
}

func providerLimits(specs []config.ProviderSpec) map[string]admission.ProviderLimits {
	limits := make(map[string]admission.ProviderLimits, len(specs))
	for _, spec := range specs {
		limits[spec.ID] = admission.ProviderLimits{
			Rate: admission.RateLimits{
				PerMinute:   spec.RateLimit.PerMinute,
				PerHour:     spec.RateLimit.PerHour,
				PerDay:      spec.RateLimit.PerDay,
				Concurrency: spec.RateLimit.Concurrency,
				Cooldown:    time.Duration(spec.RateLimit.CooldownSeconds) * time.Second,
			},
			Budget: admission.BudgetLimits{
				PerQuery: spec.Budget.PerQuery.Decimal,
				Daily:    spec.Budget.Daily.Decimal,
				Monthly:  spec.Budget.Monthly.Decimal,
				Enforce:  spec.Budget.Enforce,
			},
			Breaker: admission.BreakerSettings{
				FailureThreshold: uint32(spec.Breaker.FailureThreshold),
				RecoveryTimeout:  time.Duration(spec.Breaker.RecoveryTimeoutSeconds) * time.Second,
			},
		}
	}
	return limits
}

func affinityContentTypes(affinities map[string]float64) []domain.ContentType {
	if len(affinities) == 0 {
		return nil
	}
	keys := make([]string, 0, len(affinities))
	for ct := range affinities {
		keys = append(keys, ct)
	}
	sort.Strings(keys)
	types := make([]domain.ContentType, 0, len(keys))
	for _, ct := range keys {
		types = append(types, domain.ContentType(ct))
	}
	return types
}

func seedSpend(ctx context.Context, controller *admission.Controller, store ports.SpendStore, specs []config.ProviderSpec, logger *slog.Logger) {
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for _, spec := range specs {
		day, err := store.DailySpend(ctx, spec.ID, now)
		if err != nil {
			logger.Warn("seed daily spend", "provider", spec.ID, "error", err)
			continue
		}
		month, err := store.MonthlySpend(ctx, spec.ID, monthStart)
		if err != nil {
			logger.Warn("seed monthly spend", "provider", spec.ID, "error", err)
			continue
		}
		controller.SeedSpend(spec.ID, day, month)
	}
}
