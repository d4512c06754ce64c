package catalog

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/liaosvcaf/explain-selection-with-ai/internal/provider"
)

// Service serves normalized model catalogs. The first successful fetch per
// provider is memoized for the rest of the process lifetime; repeated
// failures trip a per-provider circuit breaker so a dead endpoint fails fast
// instead of hanging every settings interaction.
type Service struct {
	fetcher  *Fetcher
	cache    *Cache
	breakers map[provider.Type]*gobreaker.CircuitBreaker
}

func NewService(fetcher *Fetcher, cache *Cache) *Service {
	breakers := make(map[provider.Type]*gobreaker.CircuitBreaker)
	for _, p := range []provider.Type{provider.TypeOpenAI, provider.TypeOpenRouter, provider.TypeOllama, provider.TypeCustom} {
		settings := gobreaker.Settings{
			Name:        string(p),
			MaxRequests: 3,
			Interval:    5 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}
		breakers[p] = gobreaker.NewCircuitBreaker(settings)
	}
	return &Service{
		fetcher:  fetcher,
		cache:    cache,
		breakers: breakers,
	}
}

// Models returns the catalog for the active provider, filtered by query.
// Cached lists are returned as-is, even when credentials changed since the
// fetch; use the cache's Invalidate to force a refresh.
func (s *Service) Models(ctx context.Context, set provider.Settings, query string) ([]ModelInfo, error) {
	if models, ok := s.cache.Get(set.Provider); ok {
		return Search(models, query), nil
	}

	cb := s.breakers[set.Provider]
	result, err := cb.Execute(func() (interface{}, error) {
		return s.fetcher.Fetch(ctx, set)
	})
	if err != nil {
		return nil, err
	}

	models := result.([]ModelInfo)
	s.cache.Put(set.Provider, models)
	return Search(models, query), nil
}

// Lookup finds one model in the cached catalog, fetching if needed. It is
// how the streaming pipeline learns the active model's pricing.
func (s *Service) Lookup(ctx context.Context, set provider.Settings, id string) (ModelInfo, bool) {
	models, err := s.Models(ctx, set, "")
	if err != nil {
		return ModelInfo{}, false
	}
	for _, m := range models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// Invalidate drops the cached catalog for one provider. The next Models call
// refetches.
func (s *Service) Invalidate(p provider.Type) {
	s.cache.Invalidate(p)
}

// InvalidateAll drops every cached catalog.
func (s *Service) InvalidateAll() {
	s.cache.InvalidateAll()
}
