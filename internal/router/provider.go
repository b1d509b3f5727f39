package router

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/supporthq/sdkdoctor/internal/config"
	"github.com/supporthq/sdkdoctor/internal/router/adapters"
)

// Registry manages provider adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]adapters.ProviderAdapter
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]adapters.ProviderAdapter),
	}
}

func (r *Registry) Register(name string, adapter adapters.ProviderAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = adapter
}

func (r *Registry) Get(name string) (adapters.ProviderAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Replace swaps this registry's adapter set for src's, under the registry's
// own lock. Used on config reload so in-flight lookups stay safe.
func (r *Registry) Replace(src *Registry) {
	src.mu.RLock()
	next := make(map[string]adapters.ProviderAdapter, len(src.adapters))
	for name, a := range src.adapters {
		next[name] = a
	}
	src.mu.RUnlock()

	r.mu.Lock()
	r.adapters = next
	r.mu.Unlock()
}

// BuildFromConfig builds provider adapters from the providers config.
func BuildFromConfig(provCfg *config.ProvidersConfig) *Registry {
	registry := NewRegistry()
	for name, cfg := range provCfg.Providers {
		client := &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxConcurrent,
				MaxIdleConnsPerHost: cfg.MaxConcurrent,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}

		var adapter adapters.ProviderAdapter
		switch cfg.Type {
		case "openai":
			adapter = adapters.NewOpenAIAdapter(cfg, client)
		case "anthropic":
			adapter = adapters.NewAnthropicAdapter(cfg, client)
		default:
			// Fall back to OpenAI-compatible for unknown types
			adapter = adapters.NewOpenAIAdapter(cfg, client)
		}
		registry.Register(name, adapter)
	}
	return registry
}

// ResolveRoute finds an available provider for a model request: the primary
// route first, then fallbacks in order. Providers whose circuit breaker is
// open are skipped.
func ResolveRoute(modelsCfg *config.ModelsConfig, registry *Registry, health *HealthTracker, modelName string) (adapters.ProviderAdapter, string, error) {
	mapping, ok := modelsCfg.Models[modelName]
	if !ok {
		return nil, "", fmt.Errorf("unknown model: %s", modelName)
	}

	routes := append([]config.ProviderRoute{mapping.Primary}, mapping.Fallback...)
	for _, route := range routes {
		adapter, ok := registry.Get(route.Provider)
		if !ok {
			continue
		}
		if health != nil && !health.IsAvailable(route.Provider) {
			continue
		}
		return adapter, route.Model, nil
	}

	return nil, "", fmt.Errorf("no available provider for model: %s", modelName)
}
