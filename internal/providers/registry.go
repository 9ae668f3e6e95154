package providers

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrProviderNotFound is returned when no provider fills a variant
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when a variant is filled twice
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Entry pairs a provider with its slot
type Entry struct {
	Variant  Variant
	Provider Provider
}

// Registry maps variants to provider instances
type Registry struct {
	mu        sync.RWMutex
	providers map[Variant]Provider
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[Variant]Provider),
	}
}

// Register fills a variant slot
func (r *Registry) Register(variant Variant, provider Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}
	if !variant.Valid() {
		return fmt.Errorf("unknown provider variant %q", variant)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[variant]; exists {
		return ErrProviderAlreadyRegistered
	}
	r.providers[variant] = provider
	return nil
}

// Get retrieves the provider for a variant
func (r *Registry) Get(variant Variant) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[variant]
	if !exists {
		return nil, ErrProviderNotFound
	}
	return provider, nil
}

// Ordered returns the registered providers in priority order
func (r *Registry) Ordered() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.providers))
	for _, v := range Variants {
		if p, ok := r.providers[v]; ok {
			entries = append(entries, Entry{Variant: v, Provider: p})
		}
	}
	return entries
}

// ListProviders returns provider names in priority order
func (r *Registry) ListProviders() []string {
	entries := r.Ordered()
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Provider.Name())
	}
	return names
}

// Count returns the number of registered providers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
