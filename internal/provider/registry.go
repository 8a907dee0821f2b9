package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kozo2/Hatchling/internal/config"
)

// Factory constructs a provider from settings.
type Factory func(settings *config.Settings) Provider

// Registry manages available providers. Factories are registered once;
// instances are created lazily and cached.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	instances map[string]Provider
	settings  *config.Settings
}

// NewRegistry creates a registry for the given settings.
func NewRegistry(settings *config.Settings) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Provider),
		settings:  settings,
	}
}

// NewDefaultRegistry creates a registry with the built-in backends.
func NewDefaultRegistry(settings *config.Settings) *Registry {
	r := NewRegistry(settings)
	_ = r.RegisterFactory(OllamaID, NewOllama)
	_ = r.RegisterFactory(OpenAIID, NewOpenAI)
	return r
}

// RegisterFactory adds a provider factory. Registering the same id twice is
// an error.
func (r *Registry) RegisterFactory(id string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("provider already registered: %s", id)
	}
	r.factories[id] = factory
	return nil
}

// Get returns the provider with the given id, creating it on first use.
func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	if p, ok := r.instances[id]; ok {
		r.mu.RUnlock()
		return p, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.instances[id]; ok {
		return p, nil
	}
	factory, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", id)
	}
	p := factory(r.settings)
	r.instances[id] = p
	return p, nil
}

// Current returns the provider selected by the settings.
func (r *Registry) Current() (Provider, error) {
	return r.Get(r.settings.LLM.Provider)
}

// IDs returns all registered provider identifiers, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reset drops the cached instance for id so the next Get rebuilds it from
// current settings. Used after model or host changes.
func (r *Registry) Reset(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.instances[id]; ok {
		_ = p.Close()
		delete(r.instances, id)
	}
}

// Close closes every instantiated provider.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for id, p := range r.instances {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.instances, id)
	}
	return firstErr
}
