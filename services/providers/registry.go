package providers

import (
	"fmt"
	"sync"

	"github.com/structura/aip-gateway/services"
)

// Registry holds the configured provider adapters
type Registry struct {
	mu       sync.RWMutex
	invokers map[string]Invoker
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{invokers: make(map[string]Invoker)}
}

// Register adds a provider adapter under its name
func (r *Registry) Register(inv Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokers[inv.Name()] = inv
}

// Get returns the adapter for a provider name
func (r *Registry) Get(provider string) (Invoker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inv, ok := r.invokers[provider]
	if !ok {
		return nil, services.NewProviderError(
			fmt.Sprintf("unknown provider: %s", provider), nil,
			map[string]interface{}{"provider": provider})
	}
	return inv, nil
}

// Names returns the registered provider names
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.invokers))
	for name := range r.invokers {
		names = append(names, name)
	}
	return names
}
