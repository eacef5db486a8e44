package providers

import (
	"errors"
	"fmt"
	"sync"
)

// Registry maps backend names to instances, preserving registration order.
// Both facades build one at construction time; the backend set is closed after that.
type Registry[K ~string, P any] struct {
	mu        sync.RWMutex
	providers map[K]P
	order     []K
}

// NewRegistry creates a new provider registry
func NewRegistry[K ~string, P any]() *Registry[K, P] {
	return &Registry[K, P]{
		providers: make(map[K]P),
	}
}

// Register registers a provider instance under name
func (r *Registry[K, P]) Register(name K, provider P) error {
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("%w: %s", ErrProviderAlreadyRegistered, name)
	}

	r.providers[name] = provider
	r.order = append(r.order, name)
	return nil
}

// Get retrieves a provider by name
func (r *Registry[K, P]) Get(name K) (P, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		var zero P
		return zero, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return provider, nil
}

// Has reports whether name is registered
func (r *Registry[K, P]) Has(name K) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.providers[name]
	return exists
}

// Names returns all registered provider names in registration order
func (r *Registry[K, P]) Names() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]K, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of registered providers
func (r *Registry[K, P]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}
