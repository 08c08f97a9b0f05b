package imagegen

import (
	"fmt"
	"strings"
)

// Registry resolves synthesis providers by name. Accounts may name a provider
// in their settings; an empty name falls back to the registry default.
type Registry struct {
	fallback  string
	providers map[string]Provider
}

// NewRegistry builds a registry with the given default provider name. Each
// provider is keyed by its Name.
func NewRegistry(fallback string, providers ...Provider) *Registry {
	r := &Registry{
		fallback:  normalizeName(fallback),
		providers: make(map[string]Provider, len(providers)),
	}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider under its name.
func (r *Registry) Register(p Provider) {
	r.providers[normalizeName(p.Name())] = p
}

// Select returns the provider for name, falling back to the registry default
// when name is empty. A name with no registered provider is ErrNotConfigured.
func (r *Registry) Select(name string) (Provider, error) {
	key := normalizeName(name)
	if key == "" {
		key = r.fallback
	}
	if key == "" {
		return nil, fmt.Errorf("%w: no provider selected", ErrNotConfigured)
	}
	p, ok := r.providers[key]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q has no credentials", ErrNotConfigured, key)
	}
	return p, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
