// Package enrichment dispatches an indicator to every applicable provider and
// collects exactly one outcome per provider.
package enrichment

import (
	"fmt"

	"threatlens/internal/domain"
	"threatlens/internal/ports"
)

// Registry maps indicator types to providers in registration order. Register
// is meant for startup; once sealed the registry is read-only and may be
// shared across goroutines.
type Registry struct {
	byType map[domain.IndicatorType][]ports.Provider
	all    []ports.Provider
	ids    map[string]struct{}
	sealed bool
}

func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[domain.IndicatorType][]ports.Provider),
		ids:    make(map[string]struct{}),
	}
}

// Register adds p under every indicator type it declares applicable.
func (r *Registry) Register(p ports.Provider) error {
	if r.sealed {
		return &domain.ConfigurationError{Field: "providers", Reason: "registry is sealed"}
	}
	if p == nil || p.ID() == "" {
		return &domain.ConfigurationError{Field: "providers", Reason: "provider must have an id"}
	}
	id := p.ID()
	if _, dup := r.ids[id]; dup {
		return &domain.ConfigurationError{Field: "providers", Reason: fmt.Sprintf("duplicate provider %q", id)}
	}
	var types []domain.IndicatorType
	for _, t := range domain.IndicatorTypes {
		if p.Applicable(t) {
			types = append(types, t)
		}
	}
	if len(types) == 0 {
		return &domain.ConfigurationError{Field: "providers", Reason: fmt.Sprintf("provider %q applies to no indicator type", id)}
	}
	for _, t := range types {
		r.byType[t] = append(r.byType[t], p)
	}
	r.ids[id] = struct{}{}
	r.all = append(r.all, p)
	return nil
}

// RegisterAll registers every provider or returns the first failure.
func (r *Registry) RegisterAll(ps ...ports.Provider) error {
	for _, p := range ps {
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// Seal freezes the registry.
func (r *Registry) Seal() { r.sealed = true }

// For returns the providers applicable to t. The slice must not be modified.
func (r *Registry) For(t domain.IndicatorType) []ports.Provider {
	return r.byType[t]
}

// Providers returns all registered providers in registration order.
func (r *Registry) Providers() []ports.Provider {
	out := make([]ports.Provider, len(r.all))
	copy(out, r.all)
	return out
}

// TypesFor lists the indicator types p was registered under.
func (r *Registry) TypesFor(p ports.Provider) []domain.IndicatorType {
	var out []domain.IndicatorType
	for _, t := range domain.IndicatorTypes {
		for _, q := range r.byType[t] {
			if q.ID() == p.ID() {
				out = append(out, t)
				break
			}
		}
	}
	return out
}
