package sources

import (
	"threatlens/internal/domain"
	"threatlens/internal/ports"
)

// Catalog is satisfied by the enrichment registry.
type Catalog interface {
	Providers() []ports.Provider
	TypesFor(p ports.Provider) []domain.IndicatorType
}

type Source struct {
	ID             string
	SignalType     domain.SignalType
	IndicatorTypes []domain.IndicatorType
}

type Service struct {
	catalog Catalog
}

func New(catalog Catalog) *Service { return &Service{catalog: catalog} }

// List returns the registered providers in registration order.
func (s *Service) List() []Source {
	providers := s.catalog.Providers()
	out := make([]Source, 0, len(providers))
	for _, p := range providers {
		out = append(out, Source{ID: p.ID(), SignalType: p.SignalType(), IndicatorTypes: s.catalog.TypesFor(p)})
	}
	return out
}
