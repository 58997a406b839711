package reports

import (
	"context"
	"errors"
	"strings"

	"threatlens/internal/domain"
	"threatlens/internal/ports"
	"threatlens/internal/services/scoring"
)

var ErrNotFound = domain.ErrNotFound

type Store interface {
	ports.IndicatorRepository
	ports.OutcomeRepository
	ports.VerdictRepository
}

type Service struct {
	store Store
}

func New(store Store) *Service { return &Service{store: store} }

// EnrichmentSummary is computed over every stored outcome of an indicator.
type EnrichmentSummary struct {
	Total        int
	Successful   int
	Failed       int
	AverageScore float64
	MaxScore     float64
	SignalTypes  []domain.SignalType
}

type Report struct {
	Indicator  domain.Indicator
	Verdict    *domain.Verdict
	Enrichment EnrichmentSummary
}

// Latest builds the report for an indicator value. Values are matched in
// their normalized form, so "Evil.Example." finds "evil.example".
func (s *Service) Latest(ctx context.Context, value string) (Report, error) {
	ind, err := s.find(ctx, value)
	if err != nil {
		return Report{}, err
	}
	outcomes, err := s.store.ListOutcomes(ctx, ind.ID)
	if err != nil {
		return Report{}, err
	}
	agg := scoring.Aggregate(outcomes)
	rep := Report{
		Indicator: ind,
		Enrichment: EnrichmentSummary{
			Total:        len(outcomes),
			Successful:   agg.SuccessfulCount,
			Failed:       agg.FailedCount,
			AverageScore: agg.AverageScore,
			MaxScore:     agg.MaxScore,
			SignalTypes:  agg.ContributingTypes,
		},
	}
	v, found, err := s.store.LatestVerdict(ctx, ind.ID)
	if err != nil {
		return Report{}, err
	}
	if found {
		rep.Verdict = &v
	}
	return rep, nil
}

func (s *Service) find(ctx context.Context, value string) (domain.Indicator, error) {
	plain := strings.ToLower(strings.TrimSpace(value))
	if plain == "" {
		return domain.Indicator{}, ErrNotFound
	}
	ind, err := s.store.FindIndicator(ctx, plain)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return ind, err
	}
	if host := domain.NormalizeValue(domain.TypeDomain, value); host != plain {
		return s.store.FindIndicator(ctx, host)
	}
	return ind, err
}

type Stats struct {
	Total       int
	ByRiskLevel map[domain.RiskLevel]int
}

// Stats counts indicators by the level of their latest verdict. Every level
// is present in the map.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.store.CountByRiskLevel(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{ByRiskLevel: make(map[domain.RiskLevel]int, 4)}
	for _, level := range []domain.RiskLevel{domain.RiskHigh, domain.RiskMedium, domain.RiskLow, domain.RiskUnknown} {
		st.ByRiskLevel[level] = counts[level]
		st.Total += counts[level]
	}
	return st, nil
}
