package ports

import (
	"context"

	"threatlens/internal/domain"
)

// IndicatorRepository stores indicators keyed by normalized value.
type IndicatorRepository interface {
	// UpsertIndicator inserts or, for an existing value, bumps last_seen and
	// returns the stored row.
	UpsertIndicator(ctx context.Context, ind domain.Indicator) (domain.Indicator, error)
	GetIndicator(ctx context.Context, id string) (domain.Indicator, error)
	FindIndicator(ctx context.Context, value string) (domain.Indicator, error)
}

// OutcomeRepository is append-only.
type OutcomeRepository interface {
	AppendOutcomes(ctx context.Context, indicatorID string, outcomes []domain.EnrichmentOutcome) error
	ListOutcomes(ctx context.Context, indicatorID string) ([]domain.EnrichmentOutcome, error)
}

// VerdictRepository is append-only; the latest row wins on reads.
type VerdictRepository interface {
	AppendVerdict(ctx context.Context, indicatorID string, v domain.Verdict) error
	LatestVerdict(ctx context.Context, indicatorID string) (v domain.Verdict, found bool, err error)
	CountByRiskLevel(ctx context.Context) (map[domain.RiskLevel]int, error)
}

// Store bundles the persistence ports one adapter provides.
type Store interface {
	IndicatorRepository
	OutcomeRepository
	VerdictRepository
	JobRepository
	Close()
}
