package ports

import (
	"context"

	"threatlens/internal/domain"
)

// Provider is an enrichment source. Implementations must honor ctx
// cancellation; the orchestrator abandons calls that outlive their deadline.
type Provider interface {
	ID() string
	SignalType() domain.SignalType
	Applicable(t domain.IndicatorType) bool
	// Invoke returns a *domain.ProviderError on failure. Any other error is
	// classified by the orchestrator.
	Invoke(ctx context.Context, value string, t domain.IndicatorType) (domain.Signal, error)
}

// ReasoningRequest is the input of the Reason stage.
type ReasoningRequest struct {
	IndicatorType  domain.IndicatorType
	IndicatorValue string
	Plan           string
	Observations   []string
	AverageScore   float64
	MaxScore       float64
}

// Reasoner is the external reasoning service (an LLM). It returns the raw
// response text; the pipeline owns parsing.
type Reasoner interface {
	Model() string
	Reason(ctx context.Context, req ReasoningRequest) (string, error)
}

// Enricher fans an indicator out to its providers.
type Enricher interface {
	Enrich(ctx context.Context, ind domain.Indicator) []domain.EnrichmentOutcome
}

// Classifier turns outcomes into a verdict. It never fails.
type Classifier interface {
	Classify(ctx context.Context, ind domain.Indicator, outcomes []domain.EnrichmentOutcome) domain.Verdict
}
