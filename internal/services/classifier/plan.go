// Package classifier turns enrichment outcomes into a verdict in three
// sequential stages: Plan, Observe and Reason.
package classifier

import (
	"fmt"
	"strings"

	"threatlens/internal/domain"
)

// Plan describes what is being analyzed and with which evidence.
type Plan struct {
	IndicatorType  domain.IndicatorType
	IndicatorValue string
	Successful     int
	Total          int
	SignalTypes    []domain.SignalType
}

// BuildPlan is pure.
func BuildPlan(ind domain.Indicator, agg domain.AggregateSignal) Plan {
	return Plan{
		IndicatorType:  ind.Type,
		IndicatorValue: ind.Value,
		Successful:     agg.SuccessfulCount,
		Total:          agg.SuccessfulCount + agg.FailedCount,
		SignalTypes:    agg.ContributingTypes,
	}
}

func (p Plan) String() string {
	parts := []string{
		fmt.Sprintf("Analyzing %s indicator: %s", p.IndicatorType, p.IndicatorValue),
		fmt.Sprintf("Enrichment sources responded: %d of %d", p.Successful, p.Total),
	}
	if len(p.SignalTypes) > 0 {
		names := make([]string, len(p.SignalTypes))
		for i, t := range p.SignalTypes {
			names[i] = string(t)
		}
		parts = append(parts, "Signal types: "+strings.Join(names, ", "))
	}
	return strings.Join(parts, " | ")
}
