// Package scoring aggregates enrichment outcomes and maps numeric scores onto
// risk levels.
package scoring

import (
	"fmt"
	"math"

	"threatlens/internal/domain"
)

// Aggregate summarizes the successful subset of outcomes. Failed outcomes only
// contribute to FailedCount.
func Aggregate(outcomes []domain.EnrichmentOutcome) domain.AggregateSignal {
	var (
		agg   domain.AggregateSignal
		sum   float64
		types = make(map[domain.SignalType]struct{})
	)
	for _, o := range outcomes {
		if !o.Success {
			agg.FailedCount++
			continue
		}
		agg.SuccessfulCount++
		sum += o.Score
		if agg.SuccessfulCount == 1 || o.Score > agg.MaxScore {
			agg.MaxScore = o.Score
		}
		types[o.SignalType] = struct{}{}
	}
	if agg.SuccessfulCount > 0 {
		agg.AverageScore = sum / float64(agg.SuccessfulCount)
	}
	agg.ContributingTypes = domain.SortedSignalTypes(types)
	return agg
}

// Thresholds drive alignment and level derivation.
type Thresholds struct {
	High    float64 `yaml:"high"`
	Medium  float64 `yaml:"medium"`
	Floor   float64 `yaml:"floor"`
	Ceiling float64 `yaml:"ceiling"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{High: 7.0, Medium: 4.0, Floor: 0.0, Ceiling: 10.0}
}

// SignalCeiling is the top of the provider score scale. Verdict scores share
// the scale, so the ceiling is not configurable below or above it.
const SignalCeiling = 10.0

// Validate requires 0 <= Floor < Medium < High <= Ceiling == SignalCeiling.
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{"high": t.High, "medium": t.Medium, "floor": t.Floor, "ceiling": t.Ceiling} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &domain.ConfigurationError{Field: "thresholds." + name, Reason: "must be a finite number"}
		}
	}
	if t.Floor < 0 {
		return &domain.ConfigurationError{Field: "thresholds.floor", Reason: "must not be negative"}
	}
	if t.Ceiling != SignalCeiling {
		return &domain.ConfigurationError{
			Field:  "thresholds.ceiling",
			Reason: fmt.Sprintf("must be %.1f, got %.2f", SignalCeiling, t.Ceiling),
		}
	}
	if !(t.Floor < t.Medium && t.Medium < t.High && t.High <= t.Ceiling) {
		return &domain.ConfigurationError{
			Field:  "thresholds",
			Reason: fmt.Sprintf("want floor < medium < high <= ceiling, got %.2f/%.2f/%.2f/%.2f", t.Floor, t.Medium, t.High, t.Ceiling),
		}
	}
	return nil
}

// Clamp bounds a score to [Floor, Ceiling]. NaN maps to Floor.
func (t Thresholds) Clamp(score float64) float64 {
	if math.IsNaN(score) {
		return t.Floor
	}
	return math.Min(math.Max(score, t.Floor), t.Ceiling)
}

// Align never lets the reasoned score fall below the strongest single signal.
func (t Thresholds) Align(reasoned float64, agg domain.AggregateSignal) float64 {
	score := t.Clamp(reasoned)
	if agg.SuccessfulCount > 0 && agg.MaxScore > score {
		score = agg.MaxScore
	}
	return t.Clamp(score)
}

// Level derives the risk level from an aligned score.
func (t Thresholds) Level(score float64) domain.RiskLevel {
	switch {
	case score >= t.High:
		return domain.RiskHigh
	case score >= t.Medium:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}
