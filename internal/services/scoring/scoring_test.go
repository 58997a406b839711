package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threatlens/internal/domain"
)

func ok(provider string, st domain.SignalType, score float64) domain.EnrichmentOutcome {
	return domain.EnrichmentOutcome{ProviderID: provider, SignalType: st, Success: true, Score: score}
}

func failed(provider string) domain.EnrichmentOutcome {
	return domain.EnrichmentOutcome{ProviderID: provider, ErrorKind: domain.ErrorKindTimeout}
}

func TestAggregate(t *testing.T) {
	agg := Aggregate([]domain.EnrichmentOutcome{
		ok("a", domain.SignalReputation, 2.0),
		failed("b"),
		ok("c", domain.SignalFeedMembership, 9.0),
	})

	assert.Equal(t, 2, agg.SuccessfulCount)
	assert.Equal(t, 1, agg.FailedCount)
	assert.InDelta(t, 5.5, agg.AverageScore, 1e-9)
	assert.Equal(t, 9.0, agg.MaxScore)
	assert.Equal(t, []domain.SignalType{domain.SignalFeedMembership, domain.SignalReputation}, agg.ContributingTypes)
}

func TestAggregate_NoSuccesses(t *testing.T) {
	agg := Aggregate([]domain.EnrichmentOutcome{failed("a")})
	assert.Zero(t, agg.SuccessfulCount)
	assert.Zero(t, agg.AverageScore)
	assert.Zero(t, agg.MaxScore)
	assert.Empty(t, agg.ContributingTypes)

	assert.Zero(t, Aggregate(nil).FailedCount)
}

func TestAggregate_OrderIndependent(t *testing.T) {
	a := Aggregate([]domain.EnrichmentOutcome{ok("a", domain.SignalWhois, 1), ok("b", domain.SignalWhois, 8), ok("c", domain.SignalWhois, 3)})
	b := Aggregate([]domain.EnrichmentOutcome{ok("c", domain.SignalWhois, 3), ok("a", domain.SignalWhois, 1), ok("b", domain.SignalWhois, 8)})
	assert.Equal(t, a, b)
}

func TestLevelBoundaries(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		score float64
		want  domain.RiskLevel
	}{
		{10.0, domain.RiskHigh},
		{7.0, domain.RiskHigh},
		{6.99, domain.RiskMedium},
		{4.0, domain.RiskMedium},
		{3.99, domain.RiskLow},
		{0, domain.RiskLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, th.Level(tt.score), "score %.2f", tt.score)
	}
}

func TestAlign(t *testing.T) {
	th := DefaultThresholds()
	agg := domain.AggregateSignal{SuccessfulCount: 2, AverageScore: 5.5, MaxScore: 9.0}

	assert.Equal(t, 9.0, th.Align(5.0, agg))
	assert.Equal(t, 9.5, th.Align(9.5, agg))
	assert.Equal(t, 10.0, th.Align(14, agg))
	assert.Equal(t, 9.0, th.Align(math.NaN(), agg))

	// no successes: nothing to align to
	assert.Equal(t, 3.0, th.Align(3.0, domain.AggregateSignal{}))
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, DefaultThresholds().Validate())

	bad := []Thresholds{
		{High: 4, Medium: 7, Floor: 0, Ceiling: 10},
		{High: 7, Medium: 4, Floor: -1, Ceiling: 10},
		{High: 11, Medium: 4, Floor: 0, Ceiling: 10},
		{High: 7, Medium: 0, Floor: 0, Ceiling: 10},
		{High: math.NaN(), Medium: 4, Floor: 0, Ceiling: 10},
		{High: 7, Medium: 4, Floor: 0, Ceiling: 8},
		{High: 7, Medium: 4, Floor: 0, Ceiling: 20},
	}
	for _, th := range bad {
		err := th.Validate()
		require.Error(t, err, "%+v", th)
		assert.True(t, domain.IsConfigurationError(err))
	}
}

func TestAlign_NeverBelowMaxSignal(t *testing.T) {
	th := DefaultThresholds()
	agg := domain.AggregateSignal{SuccessfulCount: 2, AverageScore: 5, MaxScore: 9}

	for _, reasoned := range []float64{-3, 0, 4.5, 9, 15, math.Inf(1)} {
		got := th.Align(reasoned, agg)
		assert.GreaterOrEqual(t, got, agg.MaxScore, "reasoned %v", reasoned)
		assert.LessOrEqual(t, got, SignalCeiling, "reasoned %v", reasoned)
	}
}
