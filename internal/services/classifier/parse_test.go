package classifier

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threatlens/internal/domain"
)

func TestParseAssessment(t *testing.T) {
	raw := "```json\n{\"risk_level\": \"High Risk\", \"risk_score\": 8.2, \"confidence\": 1.4, \"reasoning\": \" listed \", \"key_factors\": [\"a\", \"b\"]}\n```"

	a, err := ParseAssessment(raw)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, a.RiskLevel)
	assert.Equal(t, 8.2, a.RiskScore)
	assert.Equal(t, 1.0, a.Confidence)
	assert.Equal(t, "listed", a.Reasoning)
	assert.Equal(t, []string{"a", "b"}, a.KeyFactors)
}

func TestParseAssessment_ProseAround(t *testing.T) {
	a, err := ParseAssessment(`Here you go: {"risk_level":"low","risk_score":1} hope it helps`)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLow, a.RiskLevel)
	assert.Zero(t, a.Confidence)
}

func TestParseAssessment_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"not json", "the indicator looks bad"},
		{"broken json", `{"risk_level": "high",`},
		{"missing level", `{"risk_score": 5}`},
		{"bad level", `{"risk_level": "critical", "risk_score": 5}`},
		{"missing score", `{"risk_level": "high"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAssessment(tt.raw)
			require.Error(t, err)
			var perr *domain.ReasoningParseError
			assert.True(t, errors.As(err, &perr))
		})
	}
}
