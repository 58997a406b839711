package classifier

import (
	"encoding/json"
	"math"
	"strings"

	"threatlens/internal/domain"
)

// Assessment is the structured payload the reasoning service must return.
type Assessment struct {
	RiskLevel  domain.RiskLevel
	RiskScore  float64
	Confidence float64
	Reasoning  string
	KeyFactors []string
}

type assessmentJSON struct {
	RiskLevel  *string  `json:"risk_level"`
	RiskScore  *float64 `json:"risk_score"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	KeyFactors []string `json:"key_factors"`
}

// ParseAssessment extracts the JSON object from a reasoning response. Markdown
// code fences and surrounding prose are tolerated; a missing or unrecognized
// risk_level or a missing risk_score is not.
func ParseAssessment(raw string) (Assessment, error) {
	body := extractObject(raw)
	if body == "" {
		return Assessment{}, &domain.ReasoningParseError{Reason: "no JSON object in response"}
	}

	var payload assessmentJSON
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return Assessment{}, &domain.ReasoningParseError{Reason: "malformed JSON", Err: err}
	}
	if payload.RiskLevel == nil {
		return Assessment{}, &domain.ReasoningParseError{Reason: "missing risk_level"}
	}
	level, ok := domain.ParseRiskLevel(*payload.RiskLevel)
	if !ok {
		return Assessment{}, &domain.ReasoningParseError{Reason: "unrecognized risk_level " + *payload.RiskLevel}
	}
	if payload.RiskScore == nil {
		return Assessment{}, &domain.ReasoningParseError{Reason: "missing risk_score"}
	}

	a := Assessment{
		RiskLevel:  level,
		RiskScore:  *payload.RiskScore,
		Reasoning:  strings.TrimSpace(payload.Reasoning),
		KeyFactors: payload.KeyFactors,
	}
	if payload.Confidence != nil {
		a.Confidence = clampUnit(*payload.Confidence)
	}
	return a, nil
}

func extractObject(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0), 1)
}
