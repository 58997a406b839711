package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"threatlens/internal/ports"
)

const HeuristicModel = "heuristic-v1"

var alarmMarkers = []string{"CRITICAL", "CONFIRMED", "HIGH RISK"}

// Heuristic answers without a language model: it weighs the strongest signal
// over the average and lifts alarming observations into key factors. Used
// when no API key is configured.
type Heuristic struct{}

var _ ports.Reasoner = Heuristic{}

func (Heuristic) Model() string { return HeuristicModel }

type heuristicAnswer struct {
	RiskLevel  string   `json:"risk_level"`
	RiskScore  float64  `json:"risk_score"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	KeyFactors []string `json:"key_factors"`
}

func (Heuristic) Reason(ctx context.Context, req ports.ReasoningRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	score := math.Round((0.6*req.MaxScore+0.4*req.AverageScore)*100) / 100
	level := "low"
	switch {
	case score >= 7:
		level = "high"
	case score >= 4:
		level = "medium"
	}

	var factors []string
	alarming := 0
	for _, o := range req.Observations {
		for _, m := range alarmMarkers {
			if strings.Contains(o, m) {
				factors = append(factors, o)
				alarming++
				break
			}
		}
	}
	if len(factors) == 0 {
		factors = append(factors, req.Observations[:min(3, len(req.Observations))]...)
	}
	if len(factors) > 5 {
		factors = factors[:5]
	}

	// sources that agree make for a more confident call
	spread := math.Abs(req.MaxScore - req.AverageScore)
	confidence := math.Round((0.35+0.5*(1-spread/10))*100) / 100
	if len(req.Observations) == 0 {
		confidence = 0.2
	}

	answer := heuristicAnswer{
		RiskLevel:  level,
		RiskScore:  score,
		Confidence: confidence,
		Reasoning: fmt.Sprintf("%s. Average enrichment score %.2f, strongest signal %.2f; %d observation(s), %d flagged as alarming.",
			req.Plan, req.AverageScore, req.MaxScore, len(req.Observations), alarming),
		KeyFactors: factors,
	}
	out, err := json.Marshal(answer)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
