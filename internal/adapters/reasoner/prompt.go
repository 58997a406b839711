package reasoner

import (
	"fmt"
	"strings"

	"threatlens/internal/ports"
)

const systemPrompt = `You are an expert cybersecurity analyst specializing in threat intelligence analysis.

Your task is to classify threat indicators based on enrichment data and observations.

Risk Classification Guidelines:
- HIGH RISK (score 7.0-10.0): Clear indicators of malicious activity, active threats, confirmed malware
- MEDIUM RISK (score 4.0-6.9): Suspicious patterns, potential threats, requires monitoring
- LOW RISK (score 0.0-3.9): Minimal indicators, likely benign, low threat level

Consider these factors in your analysis:
1. Enrichment scores from technical sources
2. Specific observations about the indicator
3. Patterns that indicate malicious intent
4. Context of the indicator type (domain, IP, hash, URL)
5. Confidence in the available data

Be analytical, precise, and security-focused in your assessment.`

const formatInstructions = `Respond with a single JSON object and nothing else, using exactly these keys:
{"risk_level": "high" | "medium" | "low", "risk_score": number 0.0-10.0, "confidence": number 0.0-1.0, "reasoning": string, "key_factors": [string, ...]}`

// UserPrompt renders the request the reasoning service sees.
func UserPrompt(req ports.ReasoningRequest) string {
	var b strings.Builder
	b.WriteString("Analyze this threat indicator:\n\n")
	fmt.Fprintf(&b, "Indicator Type: %s\n", req.IndicatorType)
	fmt.Fprintf(&b, "Indicator Value: %s\n", req.IndicatorValue)
	fmt.Fprintf(&b, "Analysis Plan: %s\n\n", req.Plan)

	b.WriteString("Enrichment Analysis:\n")
	fmt.Fprintf(&b, "Average Enrichment Score: %.2f/10.0\n", req.AverageScore)
	fmt.Fprintf(&b, "Maximum Enrichment Score: %.2f/10.0\n", req.MaxScore)
	b.WriteString("Risk Assessment Guidance: Treat the highest enrichment score as the primary risk baseline to avoid diluting strong signals.\n\n")

	b.WriteString("Key Observations:\n")
	if len(req.Observations) == 0 {
		b.WriteString("- No observations available\n")
	}
	for _, o := range req.Observations {
		b.WriteString("- ")
		b.WriteString(o)
		b.WriteByte('\n')
	}
	b.WriteString("\nBased on this information, provide a comprehensive threat classification.\n\n")
	b.WriteString(formatInstructions)
	return b.String()
}
