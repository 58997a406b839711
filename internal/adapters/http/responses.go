package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"threatlens/internal/domain"
	"threatlens/internal/services/analysis"
	"threatlens/internal/services/reports"
)

type indicatorRequest struct {
	Type   string   `json:"type" validate:"required,oneof=ip domain hash url email"`
	Value  string   `json:"value" validate:"required,max=2048"`
	Source string   `json:"source" validate:"max=256"`
	Tags   []string `json:"tags" validate:"max=32,dive,max=64"`
}

type batchRequest struct {
	IndicatorIDs []string `json:"indicator_ids" validate:"required,min=1,dive,required"`
}

type indicatorJSON struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	Source    string    `json:"source,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

type verdictJSON struct {
	RiskLevel    string    `json:"risk_level"`
	RiskScore    float64   `json:"risk_score"`
	Confidence   float64   `json:"confidence"`
	Reasoning    string    `json:"reasoning"`
	KeyFactors   []string  `json:"key_factors"`
	Model        string    `json:"model,omitempty"`
	AverageScore float64   `json:"average_score"`
	MaxScore     float64   `json:"max_score"`
	ClassifiedAt time.Time `json:"classified_at"`
}

type outcomeJSON struct {
	Provider   string   `json:"provider"`
	SignalType string   `json:"signal_type"`
	Success    bool     `json:"success"`
	Score      *float64 `json:"score,omitempty"`
	ErrorKind  string   `json:"error_kind,omitempty"`
	Attempts   int      `json:"attempts"`
	LatencyMS  int64    `json:"latency_ms"`
}

type classificationJSON struct {
	Indicator indicatorJSON `json:"indicator"`
	Verdict   verdictJSON   `json:"verdict"`
	Cached    bool          `json:"cached"`
	Outcomes  []outcomeJSON `json:"outcomes,omitempty"`
}

type acceptedJSON struct {
	Indicator indicatorJSON `json:"indicator"`
	JobID     string        `json:"job_id"`
}

type batchItemJSON struct {
	Success   bool    `json:"success"`
	RiskLevel string  `json:"risk_level,omitempty"`
	RiskScore float64 `json:"risk_score,omitempty"`
	Error     string  `json:"error,omitempty"`
}

type batchJSON struct {
	Total      int                      `json:"total"`
	Successful int                      `json:"successful"`
	Failed     int                      `json:"failed"`
	Results    map[string]batchItemJSON `json:"results"`
}

type enrichmentSummaryJSON struct {
	Total        int      `json:"total"`
	Successful   int      `json:"successful"`
	Failed       int      `json:"failed"`
	AverageScore float64  `json:"average_score"`
	MaxScore     float64  `json:"max_score"`
	SignalTypes  []string `json:"signal_types"`
}

type reportJSON struct {
	Indicator  indicatorJSON         `json:"indicator"`
	Verdict    *verdictJSON          `json:"verdict"`
	Enrichment enrichmentSummaryJSON `json:"enrichment"`
}

type statsJSON struct {
	Total       int            `json:"total_classified"`
	ByRiskLevel map[string]int `json:"by_risk_level"`
}

type sourceJSON struct {
	ID             string   `json:"id"`
	SignalType     string   `json:"signal_type"`
	IndicatorTypes []string `json:"indicator_types"`
}

type errorJSON struct {
	Error string `json:"error"`
}

func toIndicatorJSON(ind domain.Indicator) indicatorJSON {
	return indicatorJSON{
		ID:        ind.ID,
		Type:      string(ind.Type),
		Value:     ind.Value,
		Source:    ind.Source,
		Tags:      ind.Tags,
		FirstSeen: ind.FirstSeen,
		LastSeen:  ind.LastSeen,
	}
}

func toVerdictJSON(v domain.Verdict) verdictJSON {
	factors := v.KeyFactors
	if factors == nil {
		factors = []string{}
	}
	return verdictJSON{
		RiskLevel:    string(v.RiskLevel),
		RiskScore:    v.RiskScore,
		Confidence:   v.Confidence,
		Reasoning:    v.Reasoning,
		KeyFactors:   factors,
		Model:        v.Model,
		AverageScore: v.AverageScore,
		MaxScore:     v.MaxScore,
		ClassifiedAt: v.ClassifiedAt,
	}
}

func toClassificationJSON(res analysis.Result) classificationJSON {
	out := classificationJSON{
		Indicator: toIndicatorJSON(res.Indicator),
		Verdict:   toVerdictJSON(res.Verdict),
		Cached:    res.Cached,
	}
	for _, o := range res.Outcomes {
		oj := outcomeJSON{
			Provider:   o.ProviderID,
			SignalType: string(o.SignalType),
			Success:    o.Success,
			ErrorKind:  string(o.ErrorKind),
			Attempts:   o.Attempts,
			LatencyMS:  o.Latency.Milliseconds(),
		}
		if o.Success {
			score := o.Score
			oj.Score = &score
		}
		out.Outcomes = append(out.Outcomes, oj)
	}
	return out
}

func toReportJSON(rep reports.Report) reportJSON {
	types := make([]string, 0, len(rep.Enrichment.SignalTypes))
	for _, t := range rep.Enrichment.SignalTypes {
		types = append(types, string(t))
	}
	out := reportJSON{
		Indicator: toIndicatorJSON(rep.Indicator),
		Enrichment: enrichmentSummaryJSON{
			Total:        rep.Enrichment.Total,
			Successful:   rep.Enrichment.Successful,
			Failed:       rep.Enrichment.Failed,
			AverageScore: rep.Enrichment.AverageScore,
			MaxScore:     rep.Enrichment.MaxScore,
			SignalTypes:  types,
		},
	}
	if rep.Verdict != nil {
		v := toVerdictJSON(*rep.Verdict)
		out.Verdict = &v
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorJSON{Error: msg})
}
