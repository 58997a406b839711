package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Core domain models used by the enrichment and classification layers. The
// HTTP and storage adapters keep their own wire/row shapes and map onto these.

// IndicatorType enumerates the supported observable categories.
type IndicatorType string

const (
	TypeIP     IndicatorType = "ip"
	TypeDomain IndicatorType = "domain"
	TypeHash   IndicatorType = "hash"
	TypeURL    IndicatorType = "url"
	TypeEmail  IndicatorType = "email"
)

// IndicatorTypes lists every known type in a stable order.
var IndicatorTypes = []IndicatorType{TypeIP, TypeDomain, TypeHash, TypeURL, TypeEmail}

// ParseIndicatorType accepts a case-insensitive type name.
func ParseIndicatorType(s string) (IndicatorType, error) {
	t := IndicatorType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range IndicatorTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown indicator type %q", s)
}

type Indicator struct {
	ID        string
	Type      IndicatorType
	Value     string
	Source    string
	Tags      []string
	FirstSeen time.Time
	LastSeen  time.Time
}

// NewIndicator validates the type and returns an indicator carrying the
// normalized value, which is its identity.
func NewIndicator(t IndicatorType, value string) (Indicator, error) {
	if _, err := ParseIndicatorType(string(t)); err != nil {
		return Indicator{}, err
	}
	v := NormalizeValue(t, value)
	if v == "" {
		return Indicator{}, fmt.Errorf("empty %s indicator value", t)
	}
	return Indicator{Type: t, Value: v}, nil
}

// SignalType is the category a provider belongs to. Observe keys its
// normalization table on it.
type SignalType string

const (
	SignalReputation     SignalType = "reputation"
	SignalFeedMembership SignalType = "feed_membership"
	SignalHashLookup     SignalType = "hash_lookup"
	SignalWhois          SignalType = "whois"
)

// Signal is what a provider hands back on success.
type Signal struct {
	Score  float64
	Detail map[string]any
}

// EnrichmentOutcome records one (indicator, provider) dispatch. Score is only
// meaningful when Success is true; ErrorKind only when it is false.
type EnrichmentOutcome struct {
	ProviderID   string
	SignalType   SignalType
	Success      bool
	Score        float64
	RawDetail    map[string]any
	ErrorKind    ErrorKind
	ErrorMessage string
	Attempts     int
	Latency      time.Duration
	EnrichedAt   time.Time
}

// AggregateSignal summarizes the successful outcomes for one indicator.
type AggregateSignal struct {
	SuccessfulCount   int
	FailedCount       int
	AverageScore      float64
	MaxScore          float64
	ContributingTypes []SignalType
}

type RiskLevel string

const (
	RiskHigh    RiskLevel = "high"
	RiskMedium  RiskLevel = "medium"
	RiskLow     RiskLevel = "low"
	RiskUnknown RiskLevel = "unknown"
)

// ParseRiskLevel tolerates the label variants reasoning services tend to emit
// ("High", "medium risk", "LOW_RISK").
func ParseRiskLevel(s string) (RiskLevel, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimSuffix(v, " risk")
	v = strings.TrimSuffix(v, "_risk")
	switch RiskLevel(v) {
	case RiskHigh, RiskMedium, RiskLow:
		return RiskLevel(v), true
	}
	return RiskUnknown, false
}

// Verdict is produced once per classification run and never mutated.
type Verdict struct {
	RiskLevel    RiskLevel
	RiskScore    float64
	Confidence   float64
	Reasoning    string
	KeyFactors   []string
	Model        string
	AverageScore float64
	MaxScore     float64
	ClassifiedAt time.Time
}

// SortedSignalTypes returns the set as a sorted slice.
func SortedSignalTypes(set map[SignalType]struct{}) []SignalType {
	out := make([]SignalType, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
