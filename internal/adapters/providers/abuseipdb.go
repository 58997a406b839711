package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"threatlens/internal/domain"
)

const (
	AbuseIPDBID          = "abuseipdb"
	DefaultAbuseIPDBBase = "https://api.abuseipdb.com/api/v2"
)

// AbuseIPDB looks up IP reputation.
type AbuseIPDB struct {
	remote
	baseURL string
	apiKey  string
}

func NewAbuseIPDB(apiKey, baseURL string, opts HTTPOptions) *AbuseIPDB {
	if baseURL == "" {
		baseURL = DefaultAbuseIPDBBase
	}
	return &AbuseIPDB{remote: newRemote(AbuseIPDBID, opts), baseURL: baseURL, apiKey: apiKey}
}

func (p *AbuseIPDB) ID() string                             { return AbuseIPDBID }
func (p *AbuseIPDB) SignalType() domain.SignalType          { return domain.SignalReputation }
func (p *AbuseIPDB) Applicable(t domain.IndicatorType) bool { return t == domain.TypeIP }

type abuseIPDBResponse struct {
	Data struct {
		IPAddress            string  `json:"ipAddress"`
		AbuseConfidenceScore *int    `json:"abuseConfidenceScore"`
		CountryCode          string  `json:"countryCode"`
		UsageType            string  `json:"usageType"`
		ISP                  string  `json:"isp"`
		Domain               string  `json:"domain"`
		IsWhitelisted        *bool   `json:"isWhitelisted"`
		IsTor                bool    `json:"isTor"`
		TotalReports         int     `json:"totalReports"`
		NumDistinctUsers     int     `json:"numDistinctUsers"`
		LastReportedAt       *string `json:"lastReportedAt"`
	} `json:"data"`
}

func (p *AbuseIPDB) Invoke(ctx context.Context, value string, t domain.IndicatorType) (domain.Signal, error) {
	if !p.Applicable(t) {
		return domain.Signal{}, notApplicable(p.id, t)
	}
	if net.ParseIP(value) == nil {
		return domain.Signal{}, domain.NewPermanentError(p.id, domain.ErrorKindInvalidInput, fmt.Errorf("not an IP address: %q", value))
	}

	q := url.Values{}
	q.Set("ipAddress", value)
	q.Set("maxAgeInDays", "90")
	header := http.Header{}
	header.Set("Key", p.apiKey)
	header.Set("Accept", "application/json")

	resp, err := p.get(ctx, p.baseURL+"/check?"+q.Encode(), header)
	if err != nil {
		return domain.Signal{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Signal{}, p.statusError(resp)
	}

	var body abuseIPDBResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Signal{}, domain.NewTransientError(p.id, domain.ErrorKindUpstream, fmt.Errorf("decode response: %w", err))
	}
	d := body.Data

	detail := map[string]any{
		"ip_address":         d.IPAddress,
		"country_code":       d.CountryCode,
		"usage_type":         d.UsageType,
		"isp":                d.ISP,
		"domain":             d.Domain,
		"is_tor":             d.IsTor,
		"total_reports":      d.TotalReports,
		"num_distinct_users": d.NumDistinctUsers,
	}
	abuse := 0
	if d.AbuseConfidenceScore != nil {
		abuse = *d.AbuseConfidenceScore
		detail["abuse_confidence_score"] = abuse
		detail["message"] = fmt.Sprintf("Abuse confidence score %d%% with %d total reports", abuse, d.TotalReports)
	} else {
		detail["message"] = "No recent abuse reports for this IP"
	}
	if d.IsWhitelisted != nil {
		detail["is_whitelisted"] = *d.IsWhitelisted
	}
	if d.LastReportedAt != nil {
		detail["last_reported_at"] = *d.LastReportedAt
	}

	whitelisted := d.IsWhitelisted != nil && *d.IsWhitelisted
	return domain.Signal{
		Score:  abuseIPDBScore(abuse, d.IsTor, whitelisted, d.TotalReports, d.UsageType, d.NumDistinctUsers),
		Detail: detail,
	}, nil
}

func abuseIPDBScore(abuse int, tor, whitelisted bool, reports int, usage string, users int) float64 {
	score := 0.0
	if abuse > 0 {
		score += float64(abuse) / 100 * 8.5
	}
	if tor {
		score += 1.5
	}
	if whitelisted {
		score = max(0, score-2)
	}
	switch {
	case reports > 100:
		score += 1
	case reports > 50:
		score += 0.5
	}
	if usage == "Data Center" {
		score += 0.5
	}
	if users > 10 {
		score += 0.5
	}
	return clampScore(score)
}
