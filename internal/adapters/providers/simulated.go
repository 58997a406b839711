package providers

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"threatlens/internal/domain"
)

// Simulated providers produce plausible signals without network access. Each
// is seeded from the indicator value, so repeated lookups agree.

const (
	SimWhoisID      = "sim-whois"
	SimReputationID = "sim-reputation"
	SimHashID       = "sim-hash"
)

var suspiciousWords = []string{"evil", "phish", "malware", "hack", "scam", "fake", "bad"}

func seeded(provider, value string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(provider))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(value))
	s := h.Sum64()
	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
}

func pick[T any](r *rand.Rand, xs []T) T { return xs[r.IntN(len(xs))] }

// between returns an int in [lo, hi].
func between(r *rand.Rand, lo, hi int) int { return lo + r.IntN(hi-lo+1) }

func sample(r *rand.Rand, xs []string, n int) []string {
	perm := r.Perm(len(xs))
	out := make([]string, 0, n)
	for _, i := range perm[:n] {
		out = append(out, xs[i])
	}
	return out
}

// SimulatedWhois fakes registration data for domains and URL hosts.
type SimulatedWhois struct {
	now func() time.Time
}

func NewSimulatedWhois() *SimulatedWhois { return &SimulatedWhois{now: time.Now} }

func (p *SimulatedWhois) ID() string                    { return SimWhoisID }
func (p *SimulatedWhois) SignalType() domain.SignalType { return domain.SignalWhois }

func (p *SimulatedWhois) Applicable(t domain.IndicatorType) bool {
	return t == domain.TypeDomain || t == domain.TypeURL
}

func (p *SimulatedWhois) Invoke(ctx context.Context, value string, t domain.IndicatorType) (domain.Signal, error) {
	if !p.Applicable(t) {
		return domain.Signal{}, notApplicable(SimWhoisID, t)
	}
	name := value
	if t == domain.TypeURL {
		host := domain.HostOf(value)
		if host == "" {
			return domain.Signal{}, domain.NewPermanentError(SimWhoisID, domain.ErrorKindInvalidInput, fmt.Errorf("no host in %q", value))
		}
		name = domain.RegistrableDomain(host)
	}
	if err := ctx.Err(); err != nil {
		return domain.Signal{}, err
	}

	r := seeded(SimWhoisID, name)
	now := p.now().UTC()

	ageDays := between(r, 30, 3650)
	termYears := between(r, 1, 3)
	suspicious := false
	for _, w := range suspiciousWords {
		if strings.Contains(name, w) {
			suspicious = true
			break
		}
	}
	if suspicious {
		ageDays = between(r, 1, 89)
		termYears = 1
	}
	created := now.AddDate(0, 0, -ageDays)
	country := pick(r, []string{"US", "CN", "RU", "BR", "IN", "DE", "FR"})
	dnssec := r.IntN(2) == 1

	detail := map[string]any{
		"domain":             name,
		"registrar":          pick(r, []string{"GoDaddy", "Namecheap", "CloudFlare", "Google Domains", "Network Solutions"}),
		"creation_date":      created.Format(time.RFC3339),
		"expiration_date":    created.AddDate(termYears, 0, 0).Format(time.RFC3339),
		"registrant_country": country,
		"name_servers":       []string{"ns1.example.com", "ns2.example.com"},
		"dnssec":             dnssec,
		"simulated":          true,
	}
	return domain.Signal{Score: whoisScore(ageDays, country, dnssec), Detail: detail}, nil
}

func whoisScore(ageDays int, country string, dnssec bool) float64 {
	score := 0.0
	switch {
	case ageDays < 30:
		score += 5
	case ageDays < 90:
		score += 3
	case ageDays < 365:
		score += 1
	}
	switch country {
	case "CN", "RU", "BR":
		score += 2
	}
	if !dnssec {
		score += 0.5
	}
	return clampScore(score)
}

// SimulatedReputation fakes abuse data for IP addresses.
type SimulatedReputation struct{}

func NewSimulatedReputation() *SimulatedReputation { return &SimulatedReputation{} }

func (p *SimulatedReputation) ID() string                             { return SimReputationID }
func (p *SimulatedReputation) SignalType() domain.SignalType          { return domain.SignalReputation }
func (p *SimulatedReputation) Applicable(t domain.IndicatorType) bool { return t == domain.TypeIP }

func (p *SimulatedReputation) Invoke(ctx context.Context, value string, t domain.IndicatorType) (domain.Signal, error) {
	if !p.Applicable(t) {
		return domain.Signal{}, notApplicable(SimReputationID, t)
	}
	ip := net.ParseIP(value)
	if ip == nil {
		return domain.Signal{}, domain.NewPermanentError(SimReputationID, domain.ErrorKindInvalidInput, fmt.Errorf("not an IP address: %q", value))
	}
	if err := ctx.Err(); err != nil {
		return domain.Signal{}, err
	}

	r := seeded(SimReputationID, value)
	suspicious := !ip.IsPrivate() && !ip.IsLoopback() && r.Float64() > 0.6

	abuse, reports := between(r, 0, 30), between(r, 0, 10)
	var categories []string
	tor, proxy := false, false
	if suspicious {
		abuse, reports = between(r, 60, 100), between(r, 50, 500)
		categories = sample(r, []string{"Brute Force", "Port Scan", "DDoS", "Spam", "Malware"}, between(r, 1, 3))
		tor, proxy = r.IntN(2) == 1, r.IntN(2) == 1
	}
	usage := pick(r, []string{"Data Center", "Commercial", "Residential"})

	detail := map[string]any{
		"ip_address":             value,
		"abuse_confidence_score": abuse,
		"total_reports":          reports,
		"distinct_users":         between(r, 1, 50),
		"country_code":           pick(r, []string{"US", "CN", "RU", "BR", "IN", "DE"}),
		"isp":                    pick(r, []string{"AWS", "Google Cloud", "DigitalOcean", "OVH", "Hetzner"}),
		"usage_type":             usage,
		"abuse_categories":       categories,
		"is_tor":                 tor,
		"is_proxy":               proxy,
		"simulated":              true,
	}

	score := float64(abuse) / 100 * 7
	if tor {
		score += 1.5
	}
	if proxy {
		score += 1
	}
	if usage == "Data Center" {
		score += 0.5
	}
	score += float64(len(categories)) * 0.5
	return domain.Signal{Score: clampScore(score), Detail: detail}, nil
}

// SimulatedHash fakes multi-engine detection results for file hashes.
type SimulatedHash struct{}

func NewSimulatedHash() *SimulatedHash { return &SimulatedHash{} }

func (p *SimulatedHash) ID() string                             { return SimHashID }
func (p *SimulatedHash) SignalType() domain.SignalType          { return domain.SignalHashLookup }
func (p *SimulatedHash) Applicable(t domain.IndicatorType) bool { return t == domain.TypeHash }

func (p *SimulatedHash) Invoke(ctx context.Context, value string, t domain.IndicatorType) (domain.Signal, error) {
	if !p.Applicable(t) {
		return domain.Signal{}, notApplicable(SimHashID, t)
	}
	if err := ctx.Err(); err != nil {
		return domain.Signal{}, err
	}
	hashType, ok := hashTypes[len(value)]
	if !ok {
		hashType = "unknown"
	}

	const engines = 70
	r := seeded(SimHashID, value)
	malware := r.Float64() > 0.4

	detections := between(r, 0, 5)
	var families []string
	if malware {
		detections = between(r, 30, engines)
		families = sample(r, []string{"Trojan", "Ransomware", "Backdoor", "Worm", "Adware", "Spyware"}, between(r, 1, 3))
	}

	detail := map[string]any{
		"hash":             value,
		"hash_type":        hashType,
		"detection_ratio":  fmt.Sprintf("%d/%d", detections, engines),
		"detections":       detections,
		"total_engines":    engines,
		"malware_families": families,
		"file_type":        pick(r, []string{"PE32", "ELF", "PDF", "Script", "Archive"}),
		"file_size":        between(r, 1024, 10<<20),
		"is_malware":       malware,
		"simulated":        true,
	}

	score := float64(detections) / engines * 8
	score += float64(len(families)) * 0.5
	if malware {
		score += 1
	}
	return domain.Signal{Score: clampScore(score), Detail: detail}, nil
}
