package classifier

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"threatlens/internal/domain"
)

var highRiskCountries = []string{"CN", "RU", "BR", "NG"}

type observer func(o domain.EnrichmentOutcome, now time.Time) []string

var observers = map[domain.SignalType]observer{
	domain.SignalReputation:     observeReputation,
	domain.SignalFeedMembership: observeFeed,
	domain.SignalHashLookup:     observeHash,
	domain.SignalWhois:          observeWhois,
}

// Observe renders each successful outcome as human readable lines prefixed
// with the provider id. Unknown signal types get a generic line.
func Observe(outcomes []domain.EnrichmentOutcome, now time.Time) []string {
	var lines []string
	for _, o := range outcomes {
		if !o.Success {
			continue
		}
		fn, ok := observers[o.SignalType]
		if !ok {
			fn = observeGeneric
		}
		for _, l := range fn(o, now) {
			lines = append(lines, o.ProviderID+": "+l)
		}
	}
	return lines
}

func scoreLine(label string, score float64) string {
	return fmt.Sprintf("%s score: %.1f/10", label, score)
}

func observeReputation(o domain.EnrichmentOutcome, _ time.Time) []string {
	d := o.RawDetail
	var out []string

	abuse, _ := num(d, "abuse_confidence_score")
	switch {
	case abuse >= 80:
		out = append(out, fmt.Sprintf("High abuse confidence (%.0f%%) - CRITICAL", abuse))
	case abuse >= 50:
		out = append(out, fmt.Sprintf("Moderate abuse confidence (%.0f%%) - HIGH RISK", abuse))
	case abuse >= 20:
		out = append(out, fmt.Sprintf("Some abuse reports (%.0f%%)", abuse))
	default:
		out = append(out, fmt.Sprintf("Low abuse confidence (%.0f%%)", abuse))
	}

	if reports, ok := num(d, "total_reports"); ok {
		switch {
		case reports > 100:
			out = append(out, fmt.Sprintf("Extensively reported (%.0f reports)", reports))
		case reports > 10:
			out = append(out, fmt.Sprintf("Multiple abuse reports (%.0f)", reports))
		}
	}
	if cats := strs(d, "abuse_categories"); len(cats) > 0 {
		out = append(out, "Abuse types: "+strings.Join(cats, ", "))
	}
	if tor, _ := flag(d, "is_tor"); tor {
		out = append(out, "Tor exit node detected - anonymization risk")
	}
	if proxy, _ := flag(d, "is_proxy"); proxy {
		out = append(out, "Proxy detected - potential hiding")
	}
	if wl, _ := flag(d, "is_whitelisted"); wl {
		out = append(out, "Address is whitelisted by the provider")
	}
	if isp, usage := str(d, "isp"), str(d, "usage_type"); isp != "" && usage != "" {
		out = append(out, fmt.Sprintf("Hosted on %s (%s)", isp, usage))
	}
	return append(out, scoreLine("Reputation", o.Score))
}

func observeFeed(o domain.EnrichmentOutcome, _ time.Time) []string {
	d := o.RawDetail
	feed := str(d, "feed")
	if feed == "" {
		feed = o.ProviderID
	}
	listed, _ := flag(d, "listed")
	if !listed {
		return []string{fmt.Sprintf("Not present in the %s feed", feed), scoreLine("Feed", o.Score)}
	}

	line := fmt.Sprintf("Listed in the %s feed", feed)
	if verified, ok := flag(d, "verified"); ok {
		if verified {
			line += " (verified) - CONFIRMED PHISHING"
		} else {
			line += " (unverified)"
		}
	}
	out := []string{line}
	if m := str(d, "matched"); m != "" {
		out = append(out, "Matched feed entry: "+m)
	}
	if target := str(d, "target"); target != "" {
		out = append(out, "Targeted brand: "+target)
	}
	return append(out, scoreLine("Feed", o.Score))
}

func observeHash(o domain.EnrichmentOutcome, _ time.Time) []string {
	d := o.RawDetail
	var out []string

	if found, ok := flag(d, "found"); ok && !found {
		return []string{"Hash not found in the malware database", scoreLine("Hash lookup", o.Score)}
	}

	detections, _ := num(d, "detections")
	total, ok := num(d, "total_engines")
	if !ok {
		total = 70
	}
	ratio := str(d, "detection_ratio")
	if ratio == "" {
		ratio = fmt.Sprintf("%.0f/%.0f", detections, total)
	}
	if detections > 0 {
		pct := 0.0
		if total > 0 {
			pct = detections / total * 100
		}
		switch {
		case pct >= 50:
			out = append(out, fmt.Sprintf("HIGH malware detection (%s) - CRITICAL", ratio))
		case pct >= 20:
			out = append(out, fmt.Sprintf("MODERATE malware detection (%s) - HIGH RISK", ratio))
		default:
			out = append(out, fmt.Sprintf("LOW malware detection (%s)", ratio))
		}
	} else if _, has := d["detections"]; has {
		out = append(out, "No malware detections - appears clean")
	}

	if fams := strs(d, "malware_families"); len(fams) > 0 {
		out = append(out, "Identified malware families: "+strings.Join(fams, ", "))
	}
	if ft := str(d, "file_type"); ft != "" {
		out = append(out, "File type: "+ft)
	}
	if mal, _ := flag(d, "is_malware"); mal {
		out = append(out, "CONFIRMED MALWARE")
	}
	return append(out, scoreLine("Hash lookup", o.Score))
}

func observeWhois(o domain.EnrichmentOutcome, now time.Time) []string {
	d := o.RawDetail
	var out []string

	if raw := str(d, "creation_date"); raw != "" {
		if created, err := time.Parse(time.RFC3339, raw); err == nil {
			days := int(now.Sub(created).Hours() / 24)
			switch {
			case days < 30:
				out = append(out, fmt.Sprintf("Domain is very new (created %d days ago) - HIGH RISK", days))
			case days < 90:
				out = append(out, fmt.Sprintf("Domain is new (created %d days ago) - MEDIUM RISK", days))
			case days < 365:
				out = append(out, fmt.Sprintf("Domain is recent (created %d days ago)", days))
			default:
				out = append(out, fmt.Sprintf("Domain is %d days old - established", days))
			}
		}
	}
	if r := str(d, "registrar"); r != "" {
		out = append(out, "Registered with "+r)
	}
	if c := str(d, "registrant_country"); c != "" {
		if slices.Contains(highRiskCountries, c) {
			out = append(out, fmt.Sprintf("Registered in %s - potentially high-risk region", c))
		} else {
			out = append(out, "Registered in "+c)
		}
	}
	if dnssec, _ := flag(d, "dnssec"); !dnssec {
		out = append(out, "No DNSSEC - slightly elevated risk")
	}
	return append(out, scoreLine("WHOIS", o.Score))
}

func observeGeneric(o domain.EnrichmentOutcome, _ time.Time) []string {
	line := fmt.Sprintf("%s signal score: %.1f/10", o.SignalType, o.Score)
	if s := summarize(o.RawDetail, 8); s != "" {
		line += " (" + s + ")"
	}
	return []string{line}
}
