package domain

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// NormalizeValue returns the identity form of an indicator value: trimmed and
// case-folded, with type specific cleanup for domains.
func NormalizeValue(t IndicatorType, value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if t == TypeDomain {
		if strings.Contains(v, "://") {
			if u, err := url.Parse(v); err == nil && u.Host != "" {
				v = u.Hostname()
			}
		}
		v = strings.TrimSuffix(v, ".")
	}
	return v
}

// HostOf extracts the lower-cased host of a URL indicator. Values without a
// scheme are parsed as if they had one.
func HostOf(rawurl string) string {
	v := strings.TrimSpace(rawurl)
	if !strings.Contains(v, "://") {
		v = "http://" + v
	}
	u, err := url.Parse(v)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

// RegistrableDomain reduces a host to its eTLD+1, falling back to the host
// itself when the public suffix list has no answer.
func RegistrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return registrable
}
