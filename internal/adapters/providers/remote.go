// Package providers holds the concrete enrichment sources: remote APIs, cached
// threat feeds and offline simulated lookups.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"threatlens/internal/domain"
)

const (
	defaultUserAgent = "threatlens/1.0"
	maxErrorBody     = 512
	maxFeedBody      = 64 << 20
)

// HTTPOptions are shared by every provider that talks HTTP.
type HTTPOptions struct {
	Client *http.Client
	// RequestsPerMinute throttles outgoing calls per provider. Zero disables
	// throttling.
	RequestsPerMinute int
	UserAgent         string
}

type remote struct {
	id        string
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

func newRemote(id string, opts HTTPOptions) remote {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return remote{id: id, client: client, limiter: rate.NewLimiter(limit, 1), userAgent: ua}
}

// get performs a throttled GET. Transport failures come back as transient
// provider errors; context errors are returned unchanged so the caller's
// deadline is attributed correctly.
func (r remote) get(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewTransientError(r.id, domain.ErrorKindRateLimited, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, domain.NewPermanentError(r.id, domain.ErrorKindInvalidInput, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewTransientError(r.id, domain.ErrorKindNetwork, redactTransportError(err))
	}
	return resp, nil
}

// redactTransportError drops the query string and credentials from the URL
// that net/http embeds in transport errors. Some providers authenticate with
// a query parameter.
func redactTransportError(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	safe := "<unparseable url>"
	if u, perr := url.Parse(ue.URL); perr == nil {
		u.RawQuery = ""
		u.Fragment = ""
		safe = u.Redacted()
	}
	return fmt.Errorf("%s %q: %w", ue.Op, safe, ue.Err)
}

// statusError maps an unexpected HTTP status to a provider error and drains
// the body for the message.
func (r remote) statusError(resp *http.Response) *domain.ProviderError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytesTrim(body))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.NewTransientError(r.id, domain.ErrorKindRateLimited, err)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return domain.NewPermanentError(r.id, domain.ErrorKindUnauthorized, err)
	case resp.StatusCode >= 500:
		return domain.NewTransientError(r.id, domain.ErrorKindUpstream, err)
	default:
		return domain.NewPermanentError(r.id, domain.ErrorKindInvalidInput, err)
	}
}

func bytesTrim(b []byte) string {
	return strings.TrimSpace(string(b))
}

var errNotApplicable = errors.New("indicator type not supported")

func notApplicable(id string, t domain.IndicatorType) *domain.ProviderError {
	return domain.NewPermanentError(id, domain.ErrorKindNotApplicable, fmt.Errorf("%w: %s", errNotApplicable, t))
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}
