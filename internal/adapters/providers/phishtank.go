package providers

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"threatlens/internal/domain"
)

const (
	PhishTankID          = "phishtank"
	DefaultPhishTankFeed = "https://data.phishtank.com/data/online-valid.csv"
	DefaultPhishTankTTL  = time.Hour
)

type phishEntry struct {
	ID          string
	URL         string
	Target      string
	Verified    bool
	SubmittedAt string
}

// urlKeys returns the lookup forms of a URL: as given, lower-cased and without
// its query string.
func urlKeys(raw string) []string {
	raw = strings.TrimSpace(raw)
	keys := []string{raw, strings.ToLower(raw)}
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		u.RawQuery, u.Fragment = "", ""
		bare := u.String()
		keys = append(keys, bare, strings.ToLower(bare))
	}
	return keys
}

func parsePhishTank(r io.Reader) (map[string]phishEntry, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	urlCol, ok := col["url"]
	if !ok {
		return nil, 0, errors.New("feed has no url column")
	}
	field := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	feed := make(map[string]phishEntry)
	n := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		if urlCol >= len(rec) || strings.TrimSpace(rec[urlCol]) == "" {
			continue
		}
		verified := strings.ToLower(field(rec, "verified"))
		e := phishEntry{
			ID:          field(rec, "phish_id"),
			URL:         strings.TrimSpace(rec[urlCol]),
			Target:      field(rec, "target"),
			Verified:    verified == "yes" || verified == "true" || verified == "1",
			SubmittedAt: field(rec, "submission_time"),
		}
		for _, k := range urlKeys(e.URL) {
			feed[k] = e
		}
		n++
	}
	return feed, n, nil
}

// PhishTank checks URLs against the PhishTank online-valid feed.
type PhishTank struct {
	feed *FeedCache[map[string]phishEntry]
}

func NewPhishTank(feedURL string, ttl time.Duration, opts HTTPOptions, logger *zap.Logger) *PhishTank {
	if feedURL == "" {
		feedURL = DefaultPhishTankFeed
	}
	return &PhishTank{feed: newFeedCache(PhishTankID, feedURL, ttl, opts, logger, parsePhishTank)}
}

func (p *PhishTank) ID() string                             { return PhishTankID }
func (p *PhishTank) SignalType() domain.SignalType          { return domain.SignalFeedMembership }
func (p *PhishTank) Applicable(t domain.IndicatorType) bool { return t == domain.TypeURL }

func (p *PhishTank) Preload(ctx context.Context) error { return p.feed.Preload(ctx) }

func (p *PhishTank) Invoke(ctx context.Context, value string, t domain.IndicatorType) (domain.Signal, error) {
	if !p.Applicable(t) {
		return domain.Signal{}, notApplicable(PhishTankID, t)
	}
	feed, _, err := p.feed.Get(ctx)
	if err != nil {
		return domain.Signal{}, err
	}

	var (
		entry phishEntry
		found bool
	)
	for _, k := range urlKeys(value) {
		if entry, found = feed[k]; found {
			break
		}
	}
	if !found {
		return domain.Signal{Score: 0, Detail: map[string]any{"feed": PhishTankID, "listed": false}}, nil
	}

	detail := map[string]any{
		"feed":         PhishTankID,
		"listed":       true,
		"verified":     entry.Verified,
		"phish_id":     entry.ID,
		"matched":      entry.URL,
		"target":       entry.Target,
		"submitted_at": entry.SubmittedAt,
	}
	if entry.ID != "" {
		detail["phish_detail_page"] = "https://phishtank.org/phish_detail.php?phish_id=" + entry.ID
	}
	score := 8.0
	if entry.Verified {
		score = 9.0
	}
	return domain.Signal{Score: score, Detail: detail}, nil
}
