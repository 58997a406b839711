package providers

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"threatlens/internal/domain"
)

const (
	OpenPhishID          = "openphish"
	DefaultOpenPhishFeed = "https://openphish.com/feed.txt"
	DefaultOpenPhishTTL  = 15 * time.Minute
)

// openPhishFeed indexes feed URLs and, for domain lookups, every host and its
// parents down to the registrable domain.
type openPhishFeed struct {
	urls  map[string]struct{}
	hosts map[string]string
	size  int
}

func parseOpenPhish(r io.Reader) (openPhishFeed, int, error) {
	feed := openPhishFeed{urls: make(map[string]struct{}), hosts: make(map[string]string)}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.ToLower(strings.TrimSpace(sc.Text()))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		feed.urls[line] = struct{}{}
		feed.urls[strings.TrimRight(line, "/")] = struct{}{}
		feed.size++

		host := domain.HostOf(line)
		if host == "" {
			continue
		}
		stop := domain.RegistrableDomain(host)
		for h := host; ; {
			if _, seen := feed.hosts[h]; !seen {
				feed.hosts[h] = line
			}
			if h == stop {
				break
			}
			i := strings.IndexByte(h, '.')
			if i < 0 {
				break
			}
			h = h[i+1:]
		}
	}
	return feed, feed.size, sc.Err()
}

// OpenPhish checks URLs and domains against the OpenPhish community feed.
type OpenPhish struct {
	feed *FeedCache[openPhishFeed]
}

func NewOpenPhish(feedURL string, ttl time.Duration, opts HTTPOptions, logger *zap.Logger) *OpenPhish {
	if feedURL == "" {
		feedURL = DefaultOpenPhishFeed
	}
	return &OpenPhish{feed: newFeedCache(OpenPhishID, feedURL, ttl, opts, logger, parseOpenPhish)}
}

func (p *OpenPhish) ID() string                    { return OpenPhishID }
func (p *OpenPhish) SignalType() domain.SignalType { return domain.SignalFeedMembership }

func (p *OpenPhish) Applicable(t domain.IndicatorType) bool {
	return t == domain.TypeURL || t == domain.TypeDomain
}

func (p *OpenPhish) Preload(ctx context.Context) error { return p.feed.Preload(ctx) }

func (p *OpenPhish) Invoke(ctx context.Context, value string, t domain.IndicatorType) (domain.Signal, error) {
	if !p.Applicable(t) {
		return domain.Signal{}, notApplicable(OpenPhishID, t)
	}
	feed, fetchedAt, err := p.feed.Get(ctx)
	if err != nil {
		return domain.Signal{}, err
	}

	v := strings.ToLower(strings.TrimSpace(value))
	var matched string
	if t == domain.TypeDomain {
		matched = feed.hosts[strings.TrimSuffix(v, ".")]
	} else {
		for _, candidate := range []string{v, strings.TrimRight(v, "/")} {
			if _, ok := feed.urls[candidate]; ok {
				matched = candidate
				break
			}
		}
	}

	detail := map[string]any{
		"feed":             OpenPhishID,
		"listed":           matched != "",
		"cache_fetched_at": fetchedAt.UTC().Format(time.RFC3339),
		"cache_size":       feed.size,
	}
	if matched == "" {
		detail["message"] = "Not present in OpenPhish community feed at last refresh"
		return domain.Signal{Score: 0, Detail: detail}, nil
	}
	detail["matched"] = matched
	detail["message"] = "Present in OpenPhish community phishing feed"
	return domain.Signal{Score: 9.0, Detail: detail}, nil
}
