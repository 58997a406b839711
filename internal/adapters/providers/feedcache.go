package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"threatlens/internal/domain"
)

const (
	minFeedTTL       = time.Minute
	feedFetchTimeout = 30 * time.Second
)

// FeedCache keeps a parsed copy of a downloadable feed for a TTL. Concurrent
// refreshes collapse into one download; a failed refresh keeps serving the
// previous copy when there is one.
type FeedCache[T any] struct {
	remote
	url    string
	ttl    time.Duration
	parse  func(io.Reader) (T, int, error)
	logger *zap.Logger
	now    func() time.Time

	mu        sync.RWMutex
	data      T
	size      int
	fetchedAt time.Time
	loaded    bool

	flight singleflight.Group
}

func newFeedCache[T any](id, url string, ttl time.Duration, opts HTTPOptions, logger *zap.Logger, parse func(io.Reader) (T, int, error)) *FeedCache[T] {
	if ttl < minFeedTTL {
		ttl = minFeedTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedCache[T]{
		remote: newRemote(id, opts),
		url:    url,
		ttl:    ttl,
		parse:  parse,
		logger: logger.With(zap.String("feed", id)),
		now:    time.Now,
	}
}

// Get returns the cached feed, refreshing it first when stale.
func (c *FeedCache[T]) Get(ctx context.Context) (T, time.Time, error) {
	c.mu.RLock()
	data, fetchedAt, loaded := c.data, c.fetchedAt, c.loaded
	c.mu.RUnlock()
	if loaded && c.now().Sub(fetchedAt) < c.ttl {
		return data, fetchedAt, nil
	}

	ch := c.flight.DoChan("refresh", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), feedFetchTimeout)
		defer cancel()
		return nil, c.refresh(fctx)
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, time.Time{}, ctx.Err()
	case res := <-ch:
		c.mu.RLock()
		defer c.mu.RUnlock()
		if res.Err != nil {
			if c.loaded {
				c.logger.Warn("feed refresh failed, serving stale copy", zap.Time("fetched_at", c.fetchedAt), zap.Error(res.Err))
				return c.data, c.fetchedAt, nil
			}
			var zero T
			return zero, time.Time{}, res.Err
		}
		return c.data, c.fetchedAt, nil
	}
}

// Size is the entry count of the current copy.
func (c *FeedCache[T]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}

// Preload fetches the feed once, for startup checks.
func (c *FeedCache[T]) Preload(ctx context.Context) error {
	_, _, err := c.Get(ctx)
	return err
}

func (c *FeedCache[T]) refresh(ctx context.Context) error {
	resp, err := c.get(ctx, c.url, nil)
	if err != nil {
		if ctx.Err() != nil {
			return domain.NewTransientError(c.id, domain.ErrorKindTimeout, fmt.Errorf("fetch feed: %w", err))
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		perr := c.statusError(resp)
		// a broken feed is an upstream problem regardless of the status class
		if !perr.Transient() {
			perr = domain.NewTransientError(c.id, domain.ErrorKindUpstream, perr.Err)
		}
		return perr
	}

	data, n, err := c.parse(io.LimitReader(resp.Body, maxFeedBody))
	if err != nil {
		return domain.NewTransientError(c.id, domain.ErrorKindUpstream, fmt.Errorf("parse feed: %w", err))
	}
	if n == 0 {
		return domain.NewTransientError(c.id, domain.ErrorKindUpstream, errors.New("feed returned no entries"))
	}

	c.mu.Lock()
	c.data, c.size, c.fetchedAt, c.loaded = data, n, c.now(), true
	c.mu.Unlock()
	c.logger.Info("feed refreshed", zap.Int("entries", n), zap.String("url", c.url))
	return nil
}
