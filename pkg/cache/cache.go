// Package cache memoizes upstream GET responses for a short time.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"scraper-gateway/pkg/gateway"
)

const DefaultSize = 512

// CachedGetter wraps another getter with an expirable LRU keyed by URL. Errors are
// never cached, and neither are 2xx bodies the call's Accept hook rejects.
type CachedGetter struct {
	next   gateway.Getter
	cache  *expirable.LRU[string, *gateway.Response]
	logger *slog.Logger
}

// Wrap returns next unchanged when ttl is not positive.
func Wrap(next gateway.Getter, size int, ttl time.Duration, logger *slog.Logger) gateway.Getter {
	if ttl <= 0 {
		return next
	}
	if size <= 0 {
		size = DefaultSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedGetter{
		next:   next,
		cache:  expirable.NewLRU[string, *gateway.Response](size, nil, ttl),
		logger: logger.WithGroup("cache"),
	}
}

func (c *CachedGetter) Get(ctx context.Context, rawURL string, call gateway.CallOptions) (*gateway.Response, error) {
	if res, ok := c.cache.Get(rawURL); ok {
		c.logger.Debug("hit", "url", rawURL)
		return res, nil
	}

	res, err := c.next.Get(ctx, rawURL, call)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return res, nil
	}
	if call.Accept != nil && !call.Accept(res.Body) {
		c.logger.Debug("rejected", "url", rawURL)
		return res, nil
	}
	c.cache.Add(rawURL, res)
	c.logger.Debug("stored", "url", rawURL, "size", len(res.Body))
	return res, nil
}

// Len returns the number of live entries.
func (c *CachedGetter) Len() int {
	return c.cache.Len()
}

// Purge drops every entry.
func (c *CachedGetter) Purge() {
	c.cache.Purge()
}
