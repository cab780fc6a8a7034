// Package featurecache memoizes normalized explanations per token for the
// lifetime of one session.
package featurecache

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/heartmarshall/featurelens/internal/domain"
)

// FetchFunc produces the explanations for one token on a cache miss.
type FetchFunc func(ctx context.Context, token string) ([]domain.FeatureExplanation, error)

type cacheMetrics interface {
	RecordCacheAccess(ctx context.Context, hit bool)
}

type noopMetrics struct{}

func (noopMetrics) RecordCacheAccess(context.Context, bool) {}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the entry lifetime. Zero or negative means entries never expire.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics reports hits and misses to m.
func WithMetrics(m cacheMetrics) Option {
	return func(c *Cache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithFetchTimeout bounds a shared fetch. The fetch outlives the caller
// that started it, so this is its only deadline. Zero means none.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) { c.fetchTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.log = logger.With("service", "featurecache")
		}
	}
}

// Cache maps exact token strings to their explanations. Failed fetches are
// never stored. Concurrent misses for the same token share one fetch.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]domain.CacheEntry
	// gen is bumped by Clear; fetches started under an older generation do
	// not store their result.
	gen   uint64
	group singleflight.Group

	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	metrics      cacheMetrics
	log          *slog.Logger
}

// New creates an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]domain.CacheEntry),
		now:     time.Now,
		metrics: noopMetrics{},
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrFetch returns the cached explanations for token, calling fetch on a
// miss or an expired entry. An error from fetch is returned unchanged and
// nothing is cached.
//
// Concurrent callers share one fetch, which runs detached from any single
// caller's cancellation. A caller whose ctx ends stops waiting and gets
// ctx.Err(); the fetch still completes and fills the cache for the others.
func (c *Cache) GetOrFetch(ctx context.Context, token string, fetch FetchFunc) ([]domain.FeatureExplanation, error) {
	if entry, ok := c.Get(token); ok {
		c.metrics.RecordCacheAccess(ctx, true)
		return entry.Explanations, nil
	}
	c.metrics.RecordCacheAccess(ctx, false)

	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()

	key := strconv.FormatUint(gen, 10) + "\x00" + token
	ch := c.group.DoChan(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		if c.fetchTimeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, c.fetchTimeout)
			defer cancel()
		}
		exps, err := fetch(fctx, token)
		if err != nil {
			return nil, err
		}
		if exps == nil {
			exps = []domain.FeatureExplanation{}
		}
		c.store(gen, token, exps)
		return exps, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	v, err, shared := res.Val, res.Err, res.Shared
	if err != nil {
		c.log.DebugContext(ctx, "fetch failed, not cached",
			slog.String("token", token),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if shared {
		c.log.DebugContext(ctx, "fetch shared with concurrent caller", slog.String("token", token))
	}

	return slices.Clone(v.([]domain.FeatureExplanation)), nil
}

// Get returns a live entry without fetching. Expired entries are reported
// as absent.
func (c *Cache) Get(token string) (domain.CacheEntry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[token]
	c.mu.RUnlock()

	if !ok || entry.Expired(c.now(), c.ttl) {
		return domain.CacheEntry{}, false
	}
	entry.Explanations = slices.Clone(entry.Explanations)
	return entry, true
}

// Invalidate removes the entry for token.
func (c *Cache) Invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, token)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.gen++
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Tokens returns the cached tokens in no particular order.
func (c *Cache) Tokens() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for token := range c.entries {
		out = append(out, token)
	}
	return out
}

func (c *Cache) store(gen uint64, token string, exps []domain.FeatureExplanation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.entries[token] = domain.CacheEntry{
		Token:        token,
		Explanations: slices.Clone(exps),
		FetchedAt:    c.now(),
	}
}
