// Package cache memoizes rendered search results in Redis. Keys are derived
// from the query and the full preference set, so any change to either is a
// different entry. Concurrent identical misses are collapsed with
// singleflight, and Redis calls go through a circuit breaker so an
// unavailable cache degrades to direct execution.
package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/preferences"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/resilience"
)

// KeyPrefix namespaces every cache entry. The artifact digest is appended by
// New so that a rebuilt index never serves stale entries.
const KeyPrefix = "ss:search:"

// Store is the subset of the Redis client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
}

// Options configures a QueryCache.
type Options struct {
	TTL time.Duration
	// Generation scopes keys, typically the artifact digest.
	Generation string
	Metrics    *metrics.Metrics
	Breaker    *resilience.CircuitBreaker
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	prefix  string
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
	errors  atomic.Int64
}

func New(store Store, opts Options) *QueryCache {
	breaker := opts.Breaker
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{})
	}
	prefix := KeyPrefix
	if opts.Generation != "" {
		prefix += opts.Generation + ":"
	}
	return &QueryCache{
		store:   store,
		ttl:     opts.TTL,
		prefix:  prefix,
		breaker: breaker,
		metrics: opts.Metrics,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached result for query under prefs. Store failures and
// undecodable entries count as misses.
func (c *QueryCache) Get(ctx context.Context, query string, prefs *preferences.Preferences) (*executor.SearchResult, bool) {
	key, err := c.Key(query, prefs)
	if err != nil {
		c.logger.Error("cache key failed", "error", err)
		c.miss()
		return nil, false
	}
	var data []byte
	err = c.breaker.Execute(func() error {
		var getErr error
		data, getErr = c.store.Get(ctx, key)
		if pkgredis.IsNilError(getErr) {
			return nil
		}
		return getErr
	})
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	if data == nil {
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache entry undecodable", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	result.Query = query
	return &result, true
}

// Set stores result for query under prefs. Failures are logged, not
// returned; the cache is never required for a search to succeed.
func (c *QueryCache) Set(ctx context.Context, query string, prefs *preferences.Preferences, result *executor.SearchResult) {
	key, err := c.Key(query, prefs)
	if err != nil {
		c.logger.Error("cache key failed", "error", err)
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or runs compute once for all
// concurrent callers asking for the same key. The boolean reports a hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query string,
	prefs *preferences.Preferences,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, query, prefs); ok {
		return result, true, nil
	}
	key, err := c.Key(query, prefs)
	if err != nil {
		res, err := compute()
		return res, false, err
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, prefs, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate removes every entry of this cache generation.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	var deleted int64
	err := c.breaker.Execute(func() error {
		var delErr error
		deleted, delErr = c.store.DeleteByPrefix(ctx, c.prefix)
		return delErr
	})
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Errors  int64   `json:"errors"`
	Total   int64   `json:"total"`
	HitRate float64 `json:"hit_rate"`
	Breaker string  `json:"breaker"`
}

func (c *QueryCache) Stats() Stats {
	s := Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Errors:  c.errors.Load(),
		Breaker: c.breaker.State().String(),
	}
	s.Total = s.Hits + s.Misses
	if s.Total > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Total)
	}
	return s
}

// Key derives the cache key for query under prefs. Runs of whitespace in
// the query are collapsed; case is kept because case-sensitive searches
// depend on it.
func (c *QueryCache) Key(query string, prefs *preferences.Preferences) (string, error) {
	p, err := json.Marshal(prefs)
	if err != nil {
		return "", fmt.Errorf("encoding preferences: %w", err)
	}
	h := blake3.New()
	h.Write([]byte(strings.Join(strings.Fields(query), " ")))
	h.Write([]byte{0})
	h.Write(p)
	sum := h.Sum(nil)
	return c.prefix + hex.EncodeToString(sum[:16]), nil
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
