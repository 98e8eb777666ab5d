package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/preferences"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/resilience"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	err  error
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	v, ok := s.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data[key] = value
	s.ttls[key] = ttl
	return nil
}

func (s *memStore) DeleteByPrefix(_ context.Context, prefix string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	var n int64
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func result(query string, lines ...string) *executor.SearchResult {
	return &executor.SearchResult{Query: query, Mode: "stem", TotalHits: len(lines), Results: lines, TermStats: map[string]int{"god": len(lines)}}
}

func TestGetMissThenHit(t *testing.T) {
	store := newMemStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := New(store, Options{TTL: time.Minute, Generation: "abc", Metrics: m})
	prefs := preferences.Bootstrap()
	ctx := context.Background()

	_, ok := c.Get(ctx, "god", prefs)
	assert.False(t, ok)

	c.Set(ctx, "god", prefs, result("god", "<li>a</li>"))
	got, ok := c.Get(ctx, "god", prefs)
	require.True(t, ok)
	assert.Equal(t, []string{"<li>a</li>"}, got.Results)

	for k, ttl := range store.ttls {
		assert.True(t, strings.HasPrefix(k, KeyPrefix+"abc:"))
		assert.Equal(t, time.Minute, ttl)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
	assert.Equal(t, Stats{Hits: 1, Misses: 1, Total: 2, HitRate: 0.5, Breaker: "closed"}, c.Stats())
}

func TestHitKeepsCallerQuery(t *testing.T) {
	c := New(newMemStore(), Options{})
	prefs := preferences.Bootstrap()
	c.Set(context.Background(), "god  faith", prefs, result("god  faith", "x"))

	got, ok := c.Get(context.Background(), "god faith", prefs)
	require.True(t, ok)
	assert.Equal(t, "god faith", got.Query)
}

func TestKeyDependsOnQueryAndPreferences(t *testing.T) {
	c := New(newMemStore(), Options{})
	a := preferences.Bootstrap()
	b := preferences.Bootstrap()
	b.And = true

	k1, err := c.Key("God", a)
	require.NoError(t, err)
	k2, _ := c.Key(" God ", a)
	k3, _ := c.Key("god", a)
	k4, _ := c.Key("God", b)

	assert.Equal(t, k1, k2, "surrounding whitespace is not significant")
	assert.NotEqual(t, k1, k3, "case is significant")
	assert.NotEqual(t, k1, k4, "preferences are part of the key")
}

func TestGetOrComputeCollapsesConcurrentMisses(t *testing.T) {
	c := New(newMemStore(), Options{})
	prefs := preferences.Bootstrap()
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _, err := c.GetOrCompute(context.Background(), "faith", prefs, func() (*executor.SearchResult, error) {
				calls.Add(1)
				<-release
				return result("faith", "line"), nil
			})
			assert.NoError(t, err)
			assert.Equal(t, []string{"line"}, res.Results)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))

	_, hit, err := c.GetOrCompute(context.Background(), "faith", prefs, func() (*executor.SearchResult, error) {
		t.Fatal("compute called on a cached key")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestGetOrComputePropagatesErrors(t *testing.T) {
	c := New(newMemStore(), Options{})
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), "q", preferences.Bootstrap(), func() (*executor.SearchResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestStoreFailuresDegradeAndTripBreaker(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	breaker := resilience.NewCircuitBreaker("test-cache", resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})
	c := New(store, Options{Breaker: breaker})
	prefs := preferences.Bootstrap()

	res, hit, err := c.GetOrCompute(context.Background(), "god", prefs, func() (*executor.SearchResult, error) {
		return result("god", "line"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"line"}, res.Results)

	assert.Equal(t, resilience.StateOpen, breaker.State())
	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Errors)
	assert.Equal(t, "open", stats.Breaker)

	_, err = c.Invalidate(context.Background())
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestInvalidateOnlyTouchesGeneration(t *testing.T) {
	store := newMemStore()
	store.data["other:key"] = []byte("x")
	c := New(store, Options{Generation: "g1"})
	prefs := preferences.Bootstrap()
	c.Set(context.Background(), "a", prefs, result("a"))
	c.Set(context.Background(), "b", prefs, result("b"))

	n, err := c.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Contains(t, store.data, "other:key")
}

func TestUndecodableEntryIsMiss(t *testing.T) {
	store := newMemStore()
	c := New(store, Options{})
	prefs := preferences.Bootstrap()
	key, err := c.Key("god", prefs)
	require.NoError(t, err)
	store.data[key] = []byte("{not json")

	_, ok := c.Get(context.Background(), "god", prefs)
	assert.False(t, ok)
}
