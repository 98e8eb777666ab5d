package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus/corpustest"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/preferences"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/metrics"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) DeleteByPrefix(_ context.Context, prefix string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

type fixture struct {
	handler *Handler
	mux     *http.ServeMux
	metrics *metrics.Metrics
	agg     *analytics.Aggregator
	coll    *analytics.Collector
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()
	c := corpustest.New()
	snap, err := indexer.NewBuilder(indexer.Options{}).Build(context.Background(), c)
	require.NoError(t, err)
	exec := executor.New(index.Memory{Snapshot: snap, Source: c})

	m := metrics.New(prometheus.NewRegistry())
	agg := analytics.NewAggregator()
	coll := analytics.NewCollector(agg, analytics.CollectorOptions{BatchSize: 1, FlushInterval: time.Hour})
	coll.Start(context.Background())
	t.Cleanup(coll.Close)

	opts := Options{
		DefaultPreferences: preferences.Default(c),
		MaxQueryLength:     64,
		Collector:          coll,
		Aggregator:         agg,
		Metrics:            m,
		ArtifactInfo:       map[string]string{"digest": "abc"},
	}
	if withCache {
		opts.Cache = cache.New(&memStore{data: map[string][]byte{}}, cache.Options{Metrics: m})
	}
	h := New(exec, opts)
	mux := http.NewServeMux()
	h.Routes(mux)
	return &fixture{handler: h, mux: mux, metrics: m, agg: agg, coll: coll}
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func results(t *testing.T, out map[string]any) []string {
	t.Helper()
	raw, ok := out["results"].([]any)
	require.True(t, ok, "results missing: %v", out)
	lines := make([]string, len(raw))
	for i, r := range raw {
		lines[i] = r.(string)
	}
	return lines
}

func TestSearchGET(t *testing.T) {
	f := newFixture(t, false)
	rec, out := f.do(t, http.MethodGet, "/api/v1/search?q=god", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, float64(3), out["total_hits"])
	assert.Equal(t, "stem", out["mode"])
	assert.Equal(t, false, out["cache_hit"])
	lines := results(t, out)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `<span class="match">God</span>`)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SearchQueriesTotal.WithLabelValues("hit")))
}

func TestSearchPOSTWithPreferences(t *testing.T) {
	f := newFixture(t, false)
	body := `{"query":"god","preferences":{"and":false,"caseSensitive":false,"exact":false,
		"includedSources":{"ot":false,"nt":true,"bom":false,"dc":false,"pogp":true},
		"includedBooks":{"ot":[],"nt":["John"],"bom":[],"dc":[0,0],"pogp":[]}}}`
	rec, out := f.do(t, http.MethodPost, "/api/v1/search", body)
	require.Equal(t, http.StatusOK, rec.Code)
	lines := results(t, out)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "John 1:1")
}

func TestSearchGETWithPreferencesParam(t *testing.T) {
	f := newFixture(t, false)
	prefs := `{"includedSources":{"ot":true},"includedBooks":{"ot":["Exodus"]}}`
	rec, out := f.do(t, http.MethodGet, "/api/v1/search?q=god&prefs="+url.QueryEscape(prefs), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, results(t, out))
}

func TestSearchRejectsBadInput(t *testing.T) {
	f := newFixture(t, false)
	tests := []struct {
		name, method, target, body string
	}{
		{"bad json body", http.MethodPost, "/api/v1/search", "{"},
		{"bad prefs param", http.MethodGet, "/api/v1/search?q=god&prefs=%7B", ""},
		{"inverted dc range", http.MethodPost, "/api/v1/search", `{"query":"god","preferences":{"includedBooks":{"dc":[9,2]}}}`},
		{"query too long", http.MethodGet, "/api/v1/search?q=" + strings.Repeat("a", 65), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := f.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestSearchEmptyQueryIsEmptyResult(t *testing.T) {
	f := newFixture(t, false)
	for _, q := range []string{"", "%20%2C%2C"} {
		rec, out := f.do(t, http.MethodGet, "/api/v1/search?q="+q, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, results(t, out))
		assert.Equal(t, float64(0), out["total_hits"])
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.SearchQueriesTotal.WithLabelValues("rejected")))
}

func TestSearchUsesCache(t *testing.T) {
	f := newFixture(t, true)
	_, first := f.do(t, http.MethodGet, "/api/v1/search?q=faith", "")
	_, second := f.do(t, http.MethodGet, "/api/v1/search?q=faith", "")
	assert.Equal(t, false, first["cache_hit"])
	assert.Equal(t, true, second["cache_hit"])
	assert.Equal(t, results(t, first), results(t, second))

	rec, stats := f.do(t, http.MethodGet, "/api/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), stats["hits"])

	rec, out := f.do(t, http.MethodPost, "/api/v1/cache/invalidate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), out["keys_deleted"])
}

func TestCacheEndpointsWhenDisabled(t *testing.T) {
	f := newFixture(t, false)
	rec, out := f.do(t, http.MethodGet, "/api/v1/cache/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "disabled", out["status"])

	rec, _ = f.do(t, http.MethodPost, "/api/v1/cache/invalidate", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPreview(t *testing.T) {
	f := newFixture(t, false)
	rec, out := f.do(t, http.MethodGet, "/api/v1/preview?path=ot:0.0.0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ot:0.0.0", out["path"])
	lines := results(t, out)
	require.NotEmpty(t, lines)
	assert.NotContains(t, lines[0], `class="match"`)

	for _, target := range []string{"/api/v1/preview", "/api/v1/preview?path=zz:1", "/api/v1/preview?path=ot:9.0.0"} {
		rec, _ := f.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestAnalyticsEndpoint(t *testing.T) {
	f := newFixture(t, false)
	f.do(t, http.MethodGet, "/api/v1/search?q=god", "")
	f.do(t, http.MethodGet, "/api/v1/search?q=zarahemla", "")
	f.coll.Close()

	rec, out := f.do(t, http.MethodGet, "/api/v1/analytics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), out["total_searches"])
	assert.Equal(t, float64(1), out["zero_result_count"])
}

type countingSearcher struct {
	*executor.Executor
	plans []*parser.QueryPlan
}

func (s *countingSearcher) ExecutePlan(ctx context.Context, plan *parser.QueryPlan, prefs *preferences.Preferences) (*executor.SearchResult, error) {
	s.plans = append(s.plans, plan)
	return s.Executor.ExecutePlan(ctx, plan, prefs)
}

func TestSearchRecordsQueryStems(t *testing.T) {
	f := newFixture(t, false)
	f.do(t, http.MethodGet, "/api/v1/search?q=Believe+believed+God", "")
	f.coll.Close()

	stems := f.agg.Stats().TopStems
	assert.ElementsMatch(t, []analytics.QueryCount{{Query: "believ", Count: 1}, {Query: "god", Count: 1}}, stems)
}

func TestSearchExecutesTheCheckedPlan(t *testing.T) {
	c := corpustest.New()
	snap, err := indexer.NewBuilder(indexer.Options{}).Build(context.Background(), c)
	require.NoError(t, err)
	s := &countingSearcher{Executor: executor.New(index.Memory{Snapshot: snap, Source: c})}
	h := New(s, Options{DefaultPreferences: preferences.Default(c)})
	mux := http.NewServeMux()
	h.Routes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=god+earth", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, s.plans, 1)
	assert.Equal(t, []string{"god", "earth"}, s.plans[0].Stems())
	assert.Equal(t, "god earth", s.plans[0].RawQuery)
}

func TestArtifactEndpoint(t *testing.T) {
	f := newFixture(t, false)
	rec, out := f.do(t, http.MethodGet, "/api/v1/artifact", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", out["digest"])
}

type failingSearcher struct{ err error }

func (s failingSearcher) ExecutePlan(context.Context, *parser.QueryPlan, *preferences.Preferences) (*executor.SearchResult, error) {
	return nil, s.err
}

func (s failingSearcher) ChapterPreview(corpus.VersePath) ([]string, error) { return nil, s.err }

func TestSearchErrorsHideDetail(t *testing.T) {
	err := errors.Join(apperrors.ErrCorruptArtifact, errors.New("id 9 has no path"))
	h := New(failingSearcher{err: err}, Options{DefaultPreferences: preferences.Bootstrap()})
	mux := http.NewServeMux()
	h.Routes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=god", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"search failed"}`, rec.Body.String())
}
