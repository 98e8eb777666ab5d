// Package handler exposes the searcher over HTTP.
//
//	GET  /api/v1/search?q=...&prefs=<json>   search with query-string input
//	POST /api/v1/search                      {"query": ..., "preferences": {...}}
//	GET  /api/v1/preview?path=ot:0.0.0       chapter preview for a verse path
//	GET  /api/v1/cache/stats                 query cache counters
//	POST /api/v1/cache/invalidate            drop cached results
//	GET  /api/v1/analytics                   aggregated search analytics
//	GET  /api/v1/artifact                    loaded artifact header and digest
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/preferences"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/metrics"
)

const maxBodyBytes = 64 << 10

// Searcher is the query side of the executor.
type Searcher interface {
	ExecutePlan(ctx context.Context, plan *parser.QueryPlan, prefs *preferences.Preferences) (*executor.SearchResult, error)
	ChapterPreview(path corpus.VersePath) ([]string, error)
}

type Options struct {
	// DefaultPreferences apply when a request carries none.
	DefaultPreferences *preferences.Preferences
	MaxQueryLength     int
	Cache              *cache.QueryCache
	Collector          *analytics.Collector
	Aggregator         *analytics.Aggregator
	Metrics            *metrics.Metrics
	// ArtifactInfo is served at /api/v1/artifact.
	ArtifactInfo any
}

type Handler struct {
	searcher Searcher
	opts     Options
	logger   *slog.Logger
}

func New(searcher Searcher, opts Options) *Handler {
	if opts.DefaultPreferences == nil {
		opts.DefaultPreferences = &preferences.Preferences{}
	}
	return &Handler{
		searcher: searcher,
		opts:     opts,
		logger:   logger.WithComponent("search-handler"),
	}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/preview", h.Preview)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /api/v1/analytics", h.Analytics)
	mux.HandleFunc("GET /api/v1/artifact", h.Artifact)
}

type searchRequest struct {
	Query       string          `json:"query"`
	Preferences json.RawMessage `json:"preferences"`
}

type searchResponse struct {
	*executor.SearchResult
	CacheHit  bool  `json:"cache_hit"`
	LatencyUs int64 `json:"latency_us"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query, prefs, err := h.decodeSearch(w, r)
	if err != nil {
		h.countQuery("rejected")
		h.writeError(w, err)
		return
	}

	plan := parser.Parse(query)
	if !prefs.CanSearch(query) || plan.Empty() {
		h.countQuery("rejected")
		h.track(ctx, analytics.SearchEvent{Type: analytics.EventRejected, Query: query}, start)
		h.writeJSON(w, http.StatusOK, searchResponse{SearchResult: &executor.SearchResult{
			Query:     query,
			Mode:      executor.ModeFor(prefs).String(),
			Results:   []string{},
			TermStats: map[string]int{},
		}})
		return
	}

	var (
		result   *executor.SearchResult
		cacheHit bool
	)
	compute := func() (*executor.SearchResult, error) {
		return h.searcher.ExecutePlan(ctx, plan, prefs)
	}
	if h.opts.Cache != nil {
		result, cacheHit, err = h.opts.Cache.GetOrCompute(ctx, query, prefs, compute)
	} else {
		result, err = compute()
	}
	if err != nil {
		h.countQuery("error")
		log.Error("search execution failed", "query", query, "error", err)
		h.writeError(w, err)
		return
	}

	latency := time.Since(start)
	if h.opts.Metrics != nil {
		cacheStatus := "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
		h.opts.Metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
		h.opts.Metrics.SearchResultsCount.Observe(float64(result.TotalHits))
	}
	if result.TotalHits == 0 {
		h.countQuery("zero_result")
	} else {
		h.countQuery("hit")
	}
	log.Info("search completed",
		"query", query,
		"mode", result.Mode,
		"total_hits", result.TotalHits,
		"cache_hit", cacheHit,
		"latency_us", latency.Microseconds(),
	)
	h.track(ctx, analytics.SearchEvent{
		Type:      analytics.TypeFor(result.TotalHits),
		Query:     query,
		Stems:     plan.Stems(),
		Mode:      result.Mode,
		Combine:   prefs.CombineMode().String(),
		TotalHits: result.TotalHits,
		CacheHit:  cacheHit,
	}, start)

	h.writeJSON(w, http.StatusOK, searchResponse{
		SearchResult: result,
		CacheHit:     cacheHit,
		LatencyUs:    latency.Microseconds(),
	})
}

// decodeSearch reads the query and preferences from either the query
// string (GET) or a JSON body (POST).
func (h *Handler) decodeSearch(w http.ResponseWriter, r *http.Request) (string, *preferences.Preferences, error) {
	var (
		query    string
		rawPrefs []byte
	)
	if r.Method == http.MethodPost {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			return "", nil, fmt.Errorf("%w: reading body: %v", apperrors.ErrInvalidInput, err)
		}
		var req searchRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return "", nil, fmt.Errorf("%w: request body: %v", apperrors.ErrInvalidInput, err)
		}
		query, rawPrefs = req.Query, req.Preferences
	} else {
		query = r.URL.Query().Get("q")
		if p := r.URL.Query().Get("prefs"); p != "" {
			rawPrefs = []byte(p)
		}
	}

	if h.opts.MaxQueryLength > 0 && len(query) > h.opts.MaxQueryLength {
		return "", nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"query longer than %d bytes", h.opts.MaxQueryLength)
	}
	if len(rawPrefs) == 0 || string(rawPrefs) == "null" {
		return query, h.opts.DefaultPreferences, nil
	}
	prefs, err := preferences.Parse(rawPrefs)
	if err != nil {
		return "", nil, err
	}
	return query, prefs, nil
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("path")
	if raw == "" {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'path' is required"))
		return
	}
	path, err := corpus.ParseVersePath(raw)
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err))
		return
	}
	lines, err := h.searcher.ChapterPreview(path)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"path":    path.String(),
		"results": lines,
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.opts.Cache.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	deleted, err := h.opts.Cache.Invalidate(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	if h.opts.Aggregator == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.opts.Aggregator.Stats())
}

func (h *Handler) Artifact(w http.ResponseWriter, r *http.Request) {
	if h.opts.ArtifactInfo == nil {
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "no artifact loaded"))
		return
	}
	h.writeJSON(w, http.StatusOK, h.opts.ArtifactInfo)
}

func (h *Handler) track(ctx context.Context, event analytics.SearchEvent, start time.Time) {
	if h.opts.Collector == nil {
		return
	}
	event.LatencyUs = time.Since(start).Microseconds()
	event.Timestamp = time.Now().UTC()
	event.RequestID = logger.RequestID(ctx)
	h.opts.Collector.Track(event)
}

func (h *Handler) countQuery(resultType string) {
	if h.opts.Metrics != nil {
		h.opts.Metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to a status code. Server-side failures are reported
// without detail.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		msg = "search failed"
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
