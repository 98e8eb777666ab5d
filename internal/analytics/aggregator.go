package analytics

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	RejectedCount     int64        `json:"rejected_count"`
	AvgLatencyUs      float64      `json:"avg_latency_us"`
	P50LatencyUs      int64        `json:"p50_latency_us"`
	P95LatencyUs      int64        `json:"p95_latency_us"`
	P99LatencyUs      int64        `json:"p99_latency_us"`
	TopQueries        []QueryCount `json:"top_queries"`
	TopStems          []QueryCount `json:"top_stems"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	Since             time.Time    `json:"since"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds search events into running totals. It is safe for
// concurrent use.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	rejected          int64
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	stemCounts        map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time
	now               func() time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		stemCounts:        make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Record adds one event to the totals.
func (a *Aggregator) Record(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	if event.Type == EventRejected {
		a.rejected++
		return
	}
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyUs)
	} else {
		a.latencies[a.next] = event.LatencyUs
		a.next = (a.next + 1) % maxLatencySamples
	}
	query := queryLabel(event.Query)
	a.queryCounts[query]++
	for _, s := range event.Stems {
		a.stemCounts[s]++
	}
	if event.TotalHits == 0 {
		a.zeroResults++
		a.zeroResultQueries[query]++
	}
}

// queryLabel groups spellings of a query that tokenize the same way, so
// "God's  Word" and "god word" count as one query.
func queryLabel(query string) string {
	return strings.Join(strings.Fields(tokenizer.Normalize(query)), " ")
}

// PublishBatch records events whose values are SearchEvents, letting the
// aggregator stand in for Kafka when no brokers are configured.
func (a *Aggregator) PublishBatch(_ context.Context, events []kafka.Event) error {
	for _, e := range events {
		event, ok := e.Value.(SearchEvent)
		if !ok {
			return fmt.Errorf("unexpected analytics event type %T", e.Value)
		}
		a.Record(event)
	}
	return nil
}

// HandleMessage is a kafka.MessageHandler recording one JSON SearchEvent.
// Undecodable messages are logged and skipped so they do not block the
// partition.
func (a *Aggregator) HandleMessage(_ context.Context, _ []byte, value []byte) error {
	event, err := kafka.DecodeJSON[SearchEvent](value)
	if err != nil {
		a.logger.Warn("skipping undecodable analytics event", "error", err)
		return nil
	}
	a.Record(event)
	return nil
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		ZeroResultCount: a.zeroResults,
		RejectedCount:   a.rejected,
		Since:           a.startTime.UTC(),
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyUs = float64(sum) / float64(len(sorted))
		stats.P50LatencyUs = percentile(sorted, 50)
		stats.P95LatencyUs = percentile(sorted, 95)
		stats.P99LatencyUs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.TopStems = topN(a.stemCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n largest counts, ties broken alphabetically.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	slices.SortFunc(result, func(a, b QueryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Query, b.Query)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
