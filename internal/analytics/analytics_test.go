package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/postgres"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func event(query string, hits int, cacheHit bool, latency int64, stems ...string) SearchEvent {
	return SearchEvent{
		Type:      TypeFor(hits),
		Query:     query,
		Stems:     stems,
		TotalHits: hits,
		CacheHit:  cacheHit,
		LatencyUs: latency,
		Timestamp: time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestCollectorBatchesBySize(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, CollectorOptions{BufferSize: 10, BatchSize: 2, FlushInterval: time.Hour})
	c.Start(context.Background())

	for _, q := range []string{"god", "faith", "hope"} {
		assert.True(t, c.Track(event(q, 1, false, 10)))
	}
	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)

	c.Close()
	assert.Equal(t, 3, pub.count())
	assert.Equal(t, "hope", pub.batches[1][0].Key)
	assert.False(t, c.Track(event("late", 1, false, 1)))
}

func TestCollectorFlushesOnInterval(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, CollectorOptions{BatchSize: 100, FlushInterval: 10 * time.Millisecond})
	c.Start(context.Background())
	defer c.Close()

	c.Track(event("god", 3, false, 10))
	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCollectorFlushesOnCancel(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, CollectorOptions{BatchSize: 100, FlushInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	c.Track(event("a", 1, false, 1))
	c.Track(event("b", 1, false, 1))
	cancel()
	c.Close()
	assert.Equal(t, 2, pub.count())
}

func TestCollectorCountsDrops(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	pub := &recordingPublisher{err: errors.New("broker down")}
	c := NewCollector(pub, CollectorOptions{BufferSize: 1, BatchSize: 1, FlushInterval: time.Hour, Metrics: m})

	// Not started: the second event finds the buffer full.
	assert.True(t, c.Track(event("a", 1, false, 1)))
	assert.False(t, c.Track(event("b", 1, false, 1)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalyticsDropped))

	c.Start(context.Background())
	c.Close()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AnalyticsDropped), "failed batch counts as dropped")
}

func TestAggregatorStats(t *testing.T) {
	a := NewAggregator()
	a.now = func() time.Time { return a.startTime.Add(2 * time.Minute) }

	a.Record(event("god", 3, false, 100, "god"))
	a.Record(event("god", 3, true, 10, "god"))
	a.Record(event("faith hope", 0, false, 300, "faith", "hope"))
	a.Record(SearchEvent{Type: EventRejected, Query: ""})

	s := a.Stats()
	assert.Equal(t, int64(4), s.TotalSearches)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(2), s.CacheMisses)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, int64(1), s.RejectedCount)
	assert.InDelta(t, 136.67, s.AvgLatencyUs, 0.01)
	assert.Equal(t, int64(100), s.P50LatencyUs)
	assert.Equal(t, int64(300), s.P99LatencyUs)
	assert.Equal(t, []QueryCount{{"god", 2}, {"faith hope", 1}}, s.TopQueries)
	assert.Equal(t, []QueryCount{{"god", 2}, {"faith", 1}, {"hope", 1}}, s.TopStems)
	assert.Equal(t, []QueryCount{{"faith hope", 1}}, s.ZeroResultQueries)
	assert.InDelta(t, 2.0, s.QueriesPerMinute, 0.001)
}

func TestAggregatorGroupsQuerySpellings(t *testing.T) {
	a := NewAggregator()
	a.Record(event("God's  Word", 2, false, 10, "god", "word"))
	a.Record(event("god word", 2, false, 10, "god", "word"))
	a.Record(event(" GOD word ", 2, false, 10, "god", "word"))
	a.Record(event("Adam’s fall—sin", 0, false, 10, "adam", "fall", "sin"))

	s := a.Stats()
	assert.Equal(t, []QueryCount{{"god word", 3}, {"adam fall sin", 1}}, s.TopQueries)
	assert.Equal(t, []QueryCount{{"adam fall sin", 1}}, s.ZeroResultQueries)
}

func TestAggregatorAsPublisherAndKafkaHandler(t *testing.T) {
	a := NewAggregator()
	require.NoError(t, a.PublishBatch(context.Background(), []kafka.Event{{Key: "god", Value: event("god", 1, false, 5)}}))
	require.Error(t, a.PublishBatch(context.Background(), []kafka.Event{{Key: "x", Value: "not an event"}}))

	raw, err := json.Marshal(event("faith", 2, false, 7))
	require.NoError(t, err)
	require.NoError(t, a.HandleMessage(context.Background(), nil, raw))
	require.NoError(t, a.HandleMessage(context.Background(), nil, []byte("{broken")))

	assert.Equal(t, int64(2), a.Stats().TotalSearches)
}

func TestAggregatorLatencyWindowIsBounded(t *testing.T) {
	a := NewAggregator()
	for i := range maxLatencySamples + 5 {
		a.Record(event("q", 1, false, int64(i)))
	}
	assert.Len(t, a.latencies, maxLatencySamples)
	assert.Equal(t, int64(maxLatencySamples), a.latencies[0])
	assert.Equal(t, int64(maxLatencySamples+4), a.latencies[4])
}

func TestTopNLimitsAndOrders(t *testing.T) {
	counts := map[string]int64{"b": 2, "a": 2, "c": 5, "d": 1}
	assert.Equal(t, []QueryCount{{"c", 5}, {"a", 2}}, topN(counts, 2))
	assert.Empty(t, topN(nil, 3))
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := NewStore(postgres.NewFromDB(db))
	s.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return s, mock
}

func TestStoreSaveSnapshot(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO analytics_snapshots").
		WithArgs(sqlmock.AnyArg(), time.Unix(1_700_000_000, 0).UTC()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.SaveSnapshot(context.Background(), AggregatedStats{TotalSearches: 9}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreLatestSnapshot(t *testing.T) {
	s, mock := newMockStore(t)
	data, err := json.Marshal(AggregatedStats{TotalSearches: 42})
	require.NoError(t, err)
	mock.ExpectQuery("SELECT data FROM analytics_snapshots").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(data))
	mock.ExpectQuery("SELECT data FROM analytics_snapshots").
		WillReturnError(sql.ErrNoRows)

	got, err := s.LatestSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.TotalSearches)

	got, err = s.LatestSnapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMigrate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS analytics_snapshots").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRunSavesOnShutdown(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO analytics_snapshots").WillReturnResult(sqlmock.NewResult(1, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Run(ctx, NewAggregator(), time.Hour)
	assert.NoError(t, mock.ExpectationsWereMet())
}
