// Package analytics records what people search for. The searcher tracks a
// SearchEvent per query; a Collector batches them to a Publisher (Kafka, or
// an in-process Aggregator), and the Aggregator folds them into the stats
// served at /api/v1/analytics and periodically saved to Postgres.
package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventRejected   EventType = "rejected"
)

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Stems     []string  `json:"stems"`
	Mode      string    `json:"mode"`
	Combine   string    `json:"combine"`
	TotalHits int       `json:"total_hits"`
	LatencyUs int64     `json:"latency_us"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// TypeFor classifies a completed search by its hit count.
func TypeFor(totalHits int) EventType {
	if totalHits == 0 {
		return EventZeroResult
	}
	return EventSearch
}
