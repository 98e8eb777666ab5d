package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/metrics"
)

// Publisher delivers a batch of events. *kafka.Producer and *Aggregator
// both satisfy it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type CollectorOptions struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	Metrics       *metrics.Metrics
}

// Collector decouples request handling from publishing. Track never
// blocks: when the buffer is full the event is dropped and counted.
type Collector struct {
	publisher Publisher
	opts      CollectorOptions
	logger    *slog.Logger

	mu      sync.RWMutex
	closed  bool
	eventCh chan SearchEvent
	done    chan struct{}
}

func NewCollector(publisher Publisher, opts CollectorOptions) *Collector {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	return &Collector{
		publisher: publisher,
		opts:      opts,
		logger:    slog.Default().With("component", "analytics-collector"),
		eventCh:   make(chan SearchEvent, opts.BufferSize),
		done:      make(chan struct{}),
	}
}

// Start launches the batching loop. It runs until ctx is cancelled or Close
// is called, publishing whatever is still buffered before it exits.
func (c *Collector) Start(ctx context.Context) {
	go c.loop(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", c.opts.BufferSize,
		"batch_size", c.opts.BatchSize,
		"flush_interval", c.opts.FlushInterval,
	)
}

func (c *Collector) loop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.opts.FlushInterval)
	defer ticker.Stop()
	batch := make([]kafka.Event, 0, c.opts.BatchSize)
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.flush(context.Background(), batch)
				return
			}
			batch = append(batch, kafka.Event{Key: event.Query, Value: event})
			if len(batch) >= c.opts.BatchSize {
				batch = c.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = c.flush(ctx, batch)
		case <-ctx.Done():
		drain:
			for {
				select {
				case event, ok := <-c.eventCh:
					if !ok {
						break drain
					}
					batch = append(batch, kafka.Event{Key: event.Query, Value: event})
				default:
					break drain
				}
			}
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			c.flush(flushCtx, batch)
			cancel()
			return
		}
	}
}

// flush publishes batch and returns an empty slice ready for reuse. A
// failed batch is logged and discarded.
func (c *Collector) flush(ctx context.Context, batch []kafka.Event) []kafka.Event {
	if len(batch) == 0 {
		return batch
	}
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("publishing analytics batch", "events", len(batch), "error", err)
		c.dropped(len(batch))
	}
	return batch[:0]
}

// Track queues event for publishing. It reports false if the event was
// dropped.
func (c *Collector) Track(event SearchEvent) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.eventCh <- event:
		return true
	default:
		c.dropped(1)
		return false
	}
}

// Close stops accepting events and waits until the buffer has been
// published. Start must have been called.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) dropped(n int) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.AnalyticsDropped.Add(float64(n))
	}
}
