package publisher

import (
	"context"
	"sync"
	"time"

	"github.com/mcdev12/livepoll/go/internal/poll"
)

// MetricsCollector defines the interface for collecting publishing metrics
type MetricsCollector interface {
	RecordPublished(eventType string, success bool, duration time.Duration)
	RecordDropped(eventType string)
	RecordQueueDepth(depth int)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordPublished(eventType string, success bool, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordDropped(eventType string)                                         {}
func (n *NoOpMetricsCollector) RecordQueueDepth(depth int)                                             {}

// Counters is an in-memory MetricsCollector surfaced on /info.
type Counters struct {
	mu         sync.Mutex
	published  map[string]int
	failed     map[string]int
	dropped    map[string]int
	queueDepth int
	totalTime  time.Duration
}

func NewCounters() *Counters {
	return &Counters{
		published: make(map[string]int),
		failed:    make(map[string]int),
		dropped:   make(map[string]int),
	}
}

func (c *Counters) RecordPublished(eventType string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if success {
		c.published[eventType]++
	} else {
		c.failed[eventType]++
	}
	c.totalTime += duration
}

func (c *Counters) RecordDropped(eventType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped[eventType]++
}

func (c *Counters) RecordQueueDepth(depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queueDepth = depth
}

// Snapshot returns the counters as a JSON-friendly map.
func (c *Counters) Snapshot() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, n := range c.published {
		total += n
	}
	for _, n := range c.failed {
		total += n
	}
	var avg time.Duration
	if total > 0 {
		avg = c.totalTime / time.Duration(total)
	}
	return map[string]interface{}{
		"published":      copyCounts(c.published),
		"failed":         copyCounts(c.failed),
		"dropped":        copyCounts(c.dropped),
		"queue_depth":    c.queueDepth,
		"avg_publish_ms": float64(avg) / float64(time.Millisecond),
	}
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MetricPublisher wraps an EventPublisher with metrics collection
type MetricPublisher struct {
	publisher EventPublisher
	metrics   MetricsCollector
}

func NewMetricPublisher(publisher EventPublisher, metrics MetricsCollector) *MetricPublisher {
	return &MetricPublisher{
		publisher: publisher,
		metrics:   metrics,
	}
}

func (p *MetricPublisher) Publish(ctx context.Context, event *poll.Event) error {
	start := time.Now()
	err := p.publisher.Publish(ctx, event)
	p.metrics.RecordPublished(string(event.Type), err == nil, time.Since(start))
	return err
}
