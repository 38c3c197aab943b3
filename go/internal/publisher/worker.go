package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/poll"
)

var (
	// ErrQueueFull is returned when an event is dropped for lack of room.
	ErrQueueFull = errors.New("publish queue full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("publisher closed")
)

type Config struct {
	QueueSize      int
	Workers        int
	PublishTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		QueueSize:      1000,
		Workers:        2,
		PublishTimeout: 5 * time.Second,
	}
}

// AsyncPublisher decouples room goroutines from the broker: Publish only
// enqueues, and a fixed pool of workers delivers. It implements
// poll.EventSink.
type AsyncPublisher struct {
	publisher EventPublisher
	config    Config
	metrics   MetricsCollector
	queue     chan *poll.Event

	mu      sync.RWMutex
	running bool
	closed  bool
	wg      sync.WaitGroup
}

var _ poll.EventSink = (*AsyncPublisher)(nil)

func NewAsyncPublisher(publisher EventPublisher, cfg Config, metrics MetricsCollector) *AsyncPublisher {
	d := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = d.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = d.Workers
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = d.PublishTimeout
	}
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	return &AsyncPublisher{
		publisher: publisher,
		config:    cfg,
		metrics:   metrics,
		queue:     make(chan *poll.Event, cfg.QueueSize),
	}
}

// Start launches the workers.
func (a *AsyncPublisher) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if a.running {
		return fmt.Errorf("publisher already running")
	}
	a.running = true

	for i := 0; i < a.config.Workers; i++ {
		a.wg.Add(1)
		go a.work(i)
	}

	log.Info().
		Int("workers", a.config.Workers).
		Int("queue_size", a.config.QueueSize).
		Msg("event publisher started")
	return nil
}

// Publish enqueues event without blocking.
func (a *AsyncPublisher) Publish(ctx context.Context, event *poll.Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}

	select {
	case a.queue <- event:
		a.metrics.RecordQueueDepth(len(a.queue))
		return nil
	default:
		a.metrics.RecordDropped(string(event.Type))
		return ErrQueueFull
	}
}

// Close stops accepting events and waits until the queue is drained.
func (a *AsyncPublisher) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	running := a.running
	a.mu.Unlock()

	if running {
		a.wg.Wait()
	}
	log.Info().Msg("event publisher stopped")
}

func (a *AsyncPublisher) work(id int) {
	defer a.wg.Done()
	for event := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.config.PublishTimeout)
		err := a.publisher.Publish(ctx, event)
		cancel()

		if err != nil {
			log.Error().
				Err(err).
				Int("worker", id).
				Str("event_id", event.ID).
				Str("event_type", string(event.Type)).
				Str("room_id", event.RoomID).
				Msg("failed to publish event")
		}
		a.metrics.RecordQueueDepth(len(a.queue))
	}
}
