package poll

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Scheduler drives the countdown of every active room. Each room gets one
// goroutine that ticks the countdown, closes the poll at zero and evicts
// the room once the retention period has elapsed.
type Scheduler struct {
	clock     clockwork.Clock
	registry  *Registry
	notifier  *Notifier
	tick      time.Duration
	retention time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	active atomic.Int64

	// mu orders wg.Add in Start against Stop.
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler bound to registry.
func NewScheduler(config Config, clock clockwork.Clock, registry *Registry, notifier *Notifier) *Scheduler {
	config = config.withDefaults()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:     clock,
		registry:  registry,
		notifier:  notifier,
		tick:      config.TickInterval,
		retention: config.RetentionPeriod,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the room's countdown. It is a no-op returning false when
// the room already has a countdown, has ended, or has been evicted.
func (s *Scheduler) Start(room *Room) bool {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.timer != nil || room.evicted || !room.isActive {
		log.Debug().Str("room_id", room.code).Msg("skipping timer start - already running or closed")
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}

	ctx, cancel := context.WithCancel(s.ctx)
	room.timer = &roomTimer{cancel: cancel}
	// Created here rather than in run so the ticker exists by the time
	// Start returns.
	ticker := s.clock.NewTicker(s.tick)

	s.wg.Add(1)
	s.active.Add(1)
	go s.run(ctx, room, ticker)

	log.Info().
		Str("room_id", room.code).
		Int("duration_sec", room.timerDuration).
		Msg("started room timer")
	return true
}

// ActiveTimers returns the number of running room goroutines.
func (s *Scheduler) ActiveTimers() int {
	return int(s.active.Load())
}

// Stop cancels every room goroutine and waits for them to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	log.Info().Msg("room scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, room *Room, ticker clockwork.Ticker) {
	defer s.wg.Done()
	defer s.active.Add(-1)

	ended := false
	for !ended {
		select {
		case <-ctx.Done():
			ticker.Stop()
			log.Debug().Str("room_id", room.code).Msg("room timer cancelled")
			return
		case <-ticker.Chan():
			ended = s.advance(room)
		}
	}
	ticker.Stop()

	retention := s.clock.NewTimer(s.retention)
	select {
	case <-ctx.Done():
		stopAndDrainTimer(retention)
		log.Debug().Str("room_id", room.code).Msg("retention wait cancelled")
	case <-retention.Chan():
		s.expire(room)
	}
}

// advance applies one countdown step. It reports true when the room no
// longer needs ticking.
func (s *Scheduler) advance(room *Room) bool {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.evicted || !room.isActive {
		return true
	}

	room.timeRemaining--
	if room.timeRemaining < 0 {
		room.timeRemaining = 0
	}
	s.notifier.Room(room.code, EventTypeTimeUpdate, TimeUpdatePayload{TimeRemaining: room.timeRemaining})

	if room.timeRemaining%60 == 0 {
		log.Debug().Str("room_id", room.code).Int("time_remaining", room.timeRemaining).Msg("room countdown")
	}
	if room.timeRemaining > 0 {
		return false
	}

	room.isActive = false
	room.endedAt = s.clock.Now()
	s.notifier.Room(room.code, EventTypePollEnded, PollEndedPayload{
		FinalVotes: room.tally.clone(),
		Question:   room.question,
		Options:    room.options.clone(),
		EndedAt:    room.endedAt.UTC(),
	})

	log.Info().
		Str("room_id", room.code).
		Int("total_votes", room.tally.Total()).
		Msg("poll ended")
	return true
}

// expire evicts an ended room once its retention period is over.
func (s *Scheduler) expire(room *Room) {
	room.mu.Lock()
	defer room.mu.Unlock()

	s.registry.evictLocked(room, EvictReasonExpired)
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
