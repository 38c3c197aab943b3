package poll

import (
	"context"
	"sort"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators of the room engine.
type Deps struct {
	Broadcaster Broadcaster
	Router      SessionRouter
	Sink        EventSink       // optional
	Clock       clockwork.Clock // optional, defaults to the real clock
	Codes       CodeGenerator   // optional, defaults to UUIDCodeGenerator
}

// App handles the room lifecycle: create, join, vote and disconnect.
type App struct {
	registry  *Registry
	scheduler *Scheduler
	notifier  *Notifier
	router    SessionRouter
	clock     clockwork.Clock
}

// NewApp wires a registry, scheduler and notifier around deps.
func NewApp(config Config, deps Deps) *App {
	config = config.withDefaults()
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	notifier := NewNotifier(deps.Broadcaster, deps.Sink, clock)
	registry := NewRegistry(config, clock, deps.Codes)
	scheduler := NewScheduler(config, clock, registry, notifier)

	a := &App{
		registry:  registry,
		scheduler: scheduler,
		notifier:  notifier,
		router:    deps.Router,
		clock:     clock,
	}
	registry.OnEvict(a.onEvict)
	return a
}

// Registry exposes the room registry for read-only queries.
func (a *App) Registry() *Registry {
	return a.registry
}

// Scheduler exposes the countdown scheduler.
func (a *App) Scheduler() *Scheduler {
	return a.scheduler
}

// Shutdown stops every countdown.
func (a *App) Shutdown() {
	a.scheduler.Stop()
}

// CreateRoom creates a room with the requesting connection seated as its
// first participant, replies room_created and starts the countdown.
func (a *App) CreateRoom(ctx context.Context, connID string, req CreateRoomRequest) (*RoomSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	username, err := validateUsername(req.Username)
	if err != nil {
		return nil, err
	}

	room, err := a.registry.Create(CreateParams{
		Question:        req.Question,
		Options:         req.Options,
		DurationSeconds: req.DurationSeconds,
		CreatorConnID:   connID,
		CreatorName:     username,
	})
	if err != nil {
		return nil, err
	}

	room.mu.Lock()
	if room.evicted {
		// The creator disconnected between publication and here.
		room.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	a.router.Subscribe(connID, room.code)
	a.notifier.Direct(room.code, connID, EventTypeRoomCreated, room.statePayloadLocked())
	snapshot := room.snapshotLocked()
	room.mu.Unlock()

	a.scheduler.Start(room)

	log.Info().
		Str("room_id", room.code).
		Str("username", username).
		Int("options", len(room.options)).
		Int("duration_sec", room.timerDuration).
		Msg("room created")
	return &snapshot, nil
}

// JoinRoom seats connID in the room and replies with the full room state.
// Joining twice from the same connection keeps the existing vote.
func (a *App) JoinRoom(ctx context.Context, connID string, req JoinRoomRequest) (*RoomSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	code := NormalizeCode(req.RoomID)
	if code == "" {
		return nil, newValidationError("roomId", "Room ID is required")
	}
	username, err := validateUsername(req.Username)
	if err != nil {
		return nil, err
	}

	room, err := a.registry.Get(code)
	if err != nil {
		return nil, err
	}

	room.mu.Lock()
	if room.evicted {
		room.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	if !room.isActive {
		room.mu.Unlock()
		return nil, ErrRoomEnded
	}

	added := room.addParticipantLocked(connID, username, a.clock.Now())
	a.router.Subscribe(connID, room.code)
	a.notifier.Direct(room.code, connID, EventTypeRoomJoined, room.statePayloadLocked())
	if added {
		a.notifier.RoomExcept(room.code, connID, EventTypeUserJoined, UserJoinedPayload{Username: username})
	}
	snapshot := room.snapshotLocked()
	room.mu.Unlock()

	a.scheduler.Start(room)

	log.Info().
		Str("room_id", room.code).
		Str("username", username).
		Bool("rejoin", !added).
		Msg("user joined room")
	return &snapshot, nil
}

// SubmitVote records connID's vote. The increment and the participant mark
// happen under the room lock, so racing votes are all counted exactly once.
func (a *App) SubmitVote(ctx context.Context, connID string, req VoteRequest) (*VoteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	room, err := a.registry.Get(req.RoomID)
	if err != nil {
		return nil, err
	}
	option := strings.TrimSpace(req.Option)

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.evicted {
		return nil, ErrRoomNotFound
	}
	if err := room.castVoteLocked(connID, option); err != nil {
		return nil, err
	}

	votes := room.tally.clone()
	a.notifier.Room(room.code, EventTypeVoteUpdate, VoteUpdatePayload{Votes: votes})
	a.notifier.Direct(room.code, connID, EventTypeVoteConfirmed, VoteConfirmedPayload{Option: option, Votes: votes})

	log.Info().
		Str("room_id", room.code).
		Str("option", option).
		Int("total_votes", votes.Total()).
		Msg("vote recorded")
	return &VoteResult{RoomID: room.code, Option: option, Votes: votes}, nil
}

// Disconnect removes connID from every room it is seated in. Rooms left
// without participants are evicted at once. It returns the evicted codes.
func (a *App) Disconnect(ctx context.Context, connID string) []string {
	var evicted []string
	for _, room := range a.registry.Rooms() {
		room.mu.Lock()
		if room.evicted || !room.removeParticipantLocked(connID) {
			room.mu.Unlock()
			continue
		}
		a.router.Unsubscribe(connID, room.code)
		if len(room.participants) == 0 && a.registry.evictLocked(room, EvictReasonEmpty) {
			evicted = append(evicted, room.code)
		}
		room.mu.Unlock()
	}

	if len(evicted) > 0 {
		log.Info().Str("connection_id", connID).Strs("rooms", evicted).Msg("evicted empty rooms")
	}
	return evicted
}

// ListRooms returns a summary of every registered room.
func (a *App) ListRooms(ctx context.Context) []RoomSummary {
	rooms := a.registry.Rooms()
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].createdAt.Equal(rooms[j].createdAt) {
			return rooms[i].code < rooms[j].code
		}
		return rooms[i].createdAt.Before(rooms[j].createdAt)
	})
	summaries := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, room.Summary())
	}
	return summaries
}

// GetRoom returns the snapshot of one room.
func (a *App) GetRoom(ctx context.Context, code string) (*RoomSnapshot, error) {
	room, err := a.registry.Get(code)
	if err != nil {
		return nil, err
	}
	snapshot := room.Snapshot()
	return &snapshot, nil
}

// onEvict closes the room's broadcast group. It runs with the room lock held.
func (a *App) onEvict(room *Room, reason string) {
	if reason != EvictReasonEmpty {
		a.notifier.Room(room.code, EventTypeRoomClosed, RoomClosedPayload{Reason: reason})
	}
	a.router.CloseRoom(room.code)
}
