package poll

import (
	"context"
	"sync"
	"time"
)

// Room is the authoritative state of one poll. All mutable fields are
// guarded by mu; code, question, options, duration and createdAt are fixed
// before the room is published in the registry.
type Room struct {
	code          string
	question      string
	options       Options
	creator       string
	timerDuration int
	createdAt     time.Time

	mu            sync.Mutex
	tally         Tally
	ballots       map[string]string // connection id -> option; survives departure
	participants  map[string]*Participant
	isActive      bool
	timeRemaining int
	endedAt       time.Time
	timer         *roomTimer
	evicted       bool
}

// roomTimer is the room's single countdown task. A non-nil timer means the
// countdown has been started; it is never reset.
type roomTimer struct {
	cancel context.CancelFunc
}

func newRoom(question string, options Options, durationSec int, createdAt time.Time) *Room {
	tally := make(Tally, len(options))
	for _, opt := range options {
		tally[opt.Key] = 0
	}
	return &Room{
		question:      question,
		options:       options.clone(),
		timerDuration: durationSec,
		createdAt:     createdAt,
		tally:         tally,
		ballots:       make(map[string]string),
		participants:  make(map[string]*Participant),
		isActive:      true,
		timeRemaining: durationSec,
	}
}

// Code returns the room's routing key.
func (r *Room) Code() string {
	return r.code
}

// Question returns the poll prompt.
func (r *Room) Question() string {
	return r.question
}

// Options returns a copy of the option set.
func (r *Room) Options() Options {
	return r.options.clone()
}

// CreatedAt returns the creation time.
func (r *Room) CreatedAt() time.Time {
	return r.createdAt
}

// Snapshot returns a consistent copy of the room state.
func (r *Room) Snapshot() RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Summary returns the listing view of the room.
func (r *Room) Summary() RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomSummary{
		ID:            r.code,
		Question:      r.question,
		Options:       r.options.clone(),
		TotalVotes:    r.tally.Total(),
		IsActive:      r.isActive,
		TimeRemaining: r.timeRemaining,
		Participants:  len(r.participants),
	}
}

// Participant returns a copy of the participant seated on connID.
func (r *Room) Participant(connID string) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[connID]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// IsActive reports whether voting is still open.
func (r *Room) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isActive
}

// TimeRemaining returns the countdown in seconds.
func (r *Room) TimeRemaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeRemaining
}

// Evicted reports whether the room has been torn down.
func (r *Room) Evicted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evicted
}

func (r *Room) snapshotLocked() RoomSnapshot {
	return RoomSnapshot{
		RoomID:        r.code,
		Question:      r.question,
		Options:       r.options.clone(),
		Votes:         r.tally.clone(),
		TimeRemaining: r.timeRemaining,
		TimerDuration: r.timerDuration,
		IsActive:      r.isActive,
		Participants:  len(r.participants),
		Creator:       r.creator,
		CreatedAt:     r.createdAt,
	}
}

func (r *Room) statePayloadLocked() RoomStatePayload {
	return RoomStatePayload{
		RoomID:        r.code,
		Question:      r.question,
		Options:       r.options.clone(),
		Votes:         r.tally.clone(),
		TimeRemaining: r.timeRemaining,
		TimerDuration: r.timerDuration,
		IsActive:      r.isActive,
	}
}

// addParticipantLocked seats connID. It reports false when the connection
// was already seated, in which case only the display name is refreshed.
func (r *Room) addParticipantLocked(connID, displayName string, at time.Time) bool {
	if p, ok := r.participants[connID]; ok {
		p.DisplayName = displayName
		return false
	}
	r.participants[connID] = &Participant{
		DisplayName: displayName,
		JoinedAt:    at,
	}
	return true
}

// removeParticipantLocked unseats connID and reports whether it was seated.
func (r *Room) removeParticipantLocked(connID string) bool {
	if _, ok := r.participants[connID]; !ok {
		return false
	}
	delete(r.participants, connID)
	return true
}

// castVoteLocked applies the vote preconditions in order and records the
// vote. The caller has already checked that the room is live.
func (r *Room) castVoteLocked(connID, option string) error {
	if !r.isActive {
		return ErrRoomEnded
	}
	p, ok := r.participants[connID]
	if !ok {
		return ErrUnknownParticipant
	}
	if _, voted := r.ballots[connID]; voted || p.HasVoted {
		return ErrAlreadyVoted
	}
	if _, ok := r.tally[option]; !ok {
		return ErrUnknownOption
	}
	r.tally[option]++
	r.ballots[connID] = option
	p.HasVoted = true
	p.VotedOption = option
	return nil
}

// Ballots returns the number of accepted votes, including those of
// participants that have since left. It always equals the tally total.
func (r *Room) Ballots() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ballots)
}
