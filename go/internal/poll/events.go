package poll

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// EventType names an event on the wire.
type EventType string

const (
	EventTypeRoomCreated   EventType = "room_created"
	EventTypeRoomJoined    EventType = "room_joined"
	EventTypeUserJoined    EventType = "user_joined"
	EventTypeVoteUpdate    EventType = "vote_update"
	EventTypeVoteConfirmed EventType = "vote_confirmed"
	EventTypeTimeUpdate    EventType = "time_update"
	EventTypePollEnded     EventType = "poll_ended"
	EventTypeRoomClosed    EventType = "room_closed"
	EventTypeError         EventType = "error"
)

// Event is the envelope for everything the server sends to clients.
type Event struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"roomId,omitempty"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent builds an event with a fresh id.
func NewEvent(roomID string, eventType EventType, payload interface{}, at time.Time) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Type:      eventType,
		Timestamp: at.UTC(),
		Data:      data,
	}, nil
}

// RoomStatePayload is sent with room_created and room_joined.
type RoomStatePayload struct {
	RoomID        string  `json:"roomId"`
	Question      string  `json:"question"`
	Options       Options `json:"options"`
	Votes         Tally   `json:"votes"`
	TimeRemaining int     `json:"timeRemaining"`
	TimerDuration int     `json:"timerDuration"`
	IsActive      bool    `json:"isActive"`
}

// UserJoinedPayload is sent to existing participants when someone joins.
type UserJoinedPayload struct {
	Username string `json:"username"`
}

// VoteUpdatePayload carries the full tally after a vote.
type VoteUpdatePayload struct {
	Votes Tally `json:"votes"`
}

// VoteConfirmedPayload acknowledges a vote to the voter.
type VoteConfirmedPayload struct {
	Option string `json:"option"`
	Votes  Tally  `json:"votes"`
}

// TimeUpdatePayload carries the countdown.
type TimeUpdatePayload struct {
	TimeRemaining int `json:"timeRemaining"`
}

// PollEndedPayload carries the closing tally.
type PollEndedPayload struct {
	FinalVotes Tally     `json:"finalVotes"`
	Question   string    `json:"question"`
	Options    Options   `json:"options"`
	EndedAt    time.Time `json:"endedAt"`
}

// RoomClosedPayload is sent when a room is evicted while viewers remain.
type RoomClosedPayload struct {
	Reason string `json:"reason"`
}

// ErrorPayload reports a rejected request to its sender.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Broadcaster delivers events to connections. Implementations are called
// while the room lock is held: they must not block and must not call back
// into the App.
type Broadcaster interface {
	BroadcastToRoom(roomID string, event *Event)
	BroadcastToRoomExcept(roomID, connID string, event *Event)
	SendToConnection(connID string, event *Event)
}

// SessionRouter subscribes connections to room broadcast groups.
type SessionRouter interface {
	Subscribe(connID, roomID string)
	Unsubscribe(connID, roomID string)
	// CloseRoom drops every subscription to roomID.
	CloseRoom(roomID string)
}

// EventSink receives a copy of every room-wide event. Publish must not block.
type EventSink interface {
	Publish(ctx context.Context, event *Event) error
}

// Notifier turns room state changes into events and hands them to the
// Broadcaster, mirroring room-wide events to the sink.
type Notifier struct {
	broadcaster Broadcaster
	sink        EventSink
	clock       clockwork.Clock
}

// NewNotifier creates a notifier. sink may be nil.
func NewNotifier(broadcaster Broadcaster, sink EventSink, clock clockwork.Clock) *Notifier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Notifier{
		broadcaster: broadcaster,
		sink:        sink,
		clock:       clock,
	}
}

func (n *Notifier) build(roomID string, eventType EventType, payload interface{}) *Event {
	event, err := NewEvent(roomID, eventType, payload, n.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("event_type", string(eventType)).Msg("failed to build event")
		return nil
	}
	return event
}

// Room sends an event to every subscriber of the room.
func (n *Notifier) Room(roomID string, eventType EventType, payload interface{}) {
	event := n.build(roomID, eventType, payload)
	if event == nil {
		return
	}
	n.broadcaster.BroadcastToRoom(roomID, event)
	n.publish(event)
}

// RoomExcept sends an event to every subscriber of the room but connID.
func (n *Notifier) RoomExcept(roomID, connID string, eventType EventType, payload interface{}) {
	event := n.build(roomID, eventType, payload)
	if event == nil {
		return
	}
	n.broadcaster.BroadcastToRoomExcept(roomID, connID, event)
	n.publish(event)
}

// Direct sends an event to one connection.
func (n *Notifier) Direct(roomID, connID string, eventType EventType, payload interface{}) {
	event := n.build(roomID, eventType, payload)
	if event == nil {
		return
	}
	n.broadcaster.SendToConnection(connID, event)
}

func (n *Notifier) publish(event *Event) {
	if n.sink == nil {
		return
	}
	if err := n.sink.Publish(context.Background(), event); err != nil {
		log.Warn().Err(err).Str("room_id", event.RoomID).Str("event_type", string(event.Type)).Msg("failed to publish event")
	}
}
