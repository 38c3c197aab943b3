package gateway

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/poll"
)

// RoomService is the part of poll.App the dispatcher drives.
type RoomService interface {
	CreateRoom(ctx context.Context, connID string, req poll.CreateRoomRequest) (*poll.RoomSnapshot, error)
	JoinRoom(ctx context.Context, connID string, req poll.JoinRoomRequest) (*poll.RoomSnapshot, error)
	SubmitVote(ctx context.Context, connID string, req poll.VoteRequest) (*poll.VoteResult, error)
	Disconnect(ctx context.Context, connID string) []string
}

// Dispatcher decodes inbound messages and routes them to the room service.
// Failures are reported to the sending connection only.
type Dispatcher struct {
	rooms  RoomService
	sender poll.Broadcaster
}

// NewDispatcher creates a dispatcher replying through sender.
func NewDispatcher(rooms RoomService, sender poll.Broadcaster) *Dispatcher {
	return &Dispatcher{rooms: rooms, sender: sender}
}

// HandleMessage implements MessageHandler.
func (d *Dispatcher) HandleMessage(ctx context.Context, conn *Connection, message []byte) {
	d.Dispatch(ctx, conn.ID, message)
}

// HandleDisconnect implements MessageHandler.
func (d *Dispatcher) HandleDisconnect(ctx context.Context, connID string) {
	d.rooms.Disconnect(ctx, connID)
}

// Dispatch handles one raw message from connID.
func (d *Dispatcher) Dispatch(ctx context.Context, connID string, message []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		d.replyError(connID, "", errInvalidPayload)
		return
	}

	var err error
	switch msg.Type {
	case MessageTypeCreateRoom:
		err = d.createRoom(ctx, connID, msg.Data)
	case MessageTypeJoinRoom:
		err = d.joinRoom(ctx, connID, msg.Data)
	case MessageTypeSubmitVote:
		err = d.submitVote(ctx, connID, msg.Data)
	default:
		err = unknownEventError(msg.Type)
	}

	if err != nil {
		d.replyError(connID, msg.Type, err)
	}
}

func (d *Dispatcher) createRoom(ctx context.Context, connID string, raw json.RawMessage) error {
	var data CreateRoomData
	if err := decodeData(raw, &data); err != nil {
		return err
	}
	options, err := poll.ParseOptions(data.Options)
	if err != nil {
		return err
	}
	_, err = d.rooms.CreateRoom(ctx, connID, poll.CreateRoomRequest{
		Username:        data.Username,
		Question:        data.Question,
		Options:         options,
		DurationSeconds: int(data.Duration),
	})
	return err
}

func (d *Dispatcher) joinRoom(ctx context.Context, connID string, raw json.RawMessage) error {
	var data JoinRoomData
	if err := decodeData(raw, &data); err != nil {
		return err
	}
	_, err := d.rooms.JoinRoom(ctx, connID, poll.JoinRoomRequest{RoomID: data.RoomID, Username: data.Username})
	return err
}

func (d *Dispatcher) submitVote(ctx context.Context, connID string, raw json.RawMessage) error {
	var data SubmitVoteData
	if err := decodeData(raw, &data); err != nil {
		return err
	}
	_, err := d.rooms.SubmitVote(ctx, connID, poll.VoteRequest{RoomID: data.RoomID, Option: data.Option})
	return err
}

func (d *Dispatcher) replyError(connID, messageType string, err error) {
	message := errorMessage(err)
	event, buildErr := poll.NewEvent("", poll.EventTypeError, poll.ErrorPayload{Message: message}, timeNow())
	if buildErr != nil {
		log.Error().Err(buildErr).Str("connection_id", connID).Msg("failed to build error event")
		return
	}
	d.sender.SendToConnection(connID, event)

	logEvent := log.Debug()
	if message == msgInternal {
		logEvent = log.Error()
	}
	logEvent.
		Err(err).
		Str("connection_id", connID).
		Str("message_type", messageType).
		Msg("request rejected")
}

func decodeData(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return errInvalidPayload
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errInvalidPayload
	}
	return nil
}
