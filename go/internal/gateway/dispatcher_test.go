package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/livepoll/go/internal/poll"
)

type fakeRooms struct {
	creates     []poll.CreateRoomRequest
	joins       []poll.JoinRoomRequest
	votes       []poll.VoteRequest
	disconnects []string
	err         error
}

func (f *fakeRooms) CreateRoom(_ context.Context, _ string, req poll.CreateRoomRequest) (*poll.RoomSnapshot, error) {
	f.creates = append(f.creates, req)
	return &poll.RoomSnapshot{}, f.err
}

func (f *fakeRooms) JoinRoom(_ context.Context, _ string, req poll.JoinRoomRequest) (*poll.RoomSnapshot, error) {
	f.joins = append(f.joins, req)
	return &poll.RoomSnapshot{}, f.err
}

func (f *fakeRooms) SubmitVote(_ context.Context, _ string, req poll.VoteRequest) (*poll.VoteResult, error) {
	f.votes = append(f.votes, req)
	return &poll.VoteResult{}, f.err
}

func (f *fakeRooms) Disconnect(_ context.Context, connID string) []string {
	f.disconnects = append(f.disconnects, connID)
	return nil
}

type directSender struct {
	mu   sync.Mutex
	sent map[string][]*poll.Event
}

func (s *directSender) BroadcastToRoom(string, *poll.Event)               {}
func (s *directSender) BroadcastToRoomExcept(string, string, *poll.Event) {}

func (s *directSender) SendToConnection(connID string, event *poll.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = make(map[string][]*poll.Event)
	}
	s.sent[connID] = append(s.sent[connID], event)
}

func (s *directSender) lastError(t *testing.T, connID string) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.sent[connID]
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, poll.EventTypeError, last.Type)
	var payload poll.ErrorPayload
	require.NoError(t, json.Unmarshal(last.Data, &payload))
	return payload.Message
}

func TestDispatch_CreateRoom(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		duration int
		options  poll.Options
	}{
		{
			name:     "numeric duration and list options",
			data:     `{"username":"alice","question":"Q?","options":["Cats","Dogs"],"duration":120}`,
			duration: 120,
			options:  poll.Options{{Key: "option1", Text: "Cats"}, {Key: "option2", Text: "Dogs"}},
		},
		{
			name:     "string duration and object options",
			data:     `{"username":"alice","question":"Q?","options":{"option2":"Dogs","option1":"Cats"},"duration":"90"}`,
			duration: 90,
			options:  poll.Options{{Key: "option1", Text: "Cats"}, {Key: "option2", Text: "Dogs"}},
		},
		{
			name:     "garbage duration selects default",
			data:     `{"username":"alice","question":"Q?","options":["Cats","Dogs"],"duration":"soon"}`,
			duration: 0,
			options:  poll.Options{{Key: "option1", Text: "Cats"}, {Key: "option2", Text: "Dogs"}},
		},
		{
			name:     "missing duration",
			data:     `{"username":"alice","question":"Q?","options":["Cats","Dogs"]}`,
			duration: 0,
			options:  poll.Options{{Key: "option1", Text: "Cats"}, {Key: "option2", Text: "Dogs"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rooms := &fakeRooms{}
			sender := &directSender{}
			d := NewDispatcher(rooms, sender)

			d.Dispatch(context.Background(), "c0", []byte(fmt.Sprintf(`{"type":"create_room","data":%s}`, tt.data)))

			require.Len(t, rooms.creates, 1)
			req := rooms.creates[0]
			assert.Equal(t, "alice", req.Username)
			assert.Equal(t, "Q?", req.Question)
			assert.Equal(t, tt.duration, req.DurationSeconds)
			assert.Equal(t, tt.options, req.Options)
			assert.Empty(t, sender.sent["c0"])
		})
	}
}

func TestDispatch_JoinAndVote(t *testing.T) {
	rooms := &fakeRooms{}
	d := NewDispatcher(rooms, &directSender{})
	ctx := context.Background()

	d.Dispatch(ctx, "c1", []byte(`{"type":"join_room","data":{"roomId":"abc123","username":"bob"}}`))
	d.Dispatch(ctx, "c1", []byte(`{"type":"submit_vote","data":{"roomId":"abc123","option":"option2"}}`))

	assert.Equal(t, []poll.JoinRoomRequest{{RoomID: "abc123", Username: "bob"}}, rooms.joins)
	assert.Equal(t, []poll.VoteRequest{{RoomID: "abc123", Option: "option2"}}, rooms.votes)
}

func TestDispatch_RejectsBadMessages(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"not json", `hello`, "Invalid payload"},
		{"unknown type", `{"type":"delete_room","data":{}}`, "Unknown event: delete_room"},
		{"missing data", `{"type":"join_room"}`, "Invalid payload"},
		{"wrong data shape", `{"type":"submit_vote","data":["abc"]}`, "Invalid payload"},
		{"bad options", `{"type":"create_room","data":{"username":"a","question":"Q?","options":["only"]}}`, "A poll needs between 2 and 5 options"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rooms := &fakeRooms{}
			sender := &directSender{}
			d := NewDispatcher(rooms, sender)

			d.Dispatch(context.Background(), "c0", []byte(tt.message))

			assert.Equal(t, tt.want, sender.lastError(t, "c0"))
			assert.Empty(t, rooms.creates)
			assert.Empty(t, rooms.joins)
			assert.Empty(t, rooms.votes)
		})
	}
}

func TestDispatch_MapsServiceErrors(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{poll.ErrRoomNotFound, "Room not found"},
		{fmt.Errorf("lookup: %w", poll.ErrRoomEnded), "This poll has ended"},
		{poll.ErrUnknownParticipant, "User not found in room"},
		{poll.ErrAlreadyVoted, "You have already voted"},
		{poll.ErrUnknownOption, "Invalid option"},
		{&poll.ValidationError{Field: "username", Message: "Username is required"}, "Username is required"},
		{poll.ErrCodeSpaceExhausted, "Internal server error"},
		{errors.New("boom"), "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			rooms := &fakeRooms{err: tt.err}
			sender := &directSender{}
			d := NewDispatcher(rooms, sender)

			d.Dispatch(context.Background(), "c0", []byte(`{"type":"submit_vote","data":{"roomId":"ABC123","option":"option1"}}`))
			assert.Equal(t, tt.want, sender.lastError(t, "c0"))
		})
	}
}

func TestDispatch_DisconnectIsForwarded(t *testing.T) {
	rooms := &fakeRooms{}
	d := NewDispatcher(rooms, &directSender{})
	d.HandleDisconnect(context.Background(), "c9")
	assert.Equal(t, []string{"c9"}, rooms.disconnects)
}

func TestFlexibleSeconds(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{`60`, 60},
		{`"60"`, 60},
		{`" 45 "`, 45},
		{`90.7`, 90},
		{`-5`, -5},
		{`"abc"`, 0},
		{`null`, 0},
		{`true`, 0},
		{`{}`, 0},
		{`1e12`, 1<<31 - 1},
	}

	for _, tt := range tests {
		var got FlexibleSeconds
		require.NoError(t, json.Unmarshal([]byte(tt.raw), &got), tt.raw)
		assert.Equal(t, tt.want, int(got), tt.raw)
	}
}
