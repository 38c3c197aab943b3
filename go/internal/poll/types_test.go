package poll

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Options
		invalid bool
	}{
		{
			name: "list",
			raw:  `["Cats", " Dogs "]`,
			want: catsDogs(),
		},
		{
			name: "object sorted by index",
			raw:  `{"option3": "Birds", "option1": "Cats", "option2": "Dogs"}`,
			want: append(catsDogs(), Option{Key: "option3", Text: "Birds"}),
		},
		{name: "too few", raw: `["Cats"]`, invalid: true},
		{name: "too many", raw: `["a","b","c","d","e","f"]`, invalid: true},
		{name: "blank text", raw: `["Cats", "  "]`, invalid: true},
		{name: "bad key", raw: `{"option1": "Cats", "option6": "Dogs"}`, invalid: true},
		{name: "zero key", raw: `{"option0": "Cats", "option1": "Dogs"}`, invalid: true},
		{name: "not strings", raw: `[1, 2]`, invalid: true},
		{name: "scalar", raw: `"Cats,Dogs"`, invalid: true},
		{name: "null", raw: `null`, invalid: true},
		{name: "missing", raw: ``, invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOptions(json.RawMessage(tt.raw))
			if tt.invalid {
				require.Error(t, err)
				assert.True(t, IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOptions_MarshalKeepsOrder(t *testing.T) {
	opts := Options{
		{Key: "option1", Text: "Cats"},
		{Key: "option2", Text: "Dogs"},
		{Key: "option3", Text: `"Birds"`},
	}
	data, err := json.Marshal(opts)
	require.NoError(t, err)
	assert.Equal(t, `{"option1":"Cats","option2":"Dogs","option3":"\"Birds\""}`, string(data))

	var back Options
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, opts, back)
}

func TestRoomSnapshot_JSON(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	room := newRoom("Cats or dogs?", catsDogs(), 60, created)
	room.code = "ABC123"

	data, err := json.Marshal(room.Snapshot())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"roomId": "ABC123",
		"question": "Cats or dogs?",
		"options": {"option1": "Cats", "option2": "Dogs"},
		"votes": {"option1": 0, "option2": 0},
		"timeRemaining": 60,
		"timerDuration": 60,
		"isActive": true,
		"participants": 0,
		"createdAt": "2024-05-01T12:00:00Z"
	}`, string(data))
}

func TestRoom_CastVote(t *testing.T) {
	room := newRoom("Q?", catsDogs(), 60, time.Now())
	room.mu.Lock()
	defer room.mu.Unlock()

	assert.ErrorIs(t, room.castVoteLocked("c0", "option1"), ErrUnknownParticipant)

	assert.True(t, room.addParticipantLocked("c0", "alice", time.Now()))
	assert.False(t, room.addParticipantLocked("c0", "alice", time.Now()))

	assert.ErrorIs(t, room.castVoteLocked("c0", "option3"), ErrUnknownOption)
	require.NoError(t, room.castVoteLocked("c0", "option1"))
	assert.ErrorIs(t, room.castVoteLocked("c0", "option2"), ErrAlreadyVoted)
	assert.Equal(t, Tally{"option1": 1, "option2": 0}, room.tally)

	assert.True(t, room.removeParticipantLocked("c0"))
	assert.False(t, room.removeParticipantLocked("c0"))
	assert.Equal(t, 1, room.tally.Total())
	assert.Len(t, room.ballots, 1)

	room.isActive = false
	assert.ErrorIs(t, room.castVoteLocked("c0", "option1"), ErrRoomEnded)
}

type sinkRecorder struct {
	events []*Event
}

func (s *sinkRecorder) Publish(_ context.Context, event *Event) error {
	s.events = append(s.events, event)
	return nil
}

func TestNotifier_MirrorsRoomEventsOnly(t *testing.T) {
	rec := newRecorder()
	sink := &sinkRecorder{}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	n := NewNotifier(rec, sink, clock)

	rec.Subscribe("c0", "ABC123")
	rec.Subscribe("c1", "ABC123")

	n.Direct("ABC123", "c0", EventTypeVoteConfirmed, VoteConfirmedPayload{Option: "option1"})
	n.RoomExcept("ABC123", "c0", EventTypeUserJoined, UserJoinedPayload{Username: "alice"})
	n.Room("ABC123", EventTypeTimeUpdate, TimeUpdatePayload{TimeRemaining: 5})

	require.Len(t, sink.events, 2)
	assert.Equal(t, EventTypeUserJoined, sink.events[0].Type)
	assert.Equal(t, EventTypeTimeUpdate, sink.events[1].Type)

	assert.Len(t, rec.eventsOf("c0", EventTypeUserJoined), 0)
	assert.Len(t, rec.eventsOf("c1", EventTypeUserJoined), 1)
	assert.Len(t, rec.eventsOf("c1", EventTypeVoteConfirmed), 0)

	event := rec.eventsOf("c0", EventTypeTimeUpdate)[0]
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "ABC123", event.RoomID)
	assert.True(t, clock.Now().Equal(event.Timestamp))
	assert.JSONEq(t, `{"timeRemaining":5}`, string(event.Data))
}
