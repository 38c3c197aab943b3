package gateway

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Inbound message types.
const (
	MessageTypeCreateRoom = "create_room"
	MessageTypeJoinRoom   = "join_room"
	MessageTypeSubmitVote = "submit_vote"
)

// InboundMessage is the envelope of every client message.
type InboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// CreateRoomData is the payload of create_room.
type CreateRoomData struct {
	Username string          `json:"username"`
	Question string          `json:"question"`
	Options  json.RawMessage `json:"options"`
	Duration FlexibleSeconds `json:"duration"`
}

// JoinRoomData is the payload of join_room.
type JoinRoomData struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// SubmitVoteData is the payload of submit_vote.
type SubmitVoteData struct {
	RoomID string `json:"roomId"`
	Option string `json:"option"`
}

// FlexibleSeconds decodes a duration given as a JSON number or a numeric
// string. Anything else decodes as zero, which selects the default.
type FlexibleSeconds int

func (f *FlexibleSeconds) UnmarshalJSON(data []byte) error {
	*f = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var raw string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
	} else {
		raw = string(data)
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(n) {
		return nil
	}
	switch {
	case n > 1<<31-1:
		*f = FlexibleSeconds(1<<31 - 1)
	case n < -(1 << 31):
		*f = FlexibleSeconds(-(1 << 31))
	default:
		*f = FlexibleSeconds(int(n))
	}
	return nil
}
