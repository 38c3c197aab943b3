package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/poll"
)

// RoomReader is the read side of poll.App used by the REST surface.
type RoomReader interface {
	ListRooms(ctx context.Context) []poll.RoomSummary
	GetRoom(ctx context.Context, code string) (*poll.RoomSnapshot, error)
}

// RoomDetail is the body of GET /api/rooms/{roomId}.
type RoomDetail struct {
	ID            string       `json:"id"`
	Question      string       `json:"question"`
	Options       poll.Options `json:"options"`
	Votes         poll.Tally   `json:"votes"`
	IsActive      bool         `json:"isActive"`
	TimeRemaining int          `json:"timeRemaining"`
	TimerDuration int          `json:"timerDuration"`
	Creator       string       `json:"creator,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// StateHandler handles HTTP requests for room state
type StateHandler struct {
	rooms RoomReader
}

// NewStateHandler creates a new state handler
func NewStateHandler(rooms RoomReader) *StateHandler {
	return &StateHandler{rooms: rooms}
}

// HandleListRooms handles GET /api/rooms
func (h *StateHandler) HandleListRooms(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.rooms.ListRooms(r.Context()))
}

// HandleGetRoom handles GET /api/rooms/{roomId}
func (h *StateHandler) HandleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")

	snap, err := h.rooms.GetRoom(r.Context(), roomID)
	if errors.Is(err, poll.ErrRoomNotFound) {
		WriteJSON(w, http.StatusNotFound, map[string]string{"error": poll.ErrRoomNotFound.Error()})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to get room state")
		WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": msgInternal})
		return
	}

	WriteJSON(w, http.StatusOK, RoomDetail{
		ID:            snap.RoomID,
		Question:      snap.Question,
		Options:       snap.Options,
		Votes:         snap.Votes,
		IsActive:      snap.IsActive,
		TimeRemaining: snap.TimeRemaining,
		TimerDuration: snap.TimerDuration,
		Creator:       snap.Creator,
		CreatedAt:     snap.CreatedAt,
	})
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rooms", h.HandleListRooms)
	mux.HandleFunc("GET /api/rooms/{roomId}", h.HandleGetRoom)
}

// WriteJSON encodes v as the response body.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
