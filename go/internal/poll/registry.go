package poll

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// CodeGenerator produces candidate room codes of the given length.
type CodeGenerator func(length int) string

// UUIDCodeGenerator derives a code from the hex digits of a random UUID.
func UUIDCodeGenerator(length int) string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	if length > len(hex) {
		length = len(hex)
	}
	return strings.ToUpper(hex[:length])
}

// EvictHook is invoked, with the room lock held, whenever a room is evicted.
type EvictHook func(room *Room, reason string)

// Eviction reasons.
const (
	EvictReasonExpired = "expired"
	EvictReasonEmpty   = "empty"
	EvictReasonDeleted = "deleted"
)

// CreateParams describes a room to create.
type CreateParams struct {
	Question        string
	Options         Options
	DurationSeconds int

	// CreatorConnID, when set, seats the creator as the first participant.
	CreatorConnID string
	CreatorName   string
}

// Registry owns the mapping from room code to Room. The registry lock only
// guards the map; room state is guarded by each room's own lock. Lock order
// is room -> registry.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	config   Config
	clock    clockwork.Clock
	generate CodeGenerator
	onEvict  EvictHook
}

// NewRegistry creates an empty registry.
func NewRegistry(config Config, clock clockwork.Clock, generate CodeGenerator) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if generate == nil {
		generate = UUIDCodeGenerator
	}
	return &Registry{
		rooms:    make(map[string]*Room),
		config:   config.withDefaults(),
		clock:    clock,
		generate: generate,
	}
}

// Create validates params, builds the room and publishes it under a fresh
// code. The room is fully initialised before any lookup can observe it.
func (r *Registry) Create(params CreateParams) (*Room, error) {
	question := strings.TrimSpace(params.Question)
	if question == "" {
		return nil, newValidationError("question", "Question is required")
	}
	if err := params.Options.Validate(); err != nil {
		return nil, err
	}

	now := r.clock.Now()
	room := newRoom(question, params.Options, r.config.ClampDuration(params.DurationSeconds), now)
	if params.CreatorConnID != "" {
		room.creator = params.CreatorName
		room.addParticipantLocked(params.CreatorConnID, params.CreatorName, now)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < r.config.MaxCodeAttempts; attempt++ {
		code := NormalizeCode(r.generate(r.config.CodeLength))
		if code == "" {
			continue
		}
		if _, taken := r.rooms[code]; taken {
			log.Debug().Str("room_id", code).Int("attempt", attempt).Msg("room code collision, retrying")
			continue
		}
		room.code = code
		r.rooms[code] = room
		return room, nil
	}

	return nil, ErrCodeSpaceExhausted
}

// OnEvict registers the eviction hook. It must be set before rooms are
// created.
func (r *Registry) OnEvict(hook EvictHook) {
	r.onEvict = hook
}

// Get looks up a room by code, case-insensitively.
func (r *Registry) Get(code string) (*Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[NormalizeCode(code)]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Delete evicts the room registered under code. It reports whether a room
// was removed.
func (r *Registry) Delete(code string) bool {
	room, err := r.Get(code)
	if err != nil {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return r.evictLocked(room, EvictReasonDeleted)
}

// Rooms returns the registered rooms in no particular order.
func (r *Registry) Rooms() []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Len returns the number of registered rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// evictLocked tears the room down: it cancels the countdown task, marks the
// room evicted and removes it from the map if it is still the registered
// room for its code. Must be called with room.mu held. It reports false if
// the room was already evicted.
func (r *Registry) evictLocked(room *Room, reason string) bool {
	if room.evicted {
		return false
	}
	room.evicted = true
	room.isActive = false
	if room.timer != nil {
		room.timer.cancel()
	}

	r.mu.Lock()
	if current, ok := r.rooms[room.code]; ok && current == room {
		delete(r.rooms, room.code)
	}
	r.mu.Unlock()

	if r.onEvict != nil {
		r.onEvict(room, reason)
	}
	log.Info().Str("room_id", room.code).Str("reason", reason).Msg("room evicted")
	return true
}
