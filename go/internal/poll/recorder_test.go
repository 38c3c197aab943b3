package poll

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// recorder is an in-memory Broadcaster and SessionRouter.
type recorder struct {
	mu        sync.Mutex
	subs      map[string]map[string]bool // room -> connections
	delivered map[string][]*Event        // connection -> events
	broadcast map[string][]*Event        // room -> room-wide events
}

func newRecorder() *recorder {
	return &recorder{
		subs:      make(map[string]map[string]bool),
		delivered: make(map[string][]*Event),
		broadcast: make(map[string][]*Event),
	}
}

func (r *recorder) BroadcastToRoom(roomID string, event *Event) {
	r.BroadcastToRoomExcept(roomID, "", event)
}

func (r *recorder) BroadcastToRoomExcept(roomID, connID string, event *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcast[roomID] = append(r.broadcast[roomID], event)
	for conn := range r.subs[roomID] {
		if conn == connID {
			continue
		}
		r.delivered[conn] = append(r.delivered[conn], event)
	}
}

func (r *recorder) SendToConnection(connID string, event *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered[connID] = append(r.delivered[connID], event)
}

func (r *recorder) Subscribe(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs[roomID] == nil {
		r.subs[roomID] = make(map[string]bool)
	}
	r.subs[roomID][connID] = true
}

func (r *recorder) Unsubscribe(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs[roomID], connID)
	if len(r.subs[roomID]) == 0 {
		delete(r.subs, roomID)
	}
}

func (r *recorder) CloseRoom(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, roomID)
}

func (r *recorder) subscribers(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[roomID])
}

// eventsOf returns the events of one type delivered to a connection.
func (r *recorder) eventsOf(connID string, eventType EventType) []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Event
	for _, e := range r.delivered[connID] {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// roomEventsOf returns the room-wide events of one type.
func (r *recorder) roomEventsOf(roomID string, eventType EventType) []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Event
	for _, e := range r.broadcast[roomID] {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func decode(t *testing.T, event *Event, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(event.Data, v))
}

// sequenceCodes hands out the given codes in order and then repeats the
// last one.
func sequenceCodes(codes ...string) CodeGenerator {
	var mu sync.Mutex
	i := 0
	return func(int) string {
		mu.Lock()
		defer mu.Unlock()
		code := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return code
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinDuration = time.Second
	return cfg
}

func newTestApp(t *testing.T, codes CodeGenerator) (*App, *recorder, *clockwork.FakeClock) {
	t.Helper()
	rec := newRecorder()
	clock := clockwork.NewFakeClock()
	app := NewApp(testConfig(), Deps{
		Broadcaster: rec,
		Router:      rec,
		Clock:       clock,
		Codes:       codes,
	})
	t.Cleanup(app.Shutdown)
	return app, rec, clock
}

func catsDogs() Options {
	return Options{{Key: "option1", Text: "Cats"}, {Key: "option2", Text: "Dogs"}}
}

const (
	waitFor   = 2 * time.Second
	pollEvery = time.Millisecond
)
