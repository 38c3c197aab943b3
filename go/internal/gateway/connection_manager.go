package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/poll"
)

// MessageHandler receives the inbound traffic of every connection.
type MessageHandler interface {
	HandleMessage(ctx context.Context, conn *Connection, message []byte)
	HandleDisconnect(ctx context.Context, connID string)
}

// ConnectionManager owns the WebSocket connections and the room broadcast
// groups. It implements poll.Broadcaster and poll.SessionRouter.
type ConnectionManager struct {
	// All live connections by id
	connections map[string]*Connection
	// Broadcast groups: room code -> connection id -> connection
	rooms map[string]map[string]*Connection
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  MessageHandler
}

var (
	_ poll.Broadcaster   = (*ConnectionManager)(nil)
	_ poll.SessionRouter = (*ConnectionManager)(nil)
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  8 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = DefaultConnectionConfig().SendBufferSize
	}
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultConnectionConfig().PingInterval
	}
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		rooms:       make(map[string]map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// SetHandler installs the handler for inbound messages. It must be called
// before the first connection is accepted.
func (cm *ConnectionManager) SetHandler(handler MessageHandler) {
	cm.handler = handler
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
		done:        make(chan struct{}),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[conn.ID] = conn
}

// unregisterConnection drops the connection and its room memberships.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn.ID]; !exists {
		return false
	}
	delete(cm.connections, conn.ID)
	for roomID, members := range cm.rooms {
		delete(members, conn.ID)
		if len(members) == 0 {
			delete(cm.rooms, roomID)
		}
	}
	log.Info().Str("connection_id", conn.ID).Msg("connection unregistered")
	return true
}

// Subscribe adds the connection to the room's broadcast group.
func (cm *ConnectionManager) Subscribe(connID, roomID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	conn, ok := cm.connections[connID]
	if !ok {
		return
	}
	if cm.rooms[roomID] == nil {
		cm.rooms[roomID] = make(map[string]*Connection)
	}
	cm.rooms[roomID][connID] = conn

	log.Debug().
		Str("connection_id", connID).
		Str("room_id", roomID).
		Int("subscribers", len(cm.rooms[roomID])).
		Msg("connection subscribed")
}

// Unsubscribe removes the connection from the room's broadcast group.
func (cm *ConnectionManager) Unsubscribe(connID, roomID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if members, ok := cm.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(cm.rooms, roomID)
		}
	}
}

// CloseRoom drops the room's broadcast group. Connections stay open.
func (cm *ConnectionManager) CloseRoom(roomID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.rooms, roomID)
}

// BroadcastToRoom sends an event to every subscriber of the room.
func (cm *ConnectionManager) BroadcastToRoom(roomID string, event *poll.Event) {
	cm.BroadcastToRoomExcept(roomID, "", event)
}

// BroadcastToRoomExcept sends an event to every subscriber but exceptID.
func (cm *ConnectionManager) BroadcastToRoomExcept(roomID, exceptID string, event *poll.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to marshal event for broadcast")
		return
	}

	var slow []*Connection
	cm.mu.RLock()
	members := cm.rooms[roomID]
	for id, conn := range members {
		if id == exceptID {
			continue
		}
		if !conn.enqueue(data) {
			slow = append(slow, conn)
		}
	}
	count := len(members)
	cm.mu.RUnlock()

	cm.dropSlow(slow)

	log.Debug().
		Str("event_type", string(event.Type)).
		Str("room_id", roomID).
		Int("connections", count).
		Msg("event broadcasted")
}

// SendToConnection sends an event to a single connection.
func (cm *ConnectionManager) SendToConnection(connID string, event *poll.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("connection_id", connID).Msg("failed to marshal event")
		return
	}

	cm.mu.RLock()
	conn, ok := cm.connections[connID]
	queued := ok && conn.enqueue(data)
	cm.mu.RUnlock()

	if ok && !queued {
		cm.dropSlow([]*Connection{conn})
	}
}

func (cm *ConnectionManager) dropSlow(conns []*Connection) {
	for _, conn := range conns {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		conn.close()
	}
}

// ConnectionCount returns the number of open connections.
func (cm *ConnectionManager) ConnectionCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// Subscribers returns the size of a room's broadcast group.
func (cm *ConnectionManager) Subscribers(roomID string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.rooms[roomID])
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	roomCounts := make(map[string]int, len(cm.rooms))
	for roomID, members := range cm.rooms {
		roomCounts[roomID] = len(members)
	}
	return map[string]interface{}{
		"total_connections": len(cm.connections),
		"subscribed_rooms":  len(cm.rooms),
		"room_connections":  roomCounts,
	}
}

// CloseAll closes every open connection.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		conn.close()
	}
}

// enqueue queues data without blocking. It reports false when the
// connection cannot keep up.
func (c *Connection) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Conn.Close()
	})
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump feeds inbound messages to the handler. Its exit is the single
// disconnect signal for the connection.
func (c *Connection) readPump() {
	cm := c.Manager
	defer func() {
		c.close()
		if cm.unregisterConnection(c) && cm.handler != nil {
			cm.handler.HandleDisconnect(context.Background(), c.ID)
		}
	}()

	c.Conn.SetReadLimit(cm.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(cm.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(cm.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		if cm.handler != nil {
			cm.handler.HandleMessage(context.Background(), c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(cm.config.ReadTimeout))
	}
}
