package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/poll"
)

// Service is the poll gateway: it owns the room engine and exposes it over
// WebSocket and HTTP.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	dispatcher        *Dispatcher
	app               *poll.App
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	Poll             poll.Config
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		Poll:             poll.DefaultConfig(),
	}
}

// NewService builds the connection manager and the room engine around it.
// Broadcaster and Router in deps are replaced by the connection manager.
func NewService(config Config, deps poll.Deps) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig)

	deps.Broadcaster = connectionManager
	deps.Router = connectionManager
	app := poll.NewApp(config.Poll, deps)

	dispatcher := NewDispatcher(app, connectionManager)
	connectionManager.SetHandler(dispatcher)

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(app),
		dispatcher:        dispatcher,
		app:               app,
	}
}

// App returns the room engine.
func (s *Service) App() *poll.App {
	return s.app
}

// RegisterRoutes registers the WebSocket and REST routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("poll gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "livepoll"
	stats["rooms"] = s.app.Registry().Len()
	stats["active_timers"] = s.app.Scheduler().ActiveTimers()
	return stats
}

// Shutdown closes every connection and stops all countdowns.
func (s *Service) Shutdown() {
	s.connectionManager.CloseAll()
	s.app.Shutdown()
	log.Info().Msg("poll gateway stopped")
}
