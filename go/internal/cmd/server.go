package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/livepoll/go/internal/archive"
	"github.com/mcdev12/livepoll/go/internal/config"
	"github.com/mcdev12/livepoll/go/internal/gateway"
	"github.com/mcdev12/livepoll/go/internal/poll"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// WebSocket and REST routes
	services.Gateway.RegisterRoutes(mux)

	setupHealthCheck(mux)
	setupInfo(mux, services)
	if services.Archive != nil {
		setupResults(mux, services.Archive)
	}

	handler := gateway.CORSMiddleware(cfg.Server.AllowedOrigins, mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}

func setupInfo(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("GET /info", func(w http.ResponseWriter, r *http.Request) {
		gateway.WriteJSON(w, http.StatusOK, services.Stats())
	})
}

type resultResponse struct {
	ID         string       `json:"id"`
	Question   string       `json:"question"`
	Options    poll.Options `json:"options"`
	FinalVotes poll.Tally   `json:"finalVotes"`
	TotalVotes int          `json:"totalVotes"`
	EndedAt    time.Time    `json:"endedAt"`
}

// setupResults serves archived results. A code can have several, since codes
// are reused once a room is evicted.
func setupResults(mux *http.ServeMux, results *archive.Archive) {
	mux.HandleFunc("GET /api/results/{roomId}", func(w http.ResponseWriter, r *http.Request) {
		roomID := r.PathValue("roomId")
		archived, err := results.ResultsForRoom(r.Context(), roomID)
		if err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("failed to load archived results")
			gateway.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
			return
		}

		out := make([]resultResponse, 0, len(archived))
		for _, res := range archived {
			out = append(out, resultResponse{
				ID:         res.RoomID,
				Question:   res.Question,
				Options:    res.Options,
				FinalVotes: res.FinalVotes,
				TotalVotes: res.TotalVotes,
				EndedAt:    res.EndedAt,
			})
		}
		gateway.WriteJSON(w, http.StatusOK, out)
	})
}
