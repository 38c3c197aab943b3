package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/archive"
	"github.com/mcdev12/livepoll/go/internal/config"
	"github.com/mcdev12/livepoll/go/internal/gateway"
	"github.com/mcdev12/livepoll/go/internal/poll"
	"github.com/mcdev12/livepoll/go/internal/publisher"
)

type Services struct {
	Gateway   *gateway.Service
	Publisher *publisher.AsyncPublisher
	Metrics   *publisher.Counters
	Archive   *archive.Archive // nil when disabled

	nats *nats.Conn
	db   *pgxpool.Pool
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Sinks -> async publisher -> room engine -> gateway
	services := &Services{Metrics: publisher.NewCounters()}

	sinks := publisher.Multi{publisher.NewLogPublisher()}

	if cfg.NATS.URL != "" {
		nc, js, err := publisher.Connect(cfg.NATS.URL)
		if err != nil {
			return nil, err
		}
		services.nats = nc

		if cfg.NATS.JetStream {
			retention := cfg.PollConfig().RetentionPeriod
			if err := publisher.EnsureStream(ctx, js, cfg.NATS.Stream, cfg.NATS.SubjectPrefix, retention); err != nil {
				services.Close()
				return nil, err
			}
			sinks = append(sinks, publisher.NewJetStreamPublisher(js, cfg.NATS.SubjectPrefix))
		} else {
			sinks = append(sinks, publisher.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix))
		}
		log.Info().Str("url", cfg.NATS.URL).Bool("jetstream", cfg.NATS.JetStream).Msg("publishing room events to NATS")
	}

	if cfg.Archive.DatabaseURL != "" {
		results, pool, err := setupArchive(ctx, cfg.Archive.DatabaseURL)
		if err != nil {
			services.Close()
			return nil, err
		}
		services.db = pool
		services.Archive = results
		sinks = append(sinks, results)
	}

	services.Publisher = publisher.NewAsyncPublisher(
		publisher.NewMetricPublisher(sinks, services.Metrics),
		publisher.Config{QueueSize: cfg.Publish.QueueSize, Workers: cfg.Publish.Workers},
		services.Metrics,
	)
	if err := services.Publisher.Start(); err != nil {
		services.Close()
		return nil, fmt.Errorf("failed to start publisher: %w", err)
	}

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.Poll = cfg.PollConfig()
	services.Gateway = gateway.NewService(gatewayConfig, poll.Deps{Sink: services.Publisher})

	return services, nil
}

// Close stops the room engine first so no event is published after the
// publisher has drained.
func (s *Services) Close() {
	if s.Gateway != nil {
		s.Gateway.Shutdown()
	}
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.nats != nil {
		if err := s.nats.Drain(); err != nil {
			log.Error().Err(err).Msg("failed to drain NATS connection")
		}
	}
	if s.db != nil {
		s.db.Close()
	}
}

func (s *Services) Stats() map[string]interface{} {
	stats := s.Gateway.GetStats()
	stats["publisher"] = s.Metrics.Snapshot()
	return stats
}
