package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/poll"
)

// EventPublisher delivers room events to an external system.
type EventPublisher interface {
	Publish(ctx context.Context, event *poll.Event) error
}

// Subject returns the NATS subject for an event:
// <prefix>.rooms.<roomId>.<type>.
func Subject(prefix string, event *poll.Event) string {
	return fmt.Sprintf("%s.rooms.%s.%s", prefix, event.RoomID, event.Type)
}

// LogPublisher debug-logs every event. It is used when no broker is
// configured.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(ctx context.Context, event *poll.Event) error {
	log.Debug().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("room_id", event.RoomID).
		Msg("publishing event")
	return nil
}

// Conn is the subset of *nats.Conn used for core NATS publishing.
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes events on core NATS subjects.
type NATSPublisher struct {
	conn   Conn
	prefix string
}

func NewNATSPublisher(conn Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix}
}

func (p *NATSPublisher) Publish(ctx context.Context, event *poll.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := Subject(p.prefix, event)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// JetStreamPublisher publishes events into a JetStream stream, using the
// event id for de-duplication.
type JetStreamPublisher struct {
	js     jetstream.JetStream
	prefix string
}

func NewJetStreamPublisher(js jetstream.JetStream, prefix string) *JetStreamPublisher {
	return &JetStreamPublisher{js: js, prefix: prefix}
}

func (p *JetStreamPublisher) Publish(ctx context.Context, event *poll.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := Subject(p.prefix, event)
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("jetstream publish to %s: %w", subject, err)
	}
	return nil
}

// Multi fans an event out to several publishers.
type Multi []EventPublisher

func (m Multi) Publish(ctx context.Context, event *poll.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
