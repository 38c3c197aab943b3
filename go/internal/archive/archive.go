// Package archive stores the final results of ended polls in Postgres.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/poll"
)

const schema = `
CREATE TABLE IF NOT EXISTS poll_results (
    id          BIGSERIAL PRIMARY KEY,
    event_id    UUID        NOT NULL UNIQUE,
    room_id     TEXT        NOT NULL,
    question    TEXT        NOT NULL,
    options     JSONB       NOT NULL,
    final_votes JSONB       NOT NULL,
    total_votes INTEGER     NOT NULL,
    ended_at    TIMESTAMPTZ NOT NULL,
    archived_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS poll_results_room_id_idx ON poll_results (room_id);
`

const insertResult = `
INSERT INTO poll_results (event_id, room_id, question, options, final_votes, total_votes, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (event_id) DO NOTHING`

const selectByRoom = `
SELECT room_id, question, options, final_votes, total_votes, ended_at
FROM poll_results
WHERE room_id = $1
ORDER BY ended_at DESC`

// DB is the subset of *pgxpool.Pool the archive uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Result is one archived poll.
type Result struct {
	RoomID     string
	Question   string
	Options    poll.Options
	FinalVotes poll.Tally
	TotalVotes int
	EndedAt    time.Time
}

// Archive records poll_ended events. Every other event is ignored, so it
// can sit in the same publisher chain as the broker.
type Archive struct {
	db DB
}

func New(db DB) *Archive {
	return &Archive{db: db}
}

// EnsureSchema creates the results table if it does not exist.
func (a *Archive) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create poll_results: %w", err)
	}
	return nil
}

// Publish implements publisher.EventPublisher.
func (a *Archive) Publish(ctx context.Context, event *poll.Event) error {
	if event.Type != poll.EventTypePollEnded {
		return nil
	}

	var payload poll.PollEndedPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return fmt.Errorf("decode poll_ended payload: %w", err)
	}
	options, err := json.Marshal(payload.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	votes, err := json.Marshal(payload.FinalVotes)
	if err != nil {
		return fmt.Errorf("encode votes: %w", err)
	}

	tag, err := a.db.Exec(ctx, insertResult,
		event.ID,
		event.RoomID,
		payload.Question,
		options,
		votes,
		payload.FinalVotes.Total(),
		payload.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert poll result for room %s: %w", event.RoomID, err)
	}

	log.Info().
		Str("room_id", event.RoomID).
		Int64("rows", tag.RowsAffected()).
		Int("total_votes", payload.FinalVotes.Total()).
		Msg("archived poll result")
	return nil
}

// ResultsForRoom returns the archived results for a room code, newest first.
// Codes are reused, so a code may have several results.
func (a *Archive) ResultsForRoom(ctx context.Context, roomID string) ([]Result, error) {
	rows, err := a.db.Query(ctx, selectByRoom, poll.NormalizeCode(roomID))
	if err != nil {
		return nil, fmt.Errorf("query poll results: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r       Result
			options []byte
			votes   []byte
		)
		if err := rows.Scan(&r.RoomID, &r.Question, &options, &votes, &r.TotalVotes, &r.EndedAt); err != nil {
			return nil, fmt.Errorf("scan poll result: %w", err)
		}
		if err := json.Unmarshal(options, &r.Options); err != nil {
			return nil, fmt.Errorf("decode options: %w", err)
		}
		if err := json.Unmarshal(votes, &r.FinalVotes); err != nil {
			return nil, fmt.Errorf("decode votes: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate poll results: %w", err)
	}
	return results, nil
}
