package archive

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/livepoll/go/internal/poll"
)

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	execs []execCall
	rows  [][]any
	err   error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &fakeRows{rows: f.rows, i: -1}, nil
}

// fakeRows serves fixed rows; Scan copies by destination type.
type fakeRows struct {
	pgx.Rows
	rows [][]any
	i    int
}

func (r *fakeRows) Next() bool {
	r.i++
	return r.i < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.i]
	if len(dest) != len(row) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *[]byte:
			*p = row[i].([]byte)
		case *int:
			*p = row[i].(int)
		case *time.Time:
			*p = row[i].(time.Time)
		default:
			return errors.New("unsupported destination")
		}
	}
	return nil
}

func (r *fakeRows) Close()     {}
func (r *fakeRows) Err() error { return nil }

func pollEnded(t *testing.T, endedAt time.Time) *poll.Event {
	t.Helper()
	event, err := poll.NewEvent("ABC123", poll.EventTypePollEnded, poll.PollEndedPayload{
		FinalVotes: poll.Tally{"option1": 3, "option2": 4},
		Question:   "Cats or dogs?",
		Options:    poll.Options{{Key: "option1", Text: "Cats"}, {Key: "option2", Text: "Dogs"}},
		EndedAt:    endedAt,
	}, endedAt)
	require.NoError(t, err)
	return event
}

func TestArchive_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, New(db).EnsureSchema(context.Background()))
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "CREATE TABLE IF NOT EXISTS poll_results")
}

func TestArchive_StoresPollEnded(t *testing.T) {
	db := &fakeDB{}
	a := New(db)
	endedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	event := pollEnded(t, endedAt)

	require.NoError(t, a.Publish(context.Background(), event))

	require.Len(t, db.execs, 1)
	args := db.execs[0].args
	require.Len(t, args, 7)
	assert.Equal(t, event.ID, args[0])
	assert.Equal(t, "ABC123", args[1])
	assert.Equal(t, "Cats or dogs?", args[2])
	assert.JSONEq(t, `{"option1":"Cats","option2":"Dogs"}`, string(args[3].([]byte)))
	assert.JSONEq(t, `{"option1":3,"option2":4}`, string(args[4].([]byte)))
	assert.Equal(t, 7, args[5])
	assert.True(t, endedAt.Equal(args[6].(time.Time)))
}

func TestArchive_IgnoresOtherEvents(t *testing.T) {
	db := &fakeDB{}
	a := New(db)
	event, err := poll.NewEvent("ABC123", poll.EventTypeVoteUpdate, poll.VoteUpdatePayload{Votes: poll.Tally{"option1": 1}}, time.Now())
	require.NoError(t, err)

	require.NoError(t, a.Publish(context.Background(), event))
	assert.Empty(t, db.execs)
}

func TestArchive_WrapsInsertErrors(t *testing.T) {
	db := &fakeDB{err: errors.New("connection refused")}
	err := New(db).Publish(context.Background(), pollEnded(t, time.Now()))
	assert.ErrorIs(t, err, db.err)
}

func TestArchive_ResultsForRoom(t *testing.T) {
	endedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	options, _ := json.Marshal(poll.Options{{Key: "option1", Text: "Cats"}, {Key: "option2", Text: "Dogs"}})
	db := &fakeDB{rows: [][]any{
		{"ABC123", "Cats or dogs?", options, []byte(`{"option1":3,"option2":4}`), 7, endedAt},
	}}

	results, err := New(db).ResultsForRoom(context.Background(), "abc123")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ABC123", results[0].RoomID)
	assert.Equal(t, poll.Tally{"option1": 3, "option2": 4}, results[0].FinalVotes)
	assert.Equal(t, "Dogs", results[0].Options.Map()["option2"])
	assert.Equal(t, 7, results[0].TotalVotes)
}
