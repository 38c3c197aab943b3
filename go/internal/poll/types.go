package poll

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// MinOptions and MaxOptions bound the number of choices in a poll.
	MinOptions = 2
	MaxOptions = 5

	optionKeyPrefix = "option"
)

// Option is one choice of a poll.
type Option struct {
	Key  string
	Text string
}

// Options is the ordered option set of a room. It encodes as a JSON object
// keyed by option key, in order.
type Options []Option

// OptionKey returns the key of the option at zero-based index i.
func OptionKey(i int) string {
	return optionKeyPrefix + strconv.Itoa(i+1)
}

// Has reports whether key names one of the options.
func (o Options) Has(key string) bool {
	for _, opt := range o {
		if opt.Key == key {
			return true
		}
	}
	return false
}

// Keys returns the option keys in order.
func (o Options) Keys() []string {
	keys := make([]string, len(o))
	for i, opt := range o {
		keys[i] = opt.Key
	}
	return keys
}

// Map returns the options as a key -> text map.
func (o Options) Map() map[string]string {
	m := make(map[string]string, len(o))
	for _, opt := range o {
		m[opt.Key] = opt.Text
	}
	return m
}

// Validate checks the option count, the key scheme and that no text is blank.
func (o Options) Validate() error {
	if len(o) < MinOptions || len(o) > MaxOptions {
		return newValidationError("options", "A poll needs between %d and %d options", MinOptions, MaxOptions)
	}
	seen := make(map[string]bool, len(o))
	for _, opt := range o {
		if _, ok := optionIndex(opt.Key); !ok {
			return newValidationError("options", "Invalid option key %q", opt.Key)
		}
		if seen[opt.Key] {
			return newValidationError("options", "Duplicate option key %q", opt.Key)
		}
		seen[opt.Key] = true
		if strings.TrimSpace(opt.Text) == "" {
			return newValidationError("options", "Option %s must not be blank", opt.Key)
		}
	}
	return nil
}

func (o Options) clone() Options {
	out := make(Options, len(o))
	copy(out, o)
	return out
}

// MarshalJSON encodes the options as an ordered JSON object.
func (o Options) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, opt := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(opt.Key)
		if err != nil {
			return nil, err
		}
		text, err := json.Marshal(opt.Text)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(text)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the same shapes as ParseOptions.
func (o *Options) UnmarshalJSON(data []byte) error {
	opts, err := ParseOptions(data)
	if err != nil {
		return err
	}
	*o = opts
	return nil
}

// ParseOptions accepts either a JSON list of texts, which are keyed
// option1…optionN in order, or a JSON object keyed option1…option5.
func ParseOptions(raw json.RawMessage) (Options, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, newValidationError("options", "A poll needs between %d and %d options", MinOptions, MaxOptions)
	}

	switch trimmed[0] {
	case '[':
		var texts []string
		if err := json.Unmarshal(trimmed, &texts); err != nil {
			return nil, newValidationError("options", "Options must be a list of strings")
		}
		opts := make(Options, len(texts))
		for i, text := range texts {
			opts[i] = Option{Key: OptionKey(i), Text: strings.TrimSpace(text)}
		}
		return opts, opts.Validate()

	case '{':
		var byKey map[string]string
		if err := json.Unmarshal(trimmed, &byKey); err != nil {
			return nil, newValidationError("options", "Options must map option keys to strings")
		}
		opts := make(Options, 0, len(byKey))
		for key, text := range byKey {
			opts = append(opts, Option{Key: key, Text: strings.TrimSpace(text)})
		}
		if err := opts.Validate(); err != nil {
			return nil, err
		}
		sort.Slice(opts, func(i, j int) bool {
			a, _ := optionIndex(opts[i].Key)
			b, _ := optionIndex(opts[j].Key)
			return a < b
		})
		return opts, nil
	}

	return nil, newValidationError("options", "Options must be a list or an object")
}

// optionIndex parses "optionN" with 1 <= N <= MaxOptions.
func optionIndex(key string) (int, bool) {
	if !strings.HasPrefix(key, optionKeyPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(key[len(optionKeyPrefix):])
	if err != nil || n < 1 || n > MaxOptions {
		return 0, false
	}
	return n, true
}

// Tally maps option keys to vote counts.
type Tally map[string]int

// Total returns the number of votes cast.
func (t Tally) Total() int {
	total := 0
	for _, n := range t {
		total += n
	}
	return total
}

func (t Tally) clone() Tally {
	out := make(Tally, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Participant is a connection seated in a room.
type Participant struct {
	DisplayName string    `json:"username"`
	HasVoted    bool      `json:"hasVoted"`
	VotedOption string    `json:"votedOption,omitempty"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// RoomSnapshot is a consistent copy of a room's client-visible state.
type RoomSnapshot struct {
	RoomID        string    `json:"roomId"`
	Question      string    `json:"question"`
	Options       Options   `json:"options"`
	Votes         Tally     `json:"votes"`
	TimeRemaining int       `json:"timeRemaining"`
	TimerDuration int       `json:"timerDuration"`
	IsActive      bool      `json:"isActive"`
	Participants  int       `json:"participants"`
	Creator       string    `json:"creator,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// RoomSummary is the listing view of a room.
type RoomSummary struct {
	ID            string  `json:"id"`
	Question      string  `json:"question"`
	Options       Options `json:"options"`
	TotalVotes    int     `json:"totalVotes"`
	IsActive      bool    `json:"isActive"`
	TimeRemaining int     `json:"timeRemaining"`
	Participants  int     `json:"participants"`
}

// CreateRoomRequest carries a create_room request.
type CreateRoomRequest struct {
	Username        string
	Question        string
	Options         Options
	DurationSeconds int // zero selects the configured default
}

// JoinRoomRequest carries a join_room request.
type JoinRoomRequest struct {
	RoomID   string
	Username string
}

// VoteRequest carries a submit_vote request.
type VoteRequest struct {
	RoomID string
	Option string
}

// VoteResult is returned for an accepted vote.
type VoteResult struct {
	RoomID string `json:"roomId"`
	Option string `json:"option"`
	Votes  Tally  `json:"votes"`
}

// NormalizeCode upper-cases and trims an inbound room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validateUsername(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", newValidationError("username", "Username is required")
	}
	return name, nil
}
