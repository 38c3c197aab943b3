package gateway

import (
	"errors"
	"time"

	"github.com/mcdev12/livepoll/go/internal/poll"
)

const msgInternal = "Internal server error"

var errInvalidPayload = errors.New("Invalid payload")

// unknownEventError reports an inbound message type nobody handles.
type unknownEventError string

func (e unknownEventError) Error() string {
	return "Unknown event: " + string(e)
}

var clientErrors = []error{
	poll.ErrRoomNotFound,
	poll.ErrRoomEnded,
	poll.ErrUnknownParticipant,
	poll.ErrAlreadyVoted,
	poll.ErrUnknownOption,
	errInvalidPayload,
}

var timeNow = time.Now

// errorMessage maps err to the message sent to clients. Anything not known
// to be client-facing is hidden behind a generic message.
func errorMessage(err error) string {
	var unknown unknownEventError
	var invalid *poll.ValidationError
	for _, known := range clientErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	switch {
	case errors.As(err, &invalid):
		return invalid.Message
	case errors.As(err, &unknown):
		return unknown.Error()
	default:
		return msgInternal
	}
}
