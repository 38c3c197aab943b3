package poll

import (
	"errors"
	"fmt"
)

// Client-facing errors. The messages are stable: callers surface them verbatim
// and clients match on them to decide what to do next.
var (
	ErrRoomNotFound       = errors.New("Room not found")
	ErrRoomEnded          = errors.New("This poll has ended")
	ErrUnknownParticipant = errors.New("User not found in room")
	ErrAlreadyVoted       = errors.New("You have already voted")
	ErrUnknownOption      = errors.New("Invalid option")
)

// ErrCodeSpaceExhausted is returned when no free room code could be generated.
var ErrCodeSpaceExhausted = errors.New("could not allocate a unique room code")

// ValidationError reports a malformed create or join request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
