package engine

import (
	"errors"
	"fmt"
)

// ErrConflict is returned when a concurrent transition on the same
// mission won the race; the mission row no longer matches the status
// the transition was validated against.
var ErrConflict = errors.New("mission was modified concurrently")

// InvalidTransitionError reports a lifecycle operation requested from a
// state that does not permit it.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid mission status transition %s -> %s", e.From, e.To)
}

// ValidationError reports malformed input.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...any) ValidationError {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}
