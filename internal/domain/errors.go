package domain

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when a non-privileged sender invokes an
// administrative operation. No state is mutated.
var ErrUnauthorized = errors.New("unauthorized: only the configured admin can do this")

// UnresolvedRoomError reports that every resolution tier was exhausted
// for the given input. Surfaced verbatim to the caller, never defaulted.
type UnresolvedRoomError struct {
	Input string
}

func (e *UnresolvedRoomError) Error() string {
	return fmt.Sprintf("could not resolve room alias: %s", e.Input)
}

// IsUnresolvedRoom reports whether err is an UnresolvedRoomError.
func IsUnresolvedRoom(err error) bool {
	var ure *UnresolvedRoomError
	return errors.As(err, &ure)
}
