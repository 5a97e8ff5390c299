package stomp

import (
	"errors"
	"fmt"
)

// Codec errors.
var (
	ErrMalformedFrame = errors.New("stomp: malformed frame")
	ErrFrameTooLarge  = errors.New("stomp: frame too large")
	ErrInvalidHeader  = errors.New("stomp: invalid header")
)

// ProtocolError describes why a payload could not be decoded.
// It unwraps to ErrMalformedFrame, ErrFrameTooLarge or ErrInvalidHeader.
type ProtocolError struct {
	// Reason is a short description of the violation.
	Reason string
	// Command is the command line, if one was read.
	Command string
	// Err is the sentinel the error matches.
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("%v: %s (command %s)", e.Err, e.Reason, e.Command)
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func malformed(command, format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...), Command: command, Err: ErrMalformedFrame}
}
