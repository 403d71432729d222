package devd

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned once the connection has been closed, either
	// explicitly or after a fatal read.
	ErrClosed = errors.New("devd: connection closed")

	// ErrLineTooLong means the buffer filled up without a line terminator.
	// The partial line is discarded; the connection stays usable.
	ErrLineTooLong = errors.New("devd: line exceeds buffer capacity")

	// ErrInvalidMask is returned when a device registration mask is empty or
	// carries bits outside ActionAll.
	ErrInvalidMask = errors.New("devd: invalid action mask")

	ErrUnsupportedLine = errors.New("unsupported line type")
	ErrMissingAt       = errors.New(`missing " at "`)
	ErrMissingOn       = errors.New(`missing " on "`)
	ErrMissingField    = errors.New("missing required field")
	ErrMalformedDetail = errors.New("detail token without '='")
)

// ParseError describes a line that could not be turned into an event.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("devd: parse %q: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
