package muxer

import (
	"errors"
)

// ErrNotStarted is returned when the writer is finalized without having been started.
var ErrNotStarted = errors.New("writer was never started")

// ErrNoSamples is returned when the writer is finalized without any sample.
var ErrNoSamples = errors.New("no samples were written")

// ErrClosed is returned when using a closed writer.
var ErrClosed = errors.New("writer is closed")

// ProtocolError is returned when writer methods are called in the wrong order.
type ProtocolError struct {
	Msg string
}

// Error implements the error interface.
func (e ProtocolError) Error() string {
	return "protocol error: " + e.Msg
}

// IOError is returned when the sink cannot be written or finalized.
type IOError struct {
	Err error
}

// Error implements the error interface.
func (e IOError) Error() string {
	return "I/O error: " + e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e IOError) Unwrap() error {
	return e.Err
}
