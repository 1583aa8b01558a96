package recorder

import (
	"errors"
)

// ErrRecordingInProgress is reported when a recording is requested while another one is active.
var ErrRecordingInProgress = errors.New("recording in progress")

// ErrRecordingTooShort is reported when a recording ends before any sample is written.
var ErrRecordingTooShort = errors.New("recording too short")

// EncoderError is an error of a track encoder.
type EncoderError struct {
	Track string
	Err   error
}

// Error implements the error interface.
func (e EncoderError) Error() string {
	return e.Track + " encoder: " + e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e EncoderError) Unwrap() error {
	return e.Err
}
