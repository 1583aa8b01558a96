package compressor

import (
	"errors"
)

// ErrReleased is returned when using a released compressor.
var ErrReleased = errors.New("compressor released")

// ConfigurationError is returned when a compressor cannot be configured.
type ConfigurationError struct {
	Err error
}

// Error implements the error interface.
func (e ConfigurationError) Error() string {
	return "configuration error: " + e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e ConfigurationError) Unwrap() error {
	return e.Err
}

// CompressorError is returned when a compressor fails while running.
type CompressorError struct {
	Err error
}

// Error implements the error interface.
func (e CompressorError) Error() string {
	return "compressor error: " + e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e CompressorError) Unwrap() error {
	return e.Err
}
