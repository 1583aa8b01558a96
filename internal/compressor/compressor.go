// Package compressor contains the compressors driven by encoders.
package compressor

import (
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/bluenviron/avrecorder/internal/unit"
)

// Output is an element produced by a compressor.
type Output struct {
	// the output format is known or has changed. Codec is filled.
	FormatChanged bool
	Codec         mp4.Codec

	Payload []byte
	Flags   unit.Flags
}

// Compressor compresses raw input.
type Compressor interface {
	// Configure allocates the compressor. It returns a ConfigurationError on failure.
	Configure() error

	// Start starts accepting input.
	Start() error

	// QueueInput feeds raw input.
	// An input with FlagEndOfStream and no payload terminates the stream.
	QueueInput(payload []byte, flags unit.Flags) error

	// DequeueOutput waits up to timeout for an output. It returns nil when none is available.
	DequeueOutput(timeout time.Duration) (*Output, error)

	// Release frees resources. It can be called multiple times.
	Release() error
}

// EndOfStreamSignaler is implemented by compressors that can terminate the stream without a terminal input.
type EndOfStreamSignaler interface {
	SignalEndOfInputStream() error
}
