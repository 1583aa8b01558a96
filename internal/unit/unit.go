// Package unit contains the sample exchanged between encoders and the container writer.
package unit

import (
	"time"
)

// Flags are sample flags.
type Flags int

// sample flags.
const (
	FlagKeyFrame Flags = 1 << iota
	FlagCodecConfig
	FlagEndOfStream
)

// Has checks whether a flag is set.
func (f Flags) Has(v Flags) bool {
	return (f & v) != 0
}

// Sample is a compressed access unit.
type Sample struct {
	// presentation timestamp, relative to the start of the recording.
	PTS time.Duration

	Payload []byte
	Flags   Flags
}
