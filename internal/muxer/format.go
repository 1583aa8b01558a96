package muxer

import (
	"github.com/bluenviron/avrecorder/internal/unit"
)

// Format is a container format.
type Format int

// formats.
const (
	// FormatMP4 writes a regular MP4 file when the writer is finalized.
	FormatMP4 Format = iota

	// FormatFMP4 writes a fragmented MP4 file incrementally.
	FormatFMP4
)

type format interface {
	open(tracks []*track) error
	writeSample(t *track, dts int64, sample *unit.Sample) error
	close() error
}
