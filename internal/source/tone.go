package source

import (
	"fmt"
	"math"
	"time"
)

const (
	toneChunkDuration = 20 * time.Millisecond
)

// Tone is a source of a sine wave in little-endian PCM.
type Tone struct {
	SampleRate   int
	ChannelCount int
	BitDepth     int
	Frequency    float64

	t ticker
}

// Initialize initializes Tone.
func (s *Tone) Initialize() error {
	if s.Frequency == 0 {
		s.Frequency = 440
	}
	if s.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", s.SampleRate)
	}
	if s.ChannelCount <= 0 {
		return fmt.Errorf("invalid channel count: %d", s.ChannelCount)
	}
	if s.BitDepth != 16 && s.BitDepth != 24 {
		return fmt.Errorf("invalid bit depth: %d", s.BitDepth)
	}

	s.t = ticker{
		period:   toneChunkDuration,
		generate: s.chunk,
	}

	return nil
}

// Close closes Tone and waits for its routines.
func (s *Tone) Close() {
	s.t.close()
}

// StartFeeding implements Source.
func (s *Tone) StartFeeding(target Target) error {
	return s.t.startFeeding(target)
}

// StopFeeding implements Source.
func (s *Tone) StopFeeding() {
	s.t.stopFeeding()
}

func (s *Tone) chunk(n int) []byte {
	samplesPerChunk := s.SampleRate * int(toneChunkDuration/time.Millisecond) / 1000
	bytesPerSample := s.BitDepth / 8
	buf := make([]byte, 0, samplesPerChunk*s.ChannelCount*bytesPerSample)
	maxVal := float64(int(1)<<(s.BitDepth-1) - 1)

	for i := 0; i < samplesPerChunk; i++ {
		pos := float64(n*samplesPerChunk+i) / float64(s.SampleRate)
		v := int32(0.5 * maxVal * math.Sin(2*math.Pi*s.Frequency*pos))

		for c := 0; c < s.ChannelCount; c++ {
			for b := 0; b < bytesPerSample; b++ {
				buf = append(buf, byte(v>>(8*b)))
			}
		}
	}

	return buf
}
