package source

import (
	"fmt"
	"time"
)

// TestPattern is a source of moving I420 frames.
type TestPattern struct {
	Width  int
	Height int
	FPS    int

	t ticker
}

// Initialize initializes TestPattern.
func (s *TestPattern) Initialize() error {
	if s.Width <= 0 || (s.Width%2) != 0 || s.Height <= 0 || (s.Height%2) != 0 {
		return fmt.Errorf("invalid size: %dx%d", s.Width, s.Height)
	}
	if s.FPS <= 0 {
		return fmt.Errorf("invalid frame rate: %d", s.FPS)
	}

	s.t = ticker{
		period:   time.Second / time.Duration(s.FPS),
		generate: s.frame,
	}

	return nil
}

// Close closes TestPattern and waits for its routines.
func (s *TestPattern) Close() {
	s.t.close()
}

// StartFeeding implements Source.
func (s *TestPattern) StartFeeding(target Target) error {
	return s.t.startFeeding(target)
}

// StopFeeding implements Source.
func (s *TestPattern) StopFeeding() {
	s.t.stopFeeding()
}

func (s *TestPattern) frame(n int) []byte {
	ySize := s.Width * s.Height
	buf := make([]byte, ySize*3/2)

	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			buf[y*s.Width+x] = byte(x + y + n*4)
		}
	}

	cb := buf[ySize : ySize+ySize/4]
	cr := buf[ySize+ySize/4:]
	for i := range cb {
		cb[i] = byte(128 + n)
		cr[i] = byte(128 - n)
	}

	return buf
}
