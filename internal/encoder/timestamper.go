package encoder

import (
	"time"
)

// timestamper computes presentation timestamps that exclude paused intervals.
// While paused, time is frozen at the pause instant.
type timestamper struct {
	start       time.Time
	pausedTotal time.Duration
	pauseStart  time.Time
	paused      bool
	prev        time.Duration
}

func (t *timestamper) reset(now time.Time) {
	t.start = now
	t.pausedTotal = 0
	t.paused = false
	t.prev = 0
}

func (t *timestamper) pause(now time.Time) {
	t.paused = true
	t.pauseStart = now
}

func (t *timestamper) resume(now time.Time) {
	elapsed := now.Sub(t.pauseStart)
	if elapsed > 0 {
		t.pausedTotal += elapsed
	}
	t.paused = false
}

// next returns a timestamp that is never lower than the previous one.
func (t *timestamper) next(now time.Time) time.Duration {
	if t.paused {
		now = t.pauseStart
	}

	pts := now.Sub(t.start) - t.pausedTotal
	if pts < t.prev {
		pts = t.prev
	}

	t.prev = pts
	return pts
}
