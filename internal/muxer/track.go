package muxer

import (
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/bluenviron/avrecorder/internal/metrics"
)

const (
	videoTimeScale = 90000
)

// avoid an int64 overflow and preserve resolution by splitting v into seconds and remainder.
func multiplyAndDivide(v, m, d int64) int64 {
	secs := v / d
	dec := v % d
	return (secs*m + dec*m/d)
}

func durationToTimestamp(d time.Duration, timeScale uint32) int64 {
	return multiplyAndDivide(int64(d), int64(timeScale), int64(time.Second))
}

func timestampToDuration(t int64, timeScale uint32) time.Duration {
	return time.Duration(multiplyAndDivide(t, int64(time.Second), int64(timeScale)))
}

func trackTimeScale(codec mp4.Codec) uint32 {
	switch codec := codec.(type) {
	case *mp4.CodecLPCM:
		return uint32(codec.SampleRate)

	case *mp4.CodecOpus:
		return 48000

	case *mp4.CodecMPEG4Audio:
		return uint32(codec.Config.SampleRate)
	}

	return videoTimeScale
}

type track struct {
	id        int
	codec     mp4.Codec
	timeScale uint32

	samples  int
	bytes    uint64
	firstPTS time.Duration
	lastPTS  time.Duration
}

func (t *track) kind() string {
	if t.codec.IsVideo() {
		return metrics.TrackVideo
	}
	return metrics.TrackAudio
}

func (t *track) update(pts time.Duration, size int) {
	if t.samples == 0 {
		t.firstPTS = pts
	}
	t.lastPTS = pts
	t.samples++
	t.bytes += uint64(size)
}
