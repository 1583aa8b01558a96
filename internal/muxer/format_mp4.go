package muxer

import (
	"io"
	"os"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/pmp4"

	"github.com/bluenviron/avrecorder/internal/unit"
)

type formatMP4Track struct {
	pmp4.Track
	lastDTS int64
}

// formatMP4 spools sample payloads into a temporary file
// and writes the whole presentation when closed.
type formatMP4 struct {
	w              io.Writer
	spoolDirectory string

	spool       *os.File
	spoolOffset int64
	tracks      map[*track]*formatMP4Track
	order       []*formatMP4Track
}

func (f *formatMP4) open(tracks []*track) error {
	var err error
	f.spool, err = os.CreateTemp(f.spoolDirectory, "avr-spool-")
	if err != nil {
		return err
	}

	f.tracks = make(map[*track]*formatMP4Track)

	for _, t := range tracks {
		mt := &formatMP4Track{
			Track: pmp4.Track{
				ID:        t.id,
				TimeScale: t.timeScale,
				Codec:     t.codec,
			},
		}
		f.tracks[t] = mt
		f.order = append(f.order, mt)
	}

	return nil
}

func (f *formatMP4) writeSample(t *track, dts int64, sample *unit.Sample) error {
	mt := f.tracks[t]

	offset := f.spoolOffset
	n, err := f.spool.WriteAt(sample.Payload, offset)
	if err != nil {
		return err
	}
	f.spoolOffset += int64(n)

	if len(mt.Samples) == 0 {
		mt.TimeOffset = int32(dts)
	} else {
		duration := dts - mt.lastDTS
		if duration < 0 {
			duration = 0
		}
		mt.Samples[len(mt.Samples)-1].Duration = uint32(duration)
	}

	spool := f.spool
	size := len(sample.Payload)

	mt.Samples = append(mt.Samples, &pmp4.Sample{
		IsNonSyncSample: t.codec.IsVideo() && !sample.Flags.Has(unit.FlagKeyFrame),
		PayloadSize:     uint32(size),
		GetPayload: func() ([]byte, error) {
			buf := make([]byte, size)
			_, err := spool.ReadAt(buf, offset)
			if err != nil {
				return nil, err
			}
			return buf, nil
		},
	})
	mt.lastDTS = dts

	return nil
}

func (f *formatMP4) close() error {
	defer func() {
		f.spool.Close()
		os.Remove(f.spool.Name())
	}()

	p := pmp4.Presentation{}

	for _, mt := range f.order {
		if len(mt.Samples) == 0 {
			continue
		}

		// the last sample lasts as long as the one before it
		if len(mt.Samples) >= 2 {
			mt.Samples[len(mt.Samples)-1].Duration = mt.Samples[len(mt.Samples)-2].Duration
		}

		p.Tracks = append(p.Tracks, &mt.Track)
	}

	if len(p.Tracks) == 0 {
		return ErrNoSamples
	}

	return p.Marshal(f.w)
}
