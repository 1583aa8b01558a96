package muxer

import (
	"io"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"

	"github.com/bluenviron/avrecorder/internal/unit"
)

type formatFMP4Track struct {
	id int

	// a sample is kept until the next one arrives, since its duration depends on it.
	nextSample   *fmp4.Sample
	nextDTS      int64
	lastDuration uint32
}

// formatFMP4 writes an initialization segment when opened,
// then a part every partDuration.
type formatFMP4 struct {
	w            io.Writer
	partDuration time.Duration

	tracks         map[*track]*formatFMP4Track
	order          []*formatFMP4Track
	sequenceNumber uint32
	partTracks     map[*formatFMP4Track]*fmp4.PartTrack
	partOrder      []*formatFMP4Track
	partStart      time.Duration
}

func (f *formatFMP4) open(tracks []*track) error {
	f.tracks = make(map[*track]*formatFMP4Track)

	init := &fmp4.Init{}

	for _, t := range tracks {
		ft := &formatFMP4Track{id: t.id}
		f.tracks[t] = ft
		f.order = append(f.order, ft)

		init.Tracks = append(init.Tracks, &fmp4.InitTrack{
			ID:        t.id,
			TimeScale: t.timeScale,
			Codec:     t.codec,
		})
	}

	var buf seekablebuffer.Buffer
	err := init.Marshal(&buf)
	if err != nil {
		return err
	}

	_, err = f.w.Write(buf.Bytes())
	return err
}

func (f *formatFMP4) addToPart(ft *formatFMP4Track, sample *fmp4.Sample, dts int64) {
	if f.partTracks == nil {
		f.partTracks = make(map[*formatFMP4Track]*fmp4.PartTrack)
	}

	pt, ok := f.partTracks[ft]
	if !ok {
		pt = &fmp4.PartTrack{
			ID:       ft.id,
			BaseTime: uint64(dts),
		}
		f.partTracks[ft] = pt
		f.partOrder = append(f.partOrder, ft)
	}

	pt.Samples = append(pt.Samples, sample)
}

func (f *formatFMP4) writePart() error {
	if len(f.partOrder) == 0 {
		return nil
	}

	part := &fmp4.Part{
		SequenceNumber: f.sequenceNumber,
	}
	for _, ft := range f.partOrder {
		part.Tracks = append(part.Tracks, f.partTracks[ft])
	}

	f.sequenceNumber++
	f.partTracks = nil
	f.partOrder = nil

	var buf seekablebuffer.Buffer
	err := part.Marshal(&buf)
	if err != nil {
		return err
	}

	_, err = f.w.Write(buf.Bytes())
	return err
}

func (f *formatFMP4) writeSample(t *track, dts int64, sample *unit.Sample) error {
	ft := f.tracks[t]

	prev, prevDTS := ft.nextSample, ft.nextDTS

	ft.nextSample = &fmp4.Sample{
		IsNonSyncSample: t.codec.IsVideo() && !sample.Flags.Has(unit.FlagKeyFrame),
		Payload:         sample.Payload,
	}
	ft.nextDTS = dts

	if prev == nil {
		return nil
	}

	duration := dts - prevDTS
	if duration < 0 {
		duration = 0
	}
	prev.Duration = uint32(duration)
	ft.lastDuration = prev.Duration

	if len(f.partOrder) == 0 {
		f.partStart = timestampToDuration(prevDTS, t.timeScale)
	}

	f.addToPart(ft, prev, prevDTS)

	if (timestampToDuration(dts, t.timeScale) - f.partStart) >= f.partDuration {
		return f.writePart()
	}

	return nil
}

func (f *formatFMP4) close() error {
	for _, ft := range f.order {
		if ft.nextSample != nil {
			ft.nextSample.Duration = ft.lastDuration
			f.addToPart(ft, ft.nextSample, ft.nextDTS)
			ft.nextSample = nil
		}
	}

	if f.sequenceNumber == 0 && len(f.partOrder) == 0 {
		return ErrNoSamples
	}

	return f.writePart()
}
