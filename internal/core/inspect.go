package core

import (
	"fmt"
	"io"
	"os"
	"time"

	amp4 "github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
)

type trackInfo struct {
	ID        uint32
	Kind      string
	Codec     string
	TimeScale uint32
	Samples   int
	Duration  time.Duration

	duration uint64
}

func codecName(codec mp4.Codec) string {
	switch codec.(type) {
	case *mp4.CodecH264:
		return "H264"

	case *mp4.CodecLPCM:
		return "LPCM"

	case *mp4.CodecOpus:
		return "Opus"

	case *mp4.CodecMPEG4Audio:
		return "MPEG-4 Audio"
	}

	return fmt.Sprintf("%T", codec)
}

func durationMP4ToGo(v uint64, timeScale uint32) time.Duration {
	timeScale64 := uint64(timeScale)
	secs := v / timeScale64
	dec := v % timeScale64
	return time.Duration(secs)*time.Second + time.Duration(dec)*time.Second/time.Duration(timeScale64)
}

func inspectFile(fpath string) ([]*trackInfo, error) {
	f, err := os.Open(fpath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return inspect(f)
}

// inspect reads the tracks of a regular or fragmented MP4 file.
func inspect(r io.ReadSeeker) ([]*trackInfo, error) {
	var tracks []*trackInfo
	var cur *trackInfo
	var defaultSampleDuration uint32

	findTrack := func(id uint32) *trackInfo {
		for _, t := range tracks {
			if t.ID == id {
				return t
			}
		}
		return nil
	}

	_, err := amp4.ReadBoxStructure(r, func(h *amp4.ReadHandle) (interface{}, error) {
		switch h.BoxInfo.Type.String() {
		case "moov", "trak", "mdia", "minf", "stbl", "stsd", "moof", "traf":
			return h.Expand()

		case "tkhd":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			cur = &trackInfo{ID: box.(*amp4.Tkhd).TrackID}
			tracks = append(tracks, cur)

		case "mdhd":
			if cur == nil {
				return nil, fmt.Errorf("mdhd box outside of a track")
			}

			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			mdhd := box.(*amp4.Mdhd)

			cur.TimeScale = mdhd.Timescale
			if mdhd.GetVersion() == 0 {
				cur.duration = uint64(mdhd.DurationV0)
			} else {
				cur.duration = mdhd.DurationV1
			}

		case "hdlr":
			if cur == nil {
				return nil, nil
			}

			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}

			switch string(box.(*amp4.Hdlr).HandlerType[:]) {
			case "vide":
				cur.Kind = "video"

			case "soun":
				cur.Kind = "audio"
			}

		case "avc1", "hvc1", "av01", "vp09", "mp4a", "Opus", "ipcm", "fpcm":
			if cur != nil {
				cur.Codec = h.BoxInfo.Type.String()
			}

		case "stsz":
			if cur == nil {
				return nil, fmt.Errorf("stsz box outside of a track")
			}

			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			cur.Samples = int(box.(*amp4.Stsz).SampleCount)

		case "tfhd":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			tfhd := box.(*amp4.Tfhd)

			cur = findTrack(tfhd.TrackID)
			if cur == nil {
				return nil, fmt.Errorf("invalid track ID: %v", tfhd.TrackID)
			}
			defaultSampleDuration = tfhd.DefaultSampleDuration

		case "trun":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			trun := box.(*amp4.Trun)

			for _, e := range trun.Entries {
				d := e.SampleDuration
				if d == 0 {
					d = defaultSampleDuration
				}
				cur.duration += uint64(d)
			}
			cur.Samples += len(trun.Entries)
		}

		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	if len(tracks) == 0 {
		return nil, fmt.Errorf("no tracks found")
	}

	for _, t := range tracks {
		if t.TimeScale != 0 {
			t.Duration = durationMP4ToGo(t.duration, t.TimeScale)
		}
	}

	return tracks, nil
}
