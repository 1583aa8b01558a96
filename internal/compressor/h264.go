package compressor

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/gen2brain/x264-go"

	"github.com/bluenviron/avrecorder/internal/unit"
)

// H264 is a software H264 compressor.
// Input is a raw I420 frame.
type H264 struct {
	Width     int
	Height    int
	FPS       int
	Preset    string
	QueueSize int

	mutex      sync.Mutex
	enc        *x264.Encoder
	img        *image.YCbCr
	queue      outputQueue
	configured bool
	started    bool
	eos        bool
	sps        []byte
	pps        []byte
	formatSent bool
	writeErr   error
}

// Configure implements Compressor.
func (c *H264) Configure() error {
	if c.QueueSize == 0 {
		c.QueueSize = 64
	}
	if c.Preset == "" {
		c.Preset = "veryfast"
	}

	if c.Width <= 0 || (c.Width%2) != 0 || c.Height <= 0 || (c.Height%2) != 0 {
		return ConfigurationError{Err: fmt.Errorf("invalid size: %dx%d", c.Width, c.Height)}
	}
	if c.FPS <= 0 {
		return ConfigurationError{Err: fmt.Errorf("invalid frame rate: %d", c.FPS)}
	}

	c.queue.initialize(c.QueueSize)

	var err error
	c.enc, err = x264.NewEncoder(h264Sink{c}, &x264.Options{
		Width:     c.Width,
		Height:    c.Height,
		FrameRate: c.FPS,
		Tune:      "zerolatency",
		Preset:    c.Preset,
		Profile:   "baseline",
		LogLevel:  x264.LogError,
	})
	if err != nil {
		return ConfigurationError{Err: err}
	}

	c.img = image.NewYCbCr(image.Rect(0, 0, c.Width, c.Height), image.YCbCrSubsampleRatio420)
	c.configured = true

	return nil
}

func (c *H264) frameSize() int {
	return c.Width * c.Height * 3 / 2
}

type h264Sink struct {
	c *H264
}

func (s h264Sink) Write(p []byte) (int, error) {
	return s.c.onEncoded(p)
}

// onEncoded is called by the underlying encoder with one or more Annex-B NAL units.
func (c *H264) onEncoded(p []byte) (int, error) {
	var au h264.AnnexB
	err := au.Unmarshal(p)
	if err != nil {
		c.writeErr = err
		return 0, err
	}

	var nalus [][]byte

	for _, nalu := range au {
		typ := h264.NALUType(nalu[0] & 0x1F)

		switch typ {
		case h264.NALUTypeSPS:
			c.sps = append([]byte(nil), nalu...)
			continue

		case h264.NALUTypePPS:
			c.pps = append([]byte(nil), nalu...)
			continue

		case h264.NALUTypeAccessUnitDelimiter, h264.NALUTypeSEI:
			continue
		}

		nalus = append(nalus, nalu)
	}

	if len(nalus) == 0 {
		return len(p), nil
	}

	if !c.formatSent {
		err = c.sendFormat()
		if err != nil {
			c.writeErr = err
			return 0, err
		}
	}

	flags := unit.Flags(0)
	if h264.IsRandomAccess(nalus) {
		flags |= unit.FlagKeyFrame
	}

	payload, err := h264.AVCC(nalus).Marshal()
	if err != nil {
		c.writeErr = err
		return 0, err
	}

	if !c.queue.push(&Output{Payload: payload, Flags: flags}) {
		c.writeErr = ErrReleased
		return 0, ErrReleased
	}

	return len(p), nil
}

func (c *H264) sendFormat() error {
	if c.sps == nil || c.pps == nil {
		return fmt.Errorf("parameters not received before the first frame")
	}

	var sps h264.SPS
	err := sps.Unmarshal(c.sps)
	if err != nil {
		return err
	}

	if sps.Width() != c.Width || sps.Height() != c.Height {
		return fmt.Errorf("encoded size %dx%d differs from the configured one %dx%d",
			sps.Width(), sps.Height(), c.Width, c.Height)
	}

	ok := c.queue.push(&Output{
		FormatChanged: true,
		Codec: &mp4.CodecH264{
			SPS: c.sps,
			PPS: c.pps,
		},
	})
	if !ok {
		return ErrReleased
	}

	config, _ := h264.AVCC([][]byte{c.sps, c.pps}).Marshal()

	ok = c.queue.push(&Output{
		Payload: config,
		Flags:   unit.FlagCodecConfig,
	})
	if !ok {
		return ErrReleased
	}

	c.formatSent = true
	return nil
}

// Start implements Compressor.
func (c *H264) Start() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.configured {
		return fmt.Errorf("not configured")
	}
	if c.started {
		return fmt.Errorf("already started")
	}
	c.started = true

	return nil
}

// QueueInput implements Compressor.
func (c *H264) QueueInput(payload []byte, flags unit.Flags) error {
	if flags.Has(unit.FlagEndOfStream) && len(payload) == 0 {
		return c.SignalEndOfInputStream()
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.started {
		return fmt.Errorf("not started")
	}
	if c.eos {
		return fmt.Errorf("stream already ended")
	}
	if c.enc == nil {
		return ErrReleased
	}

	if len(payload) != c.frameSize() {
		return CompressorError{Err: fmt.Errorf("invalid frame size: %d, expected %d",
			len(payload), c.frameSize())}
	}

	ySize := c.Width * c.Height
	cSize := ySize / 4
	copy(c.img.Y, payload[:ySize])
	copy(c.img.Cb, payload[ySize:ySize+cSize])
	copy(c.img.Cr, payload[ySize+cSize:])

	err := c.enc.Encode(c.img)
	if err != nil {
		if c.writeErr != nil {
			return CompressorError{Err: c.writeErr}
		}
		return CompressorError{Err: err}
	}

	return nil
}

// SignalEndOfInputStream implements EndOfStreamSignaler.
// Delayed frames are flushed before the end of stream is emitted.
func (c *H264) SignalEndOfInputStream() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.started {
		return fmt.Errorf("not started")
	}
	if c.eos {
		return nil
	}
	if c.enc == nil {
		return ErrReleased
	}
	c.eos = true

	err := c.enc.Flush()
	if err != nil {
		return CompressorError{Err: err}
	}

	if !c.queue.push(&Output{Flags: unit.FlagEndOfStream}) {
		return ErrReleased
	}

	return nil
}

// DequeueOutput implements Compressor.
func (c *H264) DequeueOutput(timeout time.Duration) (*Output, error) {
	return c.queue.pull(timeout)
}

// Release implements Compressor.
func (c *H264) Release() error {
	if !c.configured {
		return nil
	}

	// unblock a pending Encode() before acquiring the mutex
	c.queue.close()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.enc == nil {
		return nil
	}

	err := c.enc.Close()
	c.enc = nil
	return err
}
