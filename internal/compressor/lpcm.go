package compressor

import (
	"fmt"
	"sync"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/bluenviron/avrecorder/internal/unit"
)

var lpcmSampleRates = []int{
	8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000,
}

// LPCM is a compressor that packetizes little-endian PCM audio.
type LPCM struct {
	SampleRate   int
	ChannelCount int
	BitDepth     int
	QueueSize    int

	mutex      sync.Mutex
	configured bool
	started    bool
	eos        bool
	queue      outputQueue
}

// Configure implements Compressor.
func (c *LPCM) Configure() error {
	if c.QueueSize == 0 {
		c.QueueSize = 64
	}

	found := false
	for _, rate := range lpcmSampleRates {
		if rate == c.SampleRate {
			found = true
			break
		}
	}
	if !found {
		return ConfigurationError{Err: fmt.Errorf("unsupported sample rate: %d", c.SampleRate)}
	}

	if c.ChannelCount < 1 || c.ChannelCount > 8 {
		return ConfigurationError{Err: fmt.Errorf("unsupported channel count: %d", c.ChannelCount)}
	}

	if c.BitDepth != 16 && c.BitDepth != 24 {
		return ConfigurationError{Err: fmt.Errorf("unsupported bit depth: %d", c.BitDepth)}
	}

	c.queue.initialize(c.QueueSize)
	c.configured = true

	return nil
}

func (c *LPCM) frameSize() int {
	return c.ChannelCount * c.BitDepth / 8
}

// Start implements Compressor.
func (c *LPCM) Start() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.configured {
		return fmt.Errorf("not configured")
	}
	if c.started {
		return fmt.Errorf("already started")
	}
	c.started = true

	// the format of PCM is known in advance
	ok := c.queue.push(&Output{
		FormatChanged: true,
		Codec: &mp4.CodecLPCM{
			LittleEndian: true,
			BitDepth:     c.BitDepth,
			SampleRate:   c.SampleRate,
			ChannelCount: c.ChannelCount,
		},
	})
	if !ok {
		return ErrReleased
	}

	return nil
}

// QueueInput implements Compressor.
func (c *LPCM) QueueInput(payload []byte, flags unit.Flags) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.started {
		return fmt.Errorf("not started")
	}
	if c.eos {
		return fmt.Errorf("stream already ended")
	}

	if flags.Has(unit.FlagEndOfStream) && len(payload) == 0 {
		c.eos = true
		if !c.queue.push(&Output{Flags: unit.FlagEndOfStream}) {
			return ErrReleased
		}
		return nil
	}

	if len(payload) == 0 || (len(payload)%c.frameSize()) != 0 {
		return CompressorError{Err: fmt.Errorf("payload size %d is not a multiple of the frame size %d",
			len(payload), c.frameSize())}
	}

	if !c.queue.push(&Output{
		Payload: append([]byte(nil), payload...),
		Flags:   unit.FlagKeyFrame,
	}) {
		return ErrReleased
	}

	return nil
}

// DequeueOutput implements Compressor.
func (c *LPCM) DequeueOutput(timeout time.Duration) (*Output, error) {
	return c.queue.pull(timeout)
}

// Release implements Compressor.
func (c *LPCM) Release() error {
	if c.configured {
		c.queue.close()
	}
	return nil
}
