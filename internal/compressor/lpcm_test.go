package compressor

import (
	"errors"
	"testing"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/avrecorder/internal/unit"
)

func TestLPCMConfigureErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		c    *LPCM
		err  string
	}{
		{
			"sample rate",
			&LPCM{SampleRate: 1234, ChannelCount: 1, BitDepth: 16},
			"configuration error: unsupported sample rate: 1234",
		},
		{
			"channel count",
			&LPCM{SampleRate: 8000, ChannelCount: 0, BitDepth: 16},
			"configuration error: unsupported channel count: 0",
		},
		{
			"bit depth",
			&LPCM{SampleRate: 8000, ChannelCount: 1, BitDepth: 8},
			"configuration error: unsupported bit depth: 8",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			err := ca.c.Configure()
			require.EqualError(t, err, ca.err)

			var confErr ConfigurationError
			require.True(t, errors.As(err, &confErr))
		})
	}
}

func TestLPCM(t *testing.T) {
	c := &LPCM{
		SampleRate:   8000,
		ChannelCount: 2,
		BitDepth:     16,
	}
	err := c.Configure()
	require.NoError(t, err)
	defer c.Release() //nolint:errcheck

	err = c.QueueInput([]byte{1, 2, 3, 4}, 0)
	require.EqualError(t, err, "not started")

	err = c.Start()
	require.NoError(t, err)

	out, err := c.DequeueOutput(10 * time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, &Output{
		FormatChanged: true,
		Codec: &mp4.CodecLPCM{
			LittleEndian: true,
			BitDepth:     16,
			SampleRate:   8000,
			ChannelCount: 2,
		},
	}, out)

	out, err = c.DequeueOutput(10 * time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, out)

	err = c.QueueInput([]byte{1, 2, 3}, 0)
	require.EqualError(t, err, "compressor error: payload size 3 is not a multiple of the frame size 4")

	in := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	err = c.QueueInput(in, 0)
	require.NoError(t, err)
	in[0] = 0xFF

	out, err = c.DequeueOutput(10 * time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, &Output{
		Payload: []byte{1, 2, 3, 4, 5, 6, 7, 8},
		Flags:   unit.FlagKeyFrame,
	}, out)

	err = c.QueueInput(nil, unit.FlagEndOfStream)
	require.NoError(t, err)

	out, err = c.DequeueOutput(10 * time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, &Output{Flags: unit.FlagEndOfStream}, out)

	err = c.QueueInput(in, 0)
	require.EqualError(t, err, "stream already ended")
}

func TestLPCMRelease(t *testing.T) {
	c := &LPCM{
		SampleRate:   8000,
		ChannelCount: 1,
		BitDepth:     16,
		QueueSize:    1,
	}
	err := c.Configure()
	require.NoError(t, err)

	err = c.Start()
	require.NoError(t, err)

	// the queue is full, the second input blocks until release
	done := make(chan error)
	go func() {
		done <- c.QueueInput([]byte{1, 2}, 0)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Release())
	require.Equal(t, ErrReleased, <-done)

	_, err = c.DequeueOutput(10 * time.Millisecond)
	require.Equal(t, ErrReleased, err)

	require.NoError(t, c.Release())
}
