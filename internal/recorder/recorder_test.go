package recorder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/pmp4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bluenviron/avrecorder/internal/compressor"
	"github.com/bluenviron/avrecorder/internal/encoder"
	"github.com/bluenviron/avrecorder/internal/metrics"
	"github.com/bluenviron/avrecorder/internal/muxer"
	"github.com/bluenviron/avrecorder/internal/source"
	"github.com/bluenviron/avrecorder/internal/test"
	"github.com/bluenviron/avrecorder/internal/unit"
)

type fakeCompressor struct {
	codec        mp4.Codec
	configureErr error
	formatReady  chan struct{}
	failAt       int

	dataOutputs int

	out       chan *compressor.Output
	terminate chan struct{}
	once      sync.Once
}

func (c *fakeCompressor) Configure() error {
	if c.configureErr != nil {
		return c.configureErr
	}
	c.out = make(chan *compressor.Output, 256)
	c.terminate = make(chan struct{})
	return nil
}

func (c *fakeCompressor) Start() error {
	if c.formatReady != nil {
		go func() {
			select {
			case <-c.formatReady:
				c.out <- &compressor.Output{FormatChanged: true, Codec: c.codec}
			case <-c.terminate:
			}
		}()
		return nil
	}

	c.out <- &compressor.Output{FormatChanged: true, Codec: c.codec}
	return nil
}

func (c *fakeCompressor) QueueInput(payload []byte, flags unit.Flags) error {
	if flags.Has(unit.FlagEndOfStream) {
		c.out <- &compressor.Output{Flags: unit.FlagEndOfStream}
		return nil
	}
	c.out <- &compressor.Output{Payload: payload, Flags: unit.FlagKeyFrame}
	return nil
}

func (c *fakeCompressor) DequeueOutput(timeout time.Duration) (*compressor.Output, error) {
	select {
	case <-c.terminate:
		return nil, compressor.ErrReleased
	default:
	}

	select {
	case o := <-c.out:
		if o.Flags == unit.FlagKeyFrame {
			c.dataOutputs++
			if c.dataOutputs == c.failAt {
				return nil, compressor.CompressorError{Err: fmt.Errorf("device lost")}
			}
		}
		return o, nil
	case <-time.After(timeout):
		return nil, nil
	case <-c.terminate:
		return nil, compressor.ErrReleased
	}
}

func (c *fakeCompressor) Release() error {
	if c.terminate != nil {
		c.once.Do(func() { close(c.terminate) })
	}
	return nil
}

type fakeSource struct {
	mutex   sync.Mutex
	feeding bool
	stops   int
	started chan source.Target
}

func newFakeSource() *fakeSource {
	return &fakeSource{started: make(chan source.Target, 8)}
}

func (s *fakeSource) StartFeeding(target source.Target) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.feeding = true
	s.started <- target
	return nil
}

func (s *fakeSource) StopFeeding() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.feeding = false
	s.stops++
}

func (s *fakeSource) isFeeding() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.feeding
}

func encodeWhenAccepted(t *testing.T, target source.Target, payload []byte) {
	deadline := time.Now().Add(2 * time.Second)
	for !target.Encode(payload) {
		if time.Now().After(deadline) {
			t.Fatal("input not accepted")
		}
		time.Sleep(time.Millisecond)
	}
}

type completion struct {
	res *Result
	err error
}

type testCallbacks struct {
	errors   chan error
	complete chan completion
}

func newTestCallbacks() *testCallbacks {
	return &testCallbacks{
		errors:   make(chan error, 8),
		complete: make(chan completion, 1),
	}
}

func (c *testCallbacks) onError(err error) {
	c.errors <- err
}

func (c *testCallbacks) onComplete(res *Result, err error) {
	c.complete <- completion{res, err}
}

func (c *testCallbacks) result(t *testing.T) *Result {
	co := <-c.complete
	require.NoError(t, co.err)
	return co.res
}

func TestRecorderVideoOnly(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	src := newFakeSource()
	cb := newTestCallbacks()

	m := &metrics.Metrics{}
	m.Initialize()

	var prepared []string
	var stopped []string
	var mutex sync.Mutex

	r := &Recorder{
		Format:         muxer.FormatMP4,
		SpoolDirectory: dir,
		VideoCompressor: func() compressor.Compressor {
			return &fakeCompressor{codec: test.CodecH264}
		},
		VideoSource: src,
		Metrics:     m,
		OnEncoderPrepared: func(e *encoder.Encoder) {
			mutex.Lock()
			prepared = append(prepared, e.Name)
			mutex.Unlock()
		},
		OnEncoderStopped: func(e *encoder.Encoder) {
			mutex.Lock()
			stopped = append(stopped, e.Name)
			mutex.Unlock()
		},
		OnError:    cb.onError,
		OnComplete: cb.onComplete,
		Parent:     test.NilLogger,
	}
	err := r.Initialize()
	require.NoError(t, err)
	defer r.Close()

	sink := &FileSink{Path: filepath.Join(dir, "rec", "out.mp4")}
	r.StartRecording(sink)

	target := <-src.started

	for i := 0; i < 30; i++ {
		encodeWhenAccepted(t, target, []byte{byte(i)})
		time.Sleep(2 * time.Millisecond)
	}

	require.True(t, r.IsRecording())
	r.StopRecording()

	res := cb.result(t)
	require.Equal(t, sink, res.Sink)
	require.Len(t, res.Tracks, 1)
	require.Equal(t, 30, res.Tracks[0].Samples)
	require.False(t, r.IsRecording())
	require.False(t, src.isFeeding())

	select {
	case err = <-cb.errors:
		t.Errorf("unexpected error: %v", err)
	default:
	}

	mutex.Lock()
	require.Equal(t, []string{"video"}, prepared)
	require.Equal(t, []string{"video"}, stopped)
	mutex.Unlock()

	f, err := os.Open(sink.Path)
	require.NoError(t, err)
	defer f.Close()

	var p pmp4.Presentation
	err = p.Unmarshal(f)
	require.NoError(t, err)
	require.Len(t, p.Tracks, 1)
	require.Len(t, p.Tracks[0].Samples, 30)

	n, err := testutil.GatherAndCount(m.Registry, "avrecorder_sessions_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRecorderH264(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	cb := newTestCallbacks()

	src := &source.TestPattern{
		Width:  64,
		Height: 48,
		FPS:    30,
	}
	require.NoError(t, src.Initialize())
	defer src.Close()

	prepared := make(chan struct{}, 1)

	r := &Recorder{
		Format:         muxer.FormatMP4,
		SpoolDirectory: dir,
		VideoCompressor: func() compressor.Compressor {
			return &compressor.H264{
				Width:  64,
				Height: 48,
				FPS:    30,
			}
		},
		VideoSource:       src,
		OnEncoderPrepared: func(*encoder.Encoder) { prepared <- struct{}{} },
		OnError:           cb.onError,
		OnComplete:        cb.onComplete,
		Parent:            test.NilLogger,
	}
	err := r.Initialize()
	require.NoError(t, err)
	defer r.Close()

	sink := &FileSink{Path: filepath.Join(dir, "out.mp4")}
	r.StartRecording(sink)

	<-prepared
	time.Sleep(1 * time.Second)
	r.StopRecording()

	res := cb.result(t)
	require.Len(t, res.Tracks, 1)
	require.IsType(t, &mp4.CodecH264{}, res.Tracks[0].Codec)
	require.GreaterOrEqual(t, res.Tracks[0].Samples, 10)

	f, err := os.Open(sink.Path)
	require.NoError(t, err)
	defer f.Close()

	var p pmp4.Presentation
	err = p.Unmarshal(f)
	require.NoError(t, err)
	require.Len(t, p.Tracks, 1)
	require.Equal(t, uint32(90000), p.Tracks[0].TimeScale)
	require.Len(t, p.Tracks[0].Samples, res.Tracks[0].Samples)
	require.False(t, p.Tracks[0].Samples[0].IsNonSyncSample)

	codec, ok := p.Tracks[0].Codec.(*mp4.CodecH264)
	require.True(t, ok)
	require.NotEmpty(t, codec.SPS)
	require.NotEmpty(t, codec.PPS)
}

func TestRecorderPauseBeforeFormats(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	videoSrc := newFakeSource()
	audioSrc := newFakeSource()
	cb := newTestCallbacks()
	audioFormatReady := make(chan struct{})

	r := &Recorder{
		Format:         muxer.FormatMP4,
		SpoolDirectory: dir,
		VideoCompressor: func() compressor.Compressor {
			return &fakeCompressor{codec: test.CodecH264}
		},
		AudioCompressor: func() compressor.Compressor {
			return &fakeCompressor{codec: test.CodecLPCM, formatReady: audioFormatReady}
		},
		VideoSource: videoSrc,
		AudioSource: audioSrc,
		OnError:     cb.onError,
		OnComplete:  cb.onComplete,
		Parent:      test.NilLogger,
	}
	err := r.Initialize()
	require.NoError(t, err)
	defer r.Close()

	r.StartRecording(&FileSink{Path: filepath.Join(dir, "out.mp4")})

	videoTarget := <-videoSrc.started
	audioTarget := <-audioSrc.started

	r.Pause()

	// wait for the pause to be applied
	deadline := time.Now().Add(2 * time.Second)
	for videoSrc.isFeeding() {
		if time.Now().After(deadline) {
			t.Fatal("pause not applied")
		}
		time.Sleep(time.Millisecond)
	}

	s := r.currentSession()
	require.NotNil(t, s)
	require.Equal(t, encoder.StatePaused, s.video.State())
	require.Equal(t, encoder.StatePaused, s.audio.State())
	require.False(t, s.writer.IsStarted())
	require.False(t, videoTarget.Encode([]byte{1}))
	require.False(t, audioTarget.Encode([]byte{1, 2}))

	close(audioFormatReady)

	err = s.writer.WaitStarted(t.Context())
	require.NoError(t, err)

	r.Resume()

	videoTarget = <-videoSrc.started

	for i := 0; i < 5; i++ {
		encodeWhenAccepted(t, videoTarget, []byte{byte(i)})
		encodeWhenAccepted(t, audioTarget, []byte{byte(i), byte(i)})
		time.Sleep(2 * time.Millisecond)
	}

	r.StopRecording()

	res := cb.result(t)
	require.Len(t, res.Tracks, 2)
	require.Equal(t, 5, res.Tracks[0].Samples)
	require.Equal(t, 5, res.Tracks[1].Samples)
}

func TestRecorderAudioConfigurationError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	src := newFakeSource()
	audioSrc := newFakeSource()
	cb := newTestCallbacks()

	r := &Recorder{
		Format:         muxer.FormatMP4,
		SpoolDirectory: dir,
		VideoCompressor: func() compressor.Compressor {
			return &fakeCompressor{codec: test.CodecH264}
		},
		AudioCompressor: func() compressor.Compressor {
			return &fakeCompressor{codec: test.CodecLPCM, configureErr: fmt.Errorf("no microphone")}
		},
		VideoSource: src,
		AudioSource: audioSrc,
		OnError:     cb.onError,
		OnComplete:  cb.onComplete,
		Parent:      test.NilLogger,
	}
	err := r.Initialize()
	require.NoError(t, err)
	defer r.Close()

	r.StartRecording(&FileSink{Path: filepath.Join(dir, "out.mp4")})

	err = <-cb.errors
	require.EqualError(t, err, "audio encoder: configuration error: no microphone")

	var encErr EncoderError
	require.True(t, errors.As(err, &encErr))
	require.Equal(t, "audio", encErr.Track)

	var confErr compressor.ConfigurationError
	require.True(t, errors.As(err, &confErr))

	target := <-src.started
	for i := 0; i < 3; i++ {
		encodeWhenAccepted(t, target, []byte{byte(i)})
		time.Sleep(2 * time.Millisecond)
	}

	r.StopRecording()

	res := cb.result(t)
	require.Len(t, res.Tracks, 1)
	require.True(t, res.Tracks[0].Codec.IsVideo())
	require.Equal(t, 3, res.Tracks[0].Samples)

	require.Empty(t, audioSrc.started)
}

func TestRecorderTooShort(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	src := newFakeSource()
	cb := newTestCallbacks()

	r := &Recorder{
		SpoolDirectory: dir,
		VideoCompressor: func() compressor.Compressor {
			return &fakeCompressor{codec: test.CodecH264}
		},
		VideoSource: src,
		OnError:     cb.onError,
		OnComplete:  cb.onComplete,
		Parent:      test.NilLogger,
	}
	err := r.Initialize()
	require.NoError(t, err)
	defer r.Close()

	sink := &FileSink{Path: filepath.Join(dir, "out.mp4")}
	r.StartRecording(sink)
	<-src.started
	r.StopRecording()

	err = <-cb.errors
	require.Equal(t, ErrRecordingTooShort, err)

	co := <-cb.complete
	require.Nil(t, co.res)
	require.Equal(t, ErrRecordingTooShort, co.err)
	require.NoFileExists(t, sink.Path)
}

func TestRecorderCompressorError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	src := newFakeSource()
	cb := newTestCallbacks()

	r := &Recorder{
		SpoolDirectory: dir,
		VideoCompressor: func() compressor.Compressor {
			return &fakeCompressor{codec: test.CodecH264, failAt: 3}
		},
		VideoSource: src,
		OnError:     cb.onError,
		OnComplete:  cb.onComplete,
		Parent:      test.NilLogger,
	}
	err := r.Initialize()
	require.NoError(t, err)
	defer r.Close()

	sink := &FileSink{Path: filepath.Join(dir, "out.mp4")}
	r.StartRecording(sink)

	target := <-src.started
	for i := 0; i < 3; i++ {
		encodeWhenAccepted(t, target, []byte{byte(i)})
		time.Sleep(2 * time.Millisecond)
	}

	// the recording ends without StopRecording
	err = <-cb.errors
	require.EqualError(t, err, "video encoder: compressor error: device lost")

	var encErr EncoderError
	require.True(t, errors.As(err, &encErr))
	require.Equal(t, "video", encErr.Track)

	var compErr compressor.CompressorError
	require.True(t, errors.As(err, &compErr))

	res := cb.result(t)
	require.Len(t, res.Tracks, 1)
	require.Equal(t, 2, res.Tracks[0].Samples)
	require.False(t, r.IsRecording())
	require.False(t, src.isFeeding())

	f, err := os.Open(sink.Path)
	require.NoError(t, err)
	defer f.Close()

	var p pmp4.Presentation
	err = p.Unmarshal(f)
	require.NoError(t, err)
	require.Len(t, p.Tracks[0].Samples, 2)

	select {
	case err = <-cb.errors:
		t.Errorf("unexpected error: %v", err)
	default:
	}
}

func TestRecorderWriterOpenError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	src := newFakeSource()
	cb := newTestCallbacks()

	r := &Recorder{
		Format:         muxer.FormatMP4,
		SpoolDirectory: filepath.Join(dir, "missing"),
		VideoCompressor: func() compressor.Compressor {
			return &fakeCompressor{codec: test.CodecH264}
		},
		VideoSource: src,
		OnError:     cb.onError,
		OnComplete:  cb.onComplete,
		Parent:      test.NilLogger,
	}
	err := r.Initialize()
	require.NoError(t, err)
	defer r.Close()

	r.StartRecording(&FileSink{Path: filepath.Join(dir, "out.mp4")})
	<-src.started

	err = <-cb.errors
	var ioErr muxer.IOError
	require.True(t, errors.As(err, &ioErr))
	require.False(t, errors.Is(err, ErrRecordingTooShort))

	co := <-cb.complete
	require.Nil(t, co.res)
	require.Equal(t, err, co.err)
	require.False(t, r.IsRecording())

	select {
	case err = <-cb.errors:
		t.Errorf("unexpected error: %v", err)
	default:
	}
}

func TestRecorderInProgress(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	src := newFakeSource()
	cb := newTestCallbacks()

	r := &Recorder{
		SpoolDirectory: dir,
		VideoCompressor: func() compressor.Compressor {
			return &fakeCompressor{codec: test.CodecH264}
		},
		VideoSource: src,
		OnError:     cb.onError,
		OnComplete:  cb.onComplete,
		Parent:      test.NilLogger,
	}
	err := r.Initialize()
	require.NoError(t, err)
	defer r.Close()

	r.StartRecording(&FileSink{Path: filepath.Join(dir, "1.mp4")})
	r.StartRecording(&FileSink{Path: filepath.Join(dir, "2.mp4")})

	err = <-cb.errors
	require.Equal(t, ErrRecordingInProgress, err)
	require.NoFileExists(t, filepath.Join(dir, "2.mp4"))

	target := <-src.started
	encodeWhenAccepted(t, target, []byte{1})
	time.Sleep(2 * time.Millisecond)
	encodeWhenAccepted(t, target, []byte{2})

	r.StopRecording()
	cb.result(t)
}

func TestRecorderSinkError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	notADir := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(notADir, []byte{1}, 0o644))

	cb := newTestCallbacks()

	r := &Recorder{
		VideoCompressor: func() compressor.Compressor {
			return &fakeCompressor{codec: test.CodecH264}
		},
		OnError:    cb.onError,
		OnComplete: cb.onComplete,
		Parent:     test.NilLogger,
	}
	err := r.Initialize()
	require.NoError(t, err)
	defer r.Close()

	r.StartRecording(&FileSink{Path: filepath.Join(notADir, "out.mp4")})

	err = <-cb.errors
	var ioErr muxer.IOError
	require.True(t, errors.As(err, &ioErr))

	co := <-cb.complete
	require.Equal(t, err, co.err)
	require.False(t, r.IsRecording())
}

func TestRecorderCloseWhileRecording(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	src := newFakeSource()

	r := &Recorder{
		SpoolDirectory: dir,
		VideoCompressor: func() compressor.Compressor {
			return &fakeCompressor{codec: test.CodecH264}
		},
		AudioCompressor: func() compressor.Compressor {
			return &fakeCompressor{codec: test.CodecLPCM, formatReady: make(chan struct{})}
		},
		VideoSource: src,
		Parent:      test.NilLogger,
	}
	err := r.Initialize()
	require.NoError(t, err)

	r.StartRecording(&FileSink{Path: filepath.Join(dir, "out.mp4")})
	<-src.started

	// the video encoder is waiting for the audio track
	r.Close()

	require.False(t, r.IsRecording())
	require.False(t, src.isFeeding())
}
