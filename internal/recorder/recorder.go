// Package recorder contains the recording orchestrator.
package recorder

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bluenviron/avrecorder/internal/asyncwriter"
	"github.com/bluenviron/avrecorder/internal/compressor"
	"github.com/bluenviron/avrecorder/internal/encoder"
	"github.com/bluenviron/avrecorder/internal/logger"
	"github.com/bluenviron/avrecorder/internal/metrics"
	"github.com/bluenviron/avrecorder/internal/muxer"
	"github.com/bluenviron/avrecorder/internal/source"
)

// session outcomes.
const (
	outcomeCompleted = "completed"
	outcomeTooShort  = "too_short"
	outcomeFailed    = "failed"
)

// Result describes a completed recording.
type Result struct {
	ID     uuid.UUID
	Sink   Sink
	Tracks []muxer.TrackResult
}

type session struct {
	id     uuid.UUID
	sink   Sink
	writer *muxer.Writer
	video  *encoder.Encoder
	audio  *encoder.Encoder
}

// Recorder records a video track and an optional audio track into a container.
type Recorder struct {
	Format           muxer.Format
	PartDuration     time.Duration
	SpoolDirectory   string
	DrainTimeout     time.Duration
	CommandQueueSize int

	// VideoCompressor returns the compressor of the video track.
	VideoCompressor func() compressor.Compressor

	// AudioCompressor returns the compressor of the audio track.
	// When nil, recordings contain video only.
	AudioCompressor func() compressor.Compressor

	VideoSource source.Source
	AudioSource source.Source
	Metrics     *metrics.Metrics

	OnEncoderPrepared func(*encoder.Encoder)
	OnEncoderStopped  func(*encoder.Encoder)

	// OnError is called for every error, including the ones that end a recording.
	OnError func(error)

	// OnComplete is called once for every accepted recording, when it ends.
	OnComplete func(*Result, error)

	Parent logger.Writer

	commands *asyncwriter.Writer
	mutex    sync.Mutex
	session  *session
	closed   bool
	wg       sync.WaitGroup
}

// Initialize initializes Recorder.
func (r *Recorder) Initialize() error {
	if r.VideoCompressor == nil {
		return fmt.Errorf("video compressor not provided")
	}
	if r.CommandQueueSize == 0 {
		r.CommandQueueSize = 64
	}
	if r.OnEncoderPrepared == nil {
		r.OnEncoderPrepared = func(*encoder.Encoder) {}
	}
	if r.OnEncoderStopped == nil {
		r.OnEncoderStopped = func(*encoder.Encoder) {}
	}
	if r.OnError == nil {
		r.OnError = func(error) {}
	}
	if r.OnComplete == nil {
		r.OnComplete = func(*Result, error) {}
	}

	r.commands = &asyncwriter.Writer{
		QueueSize: r.CommandQueueSize,
		Parent:    r,
	}
	err := r.commands.Initialize()
	if err != nil {
		return err
	}

	r.commands.Start()

	return nil
}

// Close stops the active recording without finalizing its encoders
// and waits for every routine to exit.
func (r *Recorder) Close() {
	r.mutex.Lock()
	r.closed = true
	r.mutex.Unlock()

	r.commands.Stop()

	r.mutex.Lock()
	s := r.session
	r.mutex.Unlock()

	if s != nil {
		if r.VideoSource != nil {
			r.VideoSource.StopFeeding()
		}
		if r.AudioSource != nil {
			r.AudioSource.StopFeeding()
		}

		s.video.Close()
		if s.audio != nil {
			s.audio.Close()
		}
		s.writer.Close()
	}

	r.wg.Wait()
}

// Log implements logger.Writer.
func (r *Recorder) Log(level logger.Level, format string, args ...interface{}) {
	r.Parent.Log(level, "[recorder] "+format, args...)
}

// IsRecording returns whether a recording is active.
// A recording stays active until its container is finalized.
func (r *Recorder) IsRecording() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.session != nil
}

// StartRecording starts a recording into sink.
// The request is processed asynchronously. Failures are reported through OnError.
func (r *Recorder) StartRecording(sink Sink) {
	r.push(func() error {
		r.startRecording(sink)
		return nil
	})
}

// Pause pauses the active recording.
func (r *Recorder) Pause() {
	r.push(func() error {
		r.pause()
		return nil
	})
}

// Resume resumes the active recording.
func (r *Recorder) Resume() {
	r.push(func() error {
		r.resume()
		return nil
	})
}

// StopRecording stops the active recording.
// The container is finalized once every encoder has drained its output.
func (r *Recorder) StopRecording() {
	r.push(func() error {
		r.stopRecording()
		return nil
	})
}

func (r *Recorder) push(cb func() error) {
	r.mutex.Lock()
	closed := r.closed
	r.mutex.Unlock()

	if closed {
		return
	}

	r.commands.Push(cb)
}

func (r *Recorder) currentSession() *session {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.session
}

func (r *Recorder) startRecording(sink Sink) {
	if r.currentSession() != nil {
		r.Log(logger.Warn, "a recording is already in progress")
		r.OnError(ErrRecordingInProgress)
		return
	}

	s, err := r.newSession(sink)
	if err != nil {
		r.Log(logger.Error, "%v", err)
		r.Metrics.SessionEnded(outcomeFailed)
		r.OnError(err)
		r.OnComplete(nil, err)
		return
	}

	r.mutex.Lock()
	r.session = s
	r.mutex.Unlock()

	r.wg.Add(1)
	go r.waitSession(s)

	err = s.video.StartRecording()
	if err != nil {
		r.Log(logger.Error, "unable to start video encoder: %v", err)
		r.OnError(EncoderError{Track: metrics.TrackVideo, Err: err})
		s.video.Close()
		if s.audio != nil {
			s.audio.Close()
		}
		return
	}

	if s.audio != nil {
		err = s.audio.StartRecording()
		if err != nil {
			r.Log(logger.Error, "unable to start audio encoder: %v", err)
			r.OnError(EncoderError{Track: metrics.TrackAudio, Err: err})
			s.audio.Close()
		} else if r.AudioSource != nil {
			err = r.AudioSource.StartFeeding(s.audio)
			if err != nil {
				r.Log(logger.Warn, "unable to start audio source: %v", err)
			}
		}
	}

	r.Log(logger.Info, "recording %s started", s.id)
}

// newSession opens the sink and prepares the encoders.
func (r *Recorder) newSession(sink Sink) (*session, error) {
	w, err := sink.Open()
	if err != nil {
		return nil, muxer.IOError{Err: err}
	}

	s := &session{
		id:   uuid.New(),
		sink: sink,
	}

	s.writer = &muxer.Writer{
		Sink:           w,
		Format:         r.Format,
		PartDuration:   r.PartDuration,
		SpoolDirectory: r.SpoolDirectory,
		Metrics:        r.Metrics,
		Parent:         r,
	}
	s.writer.Initialize()

	s.video = &encoder.Encoder{
		Name:         metrics.TrackVideo,
		Compressor:   r.VideoCompressor(),
		Muxer:        s.writer,
		DrainTimeout: r.DrainTimeout,
		Metrics:      r.Metrics,
		OnPrepared:   r.onVideoPrepared,
		OnStopped:    r.onVideoStopped,
		Parent:       r,
	}
	err = s.video.Initialize()
	if err != nil {
		s.writer.Close()
		r.discard(sink)
		return nil, err
	}

	if r.AudioCompressor != nil {
		s.audio = &encoder.Encoder{
			Name:         metrics.TrackAudio,
			Compressor:   r.AudioCompressor(),
			Muxer:        s.writer,
			DrainTimeout: r.DrainTimeout,
			Metrics:      r.Metrics,
			OnPrepared:   r.OnEncoderPrepared,
			OnStopped:    r.onAudioStopped,
			Parent:       r,
		}
		err = s.audio.Initialize()
		if err != nil {
			s.video.Close()
			s.writer.Close()
			r.discard(sink)
			return nil, err
		}
	}

	err = s.video.Prepare()
	if err != nil {
		if s.audio != nil {
			s.audio.Close()
		}
		s.video.Close()
		s.writer.Close()
		r.discard(sink)
		return nil, EncoderError{Track: metrics.TrackVideo, Err: err}
	}

	if s.audio != nil {
		err = s.audio.Prepare()
		if err != nil {
			r.Log(logger.Warn, "audio is disabled: %v", err)
			r.OnError(EncoderError{Track: metrics.TrackAudio, Err: err})
			s.audio.Close()
			s.audio = nil
		}
	}

	return s, nil
}

func (r *Recorder) pause() {
	s := r.currentSession()
	if s == nil {
		return
	}

	err := s.video.Pause()
	if err != nil {
		r.Log(logger.Warn, "unable to pause: %v", err)
		return
	}

	if s.audio != nil {
		err = s.audio.Pause()
		if err != nil {
			r.Log(logger.Warn, "unable to pause audio: %v", err)
		}
	}

	if r.VideoSource != nil {
		r.VideoSource.StopFeeding()
	}

	r.Log(logger.Info, "recording %s paused", s.id)
}

func (r *Recorder) resume() {
	s := r.currentSession()
	if s == nil {
		return
	}

	if r.VideoSource != nil {
		err := r.VideoSource.StartFeeding(s.video)
		if err != nil {
			r.Log(logger.Warn, "unable to start video source: %v", err)
		}
	}

	err := s.video.Resume()
	if err != nil {
		r.Log(logger.Warn, "unable to resume: %v", err)
		return
	}

	if s.audio != nil {
		err = s.audio.Resume()
		if err != nil {
			r.Log(logger.Warn, "unable to resume audio: %v", err)
		}
	}

	r.Log(logger.Info, "recording %s resumed", s.id)
}

func (r *Recorder) stopRecording() {
	s := r.currentSession()
	if s == nil {
		return
	}

	err := s.video.StopRecording()
	if err != nil {
		r.Log(logger.Warn, "unable to stop video encoder: %v", err)
		r.OnError(EncoderError{Track: metrics.TrackVideo, Err: err})
		s.video.Close()
	}

	if s.audio != nil {
		err = s.audio.StopRecording()
		if err != nil {
			r.Log(logger.Warn, "unable to stop audio encoder: %v", err)
			r.OnError(EncoderError{Track: metrics.TrackAudio, Err: err})
			s.audio.Close()
		}
	}
}

func (r *Recorder) onVideoPrepared(e *encoder.Encoder) {
	if r.VideoSource != nil {
		err := r.VideoSource.StartFeeding(e)
		if err != nil {
			r.Log(logger.Warn, "unable to start video source: %v", err)
		}
	}

	r.OnEncoderPrepared(e)
}

func (r *Recorder) onVideoStopped(e *encoder.Encoder) {
	if r.VideoSource != nil {
		r.VideoSource.StopFeeding()
	}

	r.reportEncoderError(e)
	r.OnEncoderStopped(e)
}

func (r *Recorder) onAudioStopped(e *encoder.Encoder) {
	if r.AudioSource != nil {
		r.AudioSource.StopFeeding()
	}

	r.reportEncoderError(e)
	r.OnEncoderStopped(e)
}

// reportEncoderError reports the failure that stopped an encoder.
// Writer failures are reported when the recording is finalized.
func (r *Recorder) reportEncoderError(e *encoder.Encoder) {
	err := e.Err()
	if err == nil || isWriterError(err) {
		return
	}

	r.Log(logger.Error, "%s encoder failed, finalizing what was recorded: %v", e.Name, err)
	r.OnError(EncoderError{Track: e.Name, Err: err})
}

func (r *Recorder) waitSession(s *session) {
	defer r.wg.Done()

	<-s.video.Done()
	if s.audio != nil {
		<-s.audio.Done()
	}

	// encoders that never started leave the writer open
	s.writer.Close()

	res, err := s.writer.Result()

	r.mutex.Lock()
	r.session = nil
	r.mutex.Unlock()

	if err == nil && !hasVideoSamples(res) {
		err = ErrRecordingTooShort
	}

	switch {
	case err == nil:
		r.Log(logger.Info, "recording %s completed", s.id)
		r.Metrics.SessionEnded(outcomeCompleted)
		r.OnComplete(&Result{
			ID:     s.id,
			Sink:   s.sink,
			Tracks: res.Tracks,
		}, nil)

	case errors.Is(err, muxer.ErrNotStarted), errors.Is(err, muxer.ErrNoSamples),
		errors.Is(err, ErrRecordingTooShort):
		r.Log(logger.Warn, "recording %s is too short, discarding", s.id)
		r.Metrics.SessionEnded(outcomeTooShort)
		r.discard(s.sink)
		r.OnError(ErrRecordingTooShort)
		r.OnComplete(nil, ErrRecordingTooShort)

	default:
		r.Log(logger.Error, "recording %s failed: %v", s.id, err)
		r.Metrics.SessionEnded(outcomeFailed)
		r.OnError(err)
		r.OnComplete(nil, err)
	}
}

func (r *Recorder) discard(sink Sink) {
	if d, ok := sink.(discardableSink); ok {
		err := d.Discard()
		if err != nil {
			r.Log(logger.Warn, "unable to discard recording: %v", err)
		}
	}
}

func isWriterError(err error) bool {
	var ioErr muxer.IOError
	return errors.As(err, &ioErr) || errors.Is(err, muxer.ErrClosed)
}

func hasVideoSamples(res *muxer.Result) bool {
	for _, t := range res.Tracks {
		if t.Codec.IsVideo() && t.Samples != 0 {
			return true
		}
	}
	return false
}
