// Package muxer contains the container writer shared by the encoders of a recording.
package muxer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/bluenviron/avrecorder/internal/gate"
	"github.com/bluenviron/avrecorder/internal/logger"
	"github.com/bluenviron/avrecorder/internal/metrics"
	"github.com/bluenviron/avrecorder/internal/unit"
)

// TrackResult describes a track of a finalized container.
type TrackResult struct {
	ID       int
	Codec    mp4.Codec
	Samples  int
	Bytes    uint64
	Duration time.Duration
}

// Result describes a finalized container.
type Result struct {
	Tracks []TrackResult
}

// Writer writes samples of multiple tracks into a container.
// Writing starts when every reserved track has called Start.
// The container is finalized when every started track has called Stop.
type Writer struct {
	Sink           io.WriteCloser
	Format         Format
	PartDuration   time.Duration
	SpoolDirectory string
	Metrics        *metrics.Metrics
	Parent         logger.Writer

	mutex         sync.Mutex
	gate          *gate.Gate
	format        format
	tracks        []*track
	startedCount  int
	finalized     bool
	err           error
	droppedLogger logger.Writer

	done chan struct{}
}

// Initialize initializes Writer.
func (w *Writer) Initialize() {
	if w.PartDuration == 0 {
		w.PartDuration = 1 * time.Second
	}
	if w.SpoolDirectory == "" {
		w.SpoolDirectory = os.TempDir()
	}

	w.gate = &gate.Gate{
		OnOpen: w.open,
	}
	w.gate.Initialize()

	w.droppedLogger = logger.NewLimitedLogger(w)
	w.done = make(chan struct{})
}

// Log implements logger.Writer.
func (w *Writer) Log(level logger.Level, format string, args ...interface{}) {
	w.Parent.Log(level, "[muxer] "+format, args...)
}

// ReserveTrack declares that a track will be added.
func (w *Writer) ReserveTrack() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.finalized {
		return ErrClosed
	}

	err := w.gate.Reserve()
	if err != nil {
		return ProtocolError{Msg: "already started"}
	}

	return nil
}

// UnreserveTrack withdraws a reservation of a track that will never start.
func (w *Writer) UnreserveTrack() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.finalized {
		return
	}

	ok, err := w.gate.Unreserve()
	if err != nil {
		w.Log(logger.Error, "%v", err)
	} else if ok {
		w.Log(logger.Debug, "started after a track was withdrawn")
	}
}

// AddTrack registers the format of a track and returns its index.
func (w *Writer) AddTrack(codec mp4.Codec) (int, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.finalized {
		return 0, ErrClosed
	}

	if w.gate.IsOpen() {
		return 0, ProtocolError{Msg: "already started"}
	}

	t := &track{
		id:        len(w.tracks) + 1,
		codec:     codec,
		timeScale: trackTimeScale(codec),
	}
	w.tracks = append(w.tracks, t)

	w.Log(logger.Debug, "track %d added (%T)", t.id, codec)

	return len(w.tracks) - 1, nil
}

// open is called by the gate, with the mutex held.
func (w *Writer) open() error {
	switch w.Format {
	case FormatFMP4:
		w.format = &formatFMP4{
			w:            w.Sink,
			partDuration: w.PartDuration,
		}

	default:
		w.format = &formatMP4{
			w:              w.Sink,
			spoolDirectory: w.SpoolDirectory,
		}
	}

	err := w.format.open(w.tracks)
	if err != nil {
		w.format = nil
		w.err = IOError{Err: err}
		return w.err
	}

	w.Log(logger.Info, "started with %d %s", len(w.tracks), pluralize("track", len(w.tracks)))

	return nil
}

// Start notifies that a track is ready to be written.
// It returns true when this call started the writer.
func (w *Writer) Start() (bool, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.finalized {
		return false, ErrClosed
	}

	w.startedCount++

	return w.gate.Arrive()
}

// WaitStarted waits until the writer is started.
func (w *Writer) WaitStarted(ctx context.Context) error {
	return w.gate.Wait(ctx)
}

// IsStarted returns whether the writer is started.
func (w *Writer) IsStarted() bool {
	return w.gate.IsOpen()
}

// WriteSample writes a sample.
// Samples are discarded when the writer is not started or no track is active.
func (w *Writer) WriteSample(trackIndex int, sample *unit.Sample) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if trackIndex < 0 || trackIndex >= len(w.tracks) {
		return ProtocolError{Msg: fmt.Sprintf("invalid track index %d", trackIndex)}
	}

	t := w.tracks[trackIndex]

	if w.finalized || w.format == nil || w.startedCount <= 0 {
		w.Metrics.SampleDropped(t.kind())
		w.droppedLogger.Log(logger.Warn, "writer is not active, discarding sample of track %d", t.id)
		return nil
	}

	err := w.format.writeSample(t, durationToTimestamp(sample.PTS, t.timeScale), sample)
	if err != nil {
		err = IOError{Err: err}
		if w.err == nil {
			w.err = err
		}
		return err
	}

	t.update(sample.PTS, len(sample.Payload))
	w.Metrics.SampleWritten(t.kind(), len(sample.Payload))

	return nil
}

// Stop notifies that a started track has ended.
// When no track remains active, the container is finalized.
func (w *Writer) Stop() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.finalized || w.startedCount <= 0 {
		return nil
	}

	w.startedCount--
	if w.startedCount > 0 {
		return nil
	}

	w.finalize()
	return w.err
}

// Close tears down the writer.
// Waiters are released and the container is finalized if it was not already.
func (w *Writer) Close() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.finalized {
		return
	}

	w.finalize()
}

// finalize must be called with the mutex held.
func (w *Writer) finalize() {
	w.finalized = true
	w.startedCount = 0
	w.gate.Cancel()

	// keep the first error
	if w.format != nil {
		err := w.format.close()
		switch {
		case err == nil:

		case errors.Is(err, ErrNoSamples):
			if w.err == nil {
				w.err = ErrNoSamples
			}

		default:
			w.Log(logger.Error, "unable to finalize: %v", err)
			if w.err == nil {
				w.err = IOError{Err: err}
			}
		}
	} else if w.err == nil {
		w.err = ErrNotStarted
	}

	err := w.Sink.Close()
	if err != nil {
		w.Log(logger.Error, "unable to close sink: %v", err)
		if w.err == nil {
			w.err = IOError{Err: err}
		}
	}

	switch w.err {
	case nil:
		w.Log(logger.Info, "finalized")

	case ErrNotStarted:
		w.Log(logger.Warn, "closed without being started")

	case ErrNoSamples:
		w.Log(logger.Warn, "finalized without samples")

	default:
		w.Log(logger.Error, "finalized with error: %v", w.err)
	}

	close(w.done)
}

// Done returns a channel that is closed when the writer is finalized.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

// Result returns the description of the finalized container.
// It must be called after Done is closed.
func (w *Writer) Result() (*Result, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if !w.finalized {
		return nil, fmt.Errorf("writer is not finalized")
	}

	if w.err != nil {
		return nil, w.err
	}

	res := &Result{}
	for _, t := range w.tracks {
		var duration time.Duration
		if t.samples != 0 {
			duration = t.lastPTS - t.firstPTS
		}

		res.Tracks = append(res.Tracks, TrackResult{
			ID:       t.id,
			Codec:    t.codec,
			Samples:  t.samples,
			Bytes:    t.bytes,
			Duration: duration,
		})
	}

	return res, nil
}

func pluralize(s string, n int) string {
	if n == 1 {
		return s
	}
	return s + "s"
}
