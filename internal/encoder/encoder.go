// Package encoder contains the per-track encoder.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/bluenviron/avrecorder/internal/compressor"
	"github.com/bluenviron/avrecorder/internal/logger"
	"github.com/bluenviron/avrecorder/internal/metrics"
	"github.com/bluenviron/avrecorder/internal/unit"
)

const (
	defaultDrainTimeout = 10 * time.Millisecond
)

// ErrInvalidState is returned when an operation is not allowed in the current state.
var ErrInvalidState = errors.New("invalid state")

// Muxer is the container writer an encoder writes to.
type Muxer interface {
	ReserveTrack() error
	UnreserveTrack()
	AddTrack(codec mp4.Codec) (int, error)
	Start() (bool, error)
	WaitStarted(ctx context.Context) error
	IsStarted() bool
	WriteSample(trackIndex int, sample *unit.Sample) error
	Stop() error
}

// Encoder drives a compressor and writes its output to a Muxer.
type Encoder struct {
	Name         string
	Compressor   compressor.Compressor
	Muxer        Muxer
	DrainTimeout time.Duration
	Metrics      *metrics.Metrics
	OnPrepared   func(*Encoder)
	OnStopped    func(*Encoder)
	Parent       logger.Writer

	timeNow func() time.Time

	ctx         context.Context
	ctxCancel   func()
	mutex       sync.Mutex
	state       State
	ts          timestamper
	reserved    bool
	running     bool
	trackIndex  int
	trackAdded  bool
	muxStarted  bool
	err         error
	releaseOnce sync.Once

	done chan struct{}
}

// Initialize initializes Encoder and reserves a track on the Muxer.
func (e *Encoder) Initialize() error {
	if e.DrainTimeout == 0 {
		e.DrainTimeout = defaultDrainTimeout
	}
	if e.OnPrepared == nil {
		e.OnPrepared = func(*Encoder) {}
	}
	if e.OnStopped == nil {
		e.OnStopped = func(*Encoder) {}
	}
	if e.timeNow == nil {
		e.timeNow = time.Now
	}

	e.ctx, e.ctxCancel = context.WithCancel(context.Background())
	e.done = make(chan struct{})

	err := e.Muxer.ReserveTrack()
	if err != nil {
		e.ctxCancel()
		return err
	}
	e.reserved = true

	return nil
}

// Log implements logger.Writer.
func (e *Encoder) Log(level logger.Level, format string, args ...interface{}) {
	e.Parent.Log(level, "[encoder "+e.Name+"] "+format, args...)
}

// State returns the current state.
func (e *Encoder) State() State {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.state
}

// Prepare configures the compressor.
func (e *Encoder) Prepare() error {
	e.mutex.Lock()

	if e.state != StateIdle {
		defer e.mutex.Unlock()
		return fmt.Errorf("%w: %s", ErrInvalidState, e.state)
	}
	e.state = StatePreparing

	err := e.Compressor.Configure()
	if err != nil {
		e.state = StateStopped
		e.mutex.Unlock()

		var confErr compressor.ConfigurationError
		if !errors.As(err, &confErr) {
			err = compressor.ConfigurationError{Err: err}
		}
		return err
	}

	e.state = StatePrepared
	e.mutex.Unlock()

	e.Log(logger.Debug, "prepared")
	e.OnPrepared(e)

	return nil
}

// StartRecording starts the compressor and the worker that drains it.
func (e *Encoder) StartRecording() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.state != StatePrepared {
		return fmt.Errorf("%w: %s", ErrInvalidState, e.state)
	}

	err := e.Compressor.Start()
	if err != nil {
		e.state = StateStopped
		return compressor.CompressorError{Err: err}
	}

	e.ts.reset(e.timeNow())
	e.state = StateCapturing
	e.running = true
	e.Metrics.EncoderStarted()

	go e.run()

	return nil
}

// Pause stops feeding input to the compressor.
func (e *Encoder) Pause() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.state != StateCapturing {
		return fmt.Errorf("%w: %s", ErrInvalidState, e.state)
	}

	e.ts.pause(e.timeNow())
	e.state = StatePaused

	return nil
}

// Resume restarts feeding input to the compressor.
func (e *Encoder) Resume() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.state != StatePaused {
		return fmt.Errorf("%w: %s", ErrInvalidState, e.state)
	}

	e.ts.resume(e.timeNow())
	e.state = StateCapturing

	return nil
}

// StopRecording asks the compressor to end the stream.
// The worker exits asynchronously once the end of stream is drained.
func (e *Encoder) StopRecording() error {
	e.mutex.Lock()

	switch e.state {
	case StateCapturing, StatePaused:

	case StateDraining, StateStopped:
		e.mutex.Unlock()
		return nil

	default:
		defer e.mutex.Unlock()
		return fmt.Errorf("%w: %s", ErrInvalidState, e.state)
	}

	if e.state == StatePaused {
		e.ts.resume(e.timeNow())
	}
	e.state = StateDraining
	e.mutex.Unlock()

	var err error
	if s, ok := e.Compressor.(compressor.EndOfStreamSignaler); ok {
		err = s.SignalEndOfInputStream()
	} else {
		err = e.Compressor.QueueInput(nil, unit.FlagEndOfStream)
	}

	if err != nil {
		// the end of stream will never be drained
		e.Log(logger.Error, "unable to signal end of stream: %v", err)
		e.ctxCancel()
		return err
	}

	return nil
}

// Encode feeds raw input to the compressor.
// It returns false when the input is discarded.
func (e *Encoder) Encode(payload []byte) bool {
	e.mutex.Lock()
	capturing := (e.state == StateCapturing)
	e.mutex.Unlock()

	if !capturing {
		return false
	}

	err := e.Compressor.QueueInput(payload, 0)
	if err != nil {
		e.Log(logger.Debug, "input discarded: %v", err)
		return false
	}

	return true
}

// Close tears down the encoder and waits for its worker to exit.
// It can be called in any state, multiple times.
func (e *Encoder) Close() {
	e.ctxCancel()

	e.mutex.Lock()
	running := e.running
	e.mutex.Unlock()

	if running {
		<-e.done
	} else {
		e.release()
	}
}

// Done returns a channel that is closed when the encoder is released.
func (e *Encoder) Done() <-chan struct{} {
	return e.done
}

// Err returns the error that stopped the encoder, if any.
// It is available when OnStopped is called.
// Teardown through Close is not an error.
func (e *Encoder) Err() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.err
}

func (e *Encoder) run() {
	defer e.release()

	err := e.drain()
	if err != nil && e.ctx.Err() == nil {
		e.Log(logger.Error, "%v", err)

		e.mutex.Lock()
		e.err = err
		e.mutex.Unlock()
	}
}

func (e *Encoder) drain() error {
	for {
		select {
		case <-e.ctx.Done():
			return fmt.Errorf("terminated")
		default:
		}

		out, err := e.Compressor.DequeueOutput(e.DrainTimeout)
		if err != nil {
			return err
		}

		if out == nil {
			continue
		}

		switch {
		case out.FormatChanged:
			err = e.onFormatChanged(out.Codec)
			if err != nil {
				return err
			}

		case out.Flags.Has(unit.FlagCodecConfig):
			// parameters are carried by the track format

		case out.Flags.Has(unit.FlagEndOfStream):
			e.Log(logger.Debug, "end of stream reached")
			return nil

		default:
			if !e.trackAdded {
				return fmt.Errorf("received data before the output format")
			}

			e.mutex.Lock()
			pts := e.ts.next(e.timeNow())
			e.mutex.Unlock()

			err = e.Muxer.WriteSample(e.trackIndex, &unit.Sample{
				PTS:     pts,
				Payload: out.Payload,
				Flags:   out.Flags,
			})
			if err != nil {
				return err
			}
		}
	}
}

func (e *Encoder) onFormatChanged(codec mp4.Codec) error {
	if e.trackAdded {
		return fmt.Errorf("format changed twice")
	}

	var err error
	e.trackIndex, err = e.Muxer.AddTrack(codec)
	if err != nil {
		return err
	}
	e.trackAdded = true

	e.muxStarted = true
	startedNow, err := e.Muxer.Start()
	if err != nil {
		return err
	}

	if startedNow || e.Muxer.IsStarted() {
		return nil
	}

	e.Log(logger.Debug, "waiting for the other tracks")

	return e.Muxer.WaitStarted(e.ctx)
}

func (e *Encoder) release() {
	e.releaseOnce.Do(func() {
		e.mutex.Lock()
		e.state = StateStopped
		running := e.running
		e.mutex.Unlock()

		e.callOnStopped()

		err := e.Compressor.Release()
		if err != nil {
			e.Log(logger.Warn, "unable to release compressor: %v", err)
		}

		switch {
		case e.muxStarted:
			err = e.Muxer.Stop()
			if err != nil {
				e.Log(logger.Warn, "%v", err)
			}

		case e.reserved:
			e.Muxer.UnreserveTrack()
		}

		if running {
			e.Metrics.EncoderStopped()
		}

		e.ctxCancel()
		close(e.done)

		e.Log(logger.Debug, "released")
	})
}

func (e *Encoder) callOnStopped() {
	defer func() {
		if r := recover(); r != nil {
			e.Log(logger.Error, "stop callback panicked: %v", r)
		}
	}()

	e.OnStopped(e)
}
