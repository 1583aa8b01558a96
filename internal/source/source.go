// Package source contains raw frame sources.
package source

import (
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned when feeding from a closed source.
var ErrClosed = errors.New("source is closed")

// Target receives raw frames.
type Target interface {
	Encode(payload []byte) bool
}

// Source delivers raw frames to a target.
type Source interface {
	// StartFeeding starts delivering frames to target.
	StartFeeding(target Target) error

	// StopFeeding stops delivering frames.
	// A frame that is being delivered may still reach the target.
	StopFeeding()
}

// ticker calls a frame generator periodically and feeds a target.
type ticker struct {
	period   time.Duration
	generate func(n int) []byte

	mutex  sync.Mutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
	n      int
}

func (t *ticker) startFeeding(target Target) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.closed {
		return ErrClosed
	}

	if t.stop != nil {
		close(t.stop)
	}

	t.stop = make(chan struct{})
	t.wg.Add(1)
	go t.run(t.stop, target)

	return nil
}

func (t *ticker) stopFeeding() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *ticker) close() {
	t.mutex.Lock()
	t.closed = true
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.mutex.Unlock()

	t.wg.Wait()
}

func (t *ticker) next() []byte {
	t.mutex.Lock()
	n := t.n
	t.n++
	t.mutex.Unlock()

	return t.generate(n)
}

func (t *ticker) run(stop chan struct{}, target Target) {
	defer t.wg.Done()

	tk := time.NewTicker(t.period)
	defer tk.Stop()

	for {
		select {
		case <-tk.C:
			target.Encode(t.next())

		case <-stop:
			return
		}
	}
}
