package compressor

import (
	"sync"
	"time"
)

type outputQueue struct {
	ch        chan *Output
	terminate chan struct{}
	once      sync.Once
}

func (q *outputQueue) initialize(size int) {
	q.ch = make(chan *Output, size)
	q.terminate = make(chan struct{})
}

// push blocks until the output is queued or the queue is closed.
func (q *outputQueue) push(o *Output) bool {
	select {
	case q.ch <- o:
		return true
	case <-q.terminate:
		return false
	}
}

func (q *outputQueue) pull(timeout time.Duration) (*Output, error) {
	select {
	case <-q.terminate:
		return nil, ErrReleased
	default:
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case o := <-q.ch:
		return o, nil

	case <-t.C:
		return nil, nil

	case <-q.terminate:
		return nil, ErrReleased
	}
}

func (q *outputQueue) close() {
	q.once.Do(func() {
		close(q.terminate)
	})
}
