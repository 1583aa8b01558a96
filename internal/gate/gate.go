// Package gate contains a count-down gate.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrOpen is returned when reserving a slot on a gate that is already open.
var ErrOpen = errors.New("gate is already open")

// ErrCanceled is returned by Wait when the gate is canceled before opening.
var ErrCanceled = errors.New("gate canceled")

// Gate is a count-down gate.
// It opens once every reserved party has arrived.
// Opening happens at most once.
type Gate struct {
	// called once, by the arrival that opens the gate, before waiters are released.
	// If it returns an error, the gate fails instead of opening.
	OnOpen func() error

	mutex    sync.Mutex
	reserved int
	arrived  int
	open     bool
	err      error
	done     chan struct{}
}

// Initialize initializes a Gate.
func (g *Gate) Initialize() {
	if g.OnOpen == nil {
		g.OnOpen = func() error { return nil }
	}
	g.done = make(chan struct{})
}

func (g *Gate) finished() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

// tryOpen must be called with the mutex held.
func (g *Gate) tryOpen() (bool, error) {
	if g.arrived == 0 || g.arrived < g.reserved {
		return false, nil
	}

	err := g.OnOpen()
	if err != nil {
		g.err = err
		close(g.done)
		return false, err
	}

	g.open = true
	close(g.done)
	return true, nil
}

// Reserve adds a party the gate waits for.
func (g *Gate) Reserve() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.finished() {
		if g.err != nil {
			return g.err
		}
		return ErrOpen
	}

	g.reserved++
	return nil
}

// Unreserve removes a party that will never arrive.
// If every remaining party already arrived, the gate opens.
func (g *Gate) Unreserve() (bool, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.finished() || g.reserved == 0 {
		return false, nil
	}

	g.reserved--
	return g.tryOpen()
}

// Arrive marks the arrival of a party.
// It returns true when this arrival opened the gate.
func (g *Gate) Arrive() (bool, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.finished() {
		return false, g.err
	}

	if g.arrived >= g.reserved {
		return false, fmt.Errorf("arrivals exceed reservations (%d)", g.reserved)
	}

	g.arrived++
	return g.tryOpen()
}

// Cancel releases waiters without opening the gate.
// It has no effect when the gate is already open.
func (g *Gate) Cancel() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.finished() {
		return
	}

	g.err = ErrCanceled
	close(g.done)
}

// IsOpen returns whether the gate is open.
func (g *Gate) IsOpen() bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.open
}

// Wait waits until the gate opens.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		g.mutex.Lock()
		defer g.mutex.Unlock()
		return g.err

	case <-ctx.Done():
		return ctx.Err()
	}
}
