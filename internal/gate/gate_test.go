package gate

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGateOpensOnLastArrival(t *testing.T) {
	opened := 0

	g := &Gate{
		OnOpen: func() error {
			opened++
			return nil
		},
	}
	g.Initialize()

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Reserve())
	}

	ok, err := g.Arrive()
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, g.IsOpen())

	ok, err = g.Arrive()
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = g.Arrive()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, g.IsOpen())
	require.Equal(t, 1, opened)

	_, err = g.Arrive()
	require.NoError(t, err)
	require.Equal(t, 1, opened)

	require.Equal(t, ErrOpen, g.Reserve())
}

func TestGateConcurrentArrivals(t *testing.T) {
	const count = 16

	var mutex sync.Mutex
	openedNow := 0

	g := &Gate{}
	g.Initialize()

	for i := 0; i < count; i++ {
		require.NoError(t, g.Reserve())
	}

	var wg sync.WaitGroup
	wg.Add(count)

	for i := 0; i < count; i++ {
		go func() {
			defer wg.Done()

			ok, err := g.Arrive()
			if err != nil {
				panic(err)
			}

			if ok {
				mutex.Lock()
				openedNow++
				mutex.Unlock()
			}

			err = g.Wait(context.Background())
			if err != nil {
				panic(err)
			}
		}()
	}

	wg.Wait()
	require.Equal(t, 1, openedNow)
}

func TestGateUnreserve(t *testing.T) {
	g := &Gate{}
	g.Initialize()

	require.NoError(t, g.Reserve())
	require.NoError(t, g.Reserve())

	ok, err := g.Arrive()
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = g.Unreserve()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, g.IsOpen())
}

func TestGateUnreserveBeforeArrivals(t *testing.T) {
	g := &Gate{}
	g.Initialize()

	require.NoError(t, g.Reserve())

	ok, err := g.Unreserve()
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, g.IsOpen())
}

func TestGateOpenError(t *testing.T) {
	g := &Gate{
		OnOpen: func() error {
			return fmt.Errorf("sink failure")
		},
	}
	g.Initialize()

	require.NoError(t, g.Reserve())

	ok, err := g.Arrive()
	require.EqualError(t, err, "sink failure")
	require.False(t, ok)
	require.False(t, g.IsOpen())

	err = g.Wait(context.Background())
	require.EqualError(t, err, "sink failure")
}

func TestGateCancel(t *testing.T) {
	g := &Gate{}
	g.Initialize()

	require.NoError(t, g.Reserve())
	require.NoError(t, g.Reserve())

	_, err := g.Arrive()
	require.NoError(t, err)

	waitErr := make(chan error)
	go func() {
		waitErr <- g.Wait(context.Background())
	}()

	g.Cancel()
	require.Equal(t, ErrCanceled, <-waitErr)

	ok, err := g.Arrive()
	require.Equal(t, ErrCanceled, err)
	require.False(t, ok)
}

func TestGateWaitContext(t *testing.T) {
	g := &Gate{}
	g.Initialize()

	require.NoError(t, g.Reserve())

	ctx, ctxCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer ctxCancel()

	err := g.Wait(ctx)
	require.Equal(t, context.DeadlineExceeded, err)
}
