// Package httpserv contains HTTP server utilities.
package httpserv

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/bluenviron/avrecorder/internal/logger"
)

type nilWriter struct{}

func (nilWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

// WrappedServer is a wrapper around http.Server that provides:
// - net.Listener allocation and closure
// - exit on panic
type WrappedServer struct {
	Address     string
	ReadTimeout time.Duration
	Handler     http.Handler
	Parent      logger.Writer

	ln    net.Listener
	inner *http.Server
	done  chan struct{}
}

// Initialize initializes WrappedServer.
func (s *WrappedServer) Initialize() error {
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 10 * time.Second
	}

	var err error
	s.ln, err = net.Listen("tcp", s.Address)
	if err != nil {
		return err
	}

	s.inner = &http.Server{
		Handler:           &handlerExitOnPanic{s.Handler},
		ReadHeaderTimeout: s.ReadTimeout,
		ErrorLog:          log.New(&nilWriter{}, "", 0),
	}

	s.done = make(chan struct{})

	go s.run()

	return nil
}

// Close closes all resources and waits for all routines to return.
func (s *WrappedServer) Close() {
	s.inner.Shutdown(context.Background()) //nolint:errcheck
	s.ln.Close()                           // in case Shutdown() is called before Serve()
	<-s.done
}

// Addr returns the listening address.
func (s *WrappedServer) Addr() net.Addr {
	return s.ln.Addr()
}

func (s *WrappedServer) run() {
	defer close(s.done)

	err := s.inner.Serve(s.ln)
	if err != nil && err != http.ErrServerClosed {
		s.Parent.Log(logger.Error, "%v", fmt.Errorf("HTTP server: %w", err))
	}
}
