package metrics

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bluenviron/avrecorder/internal/httpserv"
	"github.com/bluenviron/avrecorder/internal/logger"
)

// Server exposes Metrics over HTTP.
type Server struct {
	Address     string
	ReadTimeout time.Duration
	Metrics     *Metrics
	Parent      logger.Writer

	httpServer *httpserv.WrappedServer
}

// Initialize initializes Server.
func (s *Server) Initialize() error {
	router := gin.New()
	router.SetTrustedProxies(nil) //nolint:errcheck
	router.Use(httpserv.MiddlewareServerHeader)
	router.Use(httpserv.MiddlewareLogger(s))
	router.GET("/metrics", gin.WrapH(s.Metrics.Handler()))

	s.httpServer = &httpserv.WrappedServer{
		Address:     s.Address,
		ReadTimeout: s.ReadTimeout,
		Handler:     router,
		Parent:      s,
	}
	err := s.httpServer.Initialize()
	if err != nil {
		return err
	}

	s.Log(logger.Info, "listener opened on "+s.httpServer.Addr().String())

	return nil
}

// Close closes Server.
func (s *Server) Close() {
	s.Log(logger.Info, "listener is closing")
	s.httpServer.Close()
}

// Log implements logger.Writer.
func (s *Server) Log(level logger.Level, format string, args ...interface{}) {
	s.Parent.Log(level, "[metrics] "+format, args...)
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	return s.httpServer.Addr().String()
}
