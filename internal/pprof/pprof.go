// Package pprof contains a pprof exporter.
package pprof

import (
	"net/http"
	"time"

	// start pprof
	_ "net/http/pprof"

	"github.com/gin-gonic/gin"

	"github.com/bluenviron/avrecorder/internal/httpserv"
	"github.com/bluenviron/avrecorder/internal/logger"
)

// PPROF is a pprof exporter.
type PPROF struct {
	Address     string
	ReadTimeout time.Duration
	Parent      logger.Writer

	httpServer *httpserv.WrappedServer
}

// Initialize initializes PPROF.
func (pp *PPROF) Initialize() error {
	router := gin.New()
	router.SetTrustedProxies(nil) //nolint:errcheck
	router.Use(httpserv.MiddlewareServerHeader)
	router.NoRoute(pp.onRequest)

	pp.httpServer = &httpserv.WrappedServer{
		Address:     pp.Address,
		ReadTimeout: pp.ReadTimeout,
		Handler:     router,
		Parent:      pp,
	}
	err := pp.httpServer.Initialize()
	if err != nil {
		return err
	}

	pp.Log(logger.Info, "listener opened on "+pp.httpServer.Addr().String())

	return nil
}

// Close closes PPROF.
func (pp *PPROF) Close() {
	pp.Log(logger.Info, "listener is closing")
	pp.httpServer.Close()
}

// Log implements logger.Writer.
func (pp *PPROF) Log(level logger.Level, format string, args ...interface{}) {
	pp.Parent.Log(level, "[pprof] "+format, args...)
}

// Addr returns the listening address.
func (pp *PPROF) Addr() string {
	return pp.httpServer.Addr().String()
}

func (pp *PPROF) onRequest(ctx *gin.Context) {
	http.DefaultServeMux.ServeHTTP(ctx.Writer, ctx.Request)
}
