package httpserv

import (
	"net/http/httputil"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bluenviron/avrecorder/internal/logger"
)

type loggerWriter struct {
	gin.ResponseWriter
	size int
}

func (w *loggerWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func (w *loggerWriter) WriteString(s string) (int, error) {
	n, err := w.ResponseWriter.WriteString(s)
	w.size += n
	return n, err
}

// MiddlewareLogger is a middleware that logs requests and responses.
func MiddlewareLogger(p logger.Writer) func(*gin.Context) {
	return func(ctx *gin.Context) {
		p.Log(logger.Debug, "[conn %v] %s %s", ctx.Request.RemoteAddr, ctx.Request.Method, ctx.Request.URL.Path)

		byts, _ := httputil.DumpRequest(ctx.Request, false)
		p.Log(logger.Debug, "[conn %v] [c->s] %s", ctx.Request.RemoteAddr, string(byts))

		logw := &loggerWriter{ResponseWriter: ctx.Writer}
		ctx.Writer = logw
		start := time.Now()

		ctx.Next()

		p.Log(logger.Debug, "[conn %v] [s->c] %d, %d bytes in %v", ctx.Request.RemoteAddr,
			logw.Status(), logw.size, time.Since(start))
	}
}
