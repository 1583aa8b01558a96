package httpserv

import (
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
)

// exit when there's a panic inside the HTTP handler.
type handlerExitOnPanic struct {
	http.Handler
}

func (h *handlerExitOnPanic) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if err := recover(); err != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n\n%s", err, debug.Stack())
			os.Exit(1)
		}
	}()
	h.Handler.ServeHTTP(w, r)
}
