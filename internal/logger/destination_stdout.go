package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

type destinationStdout struct {
	w        io.Writer
	useColor bool
	buf      bytes.Buffer
}

func newDestinationStdout(w io.Writer) destination {
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = term.IsTerminal(int(f.Fd()))
	}

	return &destinationStdout{
		w:        w,
		useColor: useColor,
	}
}

func (d *destinationStdout) log(t time.Time, level Level, format string, args ...interface{}) {
	d.buf.Reset()
	writeTime(&d.buf, t, d.useColor)
	writeLevel(&d.buf, level, d.useColor)
	fmt.Fprintf(&d.buf, format, args...)
	d.buf.WriteByte('\n')
	d.w.Write(d.buf.Bytes()) //nolint:errcheck
}

func (d *destinationStdout) close() {
}
