package logger

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoggerToStdout(t *testing.T) {
	var buf bytes.Buffer

	l := &Logger{
		Destinations: []Destination{DestinationStdout},
		timeNow:      func() time.Time { return time.Date(2003, 11, 4, 23, 15, 8, 431232, time.UTC) },
		stdout:       &buf,
	}
	err := l.Initialize()
	require.NoError(t, err)
	defer l.Close()

	l.Log(Info, "test format %d", 123)
	l.Log(Debug, "filtered out")

	require.Equal(t, "2003/11/04 23:15:08 INF test format 123\n", buf.String())
}

func TestLoggerToFile(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "avr.log")

	l := &Logger{
		Level:        Debug,
		Destinations: []Destination{DestinationFile},
		File:         fpath,
		timeNow:      func() time.Time { return time.Date(2003, 11, 4, 23, 15, 8, 0, time.UTC) },
	}
	err := l.Initialize()
	require.NoError(t, err)

	l.Log(Debug, "first")
	l.Log(Error, "second %s", "entry")
	l.Close()

	buf, err := os.ReadFile(fpath)
	require.NoError(t, err)
	require.Equal(t, "2003/11/04 23:15:08 DEB first\n"+
		"2003/11/04 23:15:08 ERR second entry\n", string(buf))
}

type captureWriter struct {
	lines []string
}

func (w *captureWriter) Log(_ Level, format string, args ...interface{}) {
	w.lines = append(w.lines, fmt.Sprintf(format, args...))
}

func TestLimitedLogger(t *testing.T) {
	w := &captureWriter{}
	l := NewLimitedLogger(w)

	for i := 0; i < 10; i++ {
		l.Log(Warn, "queue is full (%d)", i)
	}

	require.Equal(t, []string{"queue is full (0)"}, w.lines)
}
