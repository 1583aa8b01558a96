// Package logger contains a logger implementation.
package logger

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gookit/color"
)

// Logger is a log handler.
type Logger struct {
	Level        Level
	Destinations []Destination
	File         string

	timeNow func() time.Time
	stdout  io.Writer

	destinations []destination
	mutex        sync.Mutex
}

// Initialize initializes Logger.
func (l *Logger) Initialize() error {
	if l.Level == 0 {
		l.Level = Info
	}
	if l.timeNow == nil {
		l.timeNow = time.Now
	}
	if l.stdout == nil {
		l.stdout = os.Stdout
	}

	for _, destType := range l.Destinations {
		switch destType {
		case DestinationStdout:
			l.destinations = append(l.destinations, newDestinationStdout(l.stdout))

		case DestinationFile:
			dest, err := newDestinationFile(l.File)
			if err != nil {
				l.Close()
				return err
			}
			l.destinations = append(l.destinations, dest)
		}
	}

	return nil
}

// Close closes a log handler.
func (l *Logger) Close() {
	for _, dest := range l.destinations {
		dest.close()
	}
	l.destinations = nil
}

func pad(buf *bytes.Buffer, v int, width int) {
	s := strconv.Itoa(v)
	for i := len(s); i < width; i++ {
		buf.WriteByte('0')
	}
	buf.WriteString(s)
}

func writeTime(buf *bytes.Buffer, t time.Time, useColor bool) {
	var tmp bytes.Buffer

	year, month, day := t.Date()
	pad(&tmp, year, 4)
	tmp.WriteByte('/')
	pad(&tmp, int(month), 2)
	tmp.WriteByte('/')
	pad(&tmp, day, 2)
	tmp.WriteByte(' ')

	hour, minute, sec := t.Clock()
	pad(&tmp, hour, 2)
	tmp.WriteByte(':')
	pad(&tmp, minute, 2)
	tmp.WriteByte(':')
	pad(&tmp, sec, 2)
	tmp.WriteByte(' ')

	if useColor {
		buf.WriteString(color.RenderString(color.Gray.Code(), tmp.String()))
	} else {
		buf.WriteString(tmp.String())
	}
}

func writeLevel(buf *bytes.Buffer, level Level, useColor bool) {
	var code string
	var label string

	switch level {
	case Debug:
		code, label = color.Debug.Code(), "DEB"
	case Info:
		code, label = color.Green.Code(), "INF"
	case Warn:
		code, label = color.Warn.Code(), "WAR"
	case Error:
		code, label = color.Error.Code(), "ERR"
	default:
		return
	}

	if useColor {
		buf.WriteString(color.RenderString(code, label))
	} else {
		buf.WriteString(label)
	}
	buf.WriteByte(' ')
}

// Log writes a log entry.
func (l *Logger) Log(level Level, format string, args ...interface{}) {
	if level < l.Level {
		return
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	t := l.timeNow()

	for _, dest := range l.destinations {
		dest.log(t, level, format, args...)
	}
}
