package recorder

import (
	"io"
	"os"
	"path/filepath"
)

// Sink is the destination of a recording.
type Sink interface {
	Open() (io.WriteCloser, error)
}

type discardableSink interface {
	Discard() error
}

// FileSink writes a recording into a file.
type FileSink struct {
	Path string
}

// Open implements Sink.
func (s *FileSink) Open() (io.WriteCloser, error) {
	err := os.MkdirAll(filepath.Dir(s.Path), 0o755)
	if err != nil {
		return nil, err
	}

	return os.Create(s.Path)
}

// Discard removes the file.
func (s *FileSink) Discard() error {
	return os.Remove(s.Path)
}

// String implements fmt.Stringer.
func (s *FileSink) String() string {
	return s.Path
}
