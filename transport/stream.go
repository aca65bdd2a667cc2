package transport

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"framelog/collector"
)

// Stream is a line transport over any reader, e.g. a captured log of a
// board's output or a pipe. A goroutine scans the reader so Poll never
// blocks.
type Stream struct {
	rc    io.ReadCloser
	lines chan string
	errc  chan error
	quit  chan struct{}

	mu   sync.Mutex
	err  error
	once sync.Once
}

// NewStream starts scanning rc.
func NewStream(rc io.ReadCloser, maxLine int) *Stream {
	if maxLine <= 0 {
		maxLine = DefaultMaxLine
	}
	s := &Stream{
		rc:    rc,
		lines: make(chan string, 64),
		errc:  make(chan error, 1),
		quit:  make(chan struct{}),
	}
	go s.scan(maxLine)
	return s
}

func (s *Stream) scan(maxLine int) {
	sc := bufio.NewScanner(s.rc)
	sc.Buffer(make([]byte, 0, 4096), maxLine)
	defer close(s.lines)
	for sc.Scan() {
		select {
		case s.lines <- strings.TrimRight(sc.Text(), "\r"):
		case <-s.quit:
			return
		}
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	s.errc <- err
}

// Poll reports whether a line is ready. Once the reader is exhausted and
// every line was consumed it returns the read error (io.EOF at the end of
// the input).
func (s *Stream) Poll() (bool, error) {
	if len(s.lines) > 0 {
		return true, nil
	}
	select {
	case err := <-s.errc:
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	default:
	}
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		if len(s.lines) > 0 {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func (s *Stream) ReadLine() (string, error) {
	line, ok := <-s.lines
	if !ok {
		return "", io.EOF
	}
	return line, nil
}

func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.quit)
		err = s.rc.Close()
	})
	return err
}

// AutoOpener opens regular files and named pipes as Streams and anything
// else as a serial port.
type AutoOpener struct {
	Serial SerialOpener
}

// Open implements collector.Opener.
func (o AutoOpener) Open(path string, baud int) (collector.Transport, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.Mode().IsRegular() || fi.Mode()&os.ModeNamedPipe != 0 {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		return NewStream(f, o.Serial.MaxLine), nil
	}
	return o.Serial.Open(path, baud)
}

var _ collector.Transport = (*Stream)(nil)
