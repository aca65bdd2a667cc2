// Package transport reads lines from serial-connected boards.
package transport

import (
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"

	"framelog/collector"
)

// DefaultReadTimeout bounds a single Poll on the port.
const DefaultReadTimeout = 50 * time.Millisecond

// Serial is a line transport over a serial port.
type Serial struct {
	port  serial.Port
	lines *LineBuffer
	chunk []byte
}

// SerialOpener opens Serial transports.
type SerialOpener struct {
	ReadTimeout time.Duration
	MaxLine     int
}

// Open implements collector.Opener.
func (o SerialOpener) Open(path string, baud int) (collector.Transport, error) {
	return OpenSerial(path, baud, o.ReadTimeout, o.MaxLine)
}

// OpenSerial opens path at the given baud rate, 8N1.
func OpenSerial(path string, baud int, readTimeout time.Duration, maxLine int) (*Serial, error) {
	if baud <= 0 {
		return nil, fmt.Errorf("invalid baud rate %d", baud)
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}

	return &Serial{
		port:  port,
		lines: NewLineBuffer(maxLine),
		chunk: make([]byte, 256),
	}, nil
}

// Poll reads whatever the port has within the read timeout and reports
// whether a full line is waiting.
func (s *Serial) Poll() (bool, error) {
	if s.lines.HasLine() {
		return true, nil
	}
	n, err := s.port.Read(s.chunk)
	if err != nil {
		return false, fmt.Errorf("read serial port: %w", err)
	}
	// n == 0 is a read timeout.
	if n > 0 {
		_, _ = s.lines.Write(s.chunk[:n])
	}
	return s.lines.HasLine(), nil
}

// ReadLine returns the next buffered line. Call Poll first.
func (s *Serial) ReadLine() (string, error) {
	line, ok := s.lines.Next()
	if !ok {
		return "", errNoLine
	}
	return line, nil
}

func (s *Serial) Close() error {
	return s.port.Close()
}

var errNoLine = errors.New("no complete line buffered")

// Ports lists the serial ports present on this machine.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

var _ collector.Transport = (*Serial)(nil)
