package collector

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Wire markers of a frame. A frame opens with a line that is exactly
// StartMarker, closes with a line that is exactly EndMarker and carries
// its elements on lines starting with DataPrefix.
const (
	StartMarker = "["
	EndMarker   = "]"
	DataPrefix  = "  {"

	// minFrameLen is the shortest buffer that holds at least one data line.
	minFrameLen = 5
)

// AssemblerState is the state of a FrameAssembler.
type AssemblerState int

const (
	Idle AssemblerState = iota
	Collecting
)

func (s AssemblerState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Collecting:
		return "collecting"
	default:
		return fmt.Sprintf("AssemblerState(%d)", int(s))
	}
}

// FrameAssembler rebuilds frame payloads from a stream of lines. It is
// not safe for concurrent use; every session owns its own.
type FrameAssembler struct {
	state AssemblerState
	buf   strings.Builder
}

// NewFrameAssembler returns an assembler waiting for a start marker.
func NewFrameAssembler() *FrameAssembler {
	return &FrameAssembler{}
}

// State reports whether the assembler is inside a frame.
func (a *FrameAssembler) State() AssemblerState {
	return a.state
}

// Reset drops any partial frame.
func (a *FrameAssembler) Reset() {
	a.state = Idle
	a.buf.Reset()
}

// Feed classifies one line. When the line completes a frame the payload is
// returned with ok set; the assembler is then back in Idle.
func (a *FrameAssembler) Feed(line string) (payload string, ok bool) {
	line = strings.TrimRight(line, "\r\n")

	if line == StartMarker {
		// Also resynchronizes a frame whose end marker was lost.
		a.buf.Reset()
		a.buf.WriteString(StartMarker)
		a.state = Collecting
		return "", false
	}
	if a.state != Collecting {
		return "", false
	}

	switch {
	case strings.HasPrefix(line, DataPrefix):
		a.buf.WriteByte(' ')
		a.buf.WriteString(line)
	case line == EndMarker:
		data := a.buf.String()
		a.Reset()
		if len(data) < minFrameLen || data[0] != StartMarker[0] {
			return "", false
		}
		return data + EndMarker, true
	}
	return "", false
}

// DecodeFrame parses a payload emitted by Feed. Any failure wraps
// ErrMalformedFrame.
func DecodeFrame(payload string) ([]Reading, error) {
	var readings []Reading
	if err := json.Unmarshal([]byte(payload), &readings); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	for i, r := range readings {
		if r.Name == "" {
			return nil, fmt.Errorf("%w: element %d has no name", ErrMalformedFrame, i)
		}
	}
	return readings, nil
}
