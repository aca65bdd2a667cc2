package transport

import (
	"bytes"
)

// DefaultMaxLine bounds a partial line held while waiting for its newline.
const DefaultMaxLine = 64 * 1024

// LineBuffer splits a byte stream into lines. Bytes are appended with
// Write and complete lines taken with Next. It is not safe for concurrent
// use.
type LineBuffer struct {
	buf     []byte
	maxLine int
	dropped int
}

// NewLineBuffer returns a buffer that drops a partial line once it grows
// past maxLine bytes. maxLine <= 0 selects DefaultMaxLine.
func NewLineBuffer(maxLine int) *LineBuffer {
	if maxLine <= 0 {
		maxLine = DefaultMaxLine
	}
	return &LineBuffer{maxLine: maxLine}
}

// Write appends raw bytes. It never fails.
func (b *LineBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if !b.HasLine() && len(b.buf) > b.maxLine {
		// Garbage without a terminator: keep memory bounded.
		b.dropped += len(b.buf)
		b.buf = b.buf[:0]
	}
	return len(p), nil
}

// HasLine reports whether a complete line is buffered.
func (b *LineBuffer) HasLine() bool {
	return bytes.IndexByte(b.buf, '\n') >= 0
}

// Next removes and returns the first complete line without its "\n" or
// "\r\n" terminator.
func (b *LineBuffer) Next() (string, bool) {
	i := bytes.IndexByte(b.buf, '\n')
	if i < 0 {
		return "", false
	}
	line := string(bytes.TrimRight(b.buf[:i], "\r"))
	b.buf = append(b.buf[:0], b.buf[i+1:]...)
	return line, true
}

// Dropped returns the number of bytes discarded as oversized lines.
func (b *LineBuffer) Dropped() int { return b.dropped }

// Len returns the number of buffered bytes.
func (b *LineBuffer) Len() int { return len(b.buf) }
