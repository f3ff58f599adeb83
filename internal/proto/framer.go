package proto

import (
	"bytes"
	"errors"
	"strings"
)

// ErrLineTooLong is returned by LineBuffer.Next when a line exceeded the
// configured maximum and was dropped.
var ErrLineTooLong = errors.New("input line too long")

// LineBuffer accumulates the bytes received on one connection and hands
// them back one protocol line at a time.
type LineBuffer struct {
	buf []byte
	max int

	// discarding is set while the tail of an oversized line is being skipped
	discarding bool
}

// NewLineBuffer returns a buffer that refuses lines longer than max bytes.
// A max of zero disables the limit.
func NewLineBuffer(max int) *LineBuffer {
	return &LineBuffer{max: max}
}

// Write appends received bytes to the accumulator. It never fails.
func (b *LineBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// Len reports how many bytes are waiting for a line ending.
func (b *LineBuffer) Len() int {
	return len(b.buf)
}

// Next removes the first complete line from the accumulator and returns it
// without its trailing CR/LF characters. ok is false when no complete line
// is buffered yet. A non-nil error means an oversized line was dropped;
// callers should keep calling Next afterwards.
func (b *LineBuffer) Next() (line string, ok bool, err error) {
	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			if b.tooLong(b.buf) {
				b.buf = b.buf[:0]
				if !b.discarding {
					b.discarding = true
					return "", false, ErrLineTooLong
				}
			}
			return "", false, nil
		}

		raw := bytes.Clone(b.buf[:i])
		n := copy(b.buf, b.buf[i+1:])
		b.buf = b.buf[:n]

		if b.discarding {
			b.discarding = false
			continue
		}

		if b.tooLong(raw) {
			return "", false, ErrLineTooLong
		}
		return strings.TrimRight(string(raw), "\r"), true, nil
	}
}

// tooLong applies the length limit to a line, complete or not, without
// its line feed. Trailing carriage returns do not count towards the
// content but are capped separately, so the verdict is the same whether
// or not a read boundary falls inside the line ending.
func (b *LineBuffer) tooLong(raw []byte) bool {
	if b.max <= 0 {
		return false
	}
	content := bytes.TrimRight(raw, "\r")
	return len(content) > b.max || len(raw)-len(content) > b.max
}
