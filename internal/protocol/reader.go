// Package protocol implements the controller endpoint (component F):
// line assembly over a non-blocking byte stream, a static
// command-name dispatch table, event emission, and the interruptible
// state-dump cursor, all built on top of the byte-range primitive in
// internal/bytestr and the ordered index in internal/index.
package protocol

import (
	"daemonproxy-go/internal/bytestr"
)

// LineReader assembles newline-terminated lines out of an arbitrarily
// fragmented byte stream, bounded to MaxLine bytes. A line (including
// any partial line still buffered) that would exceed MaxLine is
// dropped wholesale and the reader resyncs on the next newline,
// reporting exactly one overflow per bad line the way spec.md §4.F's
// controller input handling requires.
type LineReader struct {
	buf        []byte
	max        int
	resyncing  bool
}

// DefaultMaxLine is BUFSZ from SPEC_FULL.md's supplement.
const DefaultMaxLine = 2048

// NewLineReader creates a reader bounded to max bytes per line (0 uses
// DefaultMaxLine).
func NewLineReader(max int) *LineReader {
	if max <= 0 {
		max = DefaultMaxLine
	}
	return &LineReader{max: max}
}

// Feed appends newly-read bytes and returns every complete line they
// produced, plus whether an overflow occurred during this call.
func (lr *LineReader) Feed(data []byte) (lines []string, overflowed bool) {
	for len(data) > 0 {
		if lr.resyncing {
			i := indexByte(data, '\n')
			if i < 0 {
				return lines, overflowed
			}
			data = data[i+1:]
			lr.resyncing = false
			continue
		}

		i := indexByte(data, '\n')
		if i < 0 {
			lr.buf = append(lr.buf, data...)
			if len(lr.buf) > lr.max {
				lr.buf = lr.buf[:0]
				lr.resyncing = true
				overflowed = true
			}
			return lines, overflowed
		}

		lr.buf = append(lr.buf, data[:i]...)
		if len(lr.buf) > lr.max {
			overflowed = true
		} else {
			lines = append(lines, bytestr.TrimCR(lr.buf).String())
		}
		lr.buf = lr.buf[:0]
		data = data[i+1:]
	}
	return lines, overflowed
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}
