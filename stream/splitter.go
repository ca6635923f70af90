package stream

import (
	"bytes"
	"strings"
)

// LineSplitter turns a sequence of raw byte buffers into complete text lines.
// Bytes are buffered across Push calls, so a line (or a multi-byte UTF-8
// character) split across transport reads is reassembled before it is ever
// decoded: the cut point is always a '\n' byte, and UTF-8 continuation bytes
// are >= 0x80, so buffering at the byte level can never corrupt a rune.
//
// Lines that are empty after whitespace trimming are dropped — blank lines
// are legal NDJSON keep-alives, not chunk candidates.
type LineSplitter struct {
	buf []byte
}

// Push appends p to the internal buffer and returns every complete line now
// available, in arrival order. Empty buffers are ignored.
func (s *LineSplitter) Push(p []byte) []string {
	if len(p) == 0 {
		return nil
	}
	s.buf = append(s.buf, p...)

	var lines []string
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(s.buf[:i]))
		s.buf = s.buf[i+1:]
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Flush yields the trailing unterminated line, if any. The final line of an
// NDJSON body is permitted to omit its newline, so callers must Flush at
// end-of-stream.
func (s *LineSplitter) Flush() (string, bool) {
	line := strings.TrimSpace(string(s.buf))
	s.buf = nil
	if line == "" {
		return "", false
	}
	return line, true
}
