package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitterSingleBuffer(t *testing.T) {
	var s LineSplitter
	lines := s.Push([]byte("one\ntwo\nthree\n"))
	assert.Equal(t, []string{"one", "two", "three"}, lines)

	_, ok := s.Flush()
	assert.False(t, ok, "no trailing line expected")
}

func TestSplitterTrailingLineWithoutNewline(t *testing.T) {
	var s LineSplitter
	lines := s.Push([]byte("one\ntwo"))
	assert.Equal(t, []string{"one"}, lines)

	line, ok := s.Flush()
	require.True(t, ok)
	assert.Equal(t, "two", line)
}

func TestSplitterBlankAndWhitespaceLinesSkipped(t *testing.T) {
	var s LineSplitter
	lines := s.Push([]byte("one\n\n   \n\ttwo\t\n"))
	assert.Equal(t, []string{"one", "two"}, lines)
}

func TestSplitterCRLF(t *testing.T) {
	var s LineSplitter
	lines := s.Push([]byte("one\r\ntwo\r\n"))
	assert.Equal(t, []string{"one", "two"}, lines)
}

func TestSplitterEmptyBuffersIgnored(t *testing.T) {
	var s LineSplitter
	assert.Nil(t, s.Push(nil))
	assert.Nil(t, s.Push([]byte{}))
	lines := s.Push([]byte("one\n"))
	assert.Equal(t, []string{"one"}, lines)
}

// Splitting the same content at every possible byte boundary must yield the
// same lines as delivering it whole, including cuts inside a multi-byte
// UTF-8 character.
func TestSplitterArbitraryBufferBoundaries(t *testing.T) {
	content := []byte("売上は増加\n経費は減少\nπ≈3.14159")

	var whole LineSplitter
	want := whole.Push(content)
	if line, ok := whole.Flush(); ok {
		want = append(want, line)
	}
	require.Equal(t, []string{"売上は増加", "経費は減少", "π≈3.14159"}, want)

	for cut := 1; cut < len(content); cut++ {
		var s LineSplitter
		var got []string
		got = append(got, s.Push(content[:cut])...)
		got = append(got, s.Push(content[cut:])...)
		if line, ok := s.Flush(); ok {
			got = append(got, line)
		}
		assert.Equalf(t, want, got, "cut at byte %d", cut)
	}
}

func TestSplitterByteAtATime(t *testing.T) {
	content := []byte("{\"a\":\"日本語\"}\n{\"b\":2}\n")

	var s LineSplitter
	var got []string
	for i := range content {
		got = append(got, s.Push(content[i:i+1])...)
	}
	if line, ok := s.Flush(); ok {
		got = append(got, line)
	}
	assert.Equal(t, []string{"{\"a\":\"日本語\"}", "{\"b\":2}"}, got)
}
