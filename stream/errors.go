package stream

import (
	"errors"
	"fmt"
)

// Protocol violation codes. Every violation is terminal for the stream
// instance it occurred on and never affects any other stream.
const (
	CodeMalformedChunk      = "malformed_chunk"
	CodeUnknownChunkKind    = "unknown_chunk_kind"
	CodeMissingPayload      = "missing_payload"
	CodeOutOfOrderChunk     = "out_of_order_chunk"
	CodeChunkAfterTerminal  = "chunk_after_terminal"
	CodeMissingTerminal     = "missing_terminal"
	CodeCorrelationMismatch = "correlation_mismatch"
)

// ProtocolError reports a violation of the chunk stream contract. TraceID is
// populated when the stream's identity was known at the point of failure so
// callers can surface it for support correlation; Line carries the offending
// raw line for decode failures.
type ProtocolError struct {
	Code    string
	Message string
	TraceID string
	Line    string
}

func (e *ProtocolError) Error() string {
	if e.TraceID != "" {
		return fmt.Sprintf("stream: %s (trace %s): %s", e.Code, e.TraceID, e.Message)
	}
	return fmt.Sprintf("stream: %s: %s", e.Code, e.Message)
}

// ErrorCode returns the protocol violation code carried by err, or "" when
// err is not a ProtocolError.
func ErrorCode(err error) string {
	var e *ProtocolError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsMalformedChunk reports whether err is an unparseable-line failure.
func IsMalformedChunk(err error) bool { return ErrorCode(err) == CodeMalformedChunk }

// IsOutOfOrderChunk reports whether err is a canonical-ordering violation.
func IsOutOfOrderChunk(err error) bool { return ErrorCode(err) == CodeOutOfOrderChunk }

// IsChunkAfterTerminal reports whether err is a chunk observed past end/error.
func IsChunkAfterTerminal(err error) bool { return ErrorCode(err) == CodeChunkAfterTerminal }

// IsMissingTerminal reports whether err is an EOF with no terminal chunk.
func IsMissingTerminal(err error) bool { return ErrorCode(err) == CodeMissingTerminal }

// IsCorrelationMismatch reports whether err is a trace-id mismatch.
func IsCorrelationMismatch(err error) bool { return ErrorCode(err) == CodeCorrelationMismatch }
