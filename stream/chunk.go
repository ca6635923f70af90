// Package stream implements the consumer side of the Kiku NDJSON answer
// protocol.
//
// A Kiku answer is a single HTTP response body framed as newline-delimited
// JSON. Each line is one chunk, tagged with a kind, and the kinds follow a
// canonical phase order:
//
//	thinking → technical_view → data_chunk* → business_view → end|error
//
// Only data_chunk may repeat; end and error are terminal and may arrive from
// any phase. Every chunk of one answer carries the same trace id. The package
// splits those concerns into small pieces — LineSplitter, DecodeLine,
// Sequencer, Correlator, Apply — composed by Consumer, so each contract is
// testable on its own.
package stream

import (
	"encoding/json"
	"strconv"
	"time"
)

// Kind identifies the phase a chunk belongs to. The set is closed: decoding
// rejects anything else.
type Kind string

const (
	KindThinking      Kind = "thinking"
	KindTechnicalView Kind = "technical_view"
	KindDataChunk     Kind = "data_chunk"
	KindBusinessView  Kind = "business_view"
	KindEnd           Kind = "end"
	KindError         Kind = "error"
)

// Valid reports whether k is a member of the recognized chunk-kind set.
func (k Kind) Valid() bool {
	switch k {
	case KindThinking, KindTechnicalView, KindDataChunk, KindBusinessView, KindEnd, KindError:
		return true
	}
	return false
}

// Terminal reports whether k ends the stream. No chunk may follow a terminal
// chunk.
func (k Kind) Terminal() bool {
	return k == KindEnd || k == KindError
}

// position is the kind's slot in the canonical phase order. Terminal kinds
// sit past every phase so they are reachable from anywhere.
func (k Kind) position() int {
	switch k {
	case KindThinking:
		return 1
	case KindTechnicalView:
		return 2
	case KindDataChunk:
		return 3
	case KindBusinessView:
		return 4
	case KindEnd, KindError:
		return 5
	}
	return 0
}

// startKind reports whether a stream may open with k. Backends skip the
// thinking phase when the planner answers from cache, and open with error
// when the question is rejected before planning.
func (k Kind) startKind() bool {
	return k == KindThinking || k == KindTechnicalView || k.Terminal()
}

// TechnicalView is the generated-SQL phase payload.
type TechnicalView struct {
	SQL         string   `json:"sql"`
	Assumptions []string `json:"assumptions,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// DataPayload is one batch of result rows. Columns is typically present only
// on the first batch.
type DataPayload struct {
	Columns []string `json:"columns,omitempty"`
	Rows    [][]any  `json:"rows"`
}

// ChartSpec describes the chart the backend suggests for the result set.
type ChartSpec struct {
	Type   string   `json:"type"`
	Title  string   `json:"title,omitempty"`
	XAxis  string   `json:"x_axis,omitempty"`
	Series []string `json:"series,omitempty"`
}

// BusinessView is the plain-language interpretation phase payload: a summary
// of what the data says plus an optional chart suggestion and headline
// metrics.
type BusinessView struct {
	Summary string             `json:"summary"`
	Chart   *ChartSpec         `json:"chart,omitempty"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// QueryError is a backend-reported failure carried in-band on an error chunk.
// It is a normal terminal outcome, not a protocol violation.
type QueryError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EndInfo is the optional timing metadata carried on the end chunk.
type EndInfo struct {
	ElapsedMS int64 `json:"elapsed_ms,omitempty"`
	RowCount  int   `json:"row_count,omitempty"`
}

// Chunk is one parsed, normalized unit of the stream. Exactly one of the
// payload pointers matching Kind is set; the rest are nil.
type Chunk struct {
	Kind      Kind
	TraceID   string
	Timestamp time.Time

	// Sequence is an optional backend hint. Ordering is enforced by the
	// Sequencer, never by this value.
	Sequence *int

	Technical *TechnicalView
	Data      *DataPayload
	Business  *BusinessView
	Err       *QueryError
	End       *EndInfo
}

// wireChunk is the raw NDJSON line shape.
type wireChunk struct {
	Type      string          `json:"type"`
	TraceID   string          `json:"trace_id"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  *int            `json:"seq,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// payloadRequired reports whether the kind must carry a payload object.
// thinking and end are heartbeat-shaped; their payload may be absent or {}.
func payloadRequired(k Kind) bool {
	switch k {
	case KindTechnicalView, KindDataChunk, KindBusinessView, KindError:
		return true
	}
	return false
}

// DecodeLine parses one NDJSON line into a Chunk. Decoding is strict: a line
// that is not valid JSON, names an unrecognized kind, omits the trace id, or
// lacks a required payload is rejected. Pushing all shape validation here
// lets the downstream checks assume well-formed chunks.
func DecodeLine(line string) (Chunk, error) {
	var w wireChunk
	if err := json.Unmarshal([]byte(line), &w); err != nil {
		return Chunk{}, malformed(line, "", "not valid JSON: "+err.Error())
	}

	kind := Kind(w.Type)
	if w.Type == "" {
		return Chunk{}, malformed(line, w.TraceID, "missing type field")
	}
	if !kind.Valid() {
		return Chunk{}, &ProtocolError{
			Code:    CodeUnknownChunkKind,
			Message: "unrecognized chunk kind " + strconv.Quote(w.Type),
			TraceID: w.TraceID,
			Line:    line,
		}
	}
	if w.TraceID == "" {
		return Chunk{}, malformed(line, "", "missing trace_id field")
	}

	hasPayload := len(w.Payload) > 0 && string(w.Payload) != "null"
	if payloadRequired(kind) && !hasPayload {
		return Chunk{}, &ProtocolError{
			Code:    CodeMissingPayload,
			Message: "chunk kind " + string(kind) + " requires a payload object",
			TraceID: w.TraceID,
			Line:    line,
		}
	}

	c := Chunk{
		Kind:      kind,
		TraceID:   w.TraceID,
		Timestamp: w.Timestamp,
		Sequence:  w.Sequence,
	}

	if !hasPayload {
		return c, nil
	}

	var err error
	switch kind {
	case KindTechnicalView:
		c.Technical = &TechnicalView{}
		err = json.Unmarshal(w.Payload, c.Technical)
	case KindDataChunk:
		c.Data = &DataPayload{}
		err = json.Unmarshal(w.Payload, c.Data)
	case KindBusinessView:
		c.Business = &BusinessView{}
		err = json.Unmarshal(w.Payload, c.Business)
	case KindError:
		c.Err = &QueryError{}
		err = json.Unmarshal(w.Payload, c.Err)
	case KindEnd:
		c.End = &EndInfo{}
		err = json.Unmarshal(w.Payload, c.End)
	case KindThinking:
		// No payload contract beyond presence.
	}
	if err != nil {
		return Chunk{}, malformed(line, w.TraceID, string(kind)+" payload: "+err.Error())
	}

	return c, nil
}

func malformed(line, traceID, msg string) *ProtocolError {
	return &ProtocolError{
		Code:    CodeMalformedChunk,
		Message: msg,
		TraceID: traceID,
		Line:    line,
	}
}
