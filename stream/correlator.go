package stream

// Correlator verifies that every chunk of one stream instance carries the
// same trace id. The first observed chunk fixes the stream's identity; any
// later chunk with a different id is cross-stream contamination and aborts
// the stream.
//
// The check is independent of ordering: the Consumer composes Correlator
// with Sequencer and both must accept a chunk.
type Correlator struct {
	traceID string
}

// Observe records or verifies the chunk's trace id.
func (c *Correlator) Observe(traceID string) error {
	if c.traceID == "" {
		c.traceID = traceID
		return nil
	}
	if traceID != c.traceID {
		return &ProtocolError{
			Code:    CodeCorrelationMismatch,
			Message: "chunk trace id " + traceID + " does not match stream trace id " + c.traceID,
			TraceID: c.traceID,
		}
	}
	return nil
}

// TraceID returns the stream's identity, or "" before the first chunk.
func (c *Correlator) TraceID() string { return c.traceID }
