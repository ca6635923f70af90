package stream

// Sequencer enforces the canonical chunk-kind ordering and the
// single-terminal invariant for one stream instance. It holds no payload
// state; it only tracks where in the phase order the stream currently is.
//
// Transition rules, given the previous kind (or the implicit not-started
// state):
//
//   - a terminal kind (end, error) is legal from any non-terminated state
//     and absorbs: nothing is legal after it;
//   - data_chunk repeats: it is legal whenever the stream has not moved past
//     the data phase;
//   - every other kind must advance strictly through the canonical order, so
//     a duplicate of a non-repeatable kind is an ordering violation, not a
//     tolerated overwrite;
//   - the opening chunk must be a start kind (thinking or technical_view) or
//     a terminal.
//
// A Sequencer is not safe for concurrent use; the protocol itself requires
// one-at-a-time, in-order chunk processing.
type Sequencer struct {
	started    bool
	terminated bool
	last       Kind
}

// Observe validates the transition into kind and advances the machine.
// On error the machine is left unchanged; the stream should be abandoned
// anyway, since every ordering violation is terminal.
func (s *Sequencer) Observe(kind Kind) error {
	if s.terminated {
		return &ProtocolError{
			Code:    CodeChunkAfterTerminal,
			Message: "chunk kind " + string(kind) + " received after terminal chunk " + string(s.last),
		}
	}

	if !s.started {
		if !kind.startKind() {
			return &ProtocolError{
				Code:    CodeOutOfOrderChunk,
				Message: "stream opened with " + string(kind) + "; expected thinking or technical_view",
			}
		}
		s.started = true
		s.last = kind
		s.terminated = kind.Terminal()
		return nil
	}

	switch {
	case kind.Terminal():
		// Always reachable.
	case kind == KindDataChunk:
		if s.last.position() > kind.position() {
			return s.outOfOrder(kind)
		}
	default:
		if kind.position() <= s.last.position() {
			return s.outOfOrder(kind)
		}
	}

	s.last = kind
	s.terminated = kind.Terminal()
	return nil
}

// Finish must be called when the transport reports end-of-stream. It fails
// when no terminal chunk was ever observed, including the empty stream.
func (s *Sequencer) Finish() error {
	if s.terminated {
		return nil
	}
	msg := "stream ended without a terminal chunk"
	if s.started {
		msg += " (last chunk: " + string(s.last) + ")"
	}
	return &ProtocolError{Code: CodeMissingTerminal, Message: msg}
}

// Terminated reports whether a terminal chunk has been accepted.
func (s *Sequencer) Terminated() bool { return s.terminated }

func (s *Sequencer) outOfOrder(kind Kind) *ProtocolError {
	return &ProtocolError{
		Code:    CodeOutOfOrderChunk,
		Message: "chunk kind " + string(kind) + " may not follow " + string(s.last),
	}
}
