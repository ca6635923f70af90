package stream

// Status is the terminal disposition of a stream's accumulated state.
type Status string

const (
	// StatusStreaming means no terminal chunk has been observed yet.
	StatusStreaming Status = "streaming"
	// StatusCompleted means the stream closed with an end chunk.
	StatusCompleted Status = "completed"
	// StatusErrored means the backend reported an in-band error chunk.
	StatusErrored Status = "errored"
	// StatusCanceled means the caller canceled before a terminal chunk.
	StatusCanceled Status = "canceled"
	// StatusFailed means a protocol or transport failure aborted the stream.
	// The accumulated state up to the failure is preserved.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further snapshots will follow.
func (s Status) Terminal() bool { return s != StatusStreaming && s != "" }

// State is the accumulated, consumer-visible result of a stream. It is built
// exclusively by Apply, one chunk at a time, and frozen at the terminal
// chunk. A new query gets a fresh State; states are never merged.
type State struct {
	// TraceID is the stream's identity, taken from its first chunk.
	TraceID string

	// Columns is captured from the first data_chunk that carries one and
	// kept unless a later chunk explicitly provides a replacement.
	Columns []string

	// Rows accumulates every data_chunk batch in arrival order.
	Rows [][]any

	Technical *TechnicalView
	Business  *BusinessView

	// Thinking is a transient UI flag: true between a thinking chunk and
	// the next chunk of any kind.
	Thinking bool

	Status Status

	// Err is the backend-reported failure when Status is StatusErrored.
	Err *QueryError

	// End is the timing metadata from the end chunk, when present.
	End *EndInfo

	// Chunks counts accepted chunks. Diagnostic only.
	Chunks int
}

// Apply folds one validated chunk into prev and returns the next state. It
// is a pure function: prev is never mutated, and the returned state does not
// alias prev's row storage, so each snapshot handed to a consumer stays
// stable as later chunks arrive.
//
// Apply assumes the chunk already passed the Sequencer and Correlator; it
// still refuses to overwrite set-once fields rather than silently corrupt
// state if fed an unvalidated sequence.
func Apply(prev State, c Chunk) State {
	next := prev
	next.Chunks++
	next.Thinking = c.Kind == KindThinking
	if next.TraceID == "" {
		next.TraceID = c.TraceID
	}
	if next.Status == "" {
		next.Status = StatusStreaming
	}

	switch c.Kind {
	case KindThinking:
		// No persisted state beyond the transient flag.

	case KindTechnicalView:
		if next.Technical == nil {
			next.Technical = c.Technical
		}

	case KindDataChunk:
		if next.Columns == nil && len(c.Data.Columns) > 0 {
			next.Columns = c.Data.Columns
		}
		rows := make([][]any, len(prev.Rows), len(prev.Rows)+len(c.Data.Rows))
		copy(rows, prev.Rows)
		next.Rows = append(rows, c.Data.Rows...)

	case KindBusinessView:
		if next.Business == nil {
			next.Business = c.Business
		}

	case KindError:
		next.Status = StatusErrored
		next.Err = c.Err

	case KindEnd:
		next.Status = StatusCompleted
		next.End = c.End
	}

	return next
}
