package stream

import (
	"context"
	"fmt"
	"io"
)

// Consumer composes the full pipeline for one stream instance:
// LineSplitter → DecodeLine → Sequencer + Correlator → Apply.
//
// Chunks are processed strictly one at a time in arrival order; the only
// suspension point is the underlying read. A Consumer is single-use and must
// not be shared between streams — each logical request owns its own
// Consumer, so concurrent streams never share sequencer or reducer state.
type Consumer struct {
	splitter LineSplitter
	seq      Sequencer
	corr     Correlator
	state    State
}

// NewConsumer returns an empty consumer ready for the first byte buffer.
func NewConsumer() *Consumer {
	return &Consumer{state: State{Status: StatusStreaming}}
}

// State returns the latest accumulated state.
func (c *Consumer) State() State { return c.state }

// TraceID returns the stream identity once the first chunk has been
// accepted, or "" before that.
func (c *Consumer) TraceID() string { return c.corr.TraceID() }

// Feed processes one raw byte buffer and returns a snapshot per accepted
// chunk, in order. On a protocol violation the accumulated state is marked
// failed and preserved, and the violation is returned; the stream must not
// be fed again.
func (c *Consumer) Feed(p []byte) ([]State, error) {
	var snapshots []State
	for _, line := range c.splitter.Push(p) {
		if err := c.accept(line); err != nil {
			return snapshots, err
		}
		snapshots = append(snapshots, c.state)
	}
	return snapshots, nil
}

// Close signals end-of-stream. Any trailing unterminated line is processed
// as the final line, then the terminal invariant is checked. The returned
// state is the frozen final state.
func (c *Consumer) Close() (State, error) {
	if line, ok := c.splitter.Flush(); ok {
		if err := c.accept(line); err != nil {
			return c.state, err
		}
	}
	if err := c.seq.Finish(); err != nil {
		c.fail()
		return c.state, err
	}
	return c.state, nil
}

// Run consumes r to completion, invoking onState for every accepted chunk
// (including the trailing unterminated line, if any). It returns the final
// state and, for any outcome other than completed/errored, the failure.
//
// Cancellation via ctx stops processing before the next chunk; the returned
// state keeps everything accumulated so far with StatusCanceled. onState may
// be nil.
func (c *Consumer) Run(ctx context.Context, r io.Reader, onState func(State)) (State, error) {
	emit := func(states []State) {
		if onState == nil {
			return
		}
		for _, s := range states {
			onState(s)
		}
	}

	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			c.state.Status = StatusCanceled
			return c.state, err
		}

		n, err := r.Read(buf)
		if n > 0 {
			snapshots, perr := c.Feed(buf[:n])
			emit(snapshots)
			if perr != nil {
				return c.state, perr
			}
		}
		switch {
		case err == io.EOF:
			before := c.state.Chunks
			final, cerr := c.Close()
			if final.Chunks > before && onState != nil {
				// Close folded in a trailing unterminated line.
				onState(final)
			}
			return final, cerr
		case err != nil:
			if ctx.Err() != nil {
				c.state.Status = StatusCanceled
				return c.state, ctx.Err()
			}
			c.fail()
			return c.state, fmt.Errorf("stream: read: %w", err)
		}
	}
}

func (c *Consumer) accept(line string) error {
	chunk, err := DecodeLine(line)
	if err != nil {
		c.fail()
		return c.attachTrace(err)
	}
	if err := c.seq.Observe(chunk.Kind); err != nil {
		c.fail()
		return c.attachTrace(err)
	}
	if err := c.corr.Observe(chunk.TraceID); err != nil {
		c.fail()
		return err
	}
	c.state = Apply(c.state, chunk)
	return nil
}

// fail freezes the accumulated state as failed unless a terminal status was
// already reached. Partial results stay visible to the caller.
func (c *Consumer) fail() {
	if !c.state.Status.Terminal() {
		c.state.Status = StatusFailed
	}
}

// attachTrace fills in the stream identity on a ProtocolError that was
// raised before the offending chunk's trace id was known.
func (c *Consumer) attachTrace(err error) error {
	if pe, ok := err.(*ProtocolError); ok && pe.TraceID == "" {
		pe.TraceID = c.corr.TraceID()
	}
	return err
}
