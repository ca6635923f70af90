package kiku

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kiku-ai/kiku-go/stream"
)

// AskRequest is a natural-language question for the query service.
type AskRequest struct {
	// Question is the user's question, verbatim. Required.
	Question string `json:"question"`

	// SourceID names the data source to query. Empty uses the account's
	// default source.
	SourceID string `json:"source_id,omitempty"`

	// Context carries optional conversation context, e.g. the previous
	// question's trace id for follow-ups.
	Context map[string]any `json:"context,omitempty"`
}

// Ask submits a question and returns a Handle for the answer stream. The
// returned Handle is live: chunks are already being consumed when Ask
// returns. Connection failures and 5xx responses are retried before Ask
// gives up; once the stream is open it is never silently reconnected.
//
// ctx governs the whole stream, bounded further by Config.StreamTimeout.
func (c *Client) Ask(ctx context.Context, req AskRequest) (*Handle, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("kiku: question is required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("kiku: marshal ask request: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, c.streamTimeout)
	sctx, span := c.tracer.Start(sctx, "kiku.Ask",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("kiku.source_id", req.SourceID)))

	rc, traceID, err := c.openStream(sctx, "/v1/query/stream", body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream connect failed")
		span.End()
		cancel()
		return nil, err
	}
	span.SetAttributes(attribute.String("kiku.trace_id", traceID))

	h := &Handle{
		traceID: traceID,
		updates: make(chan stream.State, 16),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	go h.run(sctx, c, rc, span, time.Now())
	return h, nil
}

// Handle is a live answer stream. One goroutine owns the connection and
// feeds snapshots to Updates; the accessor methods are safe to call from any
// goroutine.
type Handle struct {
	traceID string
	updates chan stream.State
	done    chan struct{}

	cancel     context.CancelFunc
	cancelOnce sync.Once

	mu    sync.Mutex
	state stream.State
	err   error
}

// TraceID returns the correlation id of the connection attempt that
// succeeded.
func (h *Handle) TraceID() string { return h.traceID }

// Updates returns the snapshot channel. One snapshot is sent per accepted
// chunk, in order; the channel is closed when the stream reaches a terminal
// state. A caller that stops receiving does not stall the stream forever:
// sends are abandoned once the stream's context ends.
func (h *Handle) Updates() <-chan stream.State { return h.updates }

// State returns the most recent snapshot.
func (h *Handle) State() stream.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err returns the terminal failure, if any. It is nil while streaming, nil
// after a clean terminal (completed, in-band error, or caller cancellation),
// and non-nil for protocol violations and transport loss.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Wait blocks until the stream reaches a terminal state and returns the
// final snapshot, or returns early with ctx's error.
func (h *Handle) Wait(ctx context.Context) (stream.State, error) {
	select {
	case <-h.done:
		return h.State(), h.Err()
	case <-ctx.Done():
		return h.State(), ctx.Err()
	}
}

// Cancel stops the stream. Idempotent; safe to call after the stream has
// already finished. The final status becomes StatusCanceled and Err reports
// nil: cancellation is a caller decision, not a failure.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(h.cancel)
}

func (h *Handle) run(ctx context.Context, c *Client, body io.ReadCloser, span trace.Span, start time.Time) {
	defer close(h.done)
	defer close(h.updates)
	defer span.End()
	defer h.cancel()
	defer body.Close()

	consumer := stream.NewConsumer()
	var lastChunks, lastRows int
	final, err := consumer.Run(ctx, body, func(s stream.State) {
		h.mu.Lock()
		h.state = s
		h.mu.Unlock()

		if c.chunksReceived != nil {
			c.chunksReceived.Add(ctx, int64(s.Chunks-lastChunks))
		}
		if c.rowsReceived != nil {
			c.rowsReceived.Add(ctx, int64(len(s.Rows)-lastRows))
		}
		lastChunks, lastRows = s.Chunks, len(s.Rows)

		select {
		case h.updates <- s:
		case <-ctx.Done():
		}
	})

	final, err = classifyStreamEnd(final, err)

	span.SetAttributes(
		attribute.String("kiku.status", string(final.Status)),
		attribute.Int("kiku.chunks", final.Chunks),
		attribute.Int("kiku.rows", len(final.Rows)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(final.Status))
	}
	if c.streamDuration != nil {
		c.streamDuration.Record(ctx, time.Since(start).Seconds(),
			metricAttrs(final.Status))
	}
	if err != nil {
		c.logger.Warn("kiku: stream failed",
			"trace_id", h.traceID, "status", final.Status, "error", err)
	}

	h.mu.Lock()
	h.state = final
	h.err = err
	h.mu.Unlock()
}

func metricAttrs(status stream.Status) metric.RecordOption {
	return metric.WithAttributes(attribute.String("kiku.status", string(status)))
}

// classifyStreamEnd maps consumer outcomes onto the public failure taxonomy.
// Caller cancellation is a clean outcome; a deadline or a connection that
// died mid-stream is ErrStreamAborted; protocol violations pass through.
func classifyStreamEnd(final stream.State, err error) (stream.State, error) {
	switch {
	case err == nil:
		return final, nil
	case errors.Is(err, context.Canceled):
		final.Status = stream.StatusCanceled
		return final, nil
	case errors.Is(err, context.DeadlineExceeded):
		if !final.Status.Terminal() || final.Status == stream.StatusCanceled {
			final.Status = stream.StatusFailed
		}
		return final, fmt.Errorf("%w: deadline exceeded", ErrStreamAborted)
	}

	var pe *stream.ProtocolError
	if errors.As(err, &pe) {
		return final, err
	}
	// The connection dropped after the stream had begun.
	return final, fmt.Errorf("%w: %v", ErrStreamAborted, err)
}
