package kiku

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"
)

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// openStream POSTs body to path and returns the NDJSON response body along
// with the trace id the connection was opened under.
//
// Connection failures and 5xx responses are retried with exponential backoff
// and jitter; every attempt gets a fresh trace id, so chunks from an attempt
// the client gave up on can never be attributed to the one that succeeded.
// 4xx responses are surfaced immediately. Once a 2xx response is returned the
// retry budget is spent: a body that dies mid-stream is not reconnected.
func (c *Client) openStream(ctx context.Context, path string, body []byte) (io.ReadCloser, string, error) {
	token, err := c.tokenMgr.getToken(ctx)
	if err != nil {
		return nil, "", err
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay<<(attempt-1) + time.Duration(rand.Int64N(int64(c.baseDelay)))
			c.logger.Debug("kiku: retrying stream connect",
				"attempt", attempt+1, "delay", delay, "error", lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, "", err
			}
		}
		attempts++

		traceID := c.newTraceID()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, "", fmt.Errorf("kiku: create stream request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/x-ndjson")
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set(traceHeader, traceID)
		req.Header.Set("Authorization", "Bearer "+token)
		if c.locale != "" {
			req.Header.Set("Accept-Language", c.locale)
		}

		resp, err := c.streaming.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp.Body, traceID, nil
		}

		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		se := &StatusError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(b)), TraceID: traceID}
		if !se.Retryable() {
			if resp.StatusCode == http.StatusUnauthorized {
				c.tokenMgr.invalidate()
			}
			return nil, "", se
		}
		lastErr = se
	}

	if se, ok := lastErr.(*StatusError); ok {
		return nil, "", se
	}
	return nil, "", &TransportError{Attempts: attempts, Err: lastErr}
}
