// Package streamtest provides a scripted Kiku origin server for tests and
// examples. Each incoming stream request consumes the next Script, so retry
// behavior can be exercised by queueing failures ahead of a success.
package streamtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Script describes one response to a stream request.
type Script struct {
	// Status is the HTTP status to respond with. Zero means 200 with the
	// NDJSON body below; any other value short-circuits with that status
	// and no stream.
	Status int

	// Lines are NDJSON lines written in order, each followed by a newline
	// and a flush.
	Lines []string

	// ChunkSize, when positive, splits the body into writes of at most this
	// many bytes, flushing after each. Exercises buffer-boundary handling,
	// including splits inside multi-byte runes.
	ChunkSize int

	// LineDelay is an optional pause between lines.
	LineDelay time.Duration

	// DropAfter, when positive, aborts the connection after that many lines
	// have been written, simulating a mid-stream transport loss.
	DropAfter int
}

// Server is a fake Kiku backend. It serves the token endpoint and plays one
// Script per stream request.
type Server struct {
	ts *httptest.Server

	mu      sync.Mutex
	scripts []Script
	calls   int
}

// New starts a Server that will play the given scripts in order. If requests
// outnumber scripts, the last script repeats.
func New(scripts ...Script) *Server {
	s := &Server{scripts: scripts}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":{"token":"test-token","expires_at":%q}}`,
			time.Now().Add(time.Hour).Format(time.RFC3339))
	})
	mux.HandleFunc("POST /v1/query/stream", s.serveStream)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"status":"ok","version":"streamtest"}}`)
	})

	s.ts = httptest.NewServer(mux)
	return s
}

// URL is the server's base URL.
func (s *Server) URL() string { return s.ts.URL }

// Close shuts the server down.
func (s *Server) Close() { s.ts.Close() }

// Calls reports how many stream requests have been received.
func (s *Server) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Server) next() Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.scripts) == 0 {
		return Script{Status: http.StatusInternalServerError}
	}
	sc := s.scripts[0]
	if len(s.scripts) > 1 {
		s.scripts = s.scripts[1:]
	}
	return sc
}

func (s *Server) serveStream(w http.ResponseWriter, r *http.Request) {
	sc := s.next()

	if sc.Status != 0 && sc.Status != http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(sc.Status)
		fmt.Fprintf(w, `{"error":{"code":"scripted","message":"scripted status %d"}}`, sc.Status)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for i, line := range sc.Lines {
		if sc.LineDelay > 0 && i > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(sc.LineDelay):
			}
		}

		writeChunked(w, flusher, []byte(line+"\n"), sc.ChunkSize)

		if sc.DropAfter > 0 && i+1 == sc.DropAfter {
			// Kill the connection without a clean close.
			panic(http.ErrAbortHandler)
		}
	}
}

func writeChunked(w http.ResponseWriter, flusher http.Flusher, b []byte, size int) {
	if size <= 0 {
		size = len(b)
	}
	for len(b) > 0 {
		n := size
		if n > len(b) {
			n = len(b)
		}
		_, _ = w.Write(b[:n])
		if flusher != nil {
			flusher.Flush()
		}
		b = b[n:]
	}
}

// Line builds one NDJSON chunk line.
func Line(kind, traceID, payload string) string {
	if payload == "" {
		return fmt.Sprintf(`{"type":%q,"trace_id":%q,"timestamp":%q}`,
			kind, traceID, time.Now().UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf(`{"type":%q,"trace_id":%q,"timestamp":%q,"payload":%s}`,
		kind, traceID, time.Now().UTC().Format(time.RFC3339), payload)
}

// HappyPath returns a complete four-phase answer stream under the given
// trace id.
func HappyPath(traceID string) []string {
	return []string{
		Line("thinking", traceID, ""),
		Line("technical_view", traceID, `{"sql":"SELECT product, SUM(revenue) AS revenue FROM sales GROUP BY product ORDER BY revenue DESC LIMIT 5"}`),
		Line("data_chunk", traceID, `{"columns":["product","revenue"],"rows":[["Widget",1200.5],["Gadget",990.0]]}`),
		Line("data_chunk", traceID, `{"rows":[["Doohickey",450.25]]}`),
		Line("business_view", traceID, `{"summary":"Widget leads revenue.","metrics":{"total_revenue":2640.75}}`),
		Line("end", traceID, `{"elapsed_ms":125,"row_count":3}`),
	}
}
