// Package kiku provides the Go client for the Kiku natural-language
// analytics API.
//
// Kiku answers questions about connected data sources by generating SQL and
// streaming the answer back in phases over NDJSON: a thinking heartbeat, the
// generated SQL (technical view), result rows in batches, a plain-language
// interpretation (business view), and a terminal end or error chunk. The
// streaming consumer lives in the stream subpackage; this package wires it
// to the HTTP transport and adds the conventional REST surfaces (sessions,
// users, the API catalog, feature flags, audit log, feedback).
//
//	client, err := kiku.NewClient(kiku.ConfigFromEnv())
//	if err != nil { ... }
//
//	handle, err := client.Ask(ctx, kiku.AskRequest{Question: "Top 5 products by revenue"})
//	if err != nil { ... }
//	defer handle.Cancel()
//
//	for state := range handle.Updates() {
//	    render(state) // one snapshot per chunk
//	}
//	final, err := handle.Wait(ctx)
package kiku

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultStreamTimeout  = 5 * time.Minute
	defaultMaxRetries     = 3
	defaultRetryBaseDelay = 1 * time.Second

	userAgent = "kiku-go/0.3.0"

	// traceHeader carries the client-generated correlation id. A fresh id is
	// generated per connection attempt, so a retried stream never aliases
	// the chunks of a failed one.
	traceHeader = "X-Kiku-Trace"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Kiku server (e.g. "https://api.kiku.dev").
	BaseURL string

	// APIKey is the secret used to obtain a session token.
	APIKey string

	// Locale is sent as Accept-Language so summaries come back in the
	// user's language. Optional.
	Locale string

	// HTTPClient is an optional custom HTTP client for REST requests. If
	// nil, a default client with Timeout is used. Streaming requests always
	// use a dedicated client without a whole-request timeout, since that
	// would cut off long-lived response bodies.
	HTTPClient *http.Client

	// Timeout applies to individual REST requests and to the
	// response-header wait of each stream connection attempt. Defaults to
	// 30 seconds.
	Timeout time.Duration

	// StreamTimeout bounds a whole answer stream, connect included.
	// Defaults to 5 minutes; zero or negative keeps the default, and the
	// caller's context can always impose a tighter bound.
	StreamTimeout time.Duration

	// MaxRetries is how many times a failed stream connection is retried
	// beyond the first attempt. Only network failures and 5xx statuses are
	// retried. Defaults to 3.
	MaxRetries int

	// RetryBaseDelay is the first backoff delay; each retry doubles it,
	// plus jitter. Defaults to 1 second.
	RetryBaseDelay time.Duration

	// Logger receives debug/warn events (retries, token refresh). Defaults
	// to slog.Default().
	Logger *slog.Logger
}

// ConfigFromEnv builds a Config from KIKU_* environment variables, loading a
// .env file first when one is present (non-fatal; production won't have one).
//
//	KIKU_BASE_URL, KIKU_API_KEY, KIKU_LOCALE,
//	KIKU_TIMEOUT, KIKU_STREAM_TIMEOUT,
//	KIKU_MAX_RETRIES, KIKU_RETRY_BASE_DELAY
func ConfigFromEnv() Config {
	_ = godotenv.Load()

	return Config{
		BaseURL:        envStr("KIKU_BASE_URL", "http://localhost:8080"),
		APIKey:         envStr("KIKU_API_KEY", ""),
		Locale:         envStr("KIKU_LOCALE", ""),
		Timeout:        envDuration("KIKU_TIMEOUT", defaultTimeout),
		StreamTimeout:  envDuration("KIKU_STREAM_TIMEOUT", defaultStreamTimeout),
		MaxRetries:     envInt("KIKU_MAX_RETRIES", defaultMaxRetries),
		RetryBaseDelay: envDuration("KIKU_RETRY_BASE_DELAY", defaultRetryBaseDelay),
	}
}

// Client is an HTTP client for the Kiku API. All methods are safe for
// concurrent use; independent answer streams never share mutable state.
type Client struct {
	baseURL   string
	locale    string
	rest      *http.Client
	streaming *http.Client
	tokenMgr  *tokenManager
	logger    *slog.Logger

	maxRetries    int
	baseDelay     time.Duration
	streamTimeout time.Duration

	// Test seams. newTraceID supplies the per-attempt correlation id and
	// sleep implements backoff waits.
	newTraceID func() string
	sleep      sleepFunc

	tracer         trace.Tracer
	chunksReceived metric.Int64Counter
	rowsReceived   metric.Int64Counter
	streamDuration metric.Float64Histogram
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL or APIKey is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("kiku: BaseURL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("kiku: APIKey is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rest := cfg.HTTPClient
	if rest == nil {
		rest = &http.Client{Timeout: timeout}
	}

	// The streaming client must not carry http.Client.Timeout (it covers
	// the whole body). ResponseHeaderTimeout gives each connection attempt
	// a bounded header wait instead, so a dead backend is retryable.
	streaming := &http.Client{
		Transport: &http.Transport{ResponseHeaderTimeout: timeout},
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	} else if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultRetryBaseDelay
	}
	streamTimeout := cfg.StreamTimeout
	if streamTimeout <= 0 {
		streamTimeout = defaultStreamTimeout
	}

	c := &Client{
		baseURL:       baseURL,
		locale:        cfg.Locale,
		rest:          rest,
		streaming:     streaming,
		tokenMgr:      newTokenManager(baseURL, cfg.APIKey, rest),
		logger:        logger,
		maxRetries:    maxRetries,
		baseDelay:     baseDelay,
		streamTimeout: streamTimeout,
		newTraceID:    func() string { return uuid.NewString() },
		sleep:         sleepContext,
		tracer:        otel.Tracer(instrumentationName),
	}
	c.initInstruments()
	return c, nil
}

const instrumentationName = "github.com/kiku-ai/kiku-go"

// initInstruments creates the meter instruments. Instrument creation only
// fails on malformed names, so failures are logged and the nil instrument
// guarded at the call sites.
func (c *Client) initInstruments() {
	meter := otel.Meter(instrumentationName)

	var err error
	if c.chunksReceived, err = meter.Int64Counter("kiku.stream.chunks",
		metric.WithDescription("Chunks accepted across all answer streams")); err != nil {
		c.logger.Warn("kiku: create chunk counter", "error", err)
	}
	if c.rowsReceived, err = meter.Int64Counter("kiku.stream.rows",
		metric.WithDescription("Result rows accumulated across all answer streams")); err != nil {
		c.logger.Warn("kiku: create row counter", "error", err)
	}
	if c.streamDuration, err = meter.Float64Histogram("kiku.stream.duration",
		metric.WithDescription("Answer stream duration, connect to terminal"),
		metric.WithUnit("s")); err != nil {
		c.logger.Warn("kiku: create duration histogram", "error", err)
	}
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
