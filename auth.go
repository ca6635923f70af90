package kiku

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// tokenManager exchanges the API key for a short-lived session token and
// refreshes it before expiry. Safe for concurrent use; concurrent callers
// with an expired token share one refresh request.
type tokenManager struct {
	baseURL string
	apiKey  string
	client  *http.Client
	margin  time.Duration

	group singleflight.Group

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenManager(baseURL, apiKey string, client *http.Client) *tokenManager {
	return &tokenManager{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  client,
		margin:  30 * time.Second,
	}
}

func (tm *tokenManager) getToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	if tm.token != "" && time.Now().Before(tm.expiresAt.Add(-tm.margin)) {
		token := tm.token
		tm.mu.Unlock()
		return token, nil
	}
	tm.mu.Unlock()

	v, err, _ := tm.group.Do("refresh", func() (any, error) {
		return tm.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// invalidate drops the cached token so the next call refreshes. Called when
// the server rejects a token early, e.g. after a key rotation.
func (tm *tokenManager) invalidate() {
	tm.mu.Lock()
	tm.token = ""
	tm.expiresAt = time.Time{}
	tm.mu.Unlock()
}

type authRequest struct {
	APIKey string `json:"api_key"`
}

type authResponseEnvelope struct {
	Data struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	} `json:"data"`
}

func (tm *tokenManager) refresh(ctx context.Context) (string, error) {
	body, err := json.Marshal(authRequest{APIKey: tm.apiKey})
	if err != nil {
		return "", fmt.Errorf("kiku: marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.baseURL+"/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("kiku: create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := tm.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("kiku: auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &Error{
			StatusCode: resp.StatusCode,
			Code:       "auth_failed",
			Message:    fmt.Sprintf("token exchange failed with status %d", resp.StatusCode),
		}
	}

	var envelope authResponseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("kiku: decode auth response: %w", err)
	}
	if envelope.Data.Token == "" {
		return "", fmt.Errorf("kiku: auth response contained no token")
	}

	expiresAt := envelope.Data.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = tokenExpiry(envelope.Data.Token)
	}

	tm.mu.Lock()
	tm.token = envelope.Data.Token
	tm.expiresAt = expiresAt
	tm.mu.Unlock()

	return envelope.Data.Token, nil
}

// tokenExpiry extracts the exp claim from a JWT without verifying the
// signature; the server already vouched for the token it just issued. Returns
// a short fallback lifetime when the token is opaque or carries no exp.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(5 * time.Minute)
}
