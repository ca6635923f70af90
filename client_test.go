package kiku

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// mockServer creates an httptest server that mimics the Kiku REST API.
func mockServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	// Always register auth endpoint.
	if _, ok := handlers["POST /v1/auth/token"]; !ok {
		mux.HandleFunc("POST /v1/auth/token", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{
					"token":      "test-token-xyz",
					"expires_at": time.Now().Add(1 * time.Hour).Format(time.RFC3339),
				},
			})
		})
	}

	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}

	return httptest.NewServer(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL: serverURL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{APIKey: "k"}); err == nil {
		t.Error("expected error for missing BaseURL")
	}
	if _, err := NewClient(Config{BaseURL: "http://localhost"}); err == nil {
		t.Error("expected error for missing APIKey")
	}
	c, err := NewClient(Config{BaseURL: "http://localhost:8080/", APIKey: "k"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("expected trailing slash trimmed, got %q", c.baseURL)
	}
}

func TestCurrentUser(t *testing.T) {
	userID := uuid.New()
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/me": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer test-token-xyz" {
				writeJSON(w, http.StatusUnauthorized, map[string]any{
					"error": map[string]any{"code": "UNAUTHORIZED", "message": "bad token"},
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": User{ID: userID, Email: "ana@example.com", Role: "analyst"},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	u, err := client.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("CurrentUser failed: %v", err)
	}
	if u.ID != userID {
		t.Errorf("expected user ID %s, got %s", userID, u.ID)
	}
	if u.Role != "analyst" {
		t.Errorf("expected role analyst, got %q", u.Role)
	}
}

func TestCreateUser(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/users": func(w http.ResponseWriter, r *http.Request) {
			var req CreateUserRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode request: %v", err)
			}
			if req.Email != "new@example.com" {
				t.Errorf("expected email new@example.com, got %q", req.Email)
			}
			writeJSON(w, http.StatusCreated, map[string]any{
				"data": User{ID: uuid.New(), Email: req.Email, Name: req.Name, Role: req.Role},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	u, err := client.CreateUser(context.Background(), CreateUserRequest{
		Email: "new@example.com", Name: "New User", Role: "viewer",
	})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if u.Role != "viewer" {
		t.Errorf("expected role viewer, got %q", u.Role)
	}
}

func TestGetUserNotFound(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/users/{id}": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]any{"code": "NOT_FOUND", "message": "no such user"},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.GetUser(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsNotFound(err) {
		t.Errorf("expected IsNotFound, got %v", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if apiErr.Code != "NOT_FOUND" {
		t.Errorf("expected code NOT_FOUND, got %q", apiErr.Code)
	}
}

func TestDeleteUserNoContent(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"DELETE /v1/users/{id}": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	if err := client.DeleteUser(context.Background(), uuid.New()); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
}

func TestCatalogLifecycle(t *testing.T) {
	entryID := uuid.New()
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/catalog": func(w http.ResponseWriter, r *http.Request) {
			var req CreateCatalogEntryRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.DSN == "" {
				t.Error("expected DSN in create request")
			}
			writeJSON(w, http.StatusCreated, map[string]any{
				"data": CatalogEntry{ID: entryID, Name: req.Name, Kind: req.Kind, Status: "syncing"},
			})
		},
		"GET /v1/catalog": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": []CatalogEntry{{ID: entryID, Name: "sales", Kind: "postgres", Status: "ready"}},
			})
		},
		"DELETE /v1/catalog/{id}": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	created, err := client.CreateCatalogEntry(ctx, CreateCatalogEntryRequest{
		Name: "sales", Kind: "postgres", DSN: "postgres://localhost/sales",
	})
	if err != nil {
		t.Fatalf("CreateCatalogEntry failed: %v", err)
	}
	if created.Status != "syncing" {
		t.Errorf("expected status syncing, got %q", created.Status)
	}

	entries, err := client.ListCatalog(ctx)
	if err != nil {
		t.Fatalf("ListCatalog failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "sales" {
		t.Errorf("unexpected catalog listing: %+v", entries)
	}

	if err := client.DeleteCatalogEntry(ctx, entryID); err != nil {
		t.Fatalf("DeleteCatalogEntry failed: %v", err)
	}
}

func TestSetFeatureFlag(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"PATCH /v1/flags/{key}": func(w http.ResponseWriter, r *http.Request) {
			if r.PathValue("key") != "sql-explain" {
				t.Errorf("unexpected flag key %q", r.PathValue("key"))
			}
			var body map[string]bool
			_ = json.NewDecoder(r.Body).Decode(&body)
			writeJSON(w, http.StatusOK, map[string]any{
				"data": FeatureFlag{Key: "sql-explain", Enabled: body["enabled"]},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	flag, err := client.SetFeatureFlag(context.Background(), "sql-explain", true)
	if err != nil {
		t.Fatalf("SetFeatureFlag failed: %v", err)
	}
	if !flag.Enabled {
		t.Error("expected flag enabled")
	}

	if _, err := client.SetFeatureFlag(context.Background(), "", true); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestListAuditPagination(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/audit": func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("actor") != "ana@example.com" {
				t.Errorf("expected actor filter, got %q", q.Get("actor"))
			}
			if q.Get("limit") != "10" || q.Get("offset") != "20" {
				t.Errorf("unexpected pagination params: %v", q)
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": AuditPage{
					Entries: []AuditEntry{{ID: uuid.New(), Actor: "ana@example.com", Action: "query.run"}},
					Total:   31, Limit: 10, Offset: 20,
				},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	page, err := client.ListAudit(context.Background(), &AuditOptions{
		Actor: "ana@example.com", Limit: 10, Offset: 20,
	})
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if page.Total != 31 || len(page.Entries) != 1 {
		t.Errorf("unexpected page: %+v", page)
	}
}

func TestSubmitFeedbackValidation(t *testing.T) {
	client := newTestClient(t, "http://localhost:0")

	if _, err := client.SubmitFeedback(context.Background(), FeedbackRequest{Rating: 3}); err == nil {
		t.Error("expected error for missing trace id")
	}
	if _, err := client.SubmitFeedback(context.Background(), FeedbackRequest{TraceID: "t1", Rating: 9}); err == nil {
		t.Error("expected error for out-of-range rating")
	}
}

func TestHealthNoAuth(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/auth/token": func(w http.ResponseWriter, r *http.Request) {
			// Health must not need this.
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error": map[string]any{"code": "FORBIDDEN", "message": "bad key"},
			})
		},
		"GET /health": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				t.Error("health request must not carry auth")
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": HealthResponse{Status: "ok", Version: "1.4.0"},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	h, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if h.Status != "ok" {
		t.Errorf("expected status ok, got %q", h.Status)
	}
}

func TestTokenRefreshOnExpiry(t *testing.T) {
	var authCalls atomic.Int32
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/auth/token": func(w http.ResponseWriter, r *http.Request) {
			authCalls.Add(1)
			// Already inside the refresh margin, so every call refreshes.
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{
					"token":      "short-lived",
					"expires_at": time.Now().Add(1 * time.Second).Format(time.RFC3339),
				},
			})
		},
		"GET /v1/me": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"data": User{Email: "x@example.com"}})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := client.CurrentUser(ctx); err != nil {
			t.Fatalf("CurrentUser failed: %v", err)
		}
	}
	if got := authCalls.Load(); got != 2 {
		t.Errorf("expected 2 auth calls, got %d", got)
	}
}

func TestTokenExpiryFromJWTClaims(t *testing.T) {
	exp := time.Now().Add(1 * time.Hour)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "test", "exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	var authCalls atomic.Int32
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/auth/token": func(w http.ResponseWriter, r *http.Request) {
			authCalls.Add(1)
			// No expires_at; the client must read exp from the token itself.
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{"token": signed},
			})
		},
		"GET /v1/me": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"data": User{Email: "x@example.com"}})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := client.CurrentUser(ctx); err != nil {
			t.Fatalf("CurrentUser failed: %v", err)
		}
	}
	if got := authCalls.Load(); got != 1 {
		t.Errorf("expected 1 auth call, got %d", got)
	}
}

func TestLogoutInvalidatesToken(t *testing.T) {
	var authCalls atomic.Int32
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/auth/token": func(w http.ResponseWriter, r *http.Request) {
			authCalls.Add(1)
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{
					"token":      "test-token-xyz",
					"expires_at": time.Now().Add(time.Hour).Format(time.RFC3339),
				},
			})
		},
		"POST /v1/auth/logout": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
		"GET /v1/me": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"data": User{Email: "x@example.com"}})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	if _, err := client.CurrentUser(ctx); err != nil {
		t.Fatalf("CurrentUser failed: %v", err)
	}
	if err := client.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := client.CurrentUser(ctx); err != nil {
		t.Fatalf("CurrentUser after logout failed: %v", err)
	}
	if got := authCalls.Load(); got != 2 {
		t.Errorf("expected re-authentication after logout, got %d auth calls", got)
	}
}
