package kiku

import (
	"time"

	"github.com/google/uuid"
)

// User is an account on the Kiku workspace.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"` // "admin", "analyst", or "viewer"
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateUserRequest is the input for creating a user.
type CreateUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// UpdateUserRequest carries partial updates for a user. Nil fields are left
// unchanged.
type UpdateUserRequest struct {
	Name     *string `json:"name,omitempty"`
	Role     *string `json:"role,omitempty"`
	Disabled *bool   `json:"disabled,omitempty"`
}

// CatalogEntry is a queryable data source registered in the workspace
// catalog. Questions are answered against one entry's schema.
type CatalogEntry struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Kind        string    `json:"kind"` // e.g. "postgres", "bigquery"
	Description string    `json:"description,omitempty"`
	Tables      []string  `json:"tables,omitempty"`
	Status      string    `json:"status"` // "ready", "syncing", or "error"
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateCatalogEntryRequest is the input for registering a data source.
type CreateCatalogEntryRequest struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`

	// DSN is the connection string. Write-only; never echoed back.
	DSN string `json:"dsn"`
}

// UpdateCatalogEntryRequest carries partial updates for a catalog entry.
type UpdateCatalogEntryRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	DSN         *string `json:"dsn,omitempty"`
}

// FeatureFlag is a server-side toggle for gated behavior.
type FeatureFlag struct {
	Key         string    `json:"key"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AuditEntry is one record in the workspace audit log.
type AuditEntry struct {
	ID        uuid.UUID `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"` // e.g. "user.create", "query.run"
	Target    string    `json:"target,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditOptions are optional filters for ListAudit.
type AuditOptions struct {
	Actor  string
	Action string
	Limit  int
	Offset int
}

// AuditPage is one page of audit entries.
type AuditPage struct {
	Entries []AuditEntry `json:"entries"`
	Total   int          `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// FeedbackRequest rates an answered question. TraceID identifies the answer
// stream the feedback is about.
type FeedbackRequest struct {
	TraceID string `json:"trace_id"`
	Rating  int    `json:"rating"` // 1 (wrong) to 5 (exactly right)
	Comment string `json:"comment,omitempty"`
}

// Feedback is a stored feedback record.
type Feedback struct {
	ID        uuid.UUID `json:"id"`
	TraceID   string    `json:"trace_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AdminStats is the workspace dashboard summary.
type AdminStats struct {
	Users           int       `json:"users"`
	CatalogEntries  int       `json:"catalog_entries"`
	QuestionsToday  int       `json:"questions_today"`
	ActiveStreams   int       `json:"active_streams"`
	AvgStreamMillis int64     `json:"avg_stream_ms"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// HealthResponse is the server's health report.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
