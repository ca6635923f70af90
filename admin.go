package kiku

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
)

// CurrentUser returns the account the client's credentials belong to.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var resp User
	if err := c.get(ctx, "/v1/me", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout revokes the current session token on the server. The client drops
// its cached token either way; subsequent calls re-authenticate.
func (c *Client) Logout(ctx context.Context) error {
	err := c.post(ctx, "/v1/auth/logout", struct{}{}, nil)
	c.tokenMgr.invalidate()
	return err
}

// ---------------------------------------------------------------------------
// Users (admin-only)
// ---------------------------------------------------------------------------

// CreateUser creates a workspace account. Requires admin role.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	var resp User
	if err := c.post(ctx, "/v1/users", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListUsers lists all workspace accounts. Requires admin role.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var resp []User
	if err := c.get(ctx, "/v1/users", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetUser retrieves one account by id.
func (c *Client) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var resp User
	if err := c.get(ctx, "/v1/users/"+id.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateUser applies a partial update to an account. Requires admin role.
func (c *Client) UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*User, error) {
	var resp User
	if err := c.patch(ctx, "/v1/users/"+id.String(), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteUser removes an account. Returns nil on success (204 No Content).
func (c *Client) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return c.doDelete(ctx, "/v1/users/"+id.String(), nil)
}

// ---------------------------------------------------------------------------
// Data source catalog
// ---------------------------------------------------------------------------

// ListCatalog lists the data sources questions can be asked against.
func (c *Client) ListCatalog(ctx context.Context) ([]CatalogEntry, error) {
	var resp []CatalogEntry
	if err := c.get(ctx, "/v1/catalog", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetCatalogEntry retrieves one catalog entry by id.
func (c *Client) GetCatalogEntry(ctx context.Context, id uuid.UUID) (*CatalogEntry, error) {
	var resp CatalogEntry
	if err := c.get(ctx, "/v1/catalog/"+id.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateCatalogEntry registers a new data source. The server begins a schema
// sync; the entry stays in status "syncing" until it finishes.
func (c *Client) CreateCatalogEntry(ctx context.Context, req CreateCatalogEntryRequest) (*CatalogEntry, error) {
	var resp CatalogEntry
	if err := c.post(ctx, "/v1/catalog", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateCatalogEntry applies a partial update to a catalog entry.
func (c *Client) UpdateCatalogEntry(ctx context.Context, id uuid.UUID, req UpdateCatalogEntryRequest) (*CatalogEntry, error) {
	var resp CatalogEntry
	if err := c.patch(ctx, "/v1/catalog/"+id.String(), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteCatalogEntry removes a data source from the catalog.
func (c *Client) DeleteCatalogEntry(ctx context.Context, id uuid.UUID) error {
	return c.doDelete(ctx, "/v1/catalog/"+id.String(), nil)
}

// ---------------------------------------------------------------------------
// Feature flags
// ---------------------------------------------------------------------------

// ListFeatureFlags lists the workspace's feature flags.
func (c *Client) ListFeatureFlags(ctx context.Context) ([]FeatureFlag, error) {
	var resp []FeatureFlag
	if err := c.get(ctx, "/v1/flags", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SetFeatureFlag toggles a flag. Requires admin role.
func (c *Client) SetFeatureFlag(ctx context.Context, key string, enabled bool) (*FeatureFlag, error) {
	if key == "" {
		return nil, fmt.Errorf("kiku: flag key is required")
	}
	body := map[string]any{"enabled": enabled}
	var resp FeatureFlag
	if err := c.patch(ctx, "/v1/flags/"+url.PathEscape(key), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// Audit log, feedback, stats, health
// ---------------------------------------------------------------------------

// ListAudit retrieves a page of the audit log, newest first.
func (c *Client) ListAudit(ctx context.Context, opts *AuditOptions) (*AuditPage, error) {
	params := url.Values{}
	if opts != nil {
		if opts.Actor != "" {
			params.Set("actor", opts.Actor)
		}
		if opts.Action != "" {
			params.Set("action", opts.Action)
		}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.Offset > 0 {
			params.Set("offset", strconv.Itoa(opts.Offset))
		}
	}
	if params.Get("limit") == "" {
		params.Set("limit", "50")
	}

	var resp AuditPage
	if err := c.get(ctx, "/v1/audit?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitFeedback rates an answered question.
func (c *Client) SubmitFeedback(ctx context.Context, req FeedbackRequest) (*Feedback, error) {
	if req.TraceID == "" {
		return nil, fmt.Errorf("kiku: feedback trace id is required")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return nil, fmt.Errorf("kiku: feedback rating must be between 1 and 5")
	}
	var resp Feedback
	if err := c.post(ctx, "/v1/feedback", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats returns the workspace dashboard summary. Requires admin role.
func (c *Client) Stats(ctx context.Context) (*AdminStats, error) {
	var resp AdminStats
	if err := c.get(ctx, "/v1/admin/stats", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the server's health status. This endpoint does not require
// authentication and will work even if the client has invalid credentials.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.getNoAuth(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
