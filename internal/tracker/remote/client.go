// Package remote adapts the tracker HTTP API to the tracker.Service
// interface so dashboards and tools consume the same contract the
// in-process engine offers. The bearer credential travels in the context;
// error payloads are mapped back to the service's sentinel errors.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"threattracker.org/internal/auth"
	"threattracker.org/internal/tracker"
)

// Client talks to a tracker API server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// New creates a client with sensible defaults.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ tracker.Service = (*Client)(nil)

// Login authenticates and returns the session plus its principal. Callers
// attach the returned token with auth.ContextWithToken for subsequent
// operations.
func (c *Client) Login(ctx context.Context, username, password, organizationID string) (auth.Session, auth.Principal, error) {
	var resp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
		User      struct {
			ID             string `json:"id"`
			Username       string `json:"username"`
			Role           string `json:"role"`
			OrganizationID string `json:"organization_id"`
			CanCreateUsers bool   `json:"can_create_users"`
		} `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/api/login", nil, map[string]any{
		"username":        username,
		"password":        password,
		"organization_id": organizationID,
	}, &resp)
	if err != nil {
		return auth.Session{}, auth.Principal{}, err
	}

	caps := map[auth.Capability]struct{}{}
	if resp.User.CanCreateUsers {
		caps[auth.CapCreateUsers] = struct{}{}
	}
	principal := auth.Principal{
		UserID:         resp.User.ID,
		Username:       resp.User.Username,
		Role:           auth.Role(resp.User.Role),
		OrganizationID: resp.User.OrganizationID,
		Capabilities:   caps,
		ExpiresAt:      resp.ExpiresAt,
	}
	return auth.Session{Token: resp.Token, ExpiresAt: resp.ExpiresAt}, principal, nil
}

// ListOrganizations fetches the tenant catalog for the login form.
func (c *Client) ListOrganizations(ctx context.Context) ([]*auth.Organization, error) {
	var resp struct {
		Organizations []*auth.Organization `json:"organizations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/organizations", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Organizations, nil
}

// Register provisions an account; the context must carry a credential with
// the create-users capability.
func (c *Client) Register(ctx context.Context, username, password string, role auth.Role, organizationID string, canCreateUsers bool) error {
	return c.do(ctx, http.MethodPost, "/api/register", nil, map[string]any{
		"username":         username,
		"password":         password,
		"role":             string(role),
		"organization_id":  organizationID,
		"can_create_users": canCreateUsers,
	}, nil)
}

func (c *Client) Report(ctx context.Context, userID, message string) (tracker.Alert, error) {
	var alert tracker.Alert
	err := c.do(ctx, http.MethodPost, "/api/alerts", nil, map[string]any{
		"user_id": userID,
		"message": message,
	}, &alert)
	return alert, err
}

func (c *Client) ListAlerts(ctx context.Context, organizationID string) ([]tracker.Alert, error) {
	params := url.Values{}
	if organizationID != "" {
		params.Set("organization_id", organizationID)
	}
	var resp struct {
		Alerts []tracker.Alert `json:"alerts"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/alerts", params, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Alerts, nil
}

func (c *Client) Classify(ctx context.Context, alertID string, typ tracker.AlertType, expectedVersion int64) (tracker.Alert, error) {
	var alert tracker.Alert
	err := c.doVersioned(ctx, http.MethodPut, "/api/alerts/"+url.PathEscape(alertID), expectedVersion,
		map[string]any{"type": string(typ)}, &alert)
	return alert, err
}

func (c *Client) Review(ctx context.Context, alertID string) (tracker.Alert, error) {
	var alert tracker.Alert
	err := c.do(ctx, http.MethodPut, "/api/alerts/"+url.PathEscape(alertID)+"/review", nil, struct{}{}, &alert)
	return alert, err
}

func (c *Client) CreateTicket(ctx context.Context, alertID, description string) (tracker.Ticket, error) {
	var ticket tracker.Ticket
	err := c.do(ctx, http.MethodPost, "/api/ticket", nil, map[string]any{
		"alert_id":    alertID,
		"description": description,
	}, &ticket)
	return ticket, err
}

func (c *Client) ListTickets(ctx context.Context, organizationID string) ([]tracker.Ticket, error) {
	params := url.Values{}
	if organizationID != "" {
		params.Set("organization_id", organizationID)
	}
	var resp struct {
		Tickets []tracker.Ticket `json:"tickets"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tickets", params, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tickets, nil
}

func (c *Client) UpdateTicketStatus(ctx context.Context, ticketID string, status tracker.TicketStatus, expectedVersion int64) (tracker.Ticket, error) {
	var ticket tracker.Ticket
	err := c.doVersioned(ctx, http.MethodPut, "/api/ticket/"+url.PathEscape(ticketID), expectedVersion,
		map[string]any{"status": string(status)}, &ticket)
	return ticket, err
}

// Helpers -----------------------------------------------------------------

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	return c.request(ctx, method, path, params, 0, body, out)
}

func (c *Client) doVersioned(ctx context.Context, method, path string, version int64, body, out any) error {
	return c.request(ctx, method, path, nil, version, body, out)
}

func (c *Client) request(ctx context.Context, method, path string, params url.Values, version int64, body, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := auth.TokenFromContext(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if version != 0 {
		req.Header.Set("If-Match", fmt.Sprintf("%q", fmt.Sprint(version)))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeError maps API failures back to the sentinel errors the in-process
// engine returns, so callers handle both implementations identically.
func decodeError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload)
	msg := strings.ToLower(payload.Error)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		switch {
		case strings.Contains(msg, "session expired"):
			return auth.ErrSessionExpired
		case strings.Contains(msg, "invalid credentials"):
			return auth.ErrInvalidCredentials
		}
		return tracker.ErrUnauthenticated
	case http.StatusForbidden:
		return tracker.ErrForbidden
	case http.StatusNotFound:
		return tracker.ErrNotFound
	case http.StatusConflict:
		switch {
		case strings.Contains(msg, "version"):
			return tracker.ErrVersionConflict
		case strings.Contains(msg, "exists"):
			return auth.ErrConflict
		}
		return tracker.ErrInvalidTransition
	case http.StatusBadRequest:
		switch {
		case strings.Contains(msg, "scope"):
			return tracker.ErrMissingScope
		case strings.Contains(msg, "organization is required"):
			return auth.ErrOrganizationRequired
		}
		return tracker.ErrInvalidInput
	}
	if payload.Error != "" {
		return fmt.Errorf("tracker api: %s (status %d)", payload.Error, resp.StatusCode)
	}
	return fmt.Errorf("tracker api: status %d", resp.StatusCode)
}
