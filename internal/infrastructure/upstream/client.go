// Package upstream implements the client for the remote queue-management
// authority. The gateway never judges credentials itself: every answer about
// token validity, licenses, users, and tickets comes from here.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/queuedesk/dashboard-gateway/internal/api/metrics"
	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
	"github.com/queuedesk/dashboard-gateway/internal/core/ports"
)

const defaultTimeout = 10 * time.Second

// loginPaths maps each login kind to its authority endpoint. The super-admin
// path is deliberately unadvertised.
var loginPaths = map[ports.LoginKind]string{
	ports.LoginRegular:    "/auth/login",
	ports.LoginAdmin:      "/auth/admin/login",
	ports.LoginSuperAdmin: "/auth/internal/sa-login",
}

// Client talks to the authority's REST API.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient builds a Client. A non-positive timeout uses the default.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// do performs the request and records its round-trip latency under the named
// endpoint.
func (c *Client) do(endpoint string, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.UpstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	return resp, err
}

// Verify asks the authority whether the token is still accepted. A non-2xx
// status is an explicit rejection (invalid, no error); only transport
// failures return an error, leaving the fail-closed policy to the caller.
func (c *Client) Verify(ctx context.Context, token string) (domain.ValidationResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/verify", nil)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.do("verify", req)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("verify: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.ValidationResult{Valid: false}, nil
	}

	var body struct {
		LicenseExpired bool `json:"license_expired"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		// A 2xx with an unreadable body still proves the token was accepted.
		c.log.Warn().Err(err).Msg("verify response body unreadable")
	}

	return domain.ValidationResult{Valid: true, LicenseExpired: body.LicenseExpired}, nil
}

// Login posts the credentials to the role-specific endpoint for in.Kind.
func (c *Client) Login(ctx context.Context, in ports.LoginInput) (*ports.LoginResult, error) {
	path, ok := loginPaths[in.Kind]
	if !ok {
		path = loginPaths[ports.LoginRegular]
	}

	payload, err := json.Marshal(map[string]string{
		"username": in.Username,
		"password": in.Password,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do("login", req)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, domain.ErrInvalidCredentials
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("login: authority returned %d", resp.StatusCode)
	}

	var body struct {
		Success bool            `json:"success"`
		Token   string          `json:"token"`
		User    json.RawMessage `json:"user"`
		Message string          `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("login: decode response: %w", err)
	}
	if !body.Success || domain.IsBlankToken(body.Token) {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := domain.DecodeUser(body.User)
	if err != nil {
		return nil, fmt.Errorf("login: malformed user record: %w", err)
	}

	return &ports.LoginResult{Token: body.Token, User: user}, nil
}

// Logout notifies the authority. Best-effort by contract: callers ignore the
// outcome for control flow, the returned error is for logging only.
func (c *Client) Logout(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/logout", nil)
	if err != nil {
		return fmt.Errorf("logout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.do("logout", req)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return nil
}

// CurrentUser fetches the fresh user record, permissions included.
func (c *Client) CurrentUser(ctx context.Context, token string) (*domain.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/me", nil)
	if err != nil {
		return nil, fmt.Errorf("current user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.do("me", req)
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, domain.ErrInvalidSession
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("current user: authority returned %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("current user: read body: %w", err)
	}
	user, err := domain.DecodeUser(raw)
	if err != nil {
		return nil, fmt.Errorf("current user: malformed record: %w", err)
	}
	return user, nil
}

// CallNextTicket asks the authority to call the next ticket for a service.
// The returned counter assignment is authoritative.
func (c *Client) CallNextTicket(ctx context.Context, token, serviceID string) (*ports.TicketCall, error) {
	payload, err := json.Marshal(map[string]string{"service_id": serviceID})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tickets/next", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("call next request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.do("call_next", req)
	if err != nil {
		return nil, fmt.Errorf("call next: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, domain.ErrInvalidSession
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("call next: authority returned %d", resp.StatusCode)
	}

	var call ports.TicketCall
	if err := json.NewDecoder(resp.Body).Decode(&call); err != nil {
		return nil, fmt.Errorf("call next: decode response: %w", err)
	}
	return &call, nil
}
