// Package client talks to the integration registration API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"devsettings/internal/config"
	"devsettings/internal/form"
	"devsettings/internal/logger"
	"devsettings/internal/sentryapp"
)

// APIError is a non-2xx response. ResponseJSON holds the decoded body when
// it was a JSON object.
type APIError struct {
	Status       int
	ResponseJSON map[string]any
	RawBody      string
}

func (e *APIError) Error() string {
	if detail, ok := e.ResponseJSON["detail"].(string); ok && detail != "" {
		return fmt.Sprintf("api error %d: %s", e.Status, detail)
	}
	return fmt.Sprintf("api error %d", e.Status)
}

func (e *APIError) StatusCode() int { return e.Status }

func (e *APIError) Body() map[string]any { return e.ResponseJSON }

var (
	_ form.Submitter     = (*Client)(nil)
	_ form.ResponseError = (*APIError)(nil)
)

// Client is safe for concurrent use once configured.
type Client struct {
	baseURL *url.URL
	token   string
	http    *retryablehttp.Client
}

// New builds a client for cfg.BaseURL, e.g. "http://localhost:8080/api/0".
func New(cfg config.ClientConfig) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}

	hc := cleanhttp.DefaultPooledClient()
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	}
	rc := &retryablehttp.Client{
		HTTPClient:   hc,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 1500 * time.Millisecond,
		RetryMax:     cfg.RetryMax,
		CheckRetry:   checkRetry,
		Backoff:      retryablehttp.LinearJitterBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}
	return &Client{baseURL: u, token: cfg.Token, http: rc}, nil
}

// SetToken replaces the bearer token sent with every request.
func (c *Client) SetToken(token string) { c.token = token }

// SetRetryWait overrides the backoff bounds.
func (c *Client) SetRetryWait(waitMin, waitMax time.Duration) {
	c.http.RetryWaitMin = waitMin
	c.http.RetryWaitMax = waitMax
}

// checkRetry is the default policy except that a POST answered by the server
// is never replayed, since the write may already have happened.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp != nil && resp.Request != nil && resp.Request.Method == http.MethodPost {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Do sends body as JSON to path (relative to the base URL) and decodes the
// response into out when both are non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.url(path), bodyReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	logger.From(ctx).Debug("api call",
		zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, RawBody: string(raw)}
		_ = json.Unmarshal(raw, &apiErr.ResponseJSON)
		return apiErr
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Submit implements form.Submitter.
func (c *Client) Submit(ctx context.Context, method, endpoint string, data form.Fields) (map[string]any, error) {
	var out map[string]any
	if err := c.Do(ctx, method, endpoint, data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Login exchanges credentials for an access token and keeps it for later
// requests.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.Do(ctx, http.MethodPost, "/auth/login/", body, &out); err != nil {
		return "", err
	}
	c.token = out.Token
	return out.Token, nil
}

func AppPath(slug string) string {
	return "/sentry-apps/" + url.PathEscape(slug) + "/"
}

func TokensPath(slug string) string {
	return AppPath(slug) + "api-tokens/"
}

// ListApps returns the integrations of the caller's organization.
func (c *Client) ListApps(ctx context.Context) ([]*sentryapp.SentryApp, error) {
	var apps []*sentryapp.SentryApp
	if err := c.Do(ctx, http.MethodGet, "/sentry-apps/", nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

func (c *Client) GetApp(ctx context.Context, slug string) (*sentryapp.SentryApp, error) {
	var app sentryapp.SentryApp
	if err := c.Do(ctx, http.MethodGet, AppPath(slug), nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (c *Client) CreateApp(ctx context.Context, data any) (*sentryapp.SentryApp, error) {
	var app sentryapp.SentryApp
	if err := c.Do(ctx, http.MethodPost, "/sentry-apps/", data, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (c *Client) UpdateApp(ctx context.Context, slug string, data any) (*sentryapp.SentryApp, error) {
	var app sentryapp.SentryApp
	if err := c.Do(ctx, http.MethodPut, AppPath(slug), data, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (c *Client) DeleteApp(ctx context.Context, slug string) error {
	return c.Do(ctx, http.MethodDelete, AppPath(slug), nil, nil)
}

// SetAvatar uploads or resets one of the app's avatars.
func (c *Client) SetAvatar(ctx context.Context, slug string, av sentryapp.Avatar) (*sentryapp.SentryApp, error) {
	var app sentryapp.SentryApp
	if err := c.Do(ctx, http.MethodPut, AppPath(slug)+"avatar/", av, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (c *Client) ListTokens(ctx context.Context, slug string) ([]*sentryapp.APIToken, error) {
	var tokens []*sentryapp.APIToken
	if err := c.Do(ctx, http.MethodGet, TokensPath(slug), nil, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

func (c *Client) AddToken(ctx context.Context, slug string) (*sentryapp.APIToken, error) {
	var tok sentryapp.APIToken
	if err := c.Do(ctx, http.MethodPost, TokensPath(slug), nil, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (c *Client) RemoveToken(ctx context.Context, slug, token string) error {
	return c.Do(ctx, http.MethodDelete, TokensPath(slug)+url.PathEscape(token)+"/", nil, nil)
}

// Me returns the caller as the server currently sees them.
func (c *Client) Me(ctx context.Context) (map[string]any, error) {
	var me map[string]any
	if err := c.Do(ctx, http.MethodGet, "/auth/me/", nil, &me); err != nil {
		return nil, err
	}
	return me, nil
}

// AuditLog returns up to limit of an integration's recorded changes, newest
// first. Requires the admin role.
func (c *Client) AuditLog(ctx context.Context, slug string, limit int) ([]map[string]any, error) {
	var events []map[string]any
	path := AppPath(slug) + "audit-logs/?limit=" + strconv.Itoa(limit)
	if err := c.Do(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func (c *Client) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL.String() + path
}

func bodyReader(payload []byte) any {
	if payload == nil {
		return nil
	}
	return payload
}
