// Package rest is the data-access layer for the hosted PostgREST
// backend: a client owning base URL and auth headers, and a chainable
// query builder that turns filter/order/limit calls into single
// requests. All failures come back as typed errors on the ordinary
// (data, error) contract; nothing here panics across the boundary.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Config carries what the client needs to reach the backend.
type Config struct {
	BaseURL string
	Key     string
	Timeout time.Duration
	Retry   Policy
}

// Client is the single point of truth for the backend endpoint and
// credentials. It performs no caching and no write retries.
type Client struct {
	baseURL string
	key     string
	http    *http.Client
	retry   Policy
	log     *zap.Logger
}

// New builds a Client. The static service key is inspected (not
// verified — the backend holds the secret) so an expired credential
// shows up in the logs instead of as a wall of 401s.
func New(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rest: base URL is required")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("rest: service key is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultPolicy
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		key:     cfg.Key,
		http:    &http.Client{Timeout: timeout},
		retry:   retry,
		log:     log,
	}
	c.inspectKey()
	return c, nil
}

// inspectKey decodes the service key's claims when it is a JWT and
// warns about expiry. Non-JWT keys are accepted silently.
func (c *Client) inspectKey() {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(c.key, claims); err != nil {
		c.log.Debug("service key is not a JWT, skipping claim inspection")
		return
	}

	role, _ := claims["role"].(string)
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		c.log.Debug("service key has no expiry claim", zap.String("role", role))
		return
	}

	switch remaining := time.Until(exp.Time); {
	case remaining <= 0:
		c.log.Warn("service key is expired, requests will be rejected",
			zap.String("role", role), zap.Time("expired_at", exp.Time))
	case remaining < 30*24*time.Hour:
		c.log.Warn("service key expires soon",
			zap.String("role", role), zap.Duration("remaining", remaining))
	default:
		c.log.Debug("service key inspected",
			zap.String("role", role), zap.Time("expires_at", exp.Time))
	}
}

// From returns a fresh, empty builder bound to table. Each chain
// produces exactly one request.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{client: c, table: table, selectCols: "*"}
}

// RPC calls a server-side procedure with JSON-encoded named params.
// RPC targets may mutate, so calls are never retried here; idempotent
// callers wrap RPC in their own policy if they want one.
func (c *Client) RPC(ctx context.Context, name string, params map[string]any) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("rpc %s: encode params: %w", name, err)
	}
	return c.do(ctx, http.MethodPost, c.baseURL+"/rest/v1/rpc/"+name, body)
}

// Health probes each table with a minimal select and reports
// per-table reachability.
func (c *Client) Health(ctx context.Context, tables []string) map[string]bool {
	checks := make(map[string]bool, len(tables))
	for _, table := range tables {
		_, err := c.From(table).Select("id").Limit(1).Execute(ctx)
		checks[table] = err == nil
	}
	return checks
}

// do issues one request with the standing auth headers and maps
// failures onto the error taxonomy. Callers own retry decisions.
func (c *Client) do(ctx context.Context, method, url string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed to reach backend",
			zap.String("method", method), zap.String("url", url), zap.Error(err))
		return nil, &NetworkError{Op: method + " " + url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reqErr := &RequestError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Message:    gjson.GetBytes(data, "message").String(),
		}
		c.log.Debug("backend rejected request",
			zap.String("method", method), zap.String("url", url),
			zap.Int("status", resp.StatusCode))
		return nil, reqErr
	}

	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// getWithRetry wraps do with the read retry policy. GET is the only
// method routed through here.
func (c *Client) getWithRetry(ctx context.Context, url string) (json.RawMessage, error) {
	var data json.RawMessage
	err := c.retry.do(ctx, func() error {
		var callErr error
		data, callErr = c.do(ctx, http.MethodGet, url, nil)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
