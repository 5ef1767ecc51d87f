package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/legalai/legalai/client/pkg/logger"
)

// Client is the single choke point for talking to the backend. Every
// authenticated call reads the credential from the TokenStore, attaches it
// as a bearer header, and funnels a 401 rejection into the forced-logout
// path. Network-level failures are surfaced as KindTransport and never
// touch the credential.
type Client struct {
	baseURL    string
	store      TokenStore
	httpClient *http.Client
	revoked    func()
}

func NewClient(baseURL string, store TokenStore, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   store,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetRevokedHandler registers the hook fired when the backend rejects an
// attached credential. The hook must be safe to call repeatedly.
func (c *Client) SetRevokedHandler(fn func()) {
	c.revoked = fn
}

// PersistToken unconditionally overwrites the stored credential
func (c *Client) PersistToken(token string) error {
	if err := c.store.Persist(token); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	return nil
}

// ClearToken erases the stored credential
func (c *Client) ClearToken() error {
	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}

// HasToken reports whether a credential is currently stored
func (c *Client) HasToken() bool {
	token, err := c.store.Token()
	return err == nil && token != ""
}

// PostForm issues an unauthenticated form-encoded POST (the password grant)
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(ctx, req, out, false)
}

// PostJSON issues an unauthenticated JSON POST (signup, federated login)
func (c *Client) PostJSON(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(ctx, req, out, false)
}

// GetJSON issues an authenticated GET and decodes the JSON response
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if err := c.authorize(req); err != nil {
		return err
	}
	return c.do(ctx, req, out, true)
}

// GetJSONWithToken issues a GET authenticated with an explicit token rather
// than the stored one. Login uses it for the who-am-I call so the profile
// fetch is bound to the just-issued credential; a 401 here is a login
// failure, not a revocation of a live session.
func (c *Client) GetJSONWithToken(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	return c.do(ctx, req, out, false)
}

// UploadFile issues an authenticated multipart POST with the content as the
// "file" form field
func (c *Client) UploadFile(ctx context.Context, path, filename string, content io.Reader, out any) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("failed to read file content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	if err := c.authorize(req); err != nil {
		return err
	}
	return c.do(ctx, req, out, true)
}

// Download issues an authenticated GET and returns the raw response body
func (c *Client) Download(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if err := c.authorize(req); err != nil {
		return nil, err
	}

	var data []byte
	if err := c.doRaw(ctx, req, &data, true); err != nil {
		return nil, err
	}
	return data, nil
}

// authorize attaches the stored credential as a bearer header. It fails with
// KindUnauthenticated before any network call when no credential is present.
func (c *Client) authorize(req *http.Request) error {
	token, err := c.store.Token()
	if err != nil {
		return &Error{Kind: KindTransport, Message: "failed to read stored credential", Err: err}
	}
	if token == "" {
		return &Error{Kind: KindUnauthenticated, Message: "not logged in"}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (c *Client) do(ctx context.Context, req *http.Request, out any, authed bool) error {
	var body []byte
	if err := c.doRaw(ctx, req, &body, authed); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w, body: %s", err, string(body))
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, req *http.Request, body *[]byte, authed bool) error {
	requestID := uuid.New().String()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "*/*")

	ctx = context.WithValue(ctx, logger.RequestIDKey, requestID)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn(ctx, "api request failed",
			"method", req.Method,
			"path", req.URL.Path,
			"error", err,
		)
		return &Error{Kind: KindTransport, Message: "network error", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindTransport, Message: "failed to read response", Err: err}
	}

	logger.Debug(ctx, "api request completed",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		*body = data
		return nil
	}

	return c.statusError(ctx, resp.StatusCode, data, authed)
}

// statusError maps a non-2xx response to the client error taxonomy. A 401 on
// a call that carried the stored credential means the credential has been
// revoked: the store is cleared and the revocation hook fires before the
// error is returned.
func (c *Client) statusError(ctx context.Context, status int, body []byte, authed bool) error {
	detail := parseDetail(body)

	switch {
	case status == http.StatusUnauthorized && authed:
		logger.Warn(ctx, "credential rejected, forcing logout", "status", status)
		if err := c.store.Clear(); err != nil {
			logger.Error(ctx, "failed to clear revoked credential", "error", err)
		}
		if c.revoked != nil {
			c.revoked()
		}
		return &Error{Kind: KindAuthorizationRevoked, Status: status, Message: detail}
	case status == http.StatusUnauthorized:
		return &Error{Kind: KindInvalidCredentials, Status: status, Message: detail}
	case status == http.StatusConflict:
		return &Error{Kind: KindAccountExists, Status: status, Message: detail}
	case status >= 500:
		return &Error{Kind: KindServer, Status: status, Message: detail}
	default:
		return &Error{Kind: KindValidation, Status: status, Message: detail}
	}
}

// parseDetail extracts the backend's {"detail": "..."} error message
func parseDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	if len(body) > 0 {
		return string(body)
	}
	return "request failed"
}
