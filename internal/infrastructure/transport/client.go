package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
)

// TokenSource supplies and receives bearer credentials. Implemented by the
// credential store so the client never holds tokens directly.
type TokenSource interface {
	AccessToken() string
	RefreshToken() string
	UpdateTokens(access, refresh string)
	// Invalidate is called when a credential refresh fails; it must clear
	// all local session state.
	Invalidate()
}

type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// envelope is the backend's uniform response shape.
type envelope struct {
	Success      bool            `json:"success"`
	Data         json.RawMessage `json:"data,omitempty"`
	Error        *errorPayload   `json:"error,omitempty"`
	Token        string          `json:"token,omitempty"`
	RefreshToken string          `json:"refreshToken,omitempty"`
	Pagination   *Pagination     `json:"pagination,omitempty"`
}

// Client issues JSON requests against the /api collaborator.
type Client struct {
	base      string
	http      *http.Client
	tokens    TokenSource
	logger    *logging.ChanneledLogger
	refreshMu sync.Mutex
}

func NewClient(base string, timeout time.Duration, tokens TokenSource, logger *logging.ChanneledLogger) *Client {
	return &Client{
		base:   strings.TrimRight(base, "/"),
		http:   &http.Client{Timeout: timeout},
		tokens: tokens,
		logger: logger,
	}
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		payload = b
	}

	return c.withAuthRetry(ctx, func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		return c.sendJSON(ctx, method, path, "application/json", reader, out)
	})
}

// Upload sends a multipart form with one file part plus extra string fields.
func (c *Client) Upload(ctx context.Context, path, field, filename string, file io.Reader, extra map[string]string, out any) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("failed to create multipart file field: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to buffer upload body: %w", err)
	}
	for k, v := range extra {
		if err := writer.WriteField(k, v); err != nil {
			return fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	payload := buf.Bytes()
	contentType := writer.FormDataContentType()

	return c.withAuthRetry(ctx, func() error {
		return c.sendJSON(ctx, http.MethodPost, path, contentType, bytes.NewReader(payload), out)
	})
}

// Download fetches binary content. The filename comes from the
// Content-Disposition header when present.
func (c *Client) Download(ctx context.Context, path string) (string, []byte, error) {
	var filename string
	var data []byte

	err := c.withAuthRetry(ctx, func() error {
		url := c.base + path
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		c.attachBearer(req)

		resp, err := c.http.Do(req)
		if err != nil {
			return &NetworkError{URL: url, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return c.errorFromResponse(resp)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &NetworkError{URL: url, Err: err}
		}

		filename = filenameFromDisposition(resp.Header.Get("Content-Disposition"))
		data = body
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return filename, data, nil
}

// Refresh exchanges the stored refresh token for new credentials. Failure
// invalidates local session state entirely.
func (c *Client) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	refreshToken := c.tokens.RefreshToken()
	if refreshToken == "" {
		c.tokens.Invalidate()
		return &AuthError{Status: http.StatusUnauthorized, Code: "NO_REFRESH_TOKEN", Message: "no refresh token available"}
	}

	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return fmt.Errorf("failed to encode refresh request: %w", err)
	}

	err = c.sendJSON(ctx, http.MethodPost, "/auth/refresh", "application/json", bytes.NewReader(body), nil)
	if err != nil {
		c.logger.Auth().Warn("Credential refresh failed, clearing session", "error", err.Error())
		c.tokens.Invalidate()
		return err
	}

	c.logger.Auth().Info("Credentials refreshed")
	return nil
}

// withAuthRetry runs fn once, and on AuthError attempts a single refresh
// followed by one retry.
func (c *Client) withAuthRetry(ctx context.Context, fn func() error) error {
	err := fn()
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		return err
	}

	if refreshErr := c.Refresh(ctx); refreshErr != nil {
		return authErr
	}
	return fn()
}

func (c *Client) sendJSON(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	url := c.base + path
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	c.attachBearer(req)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Transport().Warn("Request failed", "method", method, "path", path, "error", err.Error())
		return &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}

	c.logger.Transport().Debug("Request completed",
		"method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromBody(resp.StatusCode, raw)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &ParseError{Err: err}
	}

	if env.Token != "" || env.RefreshToken != "" {
		c.tokens.UpdateTokens(env.Token, env.RefreshToken)
	}

	// A well-formed 2xx envelope flagged unsuccessful is still a failure.
	if !env.Success {
		code, message := "UNKNOWN", "request unsuccessful"
		if env.Error != nil {
			code, message = env.Error.Code, env.Error.Message
		}
		return &RequestError{Status: resp.StatusCode, Code: code, Message: message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &ParseError{Err: err}
		}
	}
	return nil
}

func (c *Client) errorFromResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	return errorFromBody(resp.StatusCode, raw)
}

func errorFromBody(status int, raw []byte) error {
	code, message := "UNKNOWN", http.StatusText(status)

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil {
		code, message = env.Error.Code, env.Error.Message
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return &AuthError{Status: status, Code: code, Message: message}
	}
	return &RequestError{Status: status, Code: code, Message: message}
}

func (c *Client) attachBearer(req *http.Request) {
	if token := c.tokens.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func filenameFromDisposition(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}
