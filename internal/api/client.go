// Package api is the REST client for the perfume backend. Every loosely-typed
// payload is normalized here; nothing past this package sees raw backend field names.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the canonical backend location used when none is configured.
const DefaultBaseURL = "http://127.0.0.1:8000"

// ErrMalformedPayload is returned when a response body does not have the expected shape.
var ErrMalformedPayload = errors.New("malformed payload")

// ErrUnsuccessful matches an APIError whose transport succeeded but whose envelope
// reported success=false.
var ErrUnsuccessful = errors.New("backend reported failure")

// APIError is a non-success answer from the backend: either a non-2xx status or
// a 2xx envelope with success=false.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string // first structured message found in the body, may be empty
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// Unsuccessful reports whether the transport succeeded but the envelope said otherwise.
func (e *APIError) Unsuccessful() bool {
	return e.StatusCode >= 200 && e.StatusCode < 300
}

// Is lets errors.Is(err, ErrUnsuccessful) match envelope failures.
func (e *APIError) Is(target error) bool {
	return target == ErrUnsuccessful && e.Unsuccessful()
}

// MessageOf returns the backend's structured message carried by err, if any.
func MessageOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// StatusOf returns the HTTP status carried by err, or 0 for transport failures.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Client talks to one backend base URL.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// New creates a client. A zero timeout leaves requests unbounded; the transport or
// backend is expected to resolve them.
func New(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the normalized backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// WithToken returns a copy of the client that sends token as a bearer credential.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do performs a JSON request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, int, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	slog.Debug("backend response", "method", method, "path", path, "status", resp.StatusCode, "bytes", len(raw))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    extractMessage(raw),
		}
	}
	if env, ok := decodeEnvelope(raw); ok && !env.Success {
		return nil, resp.StatusCode, &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    env.Message,
		}
	}
	return raw, resp.StatusCode, nil
}

// doData performs a request whose response must be a {success, message, data} envelope.
func (c *Client) doData(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	raw, _, err := c.do(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	env, ok := decodeEnvelope(raw)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w: expected envelope", method, path, ErrMalformedPayload)
	}
	return env.Data, nil
}

// decodeEnvelope reports ok only for JSON objects carrying a "success" field.
func decodeEnvelope(raw []byte) (envelope, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return envelope{}, false
	}
	if _, has := probe["success"]; !has {
		return envelope{}, false
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, false
	}
	return env, true
}

// extractMessage pulls the first human-readable message out of an error body.
// FastAPI validation errors arrive as {"detail": [{"msg": ...}]}.
func extractMessage(raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	switch d := body["detail"].(type) {
	case string:
		if d != "" {
			return d
		}
	case []any:
		for _, item := range d {
			if m, ok := item.(map[string]any); ok {
				if msg, ok := m["msg"].(string); ok && msg != "" {
					return msg
				}
			}
		}
	}
	for _, k := range []string{"message", "error"} {
		if s, ok := body[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
