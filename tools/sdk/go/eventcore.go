/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Tier:        L2
Logic:       Stdlib-only Go client for the Ingestion API: LogEvent,
             LogEventBatch, StartSession, EndSession, GetSessionStats.
             Functional options for base URL / HTTP client / timeout,
             typed error hierarchy parsed from the JSON error body.
Context:     Ships as its own module so callers can vendor a thin
             client without pulling in the service's own dependency
             tree (chi, zerolog, gobreaker, etc).
Suitability: L2 — mechanical HTTP client, low design risk.
──────────────────────────────────────────────────────────────
*/

// Package eventcore provides a minimal Go client for the event ingestion
// API: submitting events and batches, opening and closing sessions, and
// reading back session statistics.
package eventcore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultUserAgent = "eventcore-go-sdk/1.0"

// Client is a typed HTTP client for the ingestion API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	userAgent  string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the default ingestion API base URL.
func WithBaseURL(base string) ClientOption {
	return func(c *Client) { c.baseURL = base }
}

// WithHTTPClient overrides the underlying *http.Client, e.g. to share a
// connection pool across callers.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets a request timeout on the client's own http.Client. Has
// no effect if WithHTTPClient is also supplied after it.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient builds a Client authenticating with apiKey, which is sent in
// the Authorization header of every request.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    "https://api.eventcore.internal/v1",
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// --- Error hierarchy ---

// Error is the base error type returned for any non-2xx response.
type Error struct {
	StatusCode int    `json:"-"`
	Kind       string `json:"error"`
	Message    string `json:"message"`
	Remediation string `json:"remediation,omitempty"`
}

func (e *Error) Error() string {
	if e.Remediation != "" {
		return fmt.Sprintf("eventcore: %s: %s (%s)", e.Kind, e.Message, e.Remediation)
	}
	return fmt.Sprintf("eventcore: %s: %s", e.Kind, e.Message)
}

// AuthenticationError is returned for HTTP 401 responses.
type AuthenticationError struct{ *Error }

// AuthorizationError is returned for HTTP 403 responses.
type AuthorizationError struct{ *Error }

// NotFoundError is returned for HTTP 404 responses.
type NotFoundError struct{ *Error }

// ValidationError is returned for HTTP 400/422 responses — malformed
// events, unknown actions, or schema violations.
type ValidationError struct{ *Error }

// BackpressureError is returned for HTTP 429/503 responses, mirroring the
// buffer backpressure and circuit-open states the ingestion pipeline can
// be in.
type BackpressureError struct{ *Error }

func parseError(statusCode int, body []byte) error {
	base := &Error{StatusCode: statusCode, Kind: "unknown_error", Message: "request failed"}
	_ = json.Unmarshal(body, base)
	base.StatusCode = statusCode

	switch statusCode {
	case http.StatusUnauthorized:
		return &AuthenticationError{base}
	case http.StatusForbidden:
		return &AuthorizationError{base}
	case http.StatusNotFound:
		return &NotFoundError{base}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &ValidationError{base}
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return &BackpressureError{base}
	default:
		return base
	}
}

// request performs an HTTP call against path, marshaling body (if non-nil)
// as the JSON request payload and unmarshaling the response into result
// (if non-nil).
func (c *Client) request(ctx context.Context, method, path string, body, result interface{}) error {
	u, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("eventcore: invalid path %q: %w", path, err)
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("eventcore: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("eventcore: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("eventcore: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("eventcore: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("eventcore: unmarshal response: %w", err)
		}
	}
	return nil
}

// --- Ingestion API types ---

// EventInput is a single event submitted to LogEvent or LogEventBatch.
type EventInput struct {
	Action     string                 `json:"action"`
	SessionID  string                 `json:"session_id"`
	OccurredAt time.Time              `json:"occurred_at,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// LogEventResponse acknowledges a single submitted event.
type LogEventResponse struct {
	Accepted  bool   `json:"accepted"`
	EventID   string `json:"event_id,omitempty"`
	Deduped   bool   `json:"deduped"`
}

// LogEventBatchResponse acknowledges a batch submission.
type LogEventBatchResponse struct {
	Accepted int `json:"accepted"`
	Deduped  int `json:"deduped"`
	Rejected int `json:"rejected"`
}

// StartSessionRequest opens a new session.
type StartSessionRequest struct {
	SessionID  string                 `json:"session_id"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// StartSessionResponse acknowledges a session start.
type StartSessionResponse struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
}

// EndSessionRequest closes an existing session.
type EndSessionRequest struct {
	SessionID string `json:"session_id"`
}

// EndSessionResponse acknowledges a session end.
type EndSessionResponse struct {
	SessionID string    `json:"session_id"`
	EndedAt   time.Time `json:"ended_at"`
}

// SessionStats summarizes activity recorded for a single session.
type SessionStats struct {
	SessionID   string    `json:"session_id"`
	EventCount  int       `json:"event_count"`
	FirstEvent  time.Time `json:"first_event,omitempty"`
	LastEvent   time.Time `json:"last_event,omitempty"`
	Active      bool      `json:"active"`
}

// --- Ingestion API methods ---

// LogEvent submits a single event. The ingestion API always responds 200
// on a well-formed request, even when the event is deduped.
func (c *Client) LogEvent(ctx context.Context, in EventInput) (*LogEventResponse, error) {
	var out LogEventResponse
	if err := c.request(ctx, http.MethodPost, "/events", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LogEventBatch submits a batch of events in one call.
func (c *Client) LogEventBatch(ctx context.Context, events []EventInput) (*LogEventBatchResponse, error) {
	payload := struct {
		Events []EventInput `json:"events"`
	}{Events: events}

	var out LogEventBatchResponse
	if err := c.request(ctx, http.MethodPost, "/events/batch", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartSession opens a new session for subsequent events to reference.
func (c *Client) StartSession(ctx context.Context, in StartSessionRequest) (*StartSessionResponse, error) {
	var out StartSessionResponse
	if err := c.request(ctx, http.MethodPost, "/sessions", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EndSession closes a session.
func (c *Client) EndSession(ctx context.Context, sessionID string) (*EndSessionResponse, error) {
	var out EndSessionResponse
	in := EndSessionRequest{SessionID: sessionID}
	if err := c.request(ctx, http.MethodPost, "/sessions/end", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSessionStats reads back aggregate stats for a session.
func (c *Client) GetSessionStats(ctx context.Context, sessionID string) (*SessionStats, error) {
	path := fmt.Sprintf("/sessions/%s/stats", url.PathEscape(sessionID))
	var out SessionStats
	if err := c.request(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
