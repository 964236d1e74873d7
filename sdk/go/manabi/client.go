package manabi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Manabi server (e.g. "http://localhost:8080").
	BaseURL string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the Manabi learner engagement API.
// All methods are safe for concurrent use.
//
// The client is session-scoped: it holds one bearer token at a time, set
// either by Login or by SetSessionToken (when the embedding application
// obtains tokens itself).
type Client struct {
	baseURL string
	client  *http.Client

	mu    sync.RWMutex
	token string
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("manabi: BaseURL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpClient,
	}, nil
}

// Login exchanges credentials for a session token and stores it on the
// client. Returns the token expiry.
func (c *Client) Login(ctx context.Context, userID, apiKey string) (time.Time, error) {
	body := map[string]string{"user_id": userID, "api_key": apiKey}
	var resp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := c.post(ctx, "/auth/token", body, &resp, false); err != nil {
		return time.Time{}, err
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()

	return resp.ExpiresAt, nil
}

// SetSessionToken replaces the client's session token. An empty token logs
// the session out; subsequent authenticated calls fail until a new token is
// set.
func (c *Client) SetSessionToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// SessionToken returns the current session token, or "" when logged out.
func (c *Client) SessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// IngestEvents submits a batch of telemetry events for the authenticated
// learner. The batch is atomic: either every event is accepted or none are.
func (c *Client) IngestEvents(ctx context.Context, events []EventInput) (int, error) {
	body := map[string]any{"events": events}
	var resp struct {
		Accepted int `json:"accepted"`
	}
	if err := c.post(ctx, "/v1/events", body, &resp, true); err != nil {
		return 0, err
	}
	return resp.Accepted, nil
}

// CourseStatuses returns the current engagement status of every learner in
// a course. Requires instructor role or above.
func (c *Client) CourseStatuses(ctx context.Context, courseID string) (*CourseStatusesResponse, error) {
	var resp CourseStatusesResponse
	if err := c.get(ctx, "/v1/courses/"+url.PathEscape(courseID)+"/statuses", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HistoryOptions are optional parameters for LearnerHistory.
type HistoryOptions struct {
	Limit  int
	Before *time.Time
}

// LearnerHistory returns a learner's classified event history for a course,
// newest first. Learners can read their own history; instructors anyone's.
func (c *Client) LearnerHistory(ctx context.Context, userID, courseID string, opts *HistoryOptions) (*HistoryResponse, error) {
	params := url.Values{}
	params.Set("course_id", courseID)
	if opts != nil {
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.Before != nil {
			params.Set("before", opts.Before.Format(time.RFC3339))
		}
	}

	path := "/v1/learners/" + url.PathEscape(userID) + "/history?" + params.Encode()
	var resp HistoryResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the server's health status. This endpoint does not require
// authentication and will work even if the client has no session token.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("manabi: create request: %w", err)
	}
	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("manabi: GET /health: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if err := handleResponse(httpResp, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any, authed bool) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("manabi: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("manabi: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, dest, authed)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("manabi: create request: %w", err)
	}

	return c.doRequest(req, dest, true)
}

func (c *Client) doRequest(req *http.Request, dest any, authed bool) error {
	if authed {
		token := c.SessionToken()
		if token == "" {
			return &Error{StatusCode: 401, Code: "UNAUTHORIZED", Message: "no session token set"}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("manabi: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("manabi: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("manabi: decode response envelope: %w", err)
	}

	if envelope.Data == nil {
		// Fallback: some endpoints may not wrap in "data".
		return json.Unmarshal(bodyBytes, dest)
	}

	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
