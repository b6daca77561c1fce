package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Envelope status codes returned by the gateway.
const (
	StatusOK             = 0
	StatusError          = -1
	StatusSessionExpired = -2
	StatusQueryExpired   = -3
	StatusQueryError     = 1
)

// APIError is a call the gateway answered with a non-zero status.
type APIError struct {
	HTTPStatus int
	Status     int
	Message    string
}

func (e *APIError) Error() string {
	switch e.Status {
	case StatusSessionExpired:
		return "API error: session expired, create a new session: " + e.Message
	case StatusQueryExpired:
		return "API error: query expired, resubmit the statement: " + e.Message
	case StatusQueryError:
		return "API error: query failed: " + e.Message
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.HTTPStatus, e.Message)
}

// Client calls the gateway's notebook API.
type Client struct {
	BaseURL    string
	User       string
	UserHeader string
	HTTPClient *http.Client
}

// NewClient creates a client for the gateway at baseURL acting as user.
func NewClient(baseURL, user string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		User:       user,
		UserHeader: "X-Remote-User",
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Call posts fields to a notebook API endpoint the way the editor does:
// string values as is, everything else as JSON.
func (c *Client) Call(ctx context.Context, endpoint string, fields map[string]any) (map[string]any, error) {
	form := url.Values{}
	for k, v := range fields {
		if s, ok := v.(string); ok {
			form.Set(k, s)
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		form.Set(k, string(b))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/notebook/api/"+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

// Get fetches a notebook API resource.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (map[string]any, error) {
	u := c.BaseURL + "/notebook/api/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (map[string]any, error) {
	req.Header.Set("Accept", "application/json")
	if c.User != "" {
		req.Header.Set(c.UserHeader, c.User)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, &APIError{HTTPStatus: resp.StatusCode, Status: StatusError, Message: strings.TrimSpace(string(data))}
	}

	status := StatusError
	if v, ok := body["status"].(float64); ok {
		status = int(v)
	}
	if status != StatusOK {
		msg, _ := body["message"].(string)
		return nil, &APIError{HTTPStatus: resp.StatusCode, Status: status, Message: msg}
	}
	return body, nil
}
