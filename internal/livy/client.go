// Package livy is a client for the Livy REST server that runs interactive
// Spark sessions and Spark batch jobs.
package livy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Session states reported by Livy.
const (
	StateNotStarted = "not_started"
	StateStarting   = "starting"
	StateIdle       = "idle"
	StateBusy       = "busy"
	StateError      = "error"
	StateDead       = "dead"
	StateSuccess    = "success"
)

// Statement output statuses.
const (
	OutputOK    = "ok"
	OutputError = "error"
)

// Session is an interactive Spark session.
type Session struct {
	ID    int      `json:"id"`
	Kind  string   `json:"kind"`
	State string   `json:"state"`
	AppID string   `json:"appId,omitempty"`
	Log   []string `json:"log"`
}

// Output is the result of a finished statement.
type Output struct {
	Status         string         `json:"status"`
	ExecutionCount int            `json:"execution_count"`
	Data           map[string]any `json:"data,omitempty"`
	EName          *string        `json:"ename,omitempty"`
	EValue         *string        `json:"evalue,omitempty"`
	Traceback      []string       `json:"traceback,omitempty"`
}

// Statement is one piece of code submitted to a session.
type Statement struct {
	ID       int     `json:"id"`
	Code     string  `json:"code,omitempty"`
	State    string  `json:"state"`
	Progress float64 `json:"progress,omitempty"`
	Output   *Output `json:"output,omitempty"`
}

// BatchRequest describes a Spark application submitted as a batch.
type BatchRequest struct {
	File      string   `json:"file"`
	ClassName string   `json:"className,omitempty"`
	Args      []string `json:"args,omitempty"`
	PyFiles   []string `json:"pyFiles,omitempty"`
	ProxyUser string   `json:"proxyUser,omitempty"`
}

// Batch is a submitted Spark application.
type Batch struct {
	ID    int      `json:"id"`
	State string   `json:"state"`
	AppID string   `json:"appId,omitempty"`
	Log   []string `json:"log"`
}

type logPage struct {
	ID   int      `json:"id"`
	From int      `json:"from"`
	Size int      `json:"size"`
	Log  []string `json:"log"`
}

// Error is a non-2xx response. Message carries the server's body text.
type Error struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("livy %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// NotFound reports whether the server did not know the resource.
func (e *Error) NotFound() bool { return e.StatusCode == http.StatusNotFound }

// SessionNotFound reports a 404 for the session itself. A 404 for one
// statement of a live session names the statement, not the session.
func (e *Error) SessionNotFound() bool {
	if !e.NotFound() {
		return false
	}
	if strings.Contains(strings.ToLower(e.Message), "session") {
		return true
	}
	return !strings.Contains(e.Path, "/statements/")
}

// Options configure a Client.
type Options struct {
	URL      string
	Timeout  time.Duration
	Username string
	Password string
	Logger   *slog.Logger
}

// Client talks to one Livy server.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// New creates a Client for the server at opts.URL.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.URL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		// Livy rejects mutating requests without it when CSRF protection is on.
		SetHeader("X-Requested-By", "hue-gateway")
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	if opts.Username != "" {
		client.SetBasicAuth(opts.Username, opts.Password)
	}
	return &Client{http: client, logger: logger}
}

// CreateSession starts a session of the given kind (spark, pyspark, sparkr)
// on behalf of user.
func (c *Client) CreateSession(ctx context.Context, user, kind string, conf map[string]string) (*Session, error) {
	body := map[string]any{"kind": kind}
	if user != "" {
		body["proxyUser"] = user
	}
	if len(conf) > 0 {
		body["conf"] = conf
	}
	var out Session
	if err := c.do(ctx, http.MethodPost, "/sessions", body, &out); err != nil {
		return nil, err
	}
	c.logger.Debug("livy session created", "session", out.ID, "kind", kind, "user", user)
	return &out, nil
}

// GetSession returns the current state of a session.
func (c *Client) GetSession(ctx context.Context, id int) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodGet, sessionPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSessionLog returns up to size log lines starting at from.
func (c *Client) GetSessionLog(ctx context.Context, id, from, size int) ([]string, error) {
	var out logPage
	if err := c.doQuery(ctx, sessionPath(id)+"/log", logParams(from, size), &out); err != nil {
		return nil, err
	}
	return out.Log, nil
}

// SubmitStatement runs code in a session and returns the queued statement.
func (c *Client) SubmitStatement(ctx context.Context, sessionID int, code string) (*Statement, error) {
	var out Statement
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID)+"/statements", map[string]string{"code": code}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchData returns a statement with its output once available.
func (c *Client) FetchData(ctx context.Context, sessionID, statementID int) (*Statement, error) {
	var out Statement
	path := sessionPath(sessionID) + "/statements/" + strconv.Itoa(statementID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel interrupts whatever the session is running.
func (c *Client) Cancel(ctx context.Context, sessionID int) error {
	return c.do(ctx, http.MethodPost, sessionPath(sessionID)+"/interrupt", nil, nil)
}

// Close deletes the session.
func (c *Client) Close(ctx context.Context, sessionID int) error {
	return c.do(ctx, http.MethodDelete, sessionPath(sessionID), nil, nil)
}

// SubmitBatch starts a batch application.
func (c *Client) SubmitBatch(ctx context.Context, req BatchRequest) (*Batch, error) {
	var out Batch
	if err := c.do(ctx, http.MethodPost, "/batches", req, &out); err != nil {
		return nil, err
	}
	c.logger.Debug("livy batch submitted", "batch", out.ID, "file", req.File, "user", req.ProxyUser)
	return &out, nil
}

// GetBatchStatus returns the state of a batch.
func (c *Client) GetBatchStatus(ctx context.Context, id int) (string, error) {
	var out Batch
	if err := c.do(ctx, http.MethodGet, batchPath(id)+"/state", nil, &out); err != nil {
		return "", err
	}
	return out.State, nil
}

// GetBatchLog returns log lines of a batch joined by newlines.
func (c *Client) GetBatchLog(ctx context.Context, id, from, size int) (string, error) {
	var out logPage
	if err := c.doQuery(ctx, batchPath(id)+"/log", logParams(from, size), &out); err != nil {
		return "", err
	}
	return strings.Join(out.Log, "\n"), nil
}

// CloseBatch deletes a batch. Deleting a batch the server no longer knows
// succeeds.
func (c *Client) CloseBatch(ctx context.Context, id int) error {
	err := c.do(ctx, http.MethodDelete, batchPath(id), nil, nil)
	var lerr *Error
	if errors.As(err, &lerr) && lerr.NotFound() {
		c.logger.Debug("livy batch already closed", "batch", id)
		return nil
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("livy %s %s: %w", method, path, err)
	}
	return checkResponse(method, path, resp)
}

func (c *Client) doQuery(ctx context.Context, path string, params map[string]string, result any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(result).
		Get(path)
	if err != nil {
		return fmt.Errorf("livy GET %s: %w", path, err)
	}
	return checkResponse(http.MethodGet, path, resp)
}

func checkResponse(method, path string, resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	msg := strings.TrimSpace(resp.String())
	if msg == "" {
		msg = http.StatusText(resp.StatusCode())
	}
	return &Error{StatusCode: resp.StatusCode(), Method: method, Path: path, Message: msg}
}

func logParams(from, size int) map[string]string {
	params := map[string]string{}
	if from > 0 {
		params["from"] = strconv.Itoa(from)
	}
	if size > 0 {
		params["size"] = strconv.Itoa(size)
	}
	return params
}

func sessionPath(id int) string { return "/sessions/" + strconv.Itoa(id) }

func batchPath(id int) string { return "/batches/" + strconv.Itoa(id) }
