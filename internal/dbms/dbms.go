// Package dbms is the query gateway in front of HiveServer2-compatible
// backends: submission, polling with deadlines, fetching, cancellation and
// query history bookkeeping.
package dbms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"hue-gateway/internal/domain"
	"hue-gateway/internal/metrics"
)

// Defaults used when Options leave a value unset.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
	DefaultFetchSize    = 100
	DefaultMaxFetchSize = 10000
)

// Options configure a Dbms.
type Options struct {
	Timeout      time.Duration
	PollInterval time.Duration
	FetchSize    int64
	MaxFetchSize int64
	History      domain.QueryHistoryRepository
	Metrics      *metrics.Gateway
	Logger       *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.FetchSize <= 0 {
		o.FetchSize = DefaultFetchSize
	}
	if o.MaxFetchSize <= 0 {
		o.MaxFetchSize = DefaultMaxFetchSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Dbms executes statements for one user on one query server.
type Dbms struct {
	client domain.QueryServerClient
	server domain.QueryServer
	user   string
	opts   Options
	logger *slog.Logger

	startOverMu sync.Mutex
	startOver   *bool

	lastUsed atomic.Int64
}

// New creates a Dbms over an open client session.
func New(client domain.QueryServerClient, server domain.QueryServer, user string, opts Options) *Dbms {
	opts.applyDefaults()
	d := &Dbms{
		client: client,
		server: server,
		user:   user,
		opts:   opts,
		logger: opts.Logger.With("server", server.Name, "user", user),
	}
	d.touch()
	return d
}

// Server returns the query server definition.
func (d *Dbms) Server() domain.QueryServer { return d.server }

// User returns the user statements run as.
func (d *Dbms) User() string { return d.user }

// IdleSince returns when the gateway was last used.
func (d *Dbms) IdleSince() time.Time { return time.Unix(0, d.lastUsed.Load()) }

func (d *Dbms) touch() { d.lastUsed.Store(time.Now().UnixNano()) }

// fail classifies a backend error and records expiries.
func (d *Dbms) fail(err error) error {
	err = domain.ClassifyError(err)
	var (
		queryErr   *domain.QueryExpiredError
		sessionErr *domain.SessionExpiredError
	)
	switch {
	case errors.As(err, &queryErr):
		d.opts.Metrics.QueryExpired("hs2")
	case errors.As(err, &sessionErr):
		d.opts.Metrics.SessionExpired("hs2")
	}
	return err
}

// Submit sends statement to the server and returns its handle without
// waiting.
func (d *Dbms) Submit(ctx context.Context, statement string) (*domain.QueryHandle, error) {
	d.touch()
	handle, err := d.client.ExecuteStatement(ctx, statement, nil)
	d.opts.Metrics.StatementSubmitted(d.server.Name, err != nil)
	if err != nil {
		return nil, d.attachLog(ctx, d.fail(err))
	}
	d.logger.Debug("statement submitted", "handle", handle.Key())
	return handle, nil
}

// GetOperationStatus returns the raw backend status of a statement.
func (d *Dbms) GetOperationStatus(ctx context.Context, handle *domain.QueryHandle) (*domain.OperationStatus, error) {
	d.touch()
	status, err := d.client.GetOperationStatus(ctx, handle)
	if err != nil {
		return nil, d.fail(err)
	}
	return status, nil
}

// GetState returns the gateway state of a statement.
func (d *Dbms) GetState(ctx context.Context, handle *domain.QueryHandle) (domain.QueryState, error) {
	status, err := d.GetOperationStatus(ctx, handle)
	if err != nil {
		return "", err
	}
	return status.State.QueryState(), nil
}

// ExecuteAndWait submits statement and polls every interval until it leaves
// the running states or timeout elapses. A statement still running at the
// deadline is cancelled (or closed when cancel fails) and (nil, nil) is
// returned. Zero durations use the configured defaults.
func (d *Dbms) ExecuteAndWait(ctx context.Context, statement string, timeout, interval time.Duration) (*domain.QueryHandle, error) {
	if timeout <= 0 {
		timeout = d.opts.Timeout
	}
	if interval <= 0 {
		interval = d.opts.PollInterval
	}

	start := time.Now()
	deadline := start.Add(timeout)
	handle, err := d.Submit(ctx, statement)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		state, err := d.GetState(ctx, handle)
		if err != nil {
			return nil, err
		}
		if !state.IsRunning() {
			d.opts.Metrics.ExecuteAndWaitDone(d.server.Name, time.Since(start), false)
			return handle, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		timer.Reset(min(interval, remaining))
		select {
		case <-ctx.Done():
			d.logger.Info("caller gave up on statement", "handle", handle.Key(), "error", ctx.Err())
			d.abandon(context.WithoutCancel(ctx), handle)
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	d.opts.Metrics.ExecuteAndWaitDone(d.server.Name, time.Since(start), true)
	d.logger.Info("statement exceeded deadline", "timeout", timeout, "handle", handle.Key())
	d.abandon(ctx, handle)
	return nil, nil
}

// abandon cancels a statement nobody waits for, closing it when cancel
// fails. Errors are logged only.
func (d *Dbms) abandon(ctx context.Context, handle *domain.QueryHandle) {
	if err := d.CancelOperation(ctx, handle); err != nil {
		d.logger.Warn("cancel of abandoned statement failed, closing", "error", err)
		if err := d.CloseOperation(ctx, handle); err != nil {
			d.logger.Warn("close of abandoned statement failed", "error", err)
		}
	}
}

// supportsStartOver reports whether the server can rewind a result set. The
// answer is cached after the first successful lookup.
func (d *Dbms) supportsStartOver(ctx context.Context) bool {
	d.startOverMu.Lock()
	defer d.startOverMu.Unlock()
	if d.startOver != nil {
		return *d.startOver
	}

	conf, err := d.client.GetDefaultConfiguration(ctx, false)
	if err != nil {
		d.logger.Warn("read default configuration", "error", err)
		return true
	}
	supported := !strings.EqualFold(conf["support_start_over"], "false")
	d.startOver = &supported
	return supported
}

// Fetch returns up to rows rows of a finished statement. startOver is
// ignored by servers that cannot rewind. rows <= 0 uses the default page
// size; larger requests are capped.
func (d *Dbms) Fetch(ctx context.Context, handle *domain.QueryHandle, startOver bool, rows int64) (*domain.ResultSet, error) {
	d.touch()
	if startOver && !d.supportsStartOver(ctx) {
		startOver = false
	}
	if rows <= 0 {
		rows = d.opts.FetchSize
	}
	if rows > d.opts.MaxFetchSize {
		rows = d.opts.MaxFetchSize
	}
	result, err := d.client.FetchResults(ctx, handle, startOver, rows)
	if err != nil {
		return nil, d.fail(err)
	}
	return result, nil
}

// FetchAll reads the whole result set from the start, stopping at limit
// rows when limit > 0.
func (d *Dbms) FetchAll(ctx context.Context, handle *domain.QueryHandle, limit int64) (*domain.ResultSet, error) {
	all := &domain.ResultSet{Ready: true}
	startOver := true
	for {
		page, err := d.Fetch(ctx, handle, startOver, d.opts.MaxFetchSize)
		if err != nil {
			return nil, err
		}
		startOver = false
		if all.Columns == nil {
			all.Columns = page.Columns
		}
		all.Rows = append(all.Rows, page.Rows...)
		if limit > 0 && int64(len(all.Rows)) >= limit {
			all.HasMore = page.HasMore || int64(len(all.Rows)) > limit
			all.Rows = all.Rows[:limit]
			return all, nil
		}
		if !page.HasMore || len(page.Rows) == 0 {
			return all, nil
		}
	}
}

// GetResultsMetadata describes the result columns of a statement.
func (d *Dbms) GetResultsMetadata(ctx context.Context, handle *domain.QueryHandle) ([]domain.ColumnMeta, error) {
	d.touch()
	cols, err := d.client.GetResultsMetadata(ctx, handle)
	if err != nil {
		return nil, d.fail(err)
	}
	return cols, nil
}

// GetLog returns the statement's execution log.
func (d *Dbms) GetLog(ctx context.Context, handle *domain.QueryHandle, startOver bool) (string, error) {
	d.touch()
	log, err := d.client.GetLog(ctx, handle, startOver)
	if err != nil {
		return "", d.fail(err)
	}
	return log, nil
}

// CancelOperation stops a running statement. Impala statements are also
// closed.
func (d *Dbms) CancelOperation(ctx context.Context, handle *domain.QueryHandle) error {
	d.touch()
	if err := d.client.CancelOperation(ctx, handle); err != nil {
		return d.fail(err)
	}
	d.logger.Debug("statement cancelled", "handle", handle.Key())
	if d.server.Type.IsImpala() {
		return d.CloseOperation(ctx, handle)
	}
	return nil
}

// CloseOperation releases a statement on the server.
func (d *Dbms) CloseOperation(ctx context.Context, handle *domain.QueryHandle) error {
	d.touch()
	if err := d.client.CloseOperation(ctx, handle); err != nil {
		return d.fail(err)
	}
	return nil
}

// GetDefaultConfiguration returns the session configuration of the server.
func (d *Dbms) GetDefaultConfiguration(ctx context.Context, includeHadoop bool) (map[string]string, error) {
	d.touch()
	conf, err := d.client.GetDefaultConfiguration(ctx, includeHadoop)
	if err != nil {
		return nil, d.fail(err)
	}
	return conf, nil
}

// Use switches the session's current database.
func (d *Dbms) Use(ctx context.Context, database string) error {
	db, err := quoteIdent(database)
	if err != nil {
		return err
	}
	handle, err := d.ExecuteAndWait(ctx, "USE "+db, 0, 0)
	if err != nil {
		return err
	}
	if handle == nil {
		return domain.ErrQuery("USE %s did not finish in time", database)
	}
	d.closeQuietly(ctx, handle)
	return nil
}

// ExecuteAndWatch records a history entry, submits statement and returns the
// entry in the running state. A rejected submission is recorded as failed.
func (d *Dbms) ExecuteAndWatch(ctx context.Context, statement string, queryType domain.QueryType) (*domain.QueryHistory, error) {
	if d.opts.History == nil {
		return nil, fmt.Errorf("query history is not configured")
	}
	history, err := d.opts.History.Create(ctx, &domain.QueryHistory{
		Owner:      d.user,
		Query:      statement,
		ServerName: d.server.Name,
		ServerHost: d.server.Host,
		ServerPort: d.server.Port,
		ServerType: d.server.Type,
		QueryType:  queryType,
		LastState:  domain.QueryStateSubmitted,
	})
	if err != nil {
		return nil, fmt.Errorf("record query history: %w", err)
	}
	d.logger.Debug("query history created", "history_id", history.ID)

	handle, err := d.Submit(ctx, statement)
	if err == nil {
		err = handle.Validate()
	}
	if err != nil {
		msg := err.Error()
		if saveErr := d.opts.History.SaveState(ctx, history.ID, domain.QueryStateFailed, &msg); saveErr != nil {
			d.logger.Warn("record failed submission", "history_id", history.ID, "error", saveErr)
		}
		return nil, err
	}

	if err := d.opts.History.SaveHandle(ctx, history.ID, handle, domain.QueryStateRunning); err != nil {
		return nil, fmt.Errorf("record query handle: %w", err)
	}
	history.SetHandle(handle)
	history.LastState = domain.QueryStateRunning
	return history, nil
}

// ExecuteStatement runs statement through ExecuteAndWatch with the query
// type of the server.
func (d *Dbms) ExecuteStatement(ctx context.Context, statement string) (*domain.QueryHistory, error) {
	return d.ExecuteAndWatch(ctx, statement, domain.QueryTypeForServer(d.server.Type))
}

// RefreshHistory polls the statement of a history record and persists the
// resulting state. Records whose handle is missing or unknown to the server
// are marked expired.
func (d *Dbms) RefreshHistory(ctx context.Context, history *domain.QueryHistory) (domain.QueryState, error) {
	if d.opts.History == nil {
		return "", fmt.Errorf("query history is not configured")
	}

	var (
		state  domain.QueryState
		errMsg *string
	)
	if history.Handle.Validate() != nil {
		state = domain.QueryStateExpired
	} else {
		status, err := d.GetOperationStatus(ctx, history.Handle)
		switch {
		case domain.IsExpired(err):
			state = domain.QueryStateExpired
		case err != nil:
			return "", err
		default:
			state = status.State.QueryState()
			if state == domain.QueryStateFailed && status.ErrorMessage != "" {
				errMsg = &status.ErrorMessage
			}
		}
	}

	if state != history.LastState || errMsg != nil {
		if err := d.opts.History.SaveState(ctx, history.ID, state, errMsg); err != nil {
			return "", fmt.Errorf("save history state: %w", err)
		}
		d.logger.Debug("query history refreshed", "history_id", history.ID, "from", history.LastState, "to", state)
		d.opts.Metrics.HistoryRefreshed(string(state))
	}
	history.LastState = state
	return state, nil
}

// ExpandError returns the message of err and the backend log of handle.
// A log that cannot be fetched is replaced by a description of why.
func (d *Dbms) ExpandError(ctx context.Context, err error, handle *domain.QueryHandle) (string, string) {
	message := "Unknown exception."
	if err != nil && err.Error() != "" {
		message = err.Error()
	}
	if handle == nil {
		var qe *domain.QueryError
		if errors.As(err, &qe) {
			handle = qe.Handle
		}
	}
	if handle == nil {
		return message, ""
	}
	log, logErr := d.client.GetLog(ctx, handle, true)
	if logErr != nil {
		return message, fmt.Sprintf("Could not retrieve logs: %s.", logErr)
	}
	return message, log
}

// Failure builds the error of a statement the server reported failed, with
// the statement log attached.
func (d *Dbms) Failure(ctx context.Context, handle *domain.QueryHandle, message string) *domain.QueryError {
	qe := &domain.QueryError{Message: message, Handle: handle}
	qe.Message, qe.Log = d.ExpandError(ctx, qe, handle)
	return qe
}

// attachLog fills in the log of a failed statement the server still has a
// handle for.
func (d *Dbms) attachLog(ctx context.Context, err error) error {
	var qe *domain.QueryError
	if !errors.As(err, &qe) || qe.Handle == nil || qe.Log != "" {
		return err
	}
	_, qe.Log = d.ExpandError(ctx, qe, qe.Handle)
	return err
}

// Close closes the underlying session. Handles issued by it become invalid.
func (d *Dbms) Close() error {
	return d.client.Close()
}

func (d *Dbms) closeQuietly(ctx context.Context, handle *domain.QueryHandle) {
	if err := d.CloseOperation(ctx, handle); err != nil {
		d.logger.Warn("close operation", "handle", handle.Key(), "error", err)
	}
}
