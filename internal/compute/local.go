// Package compute provides the embedded query backend used when no
// HiveServer2 cluster is configured.
package compute

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"hue-gateway/internal/domain"
)

var _ domain.QueryServerClient = (*LocalClient)(nil)

// LocalClient runs statements against a DuckDB database and exposes them
// through the same asynchronous handle protocol as a HiveServer2 session.
// Statements run in their own goroutine; results are buffered in memory
// until the operation is closed.
type LocalClient struct {
	db     *sql.DB
	logger *slog.Logger

	mu     sync.Mutex
	ops    map[string]*localOperation
	closed bool
}

type localOperation struct {
	handle *domain.QueryHandle
	cancel context.CancelFunc
	done   chan struct{}

	// guarded by LocalClient.mu
	state   domain.OperationState
	errMsg  string
	columns []domain.ColumnMeta
	rows    [][]any
	cursor  int
	log     []string
}

// NewLocalClient creates a LocalClient on db. The client does not own db.
func NewLocalClient(db *sql.DB, logger *slog.Logger) *LocalClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalClient{
		db:     db,
		logger: logger,
		ops:    make(map[string]*localOperation),
	}
}

// ExecuteStatement starts statement in the background and returns its handle.
func (c *LocalClient) ExecuteStatement(_ context.Context, statement string, _ map[string]string) (*domain.QueryHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, domain.ErrSessionExpired("local session is closed")
	}

	handle := &domain.QueryHandle{
		GUID:         domain.NewHandleIdentifier(),
		Secret:       domain.NewHandleIdentifier(),
		HasResultSet: true,
	}
	runCtx, cancel := context.WithCancel(context.Background())
	op := &localOperation{
		handle: handle,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  domain.OperationPending,
		log:    []string{logLine("Compiling statement")},
	}
	c.ops[handle.Key()] = op

	go c.run(runCtx, op, statement)
	return handle, nil
}

func (c *LocalClient) run(ctx context.Context, op *localOperation, statement string) {
	defer close(op.done)

	c.mu.Lock()
	if op.state == domain.OperationPending {
		op.state = domain.OperationRunning
		op.log = append(op.log, logLine("Executing statement"))
	}
	c.mu.Unlock()

	columns, rows, err := c.query(ctx, statement)

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case op.state == domain.OperationCanceled || op.state == domain.OperationClosed:
		// canceled while running; keep the terminal state
	case err != nil && errors.Is(ctx.Err(), context.Canceled):
		op.state = domain.OperationCanceled
	case err != nil:
		op.state = domain.OperationError
		op.errMsg = err.Error()
		op.log = append(op.log, logLine("FAILED: "+err.Error()))
	default:
		op.state = domain.OperationFinished
		op.columns = columns
		op.rows = rows
		op.log = append(op.log, logLine(fmt.Sprintf("Completed executing statement, %d rows", len(rows))))
	}
}

func (c *LocalClient) query(ctx context.Context, statement string) ([]domain.ColumnMeta, [][]any, error) {
	rows, err := c.db.QueryContext(ctx, statement)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, fmt.Errorf("column types: %w", err)
	}
	columns := make([]domain.ColumnMeta, len(types))
	for i, ct := range types {
		columns[i] = domain.ColumnMeta{Name: ct.Name(), Type: hiveTypeName(ct.DatabaseTypeName())}
	}

	var data [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, data, nil
}

// hiveTypeName renders a DuckDB type in the TTypeId naming used by
// HiveServer2 result metadata.
func hiveTypeName(duckType string) string {
	t := strings.ToUpper(duckType)
	switch {
	case t == "BOOLEAN":
		return "BOOLEAN_TYPE"
	case t == "TINYINT":
		return "TINYINT_TYPE"
	case t == "SMALLINT":
		return "SMALLINT_TYPE"
	case t == "INTEGER":
		return "INT_TYPE"
	case t == "BIGINT", t == "HUGEINT", t == "UBIGINT", t == "UINTEGER":
		return "BIGINT_TYPE"
	case t == "FLOAT":
		return "FLOAT_TYPE"
	case t == "DOUBLE":
		return "DOUBLE_TYPE"
	case strings.HasPrefix(t, "DECIMAL"):
		return "DECIMAL_TYPE"
	case t == "DATE":
		return "DATE_TYPE"
	case strings.HasPrefix(t, "TIMESTAMP"):
		return "TIMESTAMP_TYPE"
	case t == "BLOB":
		return "BINARY_TYPE"
	case strings.HasSuffix(t, "[]"), strings.HasPrefix(t, "LIST"):
		return "ARRAY_TYPE"
	case strings.HasPrefix(t, "MAP"):
		return "MAP_TYPE"
	case strings.HasPrefix(t, "STRUCT"):
		return "STRUCT_TYPE"
	}
	return "STRING_TYPE"
}

// GetOperationStatus reports the state of the statement.
func (c *LocalClient) GetOperationStatus(_ context.Context, handle *domain.QueryHandle) (*domain.OperationStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, err := c.lookup(handle)
	if err != nil {
		return nil, err
	}
	return &domain.OperationStatus{
		State:        op.state,
		ErrorMessage: op.errMsg,
		HasResultSet: op.handle.HasResultSet,
	}, nil
}

// FetchResults returns the next page of buffered rows.
func (c *LocalClient) FetchResults(_ context.Context, handle *domain.QueryHandle, startOver bool, maxRows int64) (*domain.ResultSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, err := c.lookup(handle)
	if err != nil {
		return nil, err
	}
	switch op.state {
	case domain.OperationFinished:
	case domain.OperationError:
		return nil, &domain.QueryError{Message: op.errMsg, Handle: op.handle}
	default:
		return nil, domain.ErrQuery("operation is in state %s, results are not available", op.state)
	}

	if startOver {
		op.cursor = 0
	}
	end := len(op.rows)
	if maxRows > 0 && op.cursor+int(maxRows) < end {
		end = op.cursor + int(maxRows)
	}
	page := op.rows[op.cursor:end]
	op.cursor = end
	return &domain.ResultSet{
		Columns: op.columns,
		Rows:    page,
		HasMore: op.cursor < len(op.rows),
		Ready:   true,
	}, nil
}

// GetResultsMetadata describes the result columns once the statement finished.
func (c *LocalClient) GetResultsMetadata(_ context.Context, handle *domain.QueryHandle) ([]domain.ColumnMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, err := c.lookup(handle)
	if err != nil {
		return nil, err
	}
	return op.columns, nil
}

// GetLog returns the statement's execution log.
func (c *LocalClient) GetLog(_ context.Context, handle *domain.QueryHandle, _ bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, err := c.lookup(handle)
	if err != nil {
		return "", err
	}
	return strings.Join(op.log, "\n"), nil
}

// CancelOperation interrupts a running statement. Canceling a finished
// statement is a no-op.
func (c *LocalClient) CancelOperation(_ context.Context, handle *domain.QueryHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, err := c.lookup(handle)
	if err != nil {
		return err
	}
	if op.state.QueryState().IsRunning() {
		op.state = domain.OperationCanceled
		op.log = append(op.log, logLine("Statement canceled"))
		op.cancel()
	}
	return nil
}

// CloseOperation cancels the statement if needed and drops its results.
func (c *LocalClient) CloseOperation(_ context.Context, handle *domain.QueryHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, err := c.lookup(handle)
	if err != nil {
		return err
	}
	op.state = domain.OperationClosed
	op.cancel()
	delete(c.ops, handle.Key())
	return nil
}

// GetDefaultConfiguration returns the DuckDB settings. The local backend
// always supports rewinding a result set.
func (c *LocalClient) GetDefaultConfiguration(ctx context.Context, _ bool) (map[string]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT name, value FROM duckdb_settings()")
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	conf := map[string]string{}
	for rows.Next() {
		var name string
		var value sql.NullString
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		conf[strings.ToLower(name)] = value.String
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	conf["support_start_over"] = "true"
	return conf, nil
}

// Close cancels every outstanding statement and waits for them to stop.
func (c *LocalClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pending := make([]*localOperation, 0, len(c.ops))
	for key, op := range c.ops {
		op.cancel()
		pending = append(pending, op)
		delete(c.ops, key)
	}
	c.mu.Unlock()

	for _, op := range pending {
		<-op.done
	}
	c.logger.Debug("local session closed", "operations", len(pending))
	return nil
}

// lookup must be called with c.mu held.
func (c *LocalClient) lookup(handle *domain.QueryHandle) (*localOperation, error) {
	if c.closed {
		return nil, domain.ErrSessionExpired("local session is closed")
	}
	if err := handle.Validate(); err != nil {
		return nil, err
	}
	op, ok := c.ops[handle.Key()]
	if !ok || string(op.handle.Secret) != string(handle.Secret) {
		return nil, domain.ErrQueryExpired("Invalid OperationHandle: %s", handle.Key())
	}
	return op, nil
}

func logLine(msg string) string {
	return time.Now().UTC().Format("06/01/02 15:04:05") + " INFO : " + msg
}
