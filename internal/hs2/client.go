// Package hs2 is a HiveServer2 (TCLIService) client used for Hive, Impala and
// Spark SQL query servers.
package hs2

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/beltran/gohive/hiveserver"

	"hue-gateway/internal/domain"
)

// Service is the subset of the generated TCLIService client the gateway uses.
type Service interface {
	OpenSession(ctx context.Context, req *hiveserver.TOpenSessionReq) (*hiveserver.TOpenSessionResp, error)
	CloseSession(ctx context.Context, req *hiveserver.TCloseSessionReq) (*hiveserver.TCloseSessionResp, error)
	ExecuteStatement(ctx context.Context, req *hiveserver.TExecuteStatementReq) (*hiveserver.TExecuteStatementResp, error)
	GetOperationStatus(ctx context.Context, req *hiveserver.TGetOperationStatusReq) (*hiveserver.TGetOperationStatusResp, error)
	CancelOperation(ctx context.Context, req *hiveserver.TCancelOperationReq) (*hiveserver.TCancelOperationResp, error)
	CloseOperation(ctx context.Context, req *hiveserver.TCloseOperationReq) (*hiveserver.TCloseOperationResp, error)
	GetResultSetMetadata(ctx context.Context, req *hiveserver.TGetResultSetMetadataReq) (*hiveserver.TGetResultSetMetadataResp, error)
	FetchResults(ctx context.Context, req *hiveserver.TFetchResultsReq) (*hiveserver.TFetchResultsResp, error)
}

var (
	_ Service                  = (*hiveserver.TCLIServiceClient)(nil)
	_ domain.QueryServerClient = (*Client)(nil)
)

const (
	// fetchTypeLog selects the operation log instead of the result set.
	fetchTypeLog int16 = 1

	configPollInterval = 100 * time.Millisecond
)

// Client is one open HiveServer2 session. A thrift client multiplexes a
// single connection, so calls are serialized.
type Client struct {
	mu        sync.Mutex
	svc       Service
	transport io.Closer
	session   *hiveserver.TSessionHandle
	server    domain.QueryServer
	logger    *slog.Logger
	closed    bool
}

// OpenSession opens a session on svc as user. transport, when non-nil, is
// closed together with the session.
func OpenSession(ctx context.Context, svc Service, transport io.Closer, server domain.QueryServer, user string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	req := hiveserver.NewTOpenSessionReq()
	req.ClientProtocol = hiveserver.TProtocolVersion_HIVE_CLI_SERVICE_PROTOCOL_V6
	req.Username = &user
	if server.Password != "" {
		password := server.Password
		req.Password = &password
	}
	conf := map[string]string{}
	for k, v := range server.Configuration {
		conf[k] = v
	}
	if server.Type != domain.ServerTypeImpala {
		conf["hive.server2.proxy.user"] = user
	} else {
		conf["impala.doas.user"] = user
	}
	req.Configuration = conf

	resp, err := svc.OpenSession(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("open session on %s: %w", server.Name, err)
	}
	if err := checkStatus(resp.GetStatus()); err != nil {
		return nil, fmt.Errorf("open session on %s: %w", server.Name, err)
	}

	logger.Debug("hs2 session opened", "server", server.Name, "user", user)
	return &Client{
		svc:       svc,
		transport: transport,
		session:   resp.GetSessionHandle(),
		server:    server,
		logger:    logger,
	}, nil
}

// ExecuteStatement submits statement asynchronously.
func (c *Client) ExecuteStatement(ctx context.Context, statement string, conf map[string]string) (*domain.QueryHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	req := hiveserver.NewTExecuteStatementReq()
	req.SessionHandle = c.session
	req.Statement = statement
	req.ConfOverlay = conf
	req.RunAsync = true

	resp, err := c.svc.ExecuteStatement(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute statement: %w", err)
	}
	if err := checkStatus(resp.GetStatus()); err != nil {
		return nil, err
	}
	handle := fromThriftHandle(resp.GetOperationHandle())
	if handle == nil {
		return nil, fmt.Errorf("execute statement: server returned no operation handle")
	}
	return handle, nil
}

// GetOperationStatus polls the state of a submitted statement.
func (c *Client) GetOperationStatus(ctx context.Context, handle *domain.QueryHandle) (*domain.OperationStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	req := hiveserver.NewTGetOperationStatusReq()
	req.OperationHandle = toThriftHandle(handle)
	resp, err := c.svc.GetOperationStatus(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get operation status: %w", err)
	}
	if err := checkStatus(resp.GetStatus()); err != nil {
		return nil, err
	}
	return &domain.OperationStatus{
		State:        domain.OperationState(resp.GetOperationState().String()),
		ErrorMessage: resp.GetErrorMessage(),
		SQLState:     resp.GetSqlState(),
		TaskStatus:   resp.GetTaskStatus(),
		HasResultSet: handle.HasResultSet,
	}, nil
}

// FetchResults returns up to maxRows rows. startOver rewinds the cursor to
// the first row.
func (c *Client) FetchResults(ctx context.Context, handle *domain.QueryHandle, startOver bool, maxRows int64) (*domain.ResultSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	columns, err := c.resultsMetadata(ctx, handle)
	if err != nil {
		return nil, err
	}

	req := hiveserver.NewTFetchResultsReq()
	req.OperationHandle = toThriftHandle(handle)
	req.Orientation = orientation(startOver)
	req.MaxRows = maxRows
	resp, err := c.svc.FetchResults(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch results: %w", err)
	}
	if err := checkStatus(resp.GetStatus()); err != nil {
		return nil, err
	}

	rows, err := decodeColumns(rowSetColumns(resp.GetResults()))
	if err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	hasMore := resp.GetHasMoreRows()
	// Some servers never set hasMoreRows; a full page means there may be more.
	if !resp.IsSetHasMoreRows() {
		hasMore = maxRows > 0 && int64(len(rows)) >= maxRows
	}
	return &domain.ResultSet{Columns: columns, Rows: rows, HasMore: hasMore, Ready: true}, nil
}

// GetResultsMetadata describes the result columns of a statement.
func (c *Client) GetResultsMetadata(ctx context.Context, handle *domain.QueryHandle) ([]domain.ColumnMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.resultsMetadata(ctx, handle)
}

func (c *Client) resultsMetadata(ctx context.Context, handle *domain.QueryHandle) ([]domain.ColumnMeta, error) {
	req := hiveserver.NewTGetResultSetMetadataReq()
	req.OperationHandle = toThriftHandle(handle)
	resp, err := c.svc.GetResultSetMetadata(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get result set metadata: %w", err)
	}
	if err := checkStatus(resp.GetStatus()); err != nil {
		return nil, err
	}
	return decodeSchema(resp.GetSchema()), nil
}

// GetLog returns the statement's operation log.
func (c *Client) GetLog(ctx context.Context, handle *domain.QueryHandle, startOver bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return "", err
	}

	req := hiveserver.NewTFetchResultsReq()
	req.OperationHandle = toThriftHandle(handle)
	req.Orientation = orientation(startOver)
	req.MaxRows = 10000
	req.FetchType = fetchTypeLog
	resp, err := c.svc.FetchResults(ctx, req)
	if err != nil {
		return "", fmt.Errorf("fetch log: %w", err)
	}
	if err := checkStatus(resp.GetStatus()); err != nil {
		return "", err
	}

	var lines []string
	for _, col := range rowSetColumns(resp.GetResults()) {
		if col.IsSetStringVal() {
			lines = append(lines, col.StringVal.Values...)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// CancelOperation asks the server to stop a running statement.
func (c *Client) CancelOperation(ctx context.Context, handle *domain.QueryHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	req := hiveserver.NewTCancelOperationReq()
	req.OperationHandle = toThriftHandle(handle)
	resp, err := c.svc.CancelOperation(ctx, req)
	if err != nil {
		return fmt.Errorf("cancel operation: %w", err)
	}
	return checkStatus(resp.GetStatus())
}

// CloseOperation releases the server-side state of a statement.
func (c *Client) CloseOperation(ctx context.Context, handle *domain.QueryHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	req := hiveserver.NewTCloseOperationReq()
	req.OperationHandle = toThriftHandle(handle)
	resp, err := c.svc.CloseOperation(ctx, req)
	if err != nil {
		return fmt.Errorf("close operation: %w", err)
	}
	return checkStatus(resp.GetStatus())
}

// GetDefaultConfiguration runs SET (or SET -v including Hadoop settings) and
// returns the session configuration with lower-cased keys.
func (c *Client) GetDefaultConfiguration(ctx context.Context, includeHadoop bool) (map[string]string, error) {
	statement := "SET"
	if includeHadoop && c.server.Type != domain.ServerTypeImpala {
		statement = "SET -v"
	}

	handle, err := c.ExecuteStatement(ctx, statement, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := c.CloseOperation(context.WithoutCancel(ctx), handle); err != nil {
			c.logger.Debug("close SET operation", "error", err)
		}
	}()

	if err := c.waitFinished(ctx, handle); err != nil {
		return nil, err
	}

	result, err := c.FetchResults(ctx, handle, true, 100000)
	if err != nil {
		return nil, err
	}
	return parseConfiguration(result.Rows), nil
}

func (c *Client) waitFinished(ctx context.Context, handle *domain.QueryHandle) error {
	ticker := time.NewTicker(configPollInterval)
	defer ticker.Stop()
	for {
		status, err := c.GetOperationStatus(ctx, handle)
		if err != nil {
			return err
		}
		state := status.State.QueryState()
		if !state.IsRunning() {
			if state != domain.QueryStateAvailable {
				return &domain.QueryError{Message: status.ErrorMessage, Handle: handle}
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func parseConfiguration(rows [][]any) map[string]string {
	conf := make(map[string]string, len(rows))
	for _, row := range rows {
		switch {
		case len(row) >= 2:
			conf[strings.ToLower(fmt.Sprint(row[0]))] = fmt.Sprint(row[1])
		case len(row) == 1:
			if k, v, ok := strings.Cut(fmt.Sprint(row[0]), "="); ok {
				conf[strings.ToLower(k)] = v
			}
		}
	}
	return conf
}

// Close closes the session and the underlying transport.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	req := hiveserver.NewTCloseSessionReq()
	req.SessionHandle = c.session
	var errs []error
	if resp, err := c.svc.CloseSession(context.Background(), req); err != nil {
		errs = append(errs, fmt.Errorf("close session: %w", err))
	} else if err := checkStatus(resp.GetStatus()); err != nil {
		errs = append(errs, err)
	}
	if c.transport != nil {
		if err := c.transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close transport: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Client) checkOpen() error {
	if c.closed {
		return domain.ErrSessionExpired("session to %s is closed", c.server.Name)
	}
	return nil
}

func rowSetColumns(rs *hiveserver.TRowSet) []*hiveserver.TColumn {
	if rs == nil {
		return nil
	}
	return rs.Columns
}

func orientation(startOver bool) hiveserver.TFetchOrientation {
	if startOver {
		return hiveserver.TFetchOrientation_FETCH_FIRST
	}
	return hiveserver.TFetchOrientation_FETCH_NEXT
}

// checkStatus converts a non-success TStatus into a StatusError.
func checkStatus(status *hiveserver.TStatus) error {
	if status == nil {
		return &StatusError{Message: "missing status in response"}
	}
	switch status.GetStatusCode() {
	case hiveserver.TStatusCode_SUCCESS_STATUS, hiveserver.TStatusCode_SUCCESS_WITH_INFO_STATUS, hiveserver.TStatusCode_STILL_EXECUTING_STATUS:
		return nil
	}
	return &StatusError{
		Code:     status.GetStatusCode().String(),
		SQLState: status.GetSqlState(),
		Message:  status.GetErrorMessage(),
	}
}

// StatusError is a non-success status returned by the server.
type StatusError struct {
	Code     string
	SQLState string
	Message  string
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
