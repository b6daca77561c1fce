package notebook

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"

	"hue-gateway/internal/dbms"
	"hue-gateway/internal/domain"
)

// HS2API runs hive, impala and spark-sql snippets on pooled HiveServer2
// sessions.
type HS2API struct {
	user   string
	pool   *dbms.Pool
	logger *slog.Logger
}

var _ API = (*HS2API)(nil)

// db returns the user's gateway for the server snippets of type lang run on.
func (a *HS2API) db(ctx context.Context, lang domain.SnippetType) (*dbms.Dbms, error) {
	d, err := a.pool.GetOrCreate(ctx, a.user, domain.ServerNameForSnippet(lang))
	if err != nil {
		return nil, a.check(lang, err)
	}
	return d, nil
}

// check drops the pooled session when the server reports it gone, so the
// next call opens a fresh one.
func (a *HS2API) check(lang domain.SnippetType, err error) error {
	var sessionErr *domain.SessionExpiredError
	if errors.As(err, &sessionErr) {
		a.pool.Evict(a.user, domain.ServerNameForSnippet(lang))
	}
	return err
}

// CreateSession returns a placeholder. HiveServer2 sessions are opened
// lazily by the pool.
func (a *HS2API) CreateSession(_ context.Context, lang domain.SnippetType, _ map[string]string) (*domain.Session, error) {
	return &domain.Session{Type: lang}, nil
}

// Execute submits the snippet's statement and returns its encoded handle.
func (a *HS2API) Execute(ctx context.Context, _ *domain.Notebook, snippet *domain.Snippet) (map[string]any, error) {
	d, err := a.db(ctx, snippet.Type)
	if err != nil {
		return nil, err
	}
	history, err := d.ExecuteStatement(ctx, snippet.Statement)
	if err != nil {
		return nil, a.check(snippet.Type, err)
	}
	return submitted(history), nil
}

// CheckStatus reports running or available. Failed and expired statements
// are returned as a QueryError carrying the server's message and the
// statement log.
func (a *HS2API) CheckStatus(ctx context.Context, _ *domain.Notebook, snippet *domain.Snippet) (*Status, error) {
	d, handle, err := a.resolve(ctx, snippet)
	if err != nil {
		return nil, err
	}
	status, err := d.GetOperationStatus(ctx, handle)
	if err != nil {
		return nil, a.check(snippet.Type, err)
	}
	state := status.State.QueryState()
	switch {
	case state.IsFailure():
		return nil, d.Failure(ctx, handle, status.ErrorMessage)
	case state.IsRunning():
		return &Status{Status: "running"}, nil
	default:
		return &Status{Status: "available"}, nil
	}
}

// FetchResult returns the next page of rows, or the first one when
// startOver is set.
func (a *HS2API) FetchResult(ctx context.Context, _ *domain.Notebook, snippet *domain.Snippet, rows int64, startOver bool) (*Result, error) {
	d, handle, err := a.resolve(ctx, snippet)
	if err != nil {
		return nil, err
	}
	rs, err := d.Fetch(ctx, handle, startOver, rows)
	if err != nil {
		return nil, a.check(snippet.Type, err)
	}
	data := rs.Rows
	if data == nil {
		data = [][]any{}
	}
	meta := rs.Columns
	if meta == nil {
		meta = []domain.ColumnMeta{}
	}
	return &Result{HasMore: rs.HasMore, Data: data, Meta: meta, Type: ResultTable}, nil
}

// FetchResultMetadata describes the result columns.
func (a *HS2API) FetchResultMetadata(ctx context.Context, _ *domain.Notebook, snippet *domain.Snippet) ([]domain.ColumnMeta, error) {
	d, handle, err := a.resolve(ctx, snippet)
	if err != nil {
		return nil, err
	}
	cols, err := d.GetResultsMetadata(ctx, handle)
	if err != nil {
		return nil, a.check(snippet.Type, err)
	}
	return cols, nil
}

// Cancel stops the statement.
func (a *HS2API) Cancel(ctx context.Context, _ *domain.Notebook, snippet *domain.Snippet) (*Ack, error) {
	d, handle, err := a.resolve(ctx, snippet)
	if err != nil {
		return nil, err
	}
	if err := d.CancelOperation(ctx, handle); err != nil {
		return nil, a.check(snippet.Type, err)
	}
	return ackDone, nil
}

// Close releases the statement when the server is configured to close
// queries, and is skipped otherwise.
func (a *HS2API) Close(ctx context.Context, _ *domain.Notebook, snippet *domain.Snippet) (*Ack, error) {
	server, err := a.pool.Server(domain.ServerNameForSnippet(snippet.Type))
	if err != nil {
		return nil, err
	}
	if !server.CloseQueries {
		return ackSkipped, nil
	}
	d, handle, err := a.resolve(ctx, snippet)
	if err != nil {
		return nil, err
	}
	if err := d.CloseOperation(ctx, handle); err != nil {
		return nil, a.check(snippet.Type, err)
	}
	return ackDone, nil
}

// GetLog returns the statement log, from the beginning when startFrom is 0.
func (a *HS2API) GetLog(ctx context.Context, _ *domain.Notebook, snippet *domain.Snippet, startFrom, _ int) (string, error) {
	d, handle, err := a.resolve(ctx, snippet)
	if err != nil {
		return "", err
	}
	log, err := d.GetLog(ctx, handle, startFrom == 0)
	if err != nil {
		return "", a.check(snippet.Type, err)
	}
	return log, nil
}

// Progress estimates completion from the statement log.
func (a *HS2API) Progress(snippet *domain.Snippet, logs string) int {
	return progress(snippet.Type, logs)
}

// GetJobs lists the Hadoop jobs the statement started.
func (a *HS2API) GetJobs(_ context.Context, _ *domain.Notebook, _ *domain.Snippet, logs string) ([]Job, error) {
	return parseHadoopJobs(logs), nil
}

func (a *HS2API) resolve(ctx context.Context, snippet *domain.Snippet) (*dbms.Dbms, *domain.QueryHandle, error) {
	handle, err := decodeHandle(snippet.Result.Handle)
	if err != nil {
		return nil, nil, err
	}
	d, err := a.db(ctx, snippet.Type)
	if err != nil {
		return nil, nil, err
	}
	return d, handle, nil
}

// encodeHandle renders a handle in the form clients send back.
func encodeHandle(h *domain.QueryHandle) map[string]any {
	out := map[string]any{
		"secret":         base64.StdEncoding.EncodeToString(h.Secret),
		"guid":           base64.StdEncoding.EncodeToString(h.GUID),
		"operation_type": h.OperationType,
		"has_result_set": h.HasResultSet,
		"log_context":    h.LogContext,
	}
	if h.ModifiedRowCount != nil {
		out["modified_row_count"] = *h.ModifiedRowCount
	} else {
		out["modified_row_count"] = nil
	}
	return out
}

// decodeHandle is the inverse of encodeHandle.
func decodeHandle(m map[string]any) (*domain.QueryHandle, error) {
	if len(m) == 0 {
		return nil, domain.ErrValidation("snippet has no query handle")
	}
	secret, err := decodeBytes(m, "secret")
	if err != nil {
		return nil, err
	}
	guid, err := decodeBytes(m, "guid")
	if err != nil {
		return nil, err
	}
	h := &domain.QueryHandle{Secret: secret, GUID: guid}
	if v, ok := m["operation_type"].(float64); ok {
		h.OperationType = int(v)
	} else if v, ok := m["operation_type"].(int); ok {
		h.OperationType = v
	}
	h.HasResultSet, _ = m["has_result_set"].(bool)
	if v, ok := m["modified_row_count"].(float64); ok {
		h.ModifiedRowCount = &v
	}
	h.LogContext, _ = m["log_context"].(string)
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

func decodeBytes(m map[string]any, key string) ([]byte, error) {
	s, ok := m[key].(string)
	if !ok {
		return nil, domain.ErrValidation("query handle %s must be a string", key)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, domain.ErrValidation("query handle %s is not valid base64", key)
	}
	return b, nil
}
