package domain

import "time"

// QueryHistory records one submitted statement. Rows are never deleted; a
// statement whose handle the backend no longer knows is marked expired.
type QueryHistory struct {
	ID               string
	Owner            string
	Query            string
	ServerName       string
	ServerHost       string
	ServerPort       int
	ServerType       ServerType
	QueryType        QueryType
	LastState        QueryState
	Handle           *QueryHandle
	StatementNumber  int
	HasResults       bool
	ModifiedRowCount *float64
	LogContext       string
	Notify           bool
	ErrorMessage     *string
	SubmissionDate   time.Time
	UpdatedAt        time.Time
}

// SetHandle copies the backend handle fields onto the record.
func (h *QueryHistory) SetHandle(handle *QueryHandle) {
	h.Handle = handle
	if handle == nil {
		return
	}
	h.HasResults = handle.HasResultSet
	h.ModifiedRowCount = handle.ModifiedRowCount
	h.LogContext = handle.LogContext
}

// QueryHistoryFilter holds filter parameters for listing query history.
type QueryHistoryFilter struct {
	Owner      *string
	States     []QueryState
	ServerName *string
	Before     *time.Time
	Page       PageRequest
}
