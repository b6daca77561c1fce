package domain

import (
	"context"
	"time"
)

// QueryServerClient is the statement contract every HS2-compatible backend
// implements. Handles returned by ExecuteStatement are owned by the client's
// session and become invalid once the client is closed.
// Implemented by hs2.Client and compute.LocalClient.
type QueryServerClient interface {
	ExecuteStatement(ctx context.Context, statement string, conf map[string]string) (*QueryHandle, error)
	GetOperationStatus(ctx context.Context, handle *QueryHandle) (*OperationStatus, error)
	FetchResults(ctx context.Context, handle *QueryHandle, startOver bool, maxRows int64) (*ResultSet, error)
	GetResultsMetadata(ctx context.Context, handle *QueryHandle) ([]ColumnMeta, error)
	GetLog(ctx context.Context, handle *QueryHandle, startOver bool) (string, error)
	CancelOperation(ctx context.Context, handle *QueryHandle) error
	CloseOperation(ctx context.Context, handle *QueryHandle) error
	GetDefaultConfiguration(ctx context.Context, includeHadoop bool) (map[string]string, error)
	Close() error
}

// QueryHistoryRepository persists QueryHistory records.
type QueryHistoryRepository interface {
	Create(ctx context.Context, h *QueryHistory) (*QueryHistory, error)
	GetByID(ctx context.Context, id string) (*QueryHistory, error)
	GetByHandle(ctx context.Context, handle *QueryHandle) (*QueryHistory, error)
	SaveState(ctx context.Context, id string, state QueryState, errorMessage *string) error
	SaveHandle(ctx context.Context, id string, handle *QueryHandle, state QueryState) error
	List(ctx context.Context, filter QueryHistoryFilter) ([]QueryHistory, error)
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]QueryHistory, error)
}

// NotebookRepository persists saved notebook documents.
type NotebookRepository interface {
	Save(ctx context.Context, doc *NotebookDocument) (*NotebookDocument, error)
	Get(ctx context.Context, owner, id string) (*NotebookDocument, error)
	List(ctx context.Context, owner string, page PageRequest) ([]NotebookDocument, error)
	Delete(ctx context.Context, owner, id string) error
}
