// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hue-gateway/internal/domain"
)

// === Query Server Client Mock ===

// MockQueryServerClient implements domain.QueryServerClient for testing.
// Unset Fn fields fall back to a backend whose statements finish immediately
// with no rows.
type MockQueryServerClient struct {
	ExecuteStatementFn        func(ctx context.Context, statement string, conf map[string]string) (*domain.QueryHandle, error)
	GetOperationStatusFn      func(ctx context.Context, handle *domain.QueryHandle) (*domain.OperationStatus, error)
	FetchResultsFn            func(ctx context.Context, handle *domain.QueryHandle, startOver bool, maxRows int64) (*domain.ResultSet, error)
	GetResultsMetadataFn      func(ctx context.Context, handle *domain.QueryHandle) ([]domain.ColumnMeta, error)
	GetLogFn                  func(ctx context.Context, handle *domain.QueryHandle, startOver bool) (string, error)
	CancelOperationFn         func(ctx context.Context, handle *domain.QueryHandle) error
	CloseOperationFn          func(ctx context.Context, handle *domain.QueryHandle) error
	GetDefaultConfigurationFn func(ctx context.Context, includeHadoop bool) (map[string]string, error)
	CloseFn                   func() error

	mu         sync.Mutex
	Statements []string // submitted statements, in order
	StartOvers []bool   // startOver flag of each FetchResults call
	MaxRows    []int64  // maxRows of each FetchResults call
	Cancelled  int
	ClosedOps  int
	ConfCalls  int
	Closed     int
	seq        int
}

var _ domain.QueryServerClient = (*MockQueryServerClient)(nil)

// NewHandle returns a distinct, valid handle.
func (m *MockQueryServerClient) NewHandle() *domain.QueryHandle {
	m.mu.Lock()
	m.seq++
	n := m.seq
	m.mu.Unlock()
	return &domain.QueryHandle{
		GUID:         []byte(fmt.Sprintf("guid-%d", n)),
		Secret:       []byte(fmt.Sprintf("secret-%d", n)),
		HasResultSet: true,
	}
}

// ExecuteStatement implements the interface method for testing.
func (m *MockQueryServerClient) ExecuteStatement(ctx context.Context, statement string, conf map[string]string) (*domain.QueryHandle, error) {
	m.mu.Lock()
	m.Statements = append(m.Statements, statement)
	m.mu.Unlock()
	if m.ExecuteStatementFn != nil {
		return m.ExecuteStatementFn(ctx, statement, conf)
	}
	return m.NewHandle(), nil
}

// GetOperationStatus implements the interface method for testing.
func (m *MockQueryServerClient) GetOperationStatus(ctx context.Context, handle *domain.QueryHandle) (*domain.OperationStatus, error) {
	if m.GetOperationStatusFn != nil {
		return m.GetOperationStatusFn(ctx, handle)
	}
	return &domain.OperationStatus{State: domain.OperationFinished, HasResultSet: true}, nil
}

// FetchResults implements the interface method for testing.
func (m *MockQueryServerClient) FetchResults(ctx context.Context, handle *domain.QueryHandle, startOver bool, maxRows int64) (*domain.ResultSet, error) {
	m.mu.Lock()
	m.StartOvers = append(m.StartOvers, startOver)
	m.MaxRows = append(m.MaxRows, maxRows)
	m.mu.Unlock()
	if m.FetchResultsFn != nil {
		return m.FetchResultsFn(ctx, handle, startOver, maxRows)
	}
	return &domain.ResultSet{Ready: true}, nil
}

// GetResultsMetadata implements the interface method for testing.
func (m *MockQueryServerClient) GetResultsMetadata(ctx context.Context, handle *domain.QueryHandle) ([]domain.ColumnMeta, error) {
	if m.GetResultsMetadataFn != nil {
		return m.GetResultsMetadataFn(ctx, handle)
	}
	return nil, nil
}

// GetLog implements the interface method for testing.
func (m *MockQueryServerClient) GetLog(ctx context.Context, handle *domain.QueryHandle, startOver bool) (string, error) {
	if m.GetLogFn != nil {
		return m.GetLogFn(ctx, handle, startOver)
	}
	return "", nil
}

// CancelOperation implements the interface method for testing.
func (m *MockQueryServerClient) CancelOperation(ctx context.Context, handle *domain.QueryHandle) error {
	m.mu.Lock()
	m.Cancelled++
	m.mu.Unlock()
	if m.CancelOperationFn != nil {
		return m.CancelOperationFn(ctx, handle)
	}
	return nil
}

// CloseOperation implements the interface method for testing.
func (m *MockQueryServerClient) CloseOperation(ctx context.Context, handle *domain.QueryHandle) error {
	m.mu.Lock()
	m.ClosedOps++
	m.mu.Unlock()
	if m.CloseOperationFn != nil {
		return m.CloseOperationFn(ctx, handle)
	}
	return nil
}

// GetDefaultConfiguration implements the interface method for testing.
func (m *MockQueryServerClient) GetDefaultConfiguration(ctx context.Context, includeHadoop bool) (map[string]string, error) {
	m.mu.Lock()
	m.ConfCalls++
	m.mu.Unlock()
	if m.GetDefaultConfigurationFn != nil {
		return m.GetDefaultConfigurationFn(ctx, includeHadoop)
	}
	return map[string]string{}, nil
}

// Close implements the interface method for testing.
func (m *MockQueryServerClient) Close() error {
	m.mu.Lock()
	m.Closed++
	m.mu.Unlock()
	if m.CloseFn != nil {
		return m.CloseFn()
	}
	return nil
}

// Counts returns the cancel, close-operation and close-session call counts.
func (m *MockQueryServerClient) Counts() (cancelled, closedOps, closed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Cancelled, m.ClosedOps, m.Closed
}

// SubmittedStatements returns a copy of the submitted statements.
func (m *MockQueryServerClient) SubmittedStatements() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Statements...)
}

// StateSequence returns a GetOperationStatusFn that reports states in order
// and then repeats the last one.
func StateSequence(states ...domain.OperationState) func(context.Context, *domain.QueryHandle) (*domain.OperationStatus, error) {
	var (
		mu sync.Mutex
		i  int
	)
	return func(context.Context, *domain.QueryHandle) (*domain.OperationStatus, error) {
		mu.Lock()
		defer mu.Unlock()
		s := states[min(i, len(states)-1)]
		i++
		return &domain.OperationStatus{State: s, HasResultSet: true}, nil
	}
}

// === Query History Repository Mock ===

// MockQueryHistoryRepo implements domain.QueryHistoryRepository for testing.
type MockQueryHistoryRepo struct {
	CreateFn      func(ctx context.Context, h *domain.QueryHistory) (*domain.QueryHistory, error)
	GetByIDFn     func(ctx context.Context, id string) (*domain.QueryHistory, error)
	GetByHandleFn func(ctx context.Context, handle *domain.QueryHandle) (*domain.QueryHistory, error)
	SaveStateFn   func(ctx context.Context, id string, state domain.QueryState, errorMessage *string) error
	SaveHandleFn  func(ctx context.Context, id string, handle *domain.QueryHandle, state domain.QueryState) error
	ListFn        func(ctx context.Context, filter domain.QueryHistoryFilter) ([]domain.QueryHistory, error)
	ListStaleFn   func(ctx context.Context, olderThan time.Time, limit int) ([]domain.QueryHistory, error)
}

var _ domain.QueryHistoryRepository = (*MockQueryHistoryRepo)(nil)

// Create implements the interface method for testing.
func (m *MockQueryHistoryRepo) Create(ctx context.Context, h *domain.QueryHistory) (*domain.QueryHistory, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, h)
	}
	panic("unexpected call to MockQueryHistoryRepo.Create")
}

// GetByID implements the interface method for testing.
func (m *MockQueryHistoryRepo) GetByID(ctx context.Context, id string) (*domain.QueryHistory, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	panic("unexpected call to MockQueryHistoryRepo.GetByID")
}

// GetByHandle implements the interface method for testing.
func (m *MockQueryHistoryRepo) GetByHandle(ctx context.Context, handle *domain.QueryHandle) (*domain.QueryHistory, error) {
	if m.GetByHandleFn != nil {
		return m.GetByHandleFn(ctx, handle)
	}
	panic("unexpected call to MockQueryHistoryRepo.GetByHandle")
}

// SaveState implements the interface method for testing.
func (m *MockQueryHistoryRepo) SaveState(ctx context.Context, id string, state domain.QueryState, errorMessage *string) error {
	if m.SaveStateFn != nil {
		return m.SaveStateFn(ctx, id, state, errorMessage)
	}
	panic("unexpected call to MockQueryHistoryRepo.SaveState")
}

// SaveHandle implements the interface method for testing.
func (m *MockQueryHistoryRepo) SaveHandle(ctx context.Context, id string, handle *domain.QueryHandle, state domain.QueryState) error {
	if m.SaveHandleFn != nil {
		return m.SaveHandleFn(ctx, id, handle, state)
	}
	panic("unexpected call to MockQueryHistoryRepo.SaveHandle")
}

// List implements the interface method for testing.
func (m *MockQueryHistoryRepo) List(ctx context.Context, filter domain.QueryHistoryFilter) ([]domain.QueryHistory, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, filter)
	}
	panic("unexpected call to MockQueryHistoryRepo.List")
}

// ListStale implements the interface method for testing.
func (m *MockQueryHistoryRepo) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]domain.QueryHistory, error) {
	if m.ListStaleFn != nil {
		return m.ListStaleFn(ctx, olderThan, limit)
	}
	panic("unexpected call to MockQueryHistoryRepo.ListStale")
}
