package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"hue-gateway/internal/domain"
)

var _ domain.QueryHistoryRepository = (*QueryHistoryRepo)(nil)

const queryHistoryColumns = `
	id, owner, query, server_name, server_host, server_port, server_type, query_type,
	last_state, server_guid, server_secret, operation_type, statement_number, has_results,
	modified_row_count, log_context, notify, error_message, submission_date, updated_at`

// QueryHistoryRepo stores submitted statements and their last known state.
type QueryHistoryRepo struct {
	db *sql.DB
}

// NewQueryHistoryRepo creates a new QueryHistoryRepo.
func NewQueryHistoryRepo(db *sql.DB) *QueryHistoryRepo {
	return &QueryHistoryRepo{db: db}
}

// Create inserts a new history record in the submitted state unless the
// record already carries a state.
func (r *QueryHistoryRepo) Create(ctx context.Context, h *domain.QueryHistory) (*domain.QueryHistory, error) {
	if h == nil {
		return nil, domain.ErrValidation("query history is required")
	}
	if h.Owner == "" {
		return nil, domain.ErrValidation("query history owner is required")
	}
	if h.ID == "" {
		h.ID = domain.NewID()
	}
	if h.LastState == "" {
		h.LastState = domain.QueryStateSubmitted
	}
	if h.QueryType == "" {
		h.QueryType = domain.QueryTypeForServer(h.ServerType)
	}

	guid, secret, opType := handleColumns(h.Handle)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO query_history (
			id, owner, query, server_name, server_host, server_port, server_type, query_type,
			last_state, server_guid, server_secret, operation_type, statement_number, has_results,
			modified_row_count, log_context, notify, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.ID, h.Owner, h.Query, h.ServerName, h.ServerHost, h.ServerPort, string(h.ServerType), string(h.QueryType),
		string(h.LastState), guid, secret, opType, h.StatementNumber, boolToInt(h.HasResults),
		nullFloat(h.ModifiedRowCount), h.LogContext, boolToInt(h.Notify), nullString(h.ErrorMessage))
	if err != nil {
		return nil, mapDBError(err)
	}

	return r.GetByID(ctx, h.ID)
}

// GetByID returns a history record by ID.
func (r *QueryHistoryRepo) GetByID(ctx context.Context, id string) (*domain.QueryHistory, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+queryHistoryColumns+` FROM query_history WHERE id = ?`, id)
	h, err := scanQueryHistory(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return h, nil
}

// GetByHandle returns the most recent record that was issued the handle.
func (r *QueryHistoryRepo) GetByHandle(ctx context.Context, handle *domain.QueryHandle) (*domain.QueryHistory, error) {
	if handle == nil || len(handle.GUID) == 0 {
		return nil, domain.ErrValidation("query handle is required")
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT `+queryHistoryColumns+`
		FROM query_history
		WHERE server_guid = ? AND server_secret = ?
		ORDER BY submission_date DESC, id DESC
		LIMIT 1
	`, handle.GUID, handle.Secret)
	h, err := scanQueryHistory(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return h, nil
}

// SaveState records a state transition.
func (r *QueryHistoryRepo) SaveState(ctx context.Context, id string, state domain.QueryState, errorMessage *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE query_history
		SET last_state = ?,
		    error_message = COALESCE(?, error_message),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(state), nullString(errorMessage), id)
	if err != nil {
		return mapDBError(err)
	}
	return requireAffected(res, "query history %q not found", id)
}

// SaveHandle stores the backend handle issued for a record together with the
// state observed at submission time.
func (r *QueryHistoryRepo) SaveHandle(ctx context.Context, id string, handle *domain.QueryHandle, state domain.QueryState) error {
	guid, secret, opType := handleColumns(handle)
	var (
		hasResults bool
		modified   *float64
		logContext string
	)
	if handle != nil {
		hasResults = handle.HasResultSet
		modified = handle.ModifiedRowCount
		logContext = handle.LogContext
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE query_history
		SET server_guid = ?, server_secret = ?, operation_type = ?, has_results = ?,
		    modified_row_count = ?, log_context = ?, last_state = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, guid, secret, opType, boolToInt(hasResults), nullFloat(modified), logContext, string(state), id)
	if err != nil {
		return mapDBError(err)
	}
	return requireAffected(res, "query history %q not found", id)
}

// List returns history records newest first.
func (r *QueryHistoryRepo) List(ctx context.Context, filter domain.QueryHistoryFilter) ([]domain.QueryHistory, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Owner != nil {
		where = append(where, "owner = ?")
		args = append(args, *filter.Owner)
	}
	if filter.ServerName != nil {
		where = append(where, "server_name = ?")
		args = append(args, *filter.ServerName)
	}
	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, s := range filter.States {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "last_state IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Before != nil {
		where = append(where, "submission_date < ?")
		args = append(args, sqliteTime(*filter.Before))
	}

	stmt := `SELECT ` + queryHistoryColumns + ` FROM query_history`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY submission_date DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Page.Limit(), filter.Page.Offset())

	return r.query(ctx, stmt, args...)
}

// ListStale returns records still submitted or running whose last update is
// older than olderThan, oldest first.
func (r *QueryHistoryRepo) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]domain.QueryHistory, error) {
	if limit <= 0 {
		limit = domain.DefaultPageSize
	}
	return r.query(ctx, `
		SELECT `+queryHistoryColumns+`
		FROM query_history
		WHERE last_state IN (?, ?) AND updated_at < ?
		ORDER BY updated_at ASC
		LIMIT ?
	`, string(domain.QueryStateSubmitted), string(domain.QueryStateRunning), sqliteTime(olderThan), limit)
}

func (r *QueryHistoryRepo) query(ctx context.Context, stmt string, args ...interface{}) ([]domain.QueryHistory, error) {
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.QueryHistory
	for rows.Next() {
		h, err := scanQueryHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query history: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueryHistory(row rowScanner) (*domain.QueryHistory, error) {
	var (
		h                     domain.QueryHistory
		serverType, queryType string
		lastState             string
		guid, secret          []byte
		opType                int
		hasResults, notify    int64
		modified              sql.NullFloat64
		errorMessage          sql.NullString
	)
	err := row.Scan(
		&h.ID, &h.Owner, &h.Query, &h.ServerName, &h.ServerHost, &h.ServerPort, &serverType, &queryType,
		&lastState, &guid, &secret, &opType, &h.StatementNumber, &hasResults,
		&modified, &h.LogContext, &notify, &errorMessage, &h.SubmissionDate, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	h.ServerType = domain.ServerType(serverType)
	h.QueryType = domain.QueryType(queryType)
	h.LastState = domain.QueryState(lastState)
	h.HasResults = hasResults != 0
	h.Notify = notify != 0
	if modified.Valid {
		v := modified.Float64
		h.ModifiedRowCount = &v
	}
	if errorMessage.Valid {
		msg := errorMessage.String
		h.ErrorMessage = &msg
	}
	if len(guid) > 0 {
		h.Handle = &domain.QueryHandle{
			GUID:             guid,
			Secret:           secret,
			OperationType:    opType,
			HasResultSet:     h.HasResults,
			ModifiedRowCount: h.ModifiedRowCount,
			LogContext:       h.LogContext,
		}
	}
	return &h, nil
}

func handleColumns(h *domain.QueryHandle) (guid, secret []byte, opType int) {
	if h == nil {
		return nil, nil, 0
	}
	return h.GUID, h.Secret, h.OperationType
}
