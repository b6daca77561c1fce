// Package domain defines core types, interfaces, and errors for the query gateway.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// QueryExpiredError indicates the backend no longer recognizes a query handle.
// The client must resubmit the statement.
type QueryExpiredError struct {
	Message string
}

func (e *QueryExpiredError) Error() string {
	if e.Message == "" {
		return "query expired"
	}
	return e.Message
}

// SessionExpiredError indicates the backend session owning a statement is gone.
// The client must create a new session.
type SessionExpiredError struct {
	Message string
}

func (e *SessionExpiredError) Error() string {
	if e.Message == "" {
		return "session expired"
	}
	return e.Message
}

// QueryError is a backend-reported failure of a statement. Log carries the
// backend's execution log when it could be retrieved.
type QueryError struct {
	Message string
	Log     string
	Handle  *QueryHandle
}

func (e *QueryError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrQueryExpired creates a QueryExpiredError with a formatted message.
func ErrQueryExpired(format string, args ...interface{}) *QueryExpiredError {
	return &QueryExpiredError{Message: fmt.Sprintf(format, args...)}
}

// ErrSessionExpired creates a SessionExpiredError with a formatted message.
func ErrSessionExpired(format string, args ...interface{}) *SessionExpiredError {
	return &SessionExpiredError{Message: fmt.Sprintf(format, args...)}
}

// ErrQuery creates a QueryError with a formatted message.
func ErrQuery(format string, args ...interface{}) *QueryError {
	return &QueryError{Message: fmt.Sprintf(format, args...)}
}
