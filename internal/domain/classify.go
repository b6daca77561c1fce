package domain

import (
	"context"
	"errors"
	"strings"
)

// Backend messages are matched by substring because neither HiveServer2 nor
// Livy report session or handle loss with a distinct code. The table must be
// kept in sync with the server versions in use; a reworded server message
// silently turns an expiry into a plain QueryError.
var (
	sessionExpiredMessages = []string{
		"session not found",
		"connection refused",
		"session is in state busy",
	}
	queryExpiredMessages = []string{
		"invalid query handle",
		"invalid operationhandle",
	}
)

// ClassifyError maps a backend failure onto the gateway's error taxonomy:
// SessionExpiredError, QueryExpiredError, or QueryError for everything else.
// Errors that are already classified and context errors are returned as is.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var (
		sessionErr *SessionExpiredError
		queryErr   *QueryExpiredError
		failure    *QueryError
	)
	switch {
	case errors.As(err, &sessionErr), errors.As(err, &queryErr), errors.As(err, &failure):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, s := range sessionExpiredMessages {
		if strings.Contains(lower, s) {
			return &SessionExpiredError{Message: msg}
		}
	}
	for _, s := range queryExpiredMessages {
		if strings.Contains(lower, s) {
			return &QueryExpiredError{Message: msg}
		}
	}
	return &QueryError{Message: msg}
}

// IsExpired reports whether err means the handle or session is gone.
func IsExpired(err error) bool {
	var (
		sessionErr *SessionExpiredError
		queryErr   *QueryExpiredError
	)
	return errors.As(err, &sessionErr) || errors.As(err, &queryErr)
}
