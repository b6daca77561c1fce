package api

import (
	"errors"
	"net/http"

	"hue-gateway/internal/domain"
)

// Envelope status codes. Clients branch on these rather than on the HTTP
// status: -2 means create a new session, -3 means resubmit the statement.
const (
	statusOK             = 0
	statusError          = -1
	statusSessionExpired = -2
	statusQueryExpired   = -3
	statusQueryError     = 1
)

// httpStatusFromDomainError maps domain errors to HTTP status codes. The
// query taxonomy is reported in the envelope with 200 so that clients can
// recover.
func httpStatusFromDomainError(err error) int {
	var notFound *domain.NotFoundError
	var validation *domain.ValidationError
	var conflict *domain.ConflictError
	var queryErr *domain.QueryError
	var queryExpired *domain.QueryExpiredError
	var sessionExpired *domain.SessionExpiredError

	switch {
	case errors.As(err, &queryErr), errors.As(err, &queryExpired), errors.As(err, &sessionExpired):
		return http.StatusOK
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &conflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// envelopeFromError builds the JSON body of a failed call.
func envelopeFromError(err error) map[string]any {
	var queryErr *domain.QueryError
	var queryExpired *domain.QueryExpiredError
	var sessionExpired *domain.SessionExpiredError

	switch {
	case errors.As(err, &sessionExpired):
		return map[string]any{"status": statusSessionExpired, "message": sessionExpired.Error()}
	case errors.As(err, &queryExpired):
		return map[string]any{"status": statusQueryExpired, "message": queryExpired.Error()}
	case errors.As(err, &queryErr):
		body := map[string]any{"status": statusQueryError, "message": queryErr.Message}
		if queryErr.Log != "" {
			body["log"] = queryErr.Log
		}
		return body
	}
	return map[string]any{"status": statusError, "message": err.Error()}
}
