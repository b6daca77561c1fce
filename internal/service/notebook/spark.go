package notebook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hue-gateway/internal/domain"
	"hue-gateway/internal/livy"
	"hue-gateway/internal/metrics"
)

// defaultSessionSettings are applied to sessions created without properties.
var defaultSessionSettings = map[string]string{
	"executor_cores":  "1",
	"executor_count":  "1",
	"executor_memory": "1G",
	"driver_cores":    "1",
	"driver_memory":   "1G",
}

// sparkConfKeys maps session settings onto Spark configuration.
var sparkConfKeys = map[string]string{
	"executor_cores":  "spark.executor.cores",
	"executor_count":  "spark.executor.instances",
	"executor_memory": "spark.executor.memory",
	"driver_cores":    "spark.driver.cores",
	"driver_memory":   "spark.driver.memory",
}

// SparkAPI runs spark, pyspark and r snippets in interactive Livy sessions.
type SparkAPI struct {
	user         string
	livy         LivyClient
	sessions     *Sessions
	pollAttempts int
	pollInterval time.Duration
	metrics      *metrics.Gateway
	logger       *slog.Logger
}

var _ API = (*SparkAPI)(nil)

// livyKind maps a snippet type to a Livy session kind.
func livyKind(lang domain.SnippetType) string {
	switch lang {
	case domain.SnippetR:
		return "sparkr"
	case domain.SnippetSpark, "scala", "":
		return "spark"
	default:
		return string(lang)
	}
}

// CreateSession starts a Livy session and waits for it to leave the
// starting state. A session that does not become idle fails with its log.
func (a *SparkAPI) CreateSession(ctx context.Context, lang domain.SnippetType, properties map[string]string) (*domain.Session, error) {
	settings := properties
	if settings == nil {
		settings = make(map[string]string, len(defaultSessionSettings))
		for k, v := range defaultSessionSettings {
			settings[k] = v
		}
	}
	conf := make(map[string]string)
	for k, v := range settings {
		if key, ok := sparkConfKeys[k]; ok {
			conf[key] = v
		}
	}

	created, err := a.livy.CreateSession(ctx, a.user, livyKind(lang), conf)
	if err != nil {
		return nil, a.fail(err)
	}
	status, err := a.livy.GetSession(ctx, created.ID)
	if err != nil {
		return nil, a.fail(err)
	}
	for count := 0; isStarting(status.State) && count < a.pollAttempts; count++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.pollInterval):
		}
		if status, err = a.livy.GetSession(ctx, created.ID); err != nil {
			return nil, a.fail(err)
		}
	}

	if status.State != livy.StateIdle {
		a.logger.Warn("spark session did not start", "session", created.ID, "state", status.State, "user", a.user)
		if isStarting(status.State) {
			if err := a.livy.Close(ctx, created.ID); err != nil {
				a.logger.Warn("close stuck spark session", "session", created.ID, "error", err)
			}
		}
		return nil, domain.ErrQuery("%s", strings.Join(status.Log, "\n"))
	}

	a.sessions.Track(a.user, created.ID, string(lang))
	a.logger.Info("spark session started", "session", created.ID, "kind", livyKind(lang), "user", a.user)
	id := created.ID
	return &domain.Session{
		Type:       lang,
		ID:         &id,
		State:      domain.SessionState(status.State),
		Properties: settings,
	}, nil
}

func isStarting(state string) bool {
	return state == livy.StateStarting || state == livy.StateNotStarted
}

// Execute submits the snippet's code to the notebook's session of the same
// type.
func (a *SparkAPI) Execute(ctx context.Context, nb *domain.Notebook, snippet *domain.Snippet) (map[string]any, error) {
	sessionID, err := a.sessionID(nb, snippet)
	if err != nil {
		return nil, err
	}
	st, err := a.livy.SubmitStatement(ctx, sessionID, snippet.Statement)
	if err != nil {
		return nil, a.failSession(sessionID, err)
	}
	a.sessions.Touch(sessionID)
	return map[string]any{"id": st.ID, "has_result_set": true}, nil
}

// CheckStatus returns the Livy statement state.
func (a *SparkAPI) CheckStatus(ctx context.Context, nb *domain.Notebook, snippet *domain.Snippet) (*Status, error) {
	st, err := a.statement(ctx, nb, snippet)
	if err != nil {
		return nil, err
	}
	return &Status{Status: st.State}, nil
}

// FetchResult normalizes the statement output. Livy returns output in one
// piece, so only a start-over fetch carries data.
func (a *SparkAPI) FetchResult(ctx context.Context, nb *domain.Notebook, snippet *domain.Snippet, _ int64, startOver bool) (*Result, error) {
	st, err := a.statement(ctx, nb, snippet)
	if err != nil {
		return nil, err
	}
	if st.Output == nil {
		return nil, domain.ErrQuery("statement %d has no output yet (state %s)", st.ID, st.State)
	}
	return normalizeOutput(st.Output, startOver)
}

// FetchResultMetadata returns the columns of the statement output.
func (a *SparkAPI) FetchResultMetadata(ctx context.Context, nb *domain.Notebook, snippet *domain.Snippet) ([]domain.ColumnMeta, error) {
	res, err := a.FetchResult(ctx, nb, snippet, 0, false)
	if err != nil {
		return nil, err
	}
	return res.Meta, nil
}

// Cancel interrupts the session.
func (a *SparkAPI) Cancel(ctx context.Context, nb *domain.Notebook, snippet *domain.Snippet) (*Ack, error) {
	sessionID, err := a.sessionID(nb, snippet)
	if err != nil {
		return nil, err
	}
	if err := a.livy.Cancel(ctx, sessionID); err != nil {
		return nil, a.failSession(sessionID, err)
	}
	return ackDone, nil
}

// Close deletes the notebook's session of the snippet's type. Closing a
// session the server no longer knows succeeds.
func (a *SparkAPI) Close(ctx context.Context, nb *domain.Notebook, snippet *domain.Snippet) (*Ack, error) {
	session := nb.SessionFor(snippet.Type)
	if session == nil || session.ID == nil {
		return ackSkipped, nil
	}
	id := *session.ID
	err := a.livy.Close(ctx, id)
	var lerr *livy.Error
	if err != nil && !(errors.As(err, &lerr) && lerr.NotFound()) {
		return nil, a.fail(err)
	}
	a.sessions.Forget(id)
	return &Ack{Status: 0, Session: &id}, nil
}

// GetLog is not available for interactive sessions.
func (a *SparkAPI) GetLog(context.Context, *domain.Notebook, *domain.Snippet, int, int) (string, error) {
	return "Not available", nil
}

// Progress is not reported by interactive sessions.
func (a *SparkAPI) Progress(*domain.Snippet, string) int { return 50 }

// GetJobs is not reported by interactive sessions.
func (a *SparkAPI) GetJobs(context.Context, *domain.Notebook, *domain.Snippet, string) ([]Job, error) {
	return []Job{}, nil
}

func (a *SparkAPI) sessionID(nb *domain.Notebook, snippet *domain.Snippet) (int, error) {
	var session *domain.Session
	if nb != nil {
		session = nb.SessionFor(snippet.Type)
	}
	if session == nil || session.ID == nil {
		return 0, domain.ErrSessionExpired("no %s session is open", snippet.Type)
	}
	return *session.ID, nil
}

func (a *SparkAPI) statement(ctx context.Context, nb *domain.Notebook, snippet *domain.Snippet) (*livy.Statement, error) {
	sessionID, err := a.sessionID(nb, snippet)
	if err != nil {
		return nil, err
	}
	statementID, ok := handleInt(snippet, "id")
	if !ok {
		return nil, domain.ErrValidation("snippet has no statement id")
	}
	st, err := a.livy.FetchData(ctx, sessionID, statementID)
	if err != nil {
		return nil, a.failSession(sessionID, err)
	}
	a.sessions.Touch(sessionID)
	return st, nil
}

// fail maps Livy errors onto the gateway taxonomy. A 404 for the session
// means it is gone; a 404 for one of its statements expires only that
// statement.
func (a *SparkAPI) fail(err error) error {
	var lerr *livy.Error
	if errors.As(err, &lerr) && lerr.NotFound() {
		if lerr.SessionNotFound() {
			err = &domain.SessionExpiredError{Message: fmt.Sprintf("session not found: %s", lerr.Message)}
		} else {
			err = &domain.QueryExpiredError{Message: fmt.Sprintf("statement not found: %s", lerr.Message)}
		}
	}
	err = domain.ClassifyError(err)
	var (
		sessionErr *domain.SessionExpiredError
		queryErr   *domain.QueryExpiredError
	)
	switch {
	case errors.As(err, &sessionErr):
		a.metrics.SessionExpired("livy")
	case errors.As(err, &queryErr):
		a.metrics.QueryExpired("livy")
	}
	return err
}

// failSession is fail for calls on an existing session; expired sessions
// are dropped from the registry.
func (a *SparkAPI) failSession(sessionID int, err error) error {
	err = a.fail(err)
	var sessionErr *domain.SessionExpiredError
	if errors.As(err, &sessionErr) {
		a.sessions.Forget(sessionID)
	}
	return err
}
