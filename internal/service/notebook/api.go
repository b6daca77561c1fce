// Package notebook runs notebook snippets on their backends: HiveServer2
// servers for SQL snippets, Livy for interactive Spark and Spark batches.
package notebook

import (
	"context"
	"log/slog"
	"time"

	"hue-gateway/internal/dbms"
	"hue-gateway/internal/domain"
	"hue-gateway/internal/livy"
	"hue-gateway/internal/metrics"
)

// Result types of a fetched snippet result.
const (
	ResultTable = "table"
	ResultText  = "text"
)

// Status is the state of a submitted snippet as reported by its backend.
type Status struct {
	Status string `json:"status"`
}

// Result is one page of a snippet's output.
type Result struct {
	HasMore bool                `json:"has_more"`
	Data    [][]any             `json:"data"`
	Meta    []domain.ColumnMeta `json:"meta"`
	Type    string              `json:"type"`
}

// Ack reports the outcome of cancel and close. Status -1 means the backend
// was not asked because there was nothing to do.
type Ack struct {
	Status  int  `json:"status"`
	Session *int `json:"session,omitempty"`
}

var (
	ackDone    = &Ack{Status: 0}
	ackSkipped = &Ack{Status: -1}
)

// Job is a Hadoop job started by a snippet.
type Job struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Started  bool   `json:"started"`
	Finished bool   `json:"finished"`
}

// API runs the snippets of one family of snippet types for one user.
type API interface {
	CreateSession(ctx context.Context, lang domain.SnippetType, properties map[string]string) (*domain.Session, error)
	Execute(ctx context.Context, nb *domain.Notebook, snippet *domain.Snippet) (map[string]any, error)
	CheckStatus(ctx context.Context, nb *domain.Notebook, snippet *domain.Snippet) (*Status, error)
	FetchResult(ctx context.Context, nb *domain.Notebook, snippet *domain.Snippet, rows int64, startOver bool) (*Result, error)
	FetchResultMetadata(ctx context.Context, nb *domain.Notebook, snippet *domain.Snippet) ([]domain.ColumnMeta, error)
	Cancel(ctx context.Context, nb *domain.Notebook, snippet *domain.Snippet) (*Ack, error)
	Close(ctx context.Context, nb *domain.Notebook, snippet *domain.Snippet) (*Ack, error)
	GetLog(ctx context.Context, nb *domain.Notebook, snippet *domain.Snippet, startFrom, size int) (string, error)
	Progress(snippet *domain.Snippet, logs string) int
	GetJobs(ctx context.Context, nb *domain.Notebook, snippet *domain.Snippet, logs string) ([]Job, error)
}

// LivyClient is the subset of the Livy client the Spark adapters use.
// Implemented by livy.Client.
type LivyClient interface {
	CreateSession(ctx context.Context, user, kind string, conf map[string]string) (*livy.Session, error)
	GetSession(ctx context.Context, id int) (*livy.Session, error)
	SubmitStatement(ctx context.Context, sessionID int, code string) (*livy.Statement, error)
	FetchData(ctx context.Context, sessionID, statementID int) (*livy.Statement, error)
	Cancel(ctx context.Context, sessionID int) error
	Close(ctx context.Context, sessionID int) error
	SubmitBatch(ctx context.Context, req livy.BatchRequest) (*livy.Batch, error)
	GetBatchStatus(ctx context.Context, id int) (string, error)
	GetBatchLog(ctx context.Context, id, from, size int) (string, error)
	CloseBatch(ctx context.Context, id int) error
}

var _ LivyClient = (*livy.Client)(nil)

// Options configure a Service.
type Options struct {
	Pool      *dbms.Pool
	Livy      LivyClient
	Sessions  *Sessions
	Documents domain.NotebookRepository
	// SessionPollAttempts bounds the polls of a starting Spark session.
	SessionPollAttempts int
	// SessionPollInterval is the delay between those polls.
	SessionPollInterval time.Duration
	Metrics             *metrics.Gateway
	Logger              *slog.Logger
}

// Service dispatches snippets to their backend adapter and stores notebook
// documents.
type Service struct {
	pool      *dbms.Pool
	livy      LivyClient
	sessions  *Sessions
	documents domain.NotebookRepository

	pollAttempts int
	pollInterval time.Duration
	metrics      *metrics.Gateway
	logger       *slog.Logger
}

// New creates a Service.
func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SessionPollAttempts <= 0 {
		opts.SessionPollAttempts = 120
	}
	if opts.SessionPollInterval <= 0 {
		opts.SessionPollInterval = time.Second
	}
	return &Service{
		pool:         opts.Pool,
		livy:         opts.Livy,
		sessions:     opts.Sessions,
		documents:    opts.Documents,
		pollAttempts: opts.SessionPollAttempts,
		pollInterval: opts.SessionPollInterval,
		metrics:      opts.Metrics,
		logger:       opts.Logger.With("component", "notebook"),
	}
}

// Get returns the adapter that runs snippets of type t for user.
func (s *Service) Get(user string, t domain.SnippetType) API {
	switch t {
	case domain.SnippetHive, domain.SnippetImpala, domain.SnippetSparkSQL:
		return &HS2API{user: user, pool: s.pool, logger: s.logger}
	case domain.SnippetJar, domain.SnippetPy:
		return &SparkBatchAPI{user: user, livy: s.livy, metrics: s.metrics, logger: s.logger}
	case domain.SnippetText:
		return &TextAPI{}
	default:
		return &SparkAPI{
			user:         user,
			livy:         s.livy,
			sessions:     s.sessions,
			pollAttempts: s.pollAttempts,
			pollInterval: s.pollInterval,
			metrics:      s.metrics,
			logger:       s.logger,
		}
	}
}

func unsupported(t domain.SnippetType, op string) error {
	return domain.ErrValidation("%s snippets do not support %s", t, op)
}

// handleInt reads an integer field of a snippet's result handle. JSON
// decoding yields float64, handles built in process carry int.
func handleInt(snippet *domain.Snippet, key string) (int, bool) {
	if snippet == nil || snippet.Result.Handle == nil {
		return 0, false
	}
	switch v := snippet.Result.Handle[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
