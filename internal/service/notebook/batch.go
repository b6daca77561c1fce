package notebook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"hue-gateway/internal/domain"
	"hue-gateway/internal/livy"
	"hue-gateway/internal/metrics"
)

// SparkBatchAPI runs jar and py snippets as Livy batches.
type SparkBatchAPI struct {
	user    string
	livy    LivyClient
	metrics *metrics.Gateway
	logger  *slog.Logger
}

var _ API = (*SparkBatchAPI)(nil)

// CreateSession returns a placeholder. Batches need no session.
func (a *SparkBatchAPI) CreateSession(_ context.Context, lang domain.SnippetType, _ map[string]string) (*domain.Session, error) {
	return &domain.Session{Type: lang}, nil
}

// Execute submits the snippet's application. Properties: app_jar, class,
// arguments ([{value}]) and py_file.
func (a *SparkBatchAPI) Execute(ctx context.Context, _ *domain.Notebook, snippet *domain.Snippet) (map[string]any, error) {
	req := livy.BatchRequest{
		File:      snippet.StringProperty("app_jar"),
		ClassName: snippet.StringProperty("class"),
		Args:      batchArguments(snippet),
		ProxyUser: a.user,
	}
	if py := snippet.StringProperty("py_file"); py != "" {
		if req.File == "" {
			req.File = py
		} else {
			req.PyFiles = []string{py}
		}
	}
	if req.File == "" {
		return nil, domain.ErrValidation("%s snippet requires app_jar or py_file", snippet.Type)
	}

	batch, err := a.livy.SubmitBatch(ctx, req)
	if err != nil {
		return nil, a.fail(err)
	}
	a.logger.Info("spark batch submitted", "batch", batch.ID, "file", req.File, "user", a.user)
	return map[string]any{"id": batch.ID, "has_result_set": true}, nil
}

// batchArguments reads the arguments property, a list of {value} objects
// or plain strings.
func batchArguments(snippet *domain.Snippet) []string {
	raw, ok := snippet.Properties["arguments"].([]any)
	if !ok {
		return snippet.StringsProperty("arguments")
	}
	args := make([]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case map[string]any:
			if value, ok := v["value"]; ok && value != nil {
				args = append(args, fmt.Sprint(value))
			}
		case string:
			args = append(args, v)
		}
	}
	return args
}

// CheckStatus returns the batch state.
func (a *SparkBatchAPI) CheckStatus(ctx context.Context, _ *domain.Notebook, snippet *domain.Snippet) (*Status, error) {
	id, err := batchID(snippet)
	if err != nil {
		return nil, err
	}
	state, err := a.livy.GetBatchStatus(ctx, id)
	if err != nil {
		return nil, a.fail(err)
	}
	return &Status{Status: state}, nil
}

// FetchResult is not supported; batch output is read from the log.
func (a *SparkBatchAPI) FetchResult(_ context.Context, _ *domain.Notebook, snippet *domain.Snippet, _ int64, _ bool) (*Result, error) {
	return nil, unsupported(snippet.Type, "fetching results")
}

// FetchResultMetadata is not supported.
func (a *SparkBatchAPI) FetchResultMetadata(_ context.Context, _ *domain.Notebook, snippet *domain.Snippet) ([]domain.ColumnMeta, error) {
	return nil, unsupported(snippet.Type, "result metadata")
}

// Cancel closes the batch. Batches cannot be interrupted.
func (a *SparkBatchAPI) Cancel(ctx context.Context, nb *domain.Notebook, snippet *domain.Snippet) (*Ack, error) {
	return a.Close(ctx, nb, snippet)
}

// Close deletes the batch. It is skipped when the snippet was never
// submitted and succeeds when the batch is already gone.
func (a *SparkBatchAPI) Close(ctx context.Context, _ *domain.Notebook, snippet *domain.Snippet) (*Ack, error) {
	id, ok := handleInt(snippet, "id")
	if !ok {
		return ackSkipped, nil
	}
	if err := a.livy.CloseBatch(ctx, id); err != nil {
		return nil, a.fail(err)
	}
	return &Ack{Status: 0, Session: &id}, nil
}

// GetLog returns size log lines of the batch starting at startFrom.
func (a *SparkBatchAPI) GetLog(ctx context.Context, _ *domain.Notebook, snippet *domain.Snippet, startFrom, size int) (string, error) {
	id, err := batchID(snippet)
	if err != nil {
		return "", err
	}
	log, err := a.livy.GetBatchLog(ctx, id, startFrom, size)
	if err != nil {
		return "", a.fail(err)
	}
	return log, nil
}

// Progress is not reported by batches.
func (a *SparkBatchAPI) Progress(*domain.Snippet, string) int { return 50 }

// GetJobs is not reported by batches.
func (a *SparkBatchAPI) GetJobs(context.Context, *domain.Notebook, *domain.Snippet, string) ([]Job, error) {
	return []Job{}, nil
}

func batchID(snippet *domain.Snippet) (int, error) {
	id, ok := handleInt(snippet, "id")
	if !ok {
		return 0, domain.ErrValidation("snippet has no batch id")
	}
	return id, nil
}

// fail maps Livy errors onto the gateway taxonomy. A batch the server no
// longer knows is an expired query.
func (a *SparkBatchAPI) fail(err error) error {
	var lerr *livy.Error
	if errors.As(err, &lerr) && lerr.NotFound() {
		a.metrics.QueryExpired("livy-batch")
		return domain.ErrQueryExpired("batch not found: %s", lerr.Message)
	}
	return domain.ClassifyError(err)
}
