package notebook

import (
	"context"

	"hue-gateway/internal/domain"
)

// TextAPI backs markdown and text snippets, which are never executed.
type TextAPI struct{}

var _ API = (*TextAPI)(nil)

// CreateSession returns a placeholder session.
func (TextAPI) CreateSession(_ context.Context, lang domain.SnippetType, _ map[string]string) (*domain.Session, error) {
	return &domain.Session{Type: lang}, nil
}

func (TextAPI) Execute(_ context.Context, _ *domain.Notebook, snippet *domain.Snippet) (map[string]any, error) {
	return nil, unsupported(snippet.Type, "execution")
}

func (TextAPI) CheckStatus(_ context.Context, _ *domain.Notebook, snippet *domain.Snippet) (*Status, error) {
	return nil, unsupported(snippet.Type, "status checks")
}

func (TextAPI) FetchResult(_ context.Context, _ *domain.Notebook, snippet *domain.Snippet, _ int64, _ bool) (*Result, error) {
	return nil, unsupported(snippet.Type, "fetching results")
}

func (TextAPI) FetchResultMetadata(_ context.Context, _ *domain.Notebook, snippet *domain.Snippet) ([]domain.ColumnMeta, error) {
	return nil, unsupported(snippet.Type, "result metadata")
}

func (TextAPI) Cancel(_ context.Context, _ *domain.Notebook, snippet *domain.Snippet) (*Ack, error) {
	return nil, unsupported(snippet.Type, "cancellation")
}

// Close has nothing to release.
func (TextAPI) Close(context.Context, *domain.Notebook, *domain.Snippet) (*Ack, error) {
	return ackSkipped, nil
}

func (TextAPI) GetLog(_ context.Context, _ *domain.Notebook, snippet *domain.Snippet, _, _ int) (string, error) {
	return "", unsupported(snippet.Type, "logs")
}

func (TextAPI) Progress(*domain.Snippet, string) int { return 0 }

func (TextAPI) GetJobs(context.Context, *domain.Notebook, *domain.Snippet, string) ([]Job, error) {
	return []Job{}, nil
}
