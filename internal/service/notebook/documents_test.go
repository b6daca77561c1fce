package notebook

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hue-gateway/internal/db"
	"hue-gateway/internal/db/repository"
	"hue-gateway/internal/domain"
)

func newDocumentService(t *testing.T) *Service {
	t.Helper()
	writeDB, _ := db.OpenTestSQLite(t)
	return New(Options{Documents: repository.NewNotebookRepo(writeDB)})
}

func TestService_SaveAndOpen(t *testing.T) {
	svc := newDocumentService(t)
	ctx := context.Background()

	nb := &domain.Notebook{
		Name: "Sales",
		Snippets: []domain.Snippet{
			{ID: "s1", Type: domain.SnippetHive, Statement: "SELECT 1"},
		},
		Sessions: []domain.Session{{Type: domain.SnippetPySpark, ID: intPtr(3)}},
	}
	saved, err := svc.Save(ctx, "alice", nb)
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	opened, err := svc.Open(ctx, "alice", saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sales", opened.Name)
	require.Len(t, opened.Snippets, 1)
	assert.Equal(t, "SELECT 1", opened.Snippets[0].Statement)
	require.NotNil(t, opened.SessionFor(domain.SnippetPySpark))

	t.Run("update_keeps_id", func(t *testing.T) {
		opened.Name = "Sales v2"
		_, err := svc.Save(ctx, "alice", opened)
		require.NoError(t, err)

		list, err := svc.List(ctx, "alice", domain.PageRequest{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "Sales v2", list[0].Name)
	})

	t.Run("other_owner_cannot_open", func(t *testing.T) {
		_, err := svc.Open(ctx, "bob", saved.ID)
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, "alice", saved.ID))
		_, err := svc.Open(ctx, "alice", saved.ID)
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)
	})
}

func TestService_Copy(t *testing.T) {
	svc := newDocumentService(t)
	ctx := context.Background()

	original, err := svc.Save(ctx, "alice", &domain.Notebook{
		Name: "Sales",
		Snippets: []domain.Snippet{{
			ID: "s1", Type: domain.SnippetHive, Statement: "SELECT 1",
			Result: domain.SnippetResult{Handle: map[string]any{"guid": "Z3VpZA=="}},
			Status: "available",
		}},
		Sessions: []domain.Session{{Type: domain.SnippetPySpark, ID: intPtr(3), State: domain.SessionIdle}},
	})
	require.NoError(t, err)
	originalID := original.ID

	copied, err := svc.Copy(ctx, "alice", originalID)
	require.NoError(t, err)
	assert.NotEqual(t, originalID, copied.ID)
	assert.Equal(t, "Sales-copy", copied.Name)

	opened, err := svc.Open(ctx, "alice", copied.ID)
	require.NoError(t, err)
	require.Len(t, opened.Snippets, 1)
	assert.Equal(t, "SELECT 1", opened.Snippets[0].Statement)
	assert.Empty(t, opened.Snippets[0].Result.Handle, "the copy does not share statements")
	require.Len(t, opened.Sessions, 1)
	assert.Nil(t, opened.Sessions[0].ID, "the copy does not share sessions")

	t.Run("original_untouched", func(t *testing.T) {
		nb, err := svc.Open(ctx, "alice", originalID)
		require.NoError(t, err)
		assert.Equal(t, "Sales", nb.Name)
		assert.NotEmpty(t, nb.Snippets[0].Result.Handle)
	})

	t.Run("both_listed", func(t *testing.T) {
		list, err := svc.List(ctx, "alice", domain.PageRequest{})
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("other_owner_cannot_copy", func(t *testing.T) {
		_, err := svc.Copy(ctx, "bob", originalID)
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)
	})
}

func TestService_SaveValidates(t *testing.T) {
	svc := newDocumentService(t)
	_, err := svc.Save(context.Background(), "alice", &domain.Notebook{})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestService_CloseNotebook(t *testing.T) {
	f := newHS2Fixture(t, true)
	client, rec := newLivy(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"msg": "deleted"})
	})
	f.svc.livy = client
	f.svc.sessions = NewSessions(client, 0, nil, nil)
	ctx := context.Background()

	hive := domain.Snippet{ID: "h", Type: domain.SnippetHive, Statement: "SELECT 1"}
	handle, err := f.svc.Get("alice", domain.SnippetHive).Execute(ctx, nil, &hive)
	require.NoError(t, err)
	hive.Result.Handle = handle

	nb := &domain.Notebook{
		Name: "nb",
		Snippets: []domain.Snippet{
			hive,
			{ID: "unsubmitted", Type: domain.SnippetHive},
			{ID: "p1", Type: domain.SnippetPySpark},
			{ID: "p2", Type: domain.SnippetPySpark},
			{ID: "md", Type: domain.SnippetText, Result: domain.SnippetResult{Handle: map[string]any{"x": 1}}},
		},
		Sessions: []domain.Session{{Type: domain.SnippetPySpark, ID: intPtr(8)}},
	}

	results := f.svc.CloseNotebook(ctx, "alice", nb)
	require.Len(t, results, 3)
	assert.Equal(t, 0, results[0].Status, "hive statement closed")
	assert.Equal(t, 0, results[1].Status, "spark session closed once")
	assert.Equal(t, -1, results[2].Status, "text has nothing to close")

	_, closedOps, _ := f.client(0).Counts()
	assert.Equal(t, 1, closedOps)
	assert.Equal(t, []string{"/sessions/8"}, rec.paths(http.MethodDelete))
}
