package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hue-gateway/internal/db"
	"hue-gateway/internal/domain"
)

func setupQueryHistoryRepo(t *testing.T) *QueryHistoryRepo {
	t.Helper()
	writeDB, _ := db.OpenTestSQLite(t)
	return NewQueryHistoryRepo(writeDB)
}

func newHistory(owner, query string) *domain.QueryHistory {
	return &domain.QueryHistory{
		Owner:      owner,
		Query:      query,
		ServerName: domain.ServerNameBeeswax,
		ServerHost: "hs2.example.com",
		ServerPort: 10000,
		ServerType: domain.ServerTypeBeeswax,
	}
}

func TestQueryHistoryRepo_Lifecycle(t *testing.T) {
	t.Parallel()
	repo := setupQueryHistoryRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, newHistory("alice", "SELECT 1"))
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, domain.QueryStateSubmitted, created.LastState)
	assert.Equal(t, domain.QueryTypeHQL, created.QueryType)
	assert.Nil(t, created.Handle)
	assert.False(t, created.SubmissionDate.IsZero())

	rows := 3.0
	handle := &domain.QueryHandle{
		GUID:             []byte{1, 2, 3},
		Secret:           []byte{4, 5, 6},
		HasResultSet:     true,
		ModifiedRowCount: &rows,
		LogContext:       "ctx-1",
	}
	require.NoError(t, repo.SaveHandle(ctx, created.ID, handle, domain.QueryStateRunning))

	loaded, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QueryStateRunning, loaded.LastState)
	require.NotNil(t, loaded.Handle)
	assert.Equal(t, handle.GUID, loaded.Handle.GUID)
	assert.Equal(t, handle.Secret, loaded.Handle.Secret)
	assert.True(t, loaded.HasResults)
	require.NotNil(t, loaded.ModifiedRowCount)
	assert.InDelta(t, 3.0, *loaded.ModifiedRowCount, 0.0001)
	assert.Equal(t, "ctx-1", loaded.LogContext)

	byHandle, err := repo.GetByHandle(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byHandle.ID)

	msg := "AnalysisException: table not found"
	require.NoError(t, repo.SaveState(ctx, created.ID, domain.QueryStateFailed, &msg))
	require.NoError(t, repo.SaveState(ctx, created.ID, domain.QueryStateExpired, nil))

	loaded, err = repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QueryStateExpired, loaded.LastState)
	require.NotNil(t, loaded.ErrorMessage)
	assert.Equal(t, msg, *loaded.ErrorMessage)
}

func TestQueryHistoryRepo_Validation(t *testing.T) {
	t.Parallel()
	repo := setupQueryHistoryRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, nil)
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)

	_, err = repo.Create(ctx, &domain.QueryHistory{Query: "SELECT 1"})
	require.ErrorAs(t, err, &validation)

	_, err = repo.GetByHandle(ctx, &domain.QueryHandle{})
	require.ErrorAs(t, err, &validation)
}

func TestQueryHistoryRepo_NotFound(t *testing.T) {
	t.Parallel()
	repo := setupQueryHistoryRepo(t)
	ctx := context.Background()

	var notFound *domain.NotFoundError
	_, err := repo.GetByID(ctx, "missing")
	require.ErrorAs(t, err, &notFound)

	err = repo.SaveState(ctx, "missing", domain.QueryStateFailed, nil)
	require.ErrorAs(t, err, &notFound)

	_, err = repo.GetByHandle(ctx, &domain.QueryHandle{GUID: []byte{9}, Secret: []byte{9}})
	require.ErrorAs(t, err, &notFound)
}

func TestQueryHistoryRepo_ImpalaQueryType(t *testing.T) {
	t.Parallel()
	repo := setupQueryHistoryRepo(t)

	h := newHistory("alice", "SELECT 1")
	h.ServerType = domain.ServerTypeImpala
	created, err := repo.Create(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, domain.QueryTypeImpala, created.QueryType)
}

func TestQueryHistoryRepo_ListFilters(t *testing.T) {
	t.Parallel()
	repo := setupQueryHistoryRepo(t)
	ctx := context.Background()

	a1, err := repo.Create(ctx, newHistory("alice", "SELECT 1"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newHistory("alice", "SELECT 2"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newHistory("bob", "SELECT 3"))
	require.NoError(t, err)
	require.NoError(t, repo.SaveState(ctx, a1.ID, domain.QueryStateAvailable, nil))

	t.Run("by_owner", func(t *testing.T) {
		owner := "alice"
		got, err := repo.List(ctx, domain.QueryHistoryFilter{Owner: &owner})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("by_state", func(t *testing.T) {
		got, err := repo.List(ctx, domain.QueryHistoryFilter{States: []domain.QueryState{domain.QueryStateAvailable}})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, a1.ID, got[0].ID)
	})

	t.Run("paged", func(t *testing.T) {
		page := domain.PageRequest{MaxResults: 2}
		first, err := repo.List(ctx, domain.QueryHistoryFilter{Page: page})
		require.NoError(t, err)
		require.Len(t, first, 2)

		next := domain.PageRequest{MaxResults: 2, PageToken: page.NextPageToken(len(first))}
		second, err := repo.List(ctx, domain.QueryHistoryFilter{Page: next})
		require.NoError(t, err)
		assert.Len(t, second, 1)
	})

	t.Run("unknown_server", func(t *testing.T) {
		server := "impala"
		got, err := repo.List(ctx, domain.QueryHistoryFilter{ServerName: &server})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestQueryHistoryRepo_ListStale(t *testing.T) {
	t.Parallel()
	repo := setupQueryHistoryRepo(t)
	ctx := context.Background()

	running, err := repo.Create(ctx, newHistory("alice", "SELECT 1"))
	require.NoError(t, err)
	require.NoError(t, repo.SaveState(ctx, running.ID, domain.QueryStateRunning, nil))
	done, err := repo.Create(ctx, newHistory("alice", "SELECT 2"))
	require.NoError(t, err)
	require.NoError(t, repo.SaveState(ctx, done.ID, domain.QueryStateAvailable, nil))

	stale, err := repo.ListStale(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, running.ID, stale[0].ID)

	none, err := repo.ListStale(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
