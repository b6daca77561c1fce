package compute

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/duckdb/duckdb-go/v2"

	"hue-gateway/internal/domain"
)

func openTestDuckDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestClient(t *testing.T) *LocalClient {
	t.Helper()
	c := NewLocalClient(openTestDuckDB(t), nil)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitState(t *testing.T, c *LocalClient, h *domain.QueryHandle) *domain.OperationStatus {
	t.Helper()
	var status *domain.OperationStatus
	require.Eventually(t, func() bool {
		var err error
		status, err = c.GetOperationStatus(context.Background(), h)
		return err == nil && !status.State.QueryState().IsRunning()
	}, 10*time.Second, 10*time.Millisecond)
	return status
}

func TestLocalClient_ExecuteAndFetch(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	h, err := c.ExecuteStatement(ctx, "SELECT * FROM (VALUES (1, 'a'), (2, NULL), (3, 'c')) AS t(id, name)", nil)
	require.NoError(t, err)
	require.NoError(t, h.Validate())

	status := waitState(t, c, h)
	assert.Equal(t, domain.OperationFinished, status.State)

	t.Run("paged_fetch", func(t *testing.T) {
		page, err := c.FetchResults(ctx, h, true, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "name"}, page.ColumnNames())
		assert.Equal(t, "INT_TYPE", page.Columns[0].Type)
		assert.Equal(t, "STRING_TYPE", page.Columns[1].Type)
		require.Len(t, page.Rows, 2)
		assert.Nil(t, page.Rows[1][1])
		assert.True(t, page.HasMore)

		page, err = c.FetchResults(ctx, h, false, 2)
		require.NoError(t, err)
		require.Len(t, page.Rows, 1)
		assert.Equal(t, "c", page.Rows[0][1])
		assert.False(t, page.HasMore)
	})

	t.Run("start_over_rewinds", func(t *testing.T) {
		page, err := c.FetchResults(ctx, h, true, 10)
		require.NoError(t, err)
		assert.Len(t, page.Rows, 3)
	})

	t.Run("log_records_completion", func(t *testing.T) {
		log, err := c.GetLog(ctx, h, true)
		require.NoError(t, err)
		assert.Contains(t, log, "Completed executing statement, 3 rows")
	})
}

func TestLocalClient_FailedStatement(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	h, err := c.ExecuteStatement(ctx, "SELEKT invalid", nil)
	require.NoError(t, err)

	status := waitState(t, c, h)
	assert.Equal(t, domain.OperationError, status.State)
	assert.NotEmpty(t, status.ErrorMessage)

	_, err = c.FetchResults(ctx, h, true, 10)
	var qe *domain.QueryError
	require.ErrorAs(t, err, &qe)
}

func TestLocalClient_CloseOperationExpiresHandle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	h, err := c.ExecuteStatement(ctx, "SELECT 1", nil)
	require.NoError(t, err)
	waitState(t, c, h)

	require.NoError(t, c.CloseOperation(ctx, h))

	_, err = c.GetOperationStatus(ctx, h)
	var expired *domain.QueryExpiredError
	require.ErrorAs(t, err, &expired)
	assert.Contains(t, err.Error(), "Invalid OperationHandle")

	err = c.CancelOperation(ctx, h)
	require.ErrorAs(t, err, &expired)
}

func TestLocalClient_CancelFinishedIsNoop(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	h, err := c.ExecuteStatement(ctx, "SELECT 42", nil)
	require.NoError(t, err)
	waitState(t, c, h)

	require.NoError(t, c.CancelOperation(ctx, h))
	status, err := c.GetOperationStatus(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationFinished, status.State)
}

func TestLocalClient_WrongSecretIsExpired(t *testing.T) {
	c := newTestClient(t)
	h, err := c.ExecuteStatement(context.Background(), "SELECT 1", nil)
	require.NoError(t, err)

	forged := &domain.QueryHandle{GUID: h.GUID, Secret: []byte("nope")}
	_, err = c.GetOperationStatus(context.Background(), forged)
	var expired *domain.QueryExpiredError
	require.ErrorAs(t, err, &expired)
}

func TestLocalClient_DefaultConfiguration(t *testing.T) {
	c := newTestClient(t)
	conf, err := c.GetDefaultConfiguration(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "true", conf["support_start_over"])
	assert.Contains(t, conf, "threads")
}

func TestLocalClient_CloseExpiresSession(t *testing.T) {
	c := NewLocalClient(openTestDuckDB(t), nil)
	h, err := c.ExecuteStatement(context.Background(), "SELECT 1", nil)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.GetOperationStatus(context.Background(), h)
	var expired *domain.SessionExpiredError
	require.ErrorAs(t, err, &expired)

	_, err = c.ExecuteStatement(context.Background(), "SELECT 1", nil)
	require.ErrorAs(t, err, &expired)
}

func TestHiveTypeName(t *testing.T) {
	tests := map[string]string{
		"BOOLEAN":       "BOOLEAN_TYPE",
		"INTEGER":       "INT_TYPE",
		"BIGINT":        "BIGINT_TYPE",
		"DECIMAL(18,3)": "DECIMAL_TYPE",
		"TIMESTAMP":     "TIMESTAMP_TYPE",
		"VARCHAR":       "STRING_TYPE",
		"INTEGER[]":     "ARRAY_TYPE",
		"STRUCT(a INT)": "STRUCT_TYPE",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, hiveTypeName(in))
		})
	}
}
