package notebook

import (
	"context"
	"strings"

	"hue-gateway/internal/dbms"
	"hue-gateway/internal/domain"
)

// Catalog returns the adapter that browses the metastore of the server
// snippets of type lang run on. Only HiveServer2 snippet types have one.
func (s *Service) Catalog(user string, lang domain.SnippetType) (*HS2API, error) {
	api, ok := s.Get(user, lang).(*HS2API)
	if !ok {
		return nil, unsupported(lang, "catalog browsing")
	}
	return api, nil
}

// onServer runs fn on the user's gateway for lang, evicting the pooled
// session when fn reports it lost.
func onServer[T any](ctx context.Context, a *HS2API, lang domain.SnippetType, fn func(*dbms.Dbms) (T, error)) (T, error) {
	var zero T
	d, err := a.db(ctx, lang)
	if err != nil {
		return zero, err
	}
	out, err := fn(d)
	if err != nil {
		return zero, a.check(lang, err)
	}
	return out, nil
}

// Databases lists the databases of the server.
func (a *HS2API) Databases(ctx context.Context, lang domain.SnippetType) ([]string, error) {
	return onServer(ctx, a, lang, func(d *dbms.Dbms) ([]string, error) {
		return d.GetDatabases(ctx)
	})
}

// Tables lists the tables of database whose names match filter.
func (a *HS2API) Tables(ctx context.Context, lang domain.SnippetType, database, filter string) ([]string, error) {
	return onServer(ctx, a, lang, func(d *dbms.Dbms) ([]string, error) {
		return d.GetTables(ctx, database, filter)
	})
}

// Sample returns the first rows of a table. A sample that did not finish
// in time is empty.
func (a *HS2API) Sample(ctx context.Context, lang domain.SnippetType, database, table string) (*Result, error) {
	rs, err := onServer(ctx, a, lang, func(d *dbms.Dbms) (*domain.ResultSet, error) {
		return d.GetSample(ctx, database, table)
	})
	if err != nil {
		return nil, err
	}
	res := &Result{Data: [][]any{}, Meta: []domain.ColumnMeta{}, Type: ResultTable}
	if rs != nil {
		if rs.Rows != nil {
			res.Data = rs.Rows
		}
		if rs.Columns != nil {
			res.Meta = rs.Columns
		}
		res.HasMore = rs.HasMore
	}
	return res, nil
}

// TableStats returns the statistics rows the server keeps for a table.
func (a *HS2API) TableStats(ctx context.Context, lang domain.SnippetType, database, table string) ([][]any, error) {
	rows, err := onServer(ctx, a, lang, func(d *dbms.Dbms) ([][]any, error) {
		return d.GetTableStats(ctx, database, table)
	})
	if rows == nil && err == nil {
		rows = [][]any{}
	}
	return rows, err
}

// TopTerms returns the most frequent values of a column with their counts.
func (a *HS2API) TopTerms(ctx context.Context, lang domain.SnippetType, database, table, column string, limit int, prefix string) ([][]any, error) {
	rows, err := onServer(ctx, a, lang, func(d *dbms.Dbms) ([][]any, error) {
		return d.GetTopTerms(ctx, database, table, column, limit, prefix)
	})
	if rows == nil && err == nil {
		rows = [][]any{}
	}
	return rows, err
}

// Analyze submits the statistics computation of a table, or of its columns,
// and returns the statement handle.
func (a *HS2API) Analyze(ctx context.Context, lang domain.SnippetType, database, table string, columns bool) (map[string]any, error) {
	history, err := onServer(ctx, a, lang, func(d *dbms.Dbms) (*domain.QueryHistory, error) {
		if columns {
			return d.AnalyzeTableColumns(ctx, database, table)
		}
		return d.AnalyzeTable(ctx, database, table)
	})
	if err != nil {
		return nil, err
	}
	return submitted(history), nil
}

// DropTable submits the drop of a table or view and returns the statement
// handle.
func (a *HS2API) DropTable(ctx context.Context, lang domain.SnippetType, database, table string, isView bool) (map[string]any, error) {
	history, err := onServer(ctx, a, lang, func(d *dbms.Dbms) (*domain.QueryHistory, error) {
		return d.DropTable(ctx, database, table, isView)
	})
	if err != nil {
		return nil, err
	}
	return submitted(history), nil
}

// InvalidateTables refreshes the metadata of tables on an Impala server.
// Tables that fail are logged and skipped.
func (a *HS2API) InvalidateTables(ctx context.Context, lang domain.SnippetType, database string, tables []string) error {
	_, err := onServer(ctx, a, lang, func(d *dbms.Dbms) (struct{}, error) {
		if !d.Server().Type.IsImpala() {
			return struct{}{}, unsupported(lang, "metadata invalidation")
		}
		d.InvalidateTables(ctx, database, tables)
		return struct{}{}, nil
	})
	return err
}

// Explain returns the plan of the snippet's statement.
func (a *HS2API) Explain(ctx context.Context, snippet *domain.Snippet) (string, error) {
	statement := strings.TrimSpace(snippet.Statement)
	if statement == "" {
		return "", domain.ErrValidation("statement is required")
	}
	return onServer(ctx, a, snippet.Type, func(d *dbms.Dbms) (string, error) {
		return d.Explain(ctx, strings.TrimSuffix(statement, ";"))
	})
}

// submitted renders a tracked statement the way Execute returns it.
func submitted(history *domain.QueryHistory) map[string]any {
	handle := encodeHandle(history.Handle)
	handle["history_id"] = history.ID
	return handle
}
