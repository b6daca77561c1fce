package dbms

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hue-gateway/internal/domain"
)

// Per-statement deadlines of the synchronous helpers.
const (
	listTimeout       = 15 * time.Second
	sampleTimeout     = 5 * time.Second
	topTermsTimeout   = 60 * time.Second
	invalidateTimeout = 10 * time.Second

	sampleRows     = 100
	listRows       = 5000
	maxTopTerms    = 100
	defaultTopTerm = 30
)

// quoteIdent returns name as a backtick-quoted identifier.
func quoteIdent(name string) (string, error) {
	if name == "" {
		return "", domain.ErrValidation("identifier is required")
	}
	if strings.ContainsAny(name, "`;\n") {
		return "", domain.ErrValidation("invalid identifier %q", name)
	}
	return "`" + name + "`", nil
}

func qualifiedName(database, table string) (string, error) {
	db, err := quoteIdent(database)
	if err != nil {
		return "", err
	}
	tbl, err := quoteIdent(table)
	if err != nil {
		return "", err
	}
	return db + "." + tbl, nil
}

// waitAndFetch runs statement synchronously and returns its first rows. A
// statement that did not finish in time yields an empty, nil result.
func (d *Dbms) waitAndFetch(ctx context.Context, statement string, timeout time.Duration, rows int64) (*domain.ResultSet, error) {
	handle, err := d.ExecuteAndWait(ctx, statement, timeout, 0)
	if err != nil || handle == nil {
		return nil, err
	}
	defer d.closeQuietly(ctx, handle)
	return d.Fetch(ctx, handle, false, rows)
}

// GetDatabases lists the databases of the server.
func (d *Dbms) GetDatabases(ctx context.Context) ([]string, error) {
	result, err := d.waitAndFetch(ctx, "SHOW DATABASES", listTimeout, listRows)
	if err != nil {
		return nil, err
	}
	return flatten(result), nil
}

// GetTables lists the tables of database matching pattern ("*" when empty).
func (d *Dbms) GetTables(ctx context.Context, database, pattern string) ([]string, error) {
	db, err := quoteIdent(database)
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = "*"
	}
	stmt := fmt.Sprintf("SHOW TABLES IN %s '%s'", db, escapeLiteral(pattern))
	result, err := d.waitAndFetch(ctx, stmt, listTimeout, listRows)
	if err != nil {
		return nil, err
	}
	return flatten(result), nil
}

// GetSample returns the first rows of a table. Nil means the statement did
// not finish in time.
func (d *Dbms) GetSample(ctx context.Context, database, table string) (*domain.ResultSet, error) {
	name, err := qualifiedName(database, table)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf("SELECT * FROM %s LIMIT %d", name, sampleRows)
	return d.waitAndFetch(ctx, stmt, sampleTimeout, sampleRows)
}

// AnalyzeTable computes table statistics as a tracked statement.
func (d *Dbms) AnalyzeTable(ctx context.Context, database, table string) (*domain.QueryHistory, error) {
	name, err := qualifiedName(database, table)
	if err != nil {
		return nil, err
	}
	if d.server.Type.IsImpala() {
		return d.ExecuteStatement(ctx, "COMPUTE STATS "+name)
	}
	return d.ExecuteStatement(ctx, "ANALYZE TABLE "+name+" COMPUTE STATISTICS")
}

// AnalyzeTableColumns computes column statistics as a tracked statement.
func (d *Dbms) AnalyzeTableColumns(ctx context.Context, database, table string) (*domain.QueryHistory, error) {
	name, err := qualifiedName(database, table)
	if err != nil {
		return nil, err
	}
	if d.server.Type.IsImpala() {
		return d.ExecuteStatement(ctx, "COMPUTE STATS "+name)
	}
	return d.ExecuteStatement(ctx, "ANALYZE TABLE "+name+" COMPUTE STATISTICS FOR COLUMNS")
}

// GetTableStats returns the statistics rows of a table.
func (d *Dbms) GetTableStats(ctx context.Context, database, table string) ([][]any, error) {
	name, err := qualifiedName(database, table)
	if err != nil {
		return nil, err
	}
	stmt := "DESCRIBE FORMATTED " + name
	if d.server.Type.IsImpala() {
		stmt = "SHOW TABLE STATS " + name
	}
	result, err := d.waitAndFetch(ctx, stmt, sampleTimeout, sampleRows)
	if err != nil || result == nil {
		return nil, err
	}
	return result.Rows, nil
}

// GetTopTerms returns the most frequent values of column with their counts,
// optionally restricted to values starting with prefix.
func (d *Dbms) GetTopTerms(ctx context.Context, database, table, column string, limit int, prefix string) ([][]any, error) {
	name, err := qualifiedName(database, table)
	if err != nil {
		return nil, err
	}
	col, err := quoteIdent(column)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultTopTerm
	}
	limit = min(limit, maxTopTerms)

	where := ""
	if prefix != "" {
		where = fmt.Sprintf("WHERE CAST(%s AS STRING) LIKE '%s%%' ", col, escapeLiteral(prefix))
	}
	stmt := fmt.Sprintf("SELECT %s, COUNT(*) AS ct FROM %s %sGROUP BY %s ORDER BY ct DESC LIMIT %d", col, name, where, col, limit)
	result, err := d.waitAndFetch(ctx, stmt, topTermsTimeout, int64(limit))
	if err != nil || result == nil {
		return nil, err
	}
	return result.Rows, nil
}

// InvalidateTables refreshes Impala's metadata cache for tables. Failures
// are logged and do not stop the remaining tables.
func (d *Dbms) InvalidateTables(ctx context.Context, database string, tables []string) {
	for _, table := range tables {
		name, err := qualifiedName(database, table)
		if err != nil {
			d.logger.Warn("invalidate metadata", "table", table, "error", err)
			continue
		}
		handle, err := d.ExecuteAndWait(ctx, "INVALIDATE METADATA "+name, invalidateTimeout, 0)
		if err != nil {
			d.logger.Warn("refresh tables cache out of sync", "table", name, "error", err)
			continue
		}
		if handle != nil {
			d.closeQuietly(ctx, handle)
		}
	}
}

// DropTable drops a table or view as a tracked statement.
func (d *Dbms) DropTable(ctx context.Context, database, table string, isView bool) (*domain.QueryHistory, error) {
	name, err := qualifiedName(database, table)
	if err != nil {
		return nil, err
	}
	if isView {
		return d.ExecuteStatement(ctx, "DROP VIEW "+name)
	}
	return d.ExecuteStatement(ctx, "DROP TABLE "+name)
}

// Explain returns the server's plan for statement.
func (d *Dbms) Explain(ctx context.Context, statement string) (string, error) {
	handle, err := d.ExecuteAndWait(ctx, "EXPLAIN "+statement, 0, 0)
	if err != nil {
		return "", err
	}
	if handle == nil {
		return "", domain.ErrQuery("EXPLAIN did not finish in time")
	}
	defer d.closeQuietly(ctx, handle)

	result, err := d.FetchAll(ctx, handle, 0)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		parts := make([]string, 0, len(row))
		for _, v := range row {
			if v != nil {
				parts = append(parts, fmt.Sprint(v))
			}
		}
		lines = append(lines, strings.Join(parts, " "))
	}
	return strings.Join(lines, "\n"), nil
}

func flatten(result *domain.ResultSet) []string {
	if result == nil {
		return []string{}
	}
	out := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		for _, v := range row {
			if v != nil {
				out = append(out, fmt.Sprint(v))
			}
		}
	}
	return out
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), "'", `\'`)
}
