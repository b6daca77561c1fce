package notebook

import (
	"fmt"
	"strings"

	"hue-gateway/internal/domain"
	"hue-gateway/internal/livy"
)

// MIME types of Livy statement output.
const (
	mimeLivyTable = "application/vnd.livy.table.v1+json"
	mimeTextPlain = "text/plain"
)

// normalizeOutput turns a Livy statement output into a Result. Tables keep
// their headers as column metadata; anything else becomes a single text
// cell. Output is returned whole, so fetches that do not start over carry
// no data.
func normalizeOutput(out *livy.Output, startOver bool) (*Result, error) {
	switch out.Status {
	case livy.OutputOK:
	case livy.OutputError:
		return nil, domain.ErrQuery("%s", outputError(out))
	default:
		return nil, domain.ErrQuery("unexpected statement output status %q", out.Status)
	}

	var res *Result
	if table, ok := out.Data[mimeLivyTable].(map[string]any); ok {
		res = &Result{Type: ResultTable, Meta: tableHeaders(table), Data: tableRows(table)}
	} else {
		res = &Result{
			Type: ResultText,
			Meta: []domain.ColumnMeta{{Name: "Header", Type: "STRING_TYPE", Comment: ""}},
			Data: [][]any{{out.Data[mimeTextPlain]}},
		}
	}
	if !startOver {
		res.Data = [][]any{}
	}
	return res, nil
}

func tableHeaders(table map[string]any) []domain.ColumnMeta {
	headers, _ := table["headers"].([]any)
	meta := make([]domain.ColumnMeta, 0, len(headers))
	for _, h := range headers {
		header, _ := h.(map[string]any)
		meta = append(meta, domain.ColumnMeta{
			Name: stringField(header, "name"),
			Type: stringField(header, "type"),
		})
	}
	return meta
}

func tableRows(table map[string]any) [][]any {
	rows, _ := table["data"].([]any)
	data := make([][]any, 0, len(rows))
	for _, r := range rows {
		row, _ := r.([]any)
		data = append(data, row)
	}
	return data
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// outputError renders a failed statement: the traceback when present,
// otherwise "ename: evalue".
func outputError(out *livy.Output) string {
	if len(out.Traceback) > 0 {
		return strings.Join(out.Traceback, "")
	}
	msg := "unknown error"
	if out.EName != nil {
		msg = *out.EName
	}
	if out.EValue != nil {
		msg = msg + ": " + *out.EValue
	}
	return msg
}
