package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// getOutputFormat returns the effective output format from the root command's persistent flags.
func getOutputFormat(cmd *cobra.Command) string {
	v, _ := cmd.Root().PersistentFlags().GetString("output")
	return v
}

func validateOutputFormat(output string) error {
	if output != "" && output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintTable writes rows under headers in aligned columns.
func PrintTable(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// PrintDetail writes fields as sorted key/value lines.
func PrintDetail(w io.Writer, fields map[string]any) error {
	keys := sortedKeys(fields)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{strings.ToUpper(k), formatCell(fields[k])})
	}
	return PrintTable(w, []string{"FIELD", "VALUE"}, rows)
}

// PrintResult writes a fetched result page. Tables get one column per meta
// entry; text results are printed verbatim.
func PrintResult(w io.Writer, result map[string]any) error {
	data, _ := result["data"].([]any)
	if result["type"] == "text" {
		for _, row := range data {
			cells, _ := row.([]any)
			for _, cell := range cells {
				if _, err := fmt.Fprintln(w, formatCell(cell)); err != nil {
					return err
				}
			}
		}
		return nil
	}

	meta, _ := result["meta"].([]any)
	headers := make([]string, 0, len(meta))
	for _, m := range meta {
		col, _ := m.(map[string]any)
		name, _ := col["name"].(string)
		headers = append(headers, name)
	}
	rows := make([][]string, 0, len(data))
	for _, row := range data {
		cells, _ := row.([]any)
		out := make([]string, 0, len(cells))
		for _, cell := range cells {
			out = append(out, formatCell(cell))
		}
		rows = append(rows, out)
	}
	if err := PrintTable(w, headers, rows); err != nil {
		return err
	}
	if more, _ := result["has_more"].(bool); more {
		_, err := fmt.Fprintln(w, "(more rows available)")
		return err
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatCell renders a JSON value for a table cell. Nested values are
// rendered as JSON.
func formatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
