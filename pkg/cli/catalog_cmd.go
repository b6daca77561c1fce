package cli

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// catalogPath builds a catalog endpoint for a snippet type from escaped
// path segments.
func catalogPath(typ string, segments ...string) string {
	parts := []string{"catalog", url.PathEscape(typ)}
	for _, s := range segments {
		parts = append(parts, url.PathEscape(s))
	}
	return strings.Join(parts, "/")
}

func newCatalogCmd(client *Client) *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Browse and maintain the tables of a SQL server",
	}
	cmd.PersistentFlags().StringVarP(&typ, "type", "t", "hive", "Snippet type of the server (hive, impala, spark-sql)")

	cmd.AddCommand(newCatalogDatabasesCmd(client, &typ))
	cmd.AddCommand(newCatalogTablesCmd(client, &typ))
	cmd.AddCommand(newCatalogSampleCmd(client, &typ))
	cmd.AddCommand(newCatalogStatsCmd(client, &typ))
	cmd.AddCommand(newCatalogTermsCmd(client, &typ))
	cmd.AddCommand(newCatalogAnalyzeCmd(client, &typ))
	cmd.AddCommand(newCatalogDropCmd(client, &typ))
	cmd.AddCommand(newCatalogInvalidateCmd(client, &typ))
	return cmd
}

func newCatalogDatabasesCmd(client *Client, typ *string) *cobra.Command {
	return &cobra.Command{
		Use:   "databases",
		Short: "List databases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := client.Get(cmd.Context(), catalogPath(*typ, "databases"), nil)
			if err != nil {
				return err
			}
			return printNames(cmd, resp["databases"])
		},
	}
}

func newCatalogTablesCmd(client *Client, typ *string) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "tables DATABASE",
		Short: "List the tables of a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if filter != "" {
				q.Set("filter", filter)
			}
			resp, err := client.Get(cmd.Context(), catalogPath(*typ, "databases", args[0], "tables"), q)
			if err != nil {
				return err
			}
			return printNames(cmd, resp["tables"])
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "Only tables matching this pattern (e.g. 'web_*')")
	return cmd
}

func newCatalogSampleCmd(client *Client, typ *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sample DATABASE TABLE",
		Short: "Print the first rows of a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get(cmd.Context(), catalogPath(*typ, "databases", args[0], "tables", args[1], "sample"), nil)
			if err != nil {
				return err
			}
			result, _ := resp["result"].(map[string]any)
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), result)
			}
			return PrintResult(cmd.OutOrStdout(), result)
		},
	}
}

func newCatalogStatsCmd(client *Client, typ *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats DATABASE TABLE",
		Short: "Show table statistics",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get(cmd.Context(), catalogPath(*typ, "databases", args[0], "tables", args[1], "stats"), nil)
			if err != nil {
				return err
			}
			return printRows(cmd, resp["stats"])
		},
	}
}

func newCatalogTermsCmd(client *Client, typ *string) *cobra.Command {
	var (
		limit  int
		prefix string
	)
	cmd := &cobra.Command{
		Use:   "terms DATABASE TABLE COLUMN",
		Short: "Show the most frequent values of a column",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if prefix != "" {
				q.Set("prefix", prefix)
			}
			resp, err := client.Get(cmd.Context(), catalogPath(*typ, "databases", args[0], "tables", args[1], "columns", args[2], "terms"), q)
			if err != nil {
				return err
			}
			return printRows(cmd, resp["terms"])
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Number of values (server default 30, at most 100)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Only values starting with this prefix")
	return cmd
}

func newCatalogAnalyzeCmd(client *Client, typ *string) *cobra.Command {
	var columns bool
	cmd := &cobra.Command{
		Use:   "analyze DATABASE TABLE",
		Short: "Compute table statistics and print the statement handle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Call(cmd.Context(), catalogPath(*typ, "databases", args[0], "tables", args[1], "analyze"), map[string]any{
				"columns": strconv.FormatBool(columns),
			})
			if err != nil {
				return err
			}
			handle, _ := resp["handle"].(map[string]any)
			return printHandle(cmd, handle)
		},
	}
	cmd.Flags().BoolVar(&columns, "columns", false, "Compute column statistics")
	return cmd
}

func newCatalogDropCmd(client *Client, typ *string) *cobra.Command {
	var view bool
	cmd := &cobra.Command{
		Use:   "drop DATABASE TABLE",
		Short: "Drop a table or view and print the statement handle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Call(cmd.Context(), catalogPath(*typ, "databases", args[0], "tables", args[1], "drop"), map[string]any{
				"view": strconv.FormatBool(view),
			})
			if err != nil {
				return err
			}
			handle, _ := resp["handle"].(map[string]any)
			return printHandle(cmd, handle)
		},
	}
	cmd.Flags().BoolVar(&view, "view", false, "The object is a view")
	return cmd
}

func newCatalogInvalidateCmd(client *Client, typ *string) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate DATABASE TABLE...",
		Short: "Refresh Impala's metadata of tables",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Call(cmd.Context(), catalogPath(*typ, "databases", args[0], "invalidate"), map[string]any{
				"tables": args[1:],
			})
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), resp)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "done")
			return err
		},
	}
}

func newExplainCmd(client *Client) *cobra.Command {
	var (
		sf   snippetFlags
		file string
	)
	cmd := &cobra.Command{
		Use:   "explain [statement|-]",
		Short: "Print the plan of a statement",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statement, err := readStatement(args, file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			resp, err := client.Call(cmd.Context(), "explain", map[string]any{
				"notebook": sf.notebook(),
				"snippet":  sf.snippet(statement, nil),
			})
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				delete(resp, "status")
				return PrintJSON(cmd.OutOrStdout(), resp)
			}
			plan, _ := resp["explanation"].(string)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), plan)
			return err
		},
	}
	sf.register(cmd, "hive")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the statement from a file")
	return cmd
}

// printNames writes a JSON list of names one per line.
func printNames(cmd *cobra.Command, v any) error {
	if getOutputFormat(cmd) == "json" {
		return PrintJSON(cmd.OutOrStdout(), v)
	}
	names, _ := v.([]any)
	for _, n := range names {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), formatCell(n)); err != nil {
			return err
		}
	}
	return nil
}

// printRows writes a JSON list of rows as an unlabelled table.
func printRows(cmd *cobra.Command, v any) error {
	if getOutputFormat(cmd) == "json" {
		return PrintJSON(cmd.OutOrStdout(), v)
	}
	items, _ := v.([]any)
	rows := make([][]string, 0, len(items))
	width := 0
	for _, item := range items {
		cells, _ := item.([]any)
		row := make([]string, 0, len(cells))
		for _, c := range cells {
			row = append(row, formatCell(c))
		}
		width = max(width, len(row))
		rows = append(rows, row)
	}
	headers := make([]string, width)
	for i := range headers {
		headers[i] = "COL" + strconv.Itoa(i+1)
	}
	return PrintTable(cmd.OutOrStdout(), headers, rows)
}
