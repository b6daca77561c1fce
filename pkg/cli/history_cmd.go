package cli

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

const queryColumnWidth = 60

func newHistoryCmd(client *Client) *cobra.Command {
	var (
		states     []string
		server     string
		maxResults int
		pageToken  string
	)
	cmd := &cobra.Command{
		Use:   "history [ID]",
		Short: "List submitted queries, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				resp, err := client.Get(cmd.Context(), "history/"+url.PathEscape(args[0]), nil)
				if err != nil {
					return err
				}
				query, _ := resp["query"].(map[string]any)
				if getOutputFormat(cmd) == "json" {
					return PrintJSON(cmd.OutOrStdout(), query)
				}
				return PrintDetail(cmd.OutOrStdout(), query)
			}

			q := url.Values{}
			for _, s := range states {
				q.Add("state", s)
			}
			if server != "" {
				q.Set("server", server)
			}
			if maxResults > 0 {
				q.Set("max_results", strconv.Itoa(maxResults))
			}
			if pageToken != "" {
				q.Set("page_token", pageToken)
			}
			resp, err := client.Get(cmd.Context(), "history", q)
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				delete(resp, "status")
				return PrintJSON(cmd.OutOrStdout(), resp)
			}

			queries, _ := resp["queries"].([]any)
			rows := make([][]string, 0, len(queries))
			for _, item := range queries {
				h, _ := item.(map[string]any)
				rows = append(rows, []string{
					formatCell(h["id"]),
					formatCell(h["last_state"]),
					formatCell(h["server_name"]),
					formatCell(h["submission_date"]),
					truncate(formatCell(h["query"]), queryColumnWidth),
				})
			}
			if err := PrintTable(cmd.OutOrStdout(), []string{"ID", "STATE", "SERVER", "SUBMITTED", "QUERY"}, rows); err != nil {
				return err
			}
			if next, _ := resp["next_page_token"].(string); next != "" {
				_, err = cmd.OutOrStdout().Write([]byte("\nnext page: --page-token " + next + "\n"))
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&states, "state", nil, "Only queries in these states (submitted, running, available, failed, expired)")
	cmd.Flags().StringVar(&server, "server", "", "Only queries sent to this server")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "Page size")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Token from a previous page")
	return cmd
}

// truncate shortens s to width runes on a single line.
func truncate(s string, width int) string {
	r := []rune(s)
	for i, c := range r {
		if c == '\n' || c == '\r' {
			r[i] = ' '
		}
	}
	if len(r) <= width {
		return string(r)
	}
	return string(r[:width-3]) + "..."
}
