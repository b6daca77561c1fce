package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// States in which a submitted statement is still worth polling.
var pendingStates = map[string]bool{
	"submitted": true,
	"starting":  true,
	"waiting":   true,
	"running":   true,
}

// snippetFlags are the flags that place a statement on a backend.
type snippetFlags struct {
	typ     string
	session int
}

func (f *snippetFlags) register(cmd *cobra.Command, defaultType string) {
	cmd.Flags().StringVarP(&f.typ, "type", "t", defaultType, "Snippet type (hive, impala, spark-sql, spark, pyspark, r, jar, py)")
	cmd.Flags().IntVar(&f.session, "session", -1, "Spark session ID for spark, pyspark and r snippets")
}

func (f *snippetFlags) notebook() map[string]any {
	nb := map[string]any{"name": "hue-cli", "sessions": []any{}}
	if f.session >= 0 {
		nb["sessions"] = []any{map[string]any{"type": f.typ, "id": f.session}}
	}
	return nb
}

func (f *snippetFlags) snippet(statement string, handle map[string]any) map[string]any {
	s := map[string]any{"id": "hue-cli", "type": f.typ, "statement": statement}
	if handle != nil {
		s["result"] = map[string]any{"handle": handle}
	}
	return s
}

// parseHandle decodes a handle printed by execute. "-" reads it from stdin.
func parseHandle(arg string, stdin io.Reader) (map[string]any, error) {
	if arg == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read handle: %w", err)
		}
		arg = string(b)
	}
	var handle map[string]any
	if err := json.Unmarshal([]byte(arg), &handle); err != nil {
		return nil, fmt.Errorf("handle must be the JSON object printed by execute: %w", err)
	}
	// execute -o json prints {"handle": {...}}
	if inner, ok := handle["handle"].(map[string]any); ok {
		return inner, nil
	}
	return handle, nil
}

func readStatement(args []string, file string, stdin io.Reader) (string, error) {
	switch {
	case file != "":
		b, err := os.ReadFile(file) //nolint:gosec // user-supplied script path
		if err != nil {
			return "", fmt.Errorf("read statement file: %w", err)
		}
		return string(b), nil
	case len(args) == 1 && args[0] == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read statement: %w", err)
		}
		return string(b), nil
	case len(args) == 1:
		return args[0], nil
	}
	return "", fmt.Errorf("a statement argument or --file is required")
}

func newExecuteCmd(client *Client) *cobra.Command {
	var (
		sf      snippetFlags
		file    string
		wait    bool
		rows    int
		timeout time.Duration
		poll    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "execute [statement|-]",
		Short: "Submit a statement and print its first rows",
		Long: "Submit a statement. By default the command waits for it to finish and prints the " +
			"first page of results; with --wait=false it prints the handle for status, fetch, cancel and close.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statement, err := readStatement(args, file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			nb := sf.notebook()
			resp, err := client.Call(ctx, "execute", map[string]any{"notebook": nb, "snippet": sf.snippet(statement, nil)})
			if err != nil {
				return err
			}
			handle, _ := resp["handle"].(map[string]any)
			if !wait {
				return printHandle(cmd, handle)
			}

			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			snippet := sf.snippet(statement, handle)
			state, err := waitForStatement(ctx, client, nb, snippet, poll)
			if err != nil {
				return err
			}
			if state != "available" {
				return fmt.Errorf("statement finished in state %q", state)
			}
			if has, ok := handle["has_result_set"].(bool); ok && !has {
				return printHandle(cmd, handle)
			}
			resp, err = client.Call(ctx, "fetch_result_data", map[string]any{
				"notebook":  nb,
				"snippet":   snippet,
				"rows":      strconv.Itoa(rows),
				"startOver": "true",
			})
			if err != nil {
				return err
			}
			result, _ := resp["result"].(map[string]any)
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), map[string]any{"handle": handle, "result": result})
			}
			return PrintResult(cmd.OutOrStdout(), result)
		},
	}
	sf.register(cmd, "hive")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the statement from a file")
	cmd.Flags().BoolVar(&wait, "wait", true, "Wait for the statement and print its results")
	cmd.Flags().IntVar(&rows, "rows", 100, "Rows to fetch")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Give up waiting after this long")
	cmd.Flags().DurationVar(&poll, "poll-interval", time.Second, "Delay between status checks")
	return cmd
}

// waitForStatement polls check_status until the statement leaves the
// pending states and returns the final state.
func waitForStatement(ctx context.Context, client *Client, nb, snippet map[string]any, interval time.Duration) (string, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		resp, err := client.Call(ctx, "check_status", map[string]any{"notebook": nb, "snippet": snippet})
		if err != nil {
			return "", err
		}
		state := queryStatus(resp)
		if !pendingStates[state] {
			return state, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("statement still %s: %w", state, ctx.Err())
		case <-ticker.C:
		}
	}
}

func queryStatus(resp map[string]any) string {
	qs, _ := resp["query_status"].(map[string]any)
	s, _ := qs["status"].(string)
	return s
}

func printHandle(cmd *cobra.Command, handle map[string]any) error {
	if getOutputFormat(cmd) == "json" {
		return PrintJSON(cmd.OutOrStdout(), map[string]any{"handle": handle})
	}
	b, err := json.Marshal(handle)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "handle: %s\n", b)
	return err
}

func newStatusCmd(client *Client) *cobra.Command {
	var sf snippetFlags
	cmd := &cobra.Command{
		Use:   "status HANDLE",
		Short: "Show the state of a submitted statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, err := parseHandle(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			resp, err := client.Call(cmd.Context(), "check_status", map[string]any{
				"notebook": sf.notebook(),
				"snippet":  sf.snippet("", handle),
			})
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), resp["query_status"])
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), queryStatus(resp))
			return err
		},
	}
	sf.register(cmd, "hive")
	return cmd
}

func newFetchCmd(client *Client) *cobra.Command {
	var (
		sf        snippetFlags
		rows      int
		startOver bool
	)
	cmd := &cobra.Command{
		Use:   "fetch HANDLE",
		Short: "Fetch a page of a statement's results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, err := parseHandle(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			resp, err := client.Call(cmd.Context(), "fetch_result_data", map[string]any{
				"notebook":  sf.notebook(),
				"snippet":   sf.snippet("", handle),
				"rows":      strconv.Itoa(rows),
				"startOver": strconv.FormatBool(startOver),
			})
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
	sf.register(cmd, "hive")
	cmd.Flags().IntVar(&rows, "rows", 100, "Rows to fetch")
	cmd.Flags().BoolVar(&startOver, "start-over", true, "Fetch from the first row")
	return cmd
}

// newAckCmd builds cancel and close, which differ only in the endpoint.
func newAckCmd(client *Client, use, short, endpoint string) *cobra.Command {
	var sf snippetFlags
	cmd := &cobra.Command{
		Use:   use + " HANDLE",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, err := parseHandle(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			resp, err := client.Call(cmd.Context(), endpoint, map[string]any{
				"notebook": sf.notebook(),
				"snippet":  sf.snippet("", handle),
			})
			if err != nil {
				return err
			}
			return printAck(cmd, resp["result"])
		},
	}
	sf.register(cmd, "hive")
	return cmd
}

func newCancelCmd(client *Client) *cobra.Command {
	return newAckCmd(client, "cancel", "Cancel a running statement", "cancel_statement")
}

func newCloseCmd(client *Client) *cobra.Command {
	return newAckCmd(client, "close", "Release a statement on its backend", "close_statement")
}

func printAck(cmd *cobra.Command, result any) error {
	if getOutputFormat(cmd) == "json" {
		return PrintJSON(cmd.OutOrStdout(), result)
	}
	ack, _ := result.(map[string]any)
	msg := "done"
	if status, _ := ack["status"].(float64); status == -1 {
		msg = "skipped: nothing to release"
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), msg)
	return err
}

// parseConf turns key=value pairs into a map.
func parseConf(pairs []string) (map[string]string, error) {
	conf := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --conf %q: want key=value", p)
		}
		conf[k] = v
	}
	return conf, nil
}
