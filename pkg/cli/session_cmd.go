package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSessionCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage Spark interactive sessions",
	}
	cmd.AddCommand(newSessionCreateCmd(client))
	cmd.AddCommand(newSessionCloseCmd(client))
	return cmd
}

func newSessionCreateCmd(client *Client) *cobra.Command {
	var (
		typ  string
		conf []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a Spark session",
		Example: `  hue session create --type pyspark --conf executorMemory=2g --conf executorCores=2
  hue execute --type pyspark --session 3 "print(1 + 1)"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			properties, err := parseConf(conf)
			if err != nil {
				return err
			}
			nb := map[string]any{
				"name":     "hue-cli",
				"sessions": []any{map[string]any{"type": typ, "properties": properties}},
			}
			resp, err := client.Call(cmd.Context(), "create_session", map[string]any{
				"notebook": nb,
				"snippet":  map[string]any{"id": "hue-cli", "type": typ},
			})
			if err != nil {
				return err
			}
			session, _ := resp["session"].(map[string]any)
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), session)
			}
			return PrintDetail(cmd.OutOrStdout(), session)
		},
	}
	cmd.Flags().StringVarP(&typ, "type", "t", "pyspark", "Session language (spark, pyspark, r)")
	cmd.Flags().StringArrayVar(&conf, "conf", nil, "Session property as key=value (repeatable)")
	return cmd
}

func newSessionCloseCmd(client *Client) *cobra.Command {
	var sf snippetFlags
	cmd := &cobra.Command{
		Use:   "close",
		Short: "Close a Spark session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sf.session < 0 {
				return fmt.Errorf("--session is required")
			}
			resp, err := client.Call(cmd.Context(), "close_statement", map[string]any{
				"notebook": sf.notebook(),
				"snippet":  sf.snippet("", nil),
			})
			if err != nil {
				return err
			}
			return printAck(cmd, resp["result"])
		},
	}
	sf.register(cmd, "pyspark")
	return cmd
}
