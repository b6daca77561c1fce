package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage connection profiles in ~/.hue/config.yaml",
	}
	cmd.AddCommand(newConfigSetProfileCmd())
	cmd.AddCommand(newConfigUseCmd())
	cmd.AddCommand(newConfigViewCmd())
	return cmd
}

// loadOrEmptyConfig treats a missing config file as an empty one.
func loadOrEmptyConfig() *UserConfig {
	cfg, err := LoadUserConfig()
	if err != nil {
		return &UserConfig{CurrentProfile: "default", Profiles: map[string]Profile{}}
	}
	return cfg
}

func newConfigSetProfileCmd() *cobra.Command {
	var (
		host   string
		user   string
		output string
		use    bool
	)
	cmd := &cobra.Command{
		Use:   "set-profile NAME",
		Short: "Create or update a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutputFormat(output); err != nil {
				return err
			}
			cfg := loadOrEmptyConfig()
			p := cfg.Profiles[args[0]]
			if cmd.Flags().Changed("host") {
				p.Host = host
			}
			if cmd.Flags().Changed("user") {
				p.User = user
			}
			if cmd.Flags().Changed("output") {
				p.Output = output
			}
			cfg.Profiles[args[0]] = p
			if use {
				cfg.CurrentProfile = args[0]
			}
			if err := SaveUserConfig(cfg); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "profile %q saved\n", args[0])
			return err
		},
	}
	// Local flags shadow the root's persistent flags of the same name.
	cmd.Flags().StringVar(&host, "host", "", "Gateway URL")
	cmd.Flags().StringVar(&user, "user", "", "User to run as")
	cmd.Flags().StringVar(&output, "output", "", "Output format (table, json)")
	cmd.Flags().BoolVar(&use, "use", false, "Make this the current profile")
	return cmd
}

func newConfigUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use NAME",
		Short: "Switch the current profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadOrEmptyConfig()
			if _, ok := cfg.Profiles[args[0]]; !ok {
				return fmt.Errorf("profile %q not found", args[0])
			}
			cfg.CurrentProfile = args[0]
			if err := SaveUserConfig(cfg); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "switched to profile %q\n", args[0])
			return err
		},
	}
}

func newConfigViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Print the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadOrEmptyConfig()
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), cfg)
			}
			rows := make([][]string, 0, len(cfg.Profiles))
			for _, name := range sortedKeys(cfg.Profiles) {
				p := cfg.Profiles[name]
				current := ""
				if name == cfg.CurrentProfile {
					current = "*"
				}
				rows = append(rows, []string{current, name, p.Host, p.User, p.Output})
			}
			return PrintTable(cmd.OutOrStdout(), []string{"CURRENT", "NAME", "HOST", "USER", "OUTPUT"}, rows)
		},
	}
}
