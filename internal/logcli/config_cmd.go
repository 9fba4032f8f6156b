package logcli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
	}

	setContextCmd := &cobra.Command{
		Use:   "set-context <name>",
		Short: "Create or update a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _ := cmd.Flags().GetString("server")
			token, _ := cmd.Flags().GetString("token")
			prefix, _ := cmd.Flags().GetString("route-prefix")
			makeCurrent, _ := cmd.Flags().GetBool("current")
			if server == "" {
				return fmt.Errorf("--server is required")
			}
			cfg, err := LoadConfig(root.cfgFile)
			if err != nil {
				return err
			}
			setContext(cfg, Context{
				Name:        args[0],
				Server:      server,
				Token:       token,
				RoutePrefix: prefix,
			}, makeCurrent)
			if err := SaveConfig(cfg, root.cfgFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Context %q updated.\n", args[0])
			return nil
		},
	}
	// Local flags shadow the persistent --server/--token overrides here.
	setContextCmd.Flags().String("server", "", "Feed server URL")
	setContextCmd.Flags().String("token", "", "API token")
	setContextCmd.Flags().String("route-prefix", "/log", "Route prefix of the job log feeds")
	setContextCmd.Flags().Bool("current", true, "Set as current context")

	useContextCmd := &cobra.Command{
		Use:   "use-context <name>",
		Short: "Switch the current context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(root.cfgFile)
			if err != nil {
				return err
			}
			if err := ensureContextExists(cfg, args[0]); err != nil {
				return err
			}
			cfg.CurrentContext = args[0]
			if err := SaveConfig(cfg, root.cfgFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Switched to context %q.\n", args[0])
			return nil
		},
	}

	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "Show the configured contexts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(root.cfgFile)
			if err != nil {
				return err
			}
			if root.outputFormat == "json" {
				return printJSON(cmd.OutOrStdout(), cfg)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config file: %s\n", root.cfgFile)
			names := make([]string, 0, len(cfg.Contexts))
			for name := range cfg.Contexts {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				current := " "
				if cfg.CurrentContext == name {
					current = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", current, name, cfg.Contexts[name].Server)
			}
			return nil
		},
	}

	configCmd.AddCommand(setContextCmd, useContextCmd, viewCmd)
	return configCmd
}
