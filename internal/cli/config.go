package cli

import (
	"fsconsole/internal/store"

	"github.com/spf13/cobra"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change ~/.fsconsole/config.json",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the config (token redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := store.ConfigPath()
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": app.config().Redacted(),
				"meta": map[string]any{"path": path, "keys": store.Keys()},
			})
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> [value]",
		Short: "Set a config key (omit value to clear it)",
		Args:  cobra.RangeArgs(1, 2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return store.Keys(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := store.LoadConfig()
			if err != nil {
				return writeErr(cmd, err)
			}
			value := ""
			if len(args) == 2 {
				value = args[1]
			}
			if err := cfg.Set(args[0], value); err != nil {
				return writeErr(cmd, err)
			}
			if err := store.SaveConfig(cfg); err != nil {
				return writeErr(cmd, err)
			}
			app.cfg = cfg
			return writeOut(cmd, app, map[string]any{"data": cfg.Redacted()})
		},
	}

	cmd.AddCommand(showCmd)
	cmd.AddCommand(setCmd)
	return cmd
}
