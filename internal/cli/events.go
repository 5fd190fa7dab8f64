package cli

import (
	"fsconsole/internal/store"

	"github.com/spf13/cobra"
)

func newEventsCmd(app *App) *cobra.Command {
	var limit int
	var kind, name string
	var allProjects bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the local activity log of tag and metadata edits",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List activity (newest-first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := store.ActivityFilter{Limit: limit, Name: name}
			if !allProjects {
				f.Project = app.Project
			}
			if kind != "" {
				k, err := parseKindArg(cmd, kind)
				if err != nil {
					return err
				}
				f.Kind = k
			}
			s, err := store.Default()
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := commandContext(cmd)
			l, err := s.OpenActivityLog(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer func() { _ = l.Close() }()
			evs, err := l.List(ctx, f)
			if err != nil {
				return writeErr(cmd, err)
			}
			failed := 0
			for _, ev := range evs {
				if ev.Status >= 400 || ev.Error != "" {
					failed++
				}
			}
			return writeOut(cmd, app, map[string]any{"data": evs, "meta": map[string]any{"count": len(evs), "failed": failed}})
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 50, "Max events to return")
	listCmd.Flags().StringVar(&kind, "kind", "", "Only events for this kind")
	listCmd.Flags().StringVar(&name, "name", "", "Only events for this item name")
	listCmd.Flags().BoolVar(&allProjects, "all-projects", false, "Ignore --project")

	cmd.AddCommand(listCmd)
	return cmd
}
