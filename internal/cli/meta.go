package cli

import (
	"errors"
	"strings"

	"fsconsole/internal/model"
	"fsconsole/internal/tagging"

	"github.com/spf13/cobra"
)

func newMetaCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meta",
		Short: "Edit version metadata",
	}
	cmd.AddCommand(newMetaSetCmd(app))
	return cmd
}

func newMetaSetCmd(app *App) *cobra.Command {
	var tag, uid, description, newTag string
	var labels []string
	var clearLabels bool
	var retries int

	cmd := &cobra.Command{
		Use:   "set <kind> <name>",
		Short: "Set description and/or labels of one version (optionally its tag too)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKindArg(cmd, args[0])
			if err != nil {
				return err
			}
			project, err := app.project()
			if err != nil {
				return writeErr(cmd, err)
			}
			f := cmd.Flags()
			if !f.Changed("description") && !f.Changed("label") && !clearLabels && !f.Changed("new-tag") {
				return writeErr(cmd, errors.New("nothing to change; pass --description, --label, --clear-labels or --new-tag"))
			}
			c, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := commandContext(cmd)
			it, err := lookup(ctx, app, c, kind, project, args[1], tag, uid)
			if err != nil {
				return writeErr(cmd, err)
			}

			changes := tagging.Changes{}
			if f.Changed("description") {
				changes[tagging.FieldDescription] = tagging.FieldChange{InitialValue: it.Description, CurrentValue: description}
			}
			if f.Changed("label") || clearLabels {
				next := model.Labels{}
				if !clearLabels {
					next = append(next, it.Labels...)
				}
				for _, l := range model.ParseLabels(strings.Join(labels, ",")) {
					next = setLabel(next, l)
				}
				changes[tagging.FieldLabels] = tagging.FieldChange{InitialValue: it.Labels.String(), CurrentValue: next.String()}
			}
			if f.Changed("new-tag") {
				changes[tagging.FieldTag] = tagging.FieldChange{InitialValue: it.Tag, CurrentValue: newTag}
			}

			l, rec := app.activity(ctx)
			defer func() { _ = l.Close() }()

			sink := newStderrSink(cmd)
			ed := &tagging.DetailsEditor{
				API:        c,
				Reconciler: &tagging.Reconciler{API: c, Sink: sink, Log: app.logger(), Events: rec},
				Sink:       sink,
				Log:        app.logger(),
				Events:     rec,
			}
			out, err := ed.Apply(ctx, changes, it, project)
			if _, err = sink.retryFailed(ctx, retries, err, app.logger()); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": out})
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "Tag of the version (default latest)")
	cmd.Flags().StringVar(&uid, "uid", "", "Uid (or producer tree) of the version; overrides --tag")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringArrayVar(&labels, "label", nil, "Label to set (k=v); repeatable")
	cmd.Flags().BoolVar(&clearLabels, "clear-labels", false, "Drop existing labels before applying --label")
	cmd.Flags().StringVar(&newTag, "new-tag", "", "Also retag the version (empty deletes its tag)")
	cmd.Flags().IntVar(&retries, "retries", 0, "Retry a failed update up to this many times")
	return cmd
}

// setLabel replaces the value of l.Key in place, or appends l.
func setLabel(ls model.Labels, l model.Label) model.Labels {
	for i := range ls {
		if ls[i].Key == l.Key {
			ls[i].Value = l.Value
			return ls
		}
	}
	return append(ls, l)
}
