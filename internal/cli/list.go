package cli

import (
	"context"
	"fmt"

	"fsconsole/internal/api"
	"fsconsole/internal/content"
	"fsconsole/internal/expand"
	"fsconsole/internal/filters"
	"fsconsole/internal/format"
	"fsconsole/internal/model"
	"fsconsole/internal/session"

	"github.com/spf13/cobra"
)

func newPage(app *App, c *api.Client, kind model.Kind, project string, v filters.Values) *session.Page {
	return session.NewPage(session.Options{
		Kind:    kind,
		Project: project,
		API:     c,
		Filters: v,
		Logger:  app.logger(),
	})
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newListCmd(app *App) *cobra.Command {
	var v filters.Values
	var groupBy string

	cmd := &cobra.Command{
		Use:       "list <kind>",
		Short:     "List items as table rows (kind: " + kindList() + ")",
		Args:      cobra.ExactArgs(1),
		ValidArgs: kindArgs(),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKindArg(cmd, args[0])
			if err != nil {
				return err
			}
			project, err := app.project()
			if err != nil {
				return writeErr(cmd, err)
			}
			c, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			p := newPage(app, c, kind, project, filters.Values{Tag: v.Tag})
			defer p.Close()
			p.SetName(v.Name)
			p.SetLabels(v.Labels)
			p.SetIter(v.Iter)
			if groupBy != "" {
				g, err := model.ParseGroupBy(groupBy)
				if err != nil {
					return writeErr(cmd, fmt.Errorf("%w: %q (expected none|name)", err, groupBy))
				}
				p.SetGroupBy(g)
			}
			if err := p.Refresh(commandContext(cmd)); err != nil {
				return writeErr(cmd, err)
			}
			fv := p.Filters()
			return writeOut(cmd, app, map[string]any{
				"data": p.Table(),
				"meta": map[string]any{
					"project":    project,
					"kind":       kind,
					"tag":        fv.EffectiveTag(),
					"groupBy":    fv.GroupBy,
					"tagOptions": fv.TagOptions,
					"count":      len(p.Items()),
				},
			})
		},
	}
	cmd.Flags().StringVar(&v.Tag, "tag", "", "Tag filter (default latest; '*' = all tags, grouped by name)")
	cmd.Flags().StringVar(&v.Name, "name", "", "Name substring filter")
	cmd.Flags().StringVar(&v.Labels, "labels", "", "Label filter (k=v,k2)")
	cmd.Flags().StringVar(&v.Iter, "iter", "", "Iteration filter (artifacts)")
	cmd.Flags().StringVar(&groupBy, "group-by", "", "Row grouping (none|name); forced to name when --tag='*'")
	return cmd
}

func newVersionsCmd(app *App) *cobra.Command {
	var tag string

	cmd := &cobra.Command{
		Use:   "versions <kind> <name>",
		Short: "List every version of one name (the expansion of a grouped row)",
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
			c, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			if tag == "" {
				tag = model.TagFilterAll
			}
			p := newPage(app, c, kind, project, filters.Values{Tag: tag})
			defer p.Close()

			parent := content.NewRow(model.Item{Kind: kind, Project: project, Name: args[1]}, true, content.Options{Project: project})
			st := p.Expand(parent)
			if st.Phase == expand.Failed {
				return writeErr(cmd, st.Err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": st.Content,
				"meta": map[string]any{"name": args[1], "tag": tag, "state": st.Phase.String()},
			})
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "Tag filter for the versions (default '*')")
	return cmd
}

// lookup finds one version by name and tag, or by uid when given.
func lookup(ctx context.Context, app *App, c *api.Client, kind model.Kind, project, name, tag, uid string) (model.Item, error) {
	v := filters.Values{Tag: tag, Name: name}
	ref := tag
	if uid != "" {
		v.Tag = model.TagFilterAll
		ref = uid
	}
	if ref == "" {
		ref = model.TagLatest
	}
	p := newPage(app, c, kind, project, v)
	defer p.Close()
	if err := p.Load(ctx); err != nil {
		return model.Item{}, err
	}
	it, err := p.Select(name, ref)
	if err != nil {
		return model.Item{}, err
	}
	if it.Name == "" {
		return model.Item{}, &session.NotFoundError{Name: name, Ref: ref, Route: content.CollectionRoute(project, kind)}
	}
	return it, nil
}

func newShowCmd(app *App) *cobra.Command {
	var tag, uid string
	var raw bool

	cmd := &cobra.Command{
		Use:   "show <kind> <name>",
		Short: "Show one item version",
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
			c, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			it, err := lookup(commandContext(cmd), app, c, kind, project, args[1], tag, uid)
			if err != nil {
				return writeErr(cmd, err)
			}
			if raw {
				// The backend object, as the YAML view shows it.
				if app.Format == format.YAML {
					s, err := format.ItemYAML(it)
					if err != nil {
						return writeErr(cmd, err)
					}
					_, err = fmt.Fprint(cmd.OutOrStdout(), s)
					return err
				}
				return writeOut(cmd, app, map[string]any{"data": it.Raw})
			}
			return writeOut(cmd, app, map[string]any{
				"data": it,
				"meta": map[string]any{"link": content.DetailsLink(it, content.Options{Project: project})},
			})
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "Tag of the version (default latest)")
	cmd.Flags().StringVar(&uid, "uid", "", "Uid (or producer tree) of the version; overrides --tag")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the backend object instead of the normalized item")
	return cmd
}
