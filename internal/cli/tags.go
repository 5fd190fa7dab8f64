package cli

import (
	"context"
	"fmt"
	"io"

	"fsconsole/internal/notify"
	"fsconsole/internal/tagging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTagsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "List and edit version tags",
	}
	cmd.AddCommand(newTagsListCmd(app))
	cmd.AddCommand(newTagsSetCmd(app))
	return cmd
}

func newTagsListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:       "list <kind>",
		Short:     "List the tags used by a kind in the project",
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
			tags, err := c.Tags(commandContext(cmd), project, kind)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": tags})
		},
	}
}

// stderrSink prints notifications to stderr and queues them so a failed
// mutation's retry can be taken.
type stderrSink struct {
	w io.Writer
	q *notify.Queue
}

func newStderrSink(cmd *cobra.Command) stderrSink {
	return stderrSink{w: cmd.ErrOrStderr(), q: notify.NewQueue(16)}
}

func (s stderrSink) Notify(n notify.Notification) {
	fmt.Fprintf(s.w, "%d %s\n", n.Status, n.Message)
	s.q.Notify(n)
}

// retryFailed re-runs the retry action of the latest notification up to n
// times while lastErr is set. It returns the number of attempts and the last
// error, nil once a retry succeeds.
func (s stderrSink) retryFailed(ctx context.Context, n int, lastErr error, log *zap.Logger) (int, error) {
	attempts := 0
	for attempts < n && lastErr != nil {
		latest, ok := s.q.Latest()
		if !ok || !latest.Retryable() {
			break
		}
		retry, ok := s.q.TakeRetry(latest.ID)
		if !ok {
			break
		}
		attempts++
		log.Info("retrying", zap.Int("attempt", attempts), zap.String("message", latest.Message))
		lastErr = retry(ctx)
	}
	return attempts, lastErr
}

// history lists the notifications whose retry was not taken, oldest first.
func (s stderrSink) history() []map[string]any {
	var out []map[string]any
	for _, n := range s.q.All() {
		out = append(out, map[string]any{"status": n.Status, "message": n.Message})
	}
	return out
}

// lastStatus is the status of the newest notification, or def.
func (s stderrSink) lastStatus(def int) int {
	if n, ok := s.q.Latest(); ok {
		return n.Status
	}
	return def
}

func newTagsSetCmd(app *App) *cobra.Command {
	var current, to, uid string
	var retries int

	cmd := &cobra.Command{
		Use:   "set <kind> <name>",
		Short: "Add, move or delete the tag of one version (empty --to deletes --tag)",
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
			if current == "" && uid == "" {
				return writeErr(cmd, fmt.Errorf("a version without a tag needs --uid"))
			}
			c, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := commandContext(cmd)
			it, err := lookup(ctx, app, c, kind, project, args[1], current, uid)
			if err != nil {
				return writeErr(cmd, err)
			}

			if to != it.Tag {
				if err := tagging.CheckTag(ctx, c, project, it, to); err != nil {
					return writeErr(cmd, err)
				}
			}

			l, rec := app.activity(ctx)
			defer func() { _ = l.Close() }()

			sink := newStderrSink(cmd)
			r := &tagging.Reconciler{API: c, Sink: sink, Log: app.logger(), Events: rec}
			changes := tagging.Changes{tagging.FieldTag: {InitialValue: it.Tag, CurrentValue: to}}
			out, err := r.Apply(ctx, changes, it, project)
			attempts, err := sink.retryFailed(ctx, retries, err, app.logger())
			if err != nil {
				return writeErr(cmd, err)
			}
			if attempts > 0 {
				out.Status = sink.lastStatus(out.Status)
			}
			return writeOut(cmd, app, map[string]any{
				"data": out,
				"meta": map[string]any{"attempts": attempts + 1, "notifications": sink.history()},
			})
		},
	}
	cmd.Flags().StringVar(&current, "tag", "", "Current tag of the version (empty with --uid for an untagged version)")
	cmd.Flags().StringVar(&to, "to", "", "New tag (empty deletes the current tag)")
	cmd.Flags().StringVar(&uid, "uid", "", "Uid (or producer tree) of the version")
	cmd.Flags().IntVar(&retries, "retries", 0, "Retry a failed mutation up to this many times")
	return cmd
}
