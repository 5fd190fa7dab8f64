package cli

import (
	"context"
	"fmt"
	"strings"

	"fsconsole/internal/api"
	"fsconsole/internal/model"
	"fsconsole/internal/store"

	"github.com/spf13/cobra"
)

func newDoctorCmd(app *App) *cobra.Command {
	var fail bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the local setup and API reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Default()
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg := app.config()
			report := store.DoctorLocal(ctx, s, &cfg)
			app.doctorRemote(ctx, &report)

			meta := map[string]any{
				"issues":    len(report.Issues),
				"hasErrors": report.HasErrors(),
			}
			if err := writeOut(cmd, app, map[string]any{
				"data": report,
				"meta": meta,
			}); err != nil {
				return err
			}

			if fail && report.HasErrors() {
				return store.ErrDoctorIssuesFound
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fail, "fail", false, "Exit with non-zero status if errors are found")
	return cmd
}

// doctorRemote pings the API with a cheap tag listing.
func (app *App) doctorRemote(ctx context.Context, report *store.DoctorReport) {
	if strings.TrimSpace(app.APIURL) == "" {
		report.Add(store.DoctorIssueLevelError, "api_url_missing", "no API url configured", "")
	}
	project := strings.TrimSpace(app.Project)
	if project == "" {
		report.Add(store.DoctorIssueLevelError, "project_missing", "no project configured", "")
	}
	if strings.TrimSpace(app.APIURL) == "" || project == "" {
		return
	}
	c, err := app.client()
	if err != nil {
		report.Add(store.DoctorIssueLevelError, "api_client", err.Error(), "")
		return
	}
	if _, err := c.Tags(ctx, project, model.KindFeatureSet); err != nil {
		report.Add(store.DoctorIssueLevelError, "api_unreachable", fmt.Sprintf("[%d] %v", api.StatusCode(err), err), app.APIURL)
	}
}
