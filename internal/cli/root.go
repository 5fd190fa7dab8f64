package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fsconsole/internal/api"
	"fsconsole/internal/format"
	"fsconsole/internal/logging"
	"fsconsole/internal/model"
	"fsconsole/internal/store"
	"fsconsole/internal/tagging"
	"fsconsole/internal/tui"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type App struct {
	APIURL      string
	Project     string
	PrettyJSON  bool
	Format      string
	Verbose     bool
	MetricsAddr string

	cfg      *store.Config
	log      *zap.Logger
	registry *prometheus.Registry
	metrics  *api.Metrics
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "fsconsole",
		Short:        "Feature store and artifact console (TUI + CLI)",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the interactive console
  fsconsole --api-url http://mlrun-api:8080 --project demo

  # Latest feature sets, grouped by name across all tags
  fsconsole list feature-set --tag '*'

  # Retag a model version
  fsconsole tags set model churn --tag v1 --to prod
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive console.
			if len(args) == 0 {
				return runTUI(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.init(cmd)
	}
	cmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if app.log != nil {
			_ = app.log.Sync()
		}
	}

	cmd.PersistentFlags().StringVar(&app.APIURL, "api-url", envOr("FSCONSOLE_API_URL", ""), "Data platform API base URL (overrides apiUrl in config.json)")
	cmd.PersistentFlags().StringVar(&app.Project, "project", envOr("FSCONSOLE_PROJECT", ""), "Project name (overrides project in config.json)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("FSCONSOLE_FORMAT", ""), "Output format (json|yaml)")
	cmd.PersistentFlags().BoolVar(&app.Verbose, "verbose", false, "Debug logging")
	cmd.Flags().StringVar(&app.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the console runs (e.g. :9464)")

	cmd.AddCommand(newListCmd(app))
	cmd.AddCommand(newVersionsCmd(app))
	cmd.AddCommand(newShowCmd(app))
	cmd.AddCommand(newTagsCmd(app))
	cmd.AddCommand(newMetaCmd(app))
	cmd.AddCommand(newEventsCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newDocsCmd(app))
	cmd.AddCommand(newDoctorCmd(app))

	return cmd
}

// init resolves flags over env over config.json and builds the logger.
func (app *App) init(cmd *cobra.Command) error {
	cfg, err := store.LoadConfig()
	if err != nil {
		return writeErr(cmd, err)
	}
	app.cfg = cfg
	if app.APIURL == "" {
		app.APIURL = cfg.APIURL
	}
	if app.Project == "" {
		app.Project = cfg.Project
	}
	if app.Format == "" {
		app.Format = cfg.Format
	}
	if app.Format == "" {
		app.Format = format.JSON
	}
	if !format.Valid(app.Format) {
		return writeErr(cmd, fmt.Errorf("unknown format: %s (expected json|yaml)", app.Format))
	}

	// The console owns the terminal, so it logs to a file.
	logPath := ""
	if cmd == cmd.Root() {
		logPath = cfg.LogFile
		if logPath == "" {
			dir, err := store.ConfigDir()
			if err != nil {
				return writeErr(cmd, err)
			}
			logPath = filepath.Join(dir, "fsconsole.log")
		}
	}
	log, err := logging.New(logPath, app.Verbose)
	if err != nil {
		return writeErr(cmd, fmt.Errorf("failed to initialize logger: %w", err))
	}
	app.log = log

	app.registry = prometheus.NewRegistry()
	app.metrics = api.NewMetrics(app.registry)
	return nil
}

func (app *App) logger() *zap.Logger {
	if app.log == nil {
		return zap.NewNop()
	}
	return app.log
}

func (app *App) client() (*api.Client, error) {
	if strings.TrimSpace(app.APIURL) == "" {
		return nil, errors.New("no API url; pass --api-url, set FSCONSOLE_API_URL, or run `fsconsole config set apiUrl <url>`")
	}
	cfg := app.config()
	return api.New(api.Options{
		BaseURL:   app.APIURL,
		Token:     envOr("FSCONSOLE_TOKEN", cfg.Token),
		Timeout:   cfg.Timeout(0),
		RateLimit: cfg.RateLimit,
		Logger:    app.logger(),
		Metrics:   app.metrics,
	})
}

func (app *App) config() store.Config {
	if app.cfg == nil {
		return store.Config{}
	}
	return *app.cfg
}

func (app *App) project() (string, error) {
	if strings.TrimSpace(app.Project) == "" {
		return "", errors.New("no project; pass --project, set FSCONSOLE_PROJECT, or run `fsconsole config set project <name>`")
	}
	return strings.TrimSpace(app.Project), nil
}

// activity opens the activity log. It is best effort: a log that cannot be
// opened disables recording but never fails a command.
func (app *App) activity(ctx context.Context) (*store.ActivityLog, tagging.Recorder) {
	s, err := store.Default()
	if err != nil {
		app.logger().Warn("activity log unavailable", zap.Error(err))
		return nil, nil
	}
	l, err := s.OpenActivityLog(ctx)
	if err != nil {
		app.logger().Warn("activity log unavailable", zap.Error(err))
		return nil, nil
	}
	return l, l
}

func runTUI(cmd *cobra.Command, app *App) error {
	c, err := app.client()
	if err != nil {
		return writeErr(cmd, err)
	}
	s, err := store.Default()
	if err != nil {
		return writeErr(cmd, err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	l, rec := app.activity(ctx)
	defer func() { _ = l.Close() }()

	if app.MetricsAddr != "" {
		stop, err := serveMetrics(app.MetricsAddr, app.registry, app.logger())
		if err != nil {
			return writeErr(cmd, err)
		}
		defer stop()
	}

	cfg := app.config()
	opts := tui.Options{
		API:      c,
		Project:  app.Project,
		Store:    s,
		Activity: rec,
		Logger:   app.logger(),
	}
	if cfg.TUI != nil {
		opts.Profile = cfg.TUI.Profile
		if k, err := model.ParseKind(cfg.TUI.StartPage); err == nil {
			opts.StartKind = k
		}
	}
	return tui.Run(ctx, opts)
}

func parseKindArg(cmd *cobra.Command, s string) (model.Kind, error) {
	k, err := model.ParseKind(s)
	if err != nil {
		return "", writeErr(cmd, fmt.Errorf("%w: %q (expected one of %s)", err, s, kindList()))
	}
	return k, nil
}

func kindList() string {
	var parts []string
	for _, k := range model.AllKinds() {
		parts = append(parts, string(k))
	}
	return strings.Join(parts, "|")
}

func kindArgs() []string {
	var out []string
	for _, k := range model.AllKinds() {
		out = append(out, string(k))
	}
	return out
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
