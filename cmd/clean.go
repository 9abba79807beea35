package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lakshaymaurya-felt/gitlab-cleaner/internal/artifacts"
	"github.com/lakshaymaurya-felt/gitlab-cleaner/internal/config"
	"github.com/lakshaymaurya-felt/gitlab-cleaner/internal/gitlab"
	"github.com/lakshaymaurya-felt/gitlab-cleaner/internal/logging"
	"github.com/lakshaymaurya-felt/gitlab-cleaner/internal/progress"
	"github.com/lakshaymaurya-felt/gitlab-cleaner/internal/ui"
)

const (
	flagConcurrency = "concurrency"
	flagRetries     = "retries"
	flagTimeout     = "timeout"
)

// cleanFlags are the raw clean flag values, only applied when changed.
type cleanFlags struct {
	token         string
	server        string
	paths         []string
	dryRun        bool
	threshold     string
	thresholdSize string
	concurrency   int
	retries       int
	timeout       time.Duration
}

func newCleanCmd(g *globalOptions) *cobra.Command {
	var f cleanFlags

	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete old job artifacts",
		Long: `Delete the artifacts of finished jobs older than --threshold in every project
the token maintains (or only the ones matching --paths).

Prints one line per listed project on stdout, in listing order.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, g, f, os.LookupEnv)
			if err != nil {
				return err
			}
			return runClean(cmd.Context(), g, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cleanCmd.Flags()
	flags.StringVar(&f.token, string(config.FieldToken), "", "GitLab token with maintainer rights (env GITLAB_TOKEN, GL_TOKEN)")
	flags.StringVar(&f.server, string(config.FieldServer), "", "GitLab host or URL (env CI_SERVER_HOST, CI_API_V4_URL, CI_SERVER_URL)")
	flags.StringArrayVar(&f.paths, string(config.FieldPaths), nil, "Regexp matched against project paths with namespace, repeat for several (env CLEANER_PATHS, CI_PROJECT_NAME, comma separated)")
	flags.BoolVar(&f.dryRun, string(config.FieldDryRun), false, "Preview the cleanup without deleting (env CLEANER_DRY_RUN)")
	flags.StringVar(&f.threshold, string(config.FieldThreshold), config.DefaultThreshold, "Minimum job age, e.g. 7d, 2w, 36h (env CLEANER_THRESHOLD)")
	flags.StringVar(&f.thresholdSize, string(config.FieldThresholdSize), "", "Minimum artifacts size of a job, e.g. 10MB")
	flags.IntVar(&f.concurrency, flagConcurrency, config.DefaultConcurrency, "Projects cleaned in parallel")
	flags.IntVar(&f.retries, flagRetries, config.DefaultRetries, "Retries of failed API calls (0 disables)")
	flags.DurationVar(&f.timeout, flagTimeout, config.DefaultTimeout, "Timeout of a single API call")
	return cleanCmd
}

// resolveConfig merges, by increasing priority, defaults, the config file,
// the environment and the flags set on the command line.
func resolveConfig(cmd *cobra.Command, g *globalOptions, f cleanFlags, lookup config.Lookup) (config.Config, error) {
	path, required := g.configPath, true
	if path == "" {
		path, required = config.DefaultPath(), false
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		return cfg, err
	}

	changed := func(name string) bool { return cmd.Flags().Changed(name) }
	var explicit []config.Field
	for _, field := range []config.Field{config.FieldToken, config.FieldServer, config.FieldPaths, config.FieldDryRun, config.FieldThreshold} {
		if changed(string(field)) {
			explicit = append(explicit, field)
		}
	}

	if cfg, err = cfg.ApplyEnv(lookup, explicit...); err != nil {
		return cfg, err
	}

	if changed(string(config.FieldToken)) {
		cfg.Token = f.token
	}
	if changed(string(config.FieldServer)) {
		cfg.Server = f.server
	}
	if changed(string(config.FieldPaths)) {
		cfg.Paths = f.paths
	}
	if changed(string(config.FieldDryRun)) {
		cfg.DryRun = f.dryRun
	}
	if changed(string(config.FieldThreshold)) {
		cfg.Threshold = f.threshold
	}
	if changed(string(config.FieldThresholdSize)) {
		cfg.ThresholdSize = f.thresholdSize
	}
	if changed(flagConcurrency) {
		cfg.Concurrency = f.concurrency
	}
	if changed(flagRetries) {
		cfg.Retries = f.retries
	}
	if changed(flagTimeout) {
		cfg.Timeout = f.timeout
	}

	return cfg, cfg.Validate()
}

// runClean executes a clean run and prints its report on stdout.
func runClean(ctx context.Context, g *globalOptions, cfg config.Config, stdout, stderr io.Writer) error {
	logger := g.logger.WithField("run_id", uuid.NewString())
	logger.WithField("config", cfg.String()).Debug("resolved configuration")

	client, err := gitlab.New(gitlab.Options{
		Server:  cfg.Server,
		Token:   cfg.Token,
		Retries: cfg.Retries,
		Timeout: cfg.Timeout,
	}, g.clientOptions...)
	if err != nil {
		return err
	}

	threshold, err := cfg.ThresholdDuration()
	if err != nil {
		return err
	}
	opts := []artifacts.RunOption{
		artifacts.WithDryRun(cfg.DryRun),
		artifacts.WithPaths(cfg.Paths...),
		artifacts.WithThresholdDuration(threshold),
		artifacts.WithThresholdSize(cfg.ThresholdBytes()),
		artifacts.WithConcurrency(cfg.Concurrency),
		artifacts.WithLogger(logger),
	}
	if cfg.DryRun {
		logger.Warn("running in dry run mode, no artifact will be deleted")
	}

	var report artifacts.Report
	run := func(extra ...artifacts.RunOption) error {
		var err error
		report, err = artifacts.Run(ctx, client, append(opts, extra...)...)
		return err
	}

	if g.showProgress(stderr) {
		err = withBufferedLogs(g.logger, func() error {
			return progress.Run(stderr, cfg.DryRun, func(o artifacts.Observer) error {
				return run(artifacts.WithObserver(o))
			})
		})
	} else {
		err = run()
	}

	if rerr := ui.RenderReport(stdout, report, ui.IsTerminal(stdout)); rerr != nil {
		logger.WithError(rerr).Error("failed to print report")
	}
	if err != nil {
		return fmt.Errorf("clean: %w", err)
	}

	logger.Info(ui.Summary(report))
	if failures := report.Totals().Failures; failures > 0 {
		return fmt.Errorf("cleanup finished with %d failure(s)", failures)
	}
	return nil
}

// showProgress reports whether the live progress display can own w.
func (g *globalOptions) showProgress(w io.Writer) bool {
	return !g.debug && g.logFormat == logging.FormatText && ui.IsTerminal(w)
}

// withBufferedLogs holds log lines back while fn runs, then flushes them.
func withBufferedLogs(logger *logrus.Logger, fn func() error) error {
	var buf bytes.Buffer
	out := logger.Out
	logger.SetOutput(&buf)
	defer func() {
		logger.SetOutput(out)
		_, _ = buf.WriteTo(out)
	}()
	return fn()
}
