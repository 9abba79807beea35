package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/lakshaymaurya-felt/gitlab-cleaner/internal/logging"
	"github.com/lakshaymaurya-felt/gitlab-cleaner/internal/ui"
)

var (
	// Version info populated from main
	appVersion = "v0.0.0"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets build-time version information.
func SetVersionInfo(version, commit, date string) {
	if version != "" {
		appVersion = version
	}
	appCommit = commit
	appDate = date
}

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	debug      bool
	logLevel   string
	logFormat  string
	configPath string

	logger        *logrus.Logger
	clientOptions []gitlab.ClientOptionFunc
}

func newRootCmd(logger *logrus.Logger, clientOptions ...gitlab.ClientOptionFunc) *cobra.Command {
	g := &globalOptions{logger: logger, clientOptions: clientOptions}

	rootCmd := &cobra.Command{
		Use:   "gitlab-cleaner",
		Short: "Clean old job artifacts from GitLab projects",
		Long: `gitlab-cleaner - reclaim GitLab storage.

Lists the projects the token maintains and deletes the artifacts
of jobs older than a threshold, with dry run and path filters.`,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return logging.Configure(g.logger, logging.Options{
				Level:  g.logLevel,
				Format: g.logFormat,
				Debug:  g.debug,
				Colors: ui.IsTerminal(g.logger.Out),
			})
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&g.debug, "debug", false, "Show detailed operation logs")
	flags.StringVar(&g.logLevel, "log-level", "info", "Logging level (trace, debug, info, warn, error)")
	flags.StringVar(&g.logFormat, "log-format", logging.FormatText, `Logging format (either "text" or "json")`)
	flags.StringVar(&g.configPath, "config", "", "YAML configuration file (default "+defaultConfigHint+")")

	rootCmd.AddCommand(newCleanCmd(g))
	rootCmd.AddCommand(newVersionCmd(g))
	rootCmd.AddCommand(newCompletionCmd())
	return rootCmd
}

const defaultConfigHint = "$XDG_CONFIG_HOME/gitlab-cleaner/config.yaml"

// Execute runs the root command until completion or until SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd(logrus.StandardLogger()).ExecuteContext(ctx)
}
