package cmd

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/spf13/cobra"
)

func newVersionCmd(g *globalOptions) *cobra.Command {
	var verbose bool

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintln(out, appVersion); err != nil {
				return err
			}
			if !verbose {
				return nil
			}

			fmt.Fprintf(out, "commit:   %s\n", appCommit)
			fmt.Fprintf(out, "built:    %s\n", appDate)
			fmt.Fprintf(out, "go:       %s\n", runtime.Version())

			info, err := host.InfoWithContext(cmd.Context())
			if err != nil {
				// host details are informative only
				g.logger.WithError(err).Debug("failed to read host information")
				fmt.Fprintf(out, "platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
				return nil
			}
			fmt.Fprintf(out, "platform: %s %s (%s/%s)\n", info.Platform, info.PlatformVersion, info.OS, info.KernelArch)
			return nil
		},
	}
	versionCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Also print build and host details")
	return versionCmd
}
