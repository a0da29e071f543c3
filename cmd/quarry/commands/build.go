package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/quarry/internal/app"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [paths...]",
		Short: "Compute the summary of every source, reusing the previous session",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := c.app.Build(cmd.Context(), buildOptions(cmd, args))
			return err
		},
	}
	addBuildFlags(cmd)
	return cmd
}

func (c *CLI) newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [paths...]",
		Short: "Build, then rebuild whenever a source changes",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Watch(cmd.Context(), buildOptions(cmd, args))
		},
	}
	addBuildFlags(cmd)
	return cmd
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("jobs", "j", 0, "Number of query threads (default: from config, or the number of CPUs)")
	cmd.Flags().Bool("no-incremental", false, "Ignore and do not write the incremental cache")
	cmd.Flags().Bool("verify", false, "Recompute reused results and check their fingerprints")
	cmd.Flags().Bool("json-logs", false, "Write logs and diagnostics as JSON")
}

func buildOptions(cmd *cobra.Command, args []string) app.BuildOptions {
	jobs, _ := cmd.Flags().GetInt("jobs")
	noIncremental, _ := cmd.Flags().GetBool("no-incremental")
	verify, _ := cmd.Flags().GetBool("verify")
	jsonLogs, _ := cmd.Flags().GetBool("json-logs")

	return app.BuildOptions{
		Roots:         args,
		Jobs:          jobs,
		NoIncremental: noIncremental,
		Verify:        verify,
		JSONLogs:      jsonLogs,
	}
}
