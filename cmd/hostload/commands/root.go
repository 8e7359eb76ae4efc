// Package commands implements CLI command handlers for hostload.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/hostload/pkg/version"
)

// NewRootCommand builds the hostload command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hostload",
		Short: "Aggregate cluster task usage into a host load time series",
		Long: `hostload turns rate intervals from cluster trace shards or a database
into a fixed-resolution time series, resumable across crashes.

Commands:
  run       Aggregate intervals into an artifact
  dump      Render a stored artifact
  schema    Validate a shard schema descriptor`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewDumpCommand())
	rootCmd.AddCommand(NewSchemaCommand())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hostload %s\n", version.String())
		},
	}
}
