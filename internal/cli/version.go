package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"fx-rate-alerts/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	// Skip config loading so version works without a config file.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "fxwatcher %s\ncommit: %s\nbuilt: %s\ngo: %s %s/%s\n",
			version.Version, version.Commit, version.BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
