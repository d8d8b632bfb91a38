package cli

import (
	"github.com/spf13/cobra"
)

var refreshForce bool

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one sync cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Refresh(cmd.Context(), refreshForce)
	},
}

func init() {
	refreshCmd.Flags().BoolVar(&refreshForce, "force", false, "Bypass the minimum interval between fetches (the daily cap still applies)")
}
