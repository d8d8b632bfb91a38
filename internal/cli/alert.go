package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"fx-rate-alerts/internal/app"
)

var (
	alertEnable    bool
	alertDisable   bool
	alertMode      string
	alertThreshold string
	alertReset     bool
	alertEnabled   bool
	historyLimit   int
)

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Inspect and change per-currency alert settings",
}

var alertGetCmd = &cobra.Command{
	Use:   "get CURRENCY",
	Short: "Show one currency's alert setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().AlertGet(cmd.Context(), args[0])
	},
}

var alertSetCmd = &cobra.Command{
	Use:   "set CURRENCY",
	Short: "Change one currency's alert setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertEnable && alertDisable {
			return fmt.Errorf("--enable and --disable are mutually exclusive")
		}

		var update app.AlertUpdate
		if alertEnable || alertDisable {
			v := alertEnable
			update.Enabled = &v
		}
		if cmd.Flags().Changed("mode") {
			update.Mode = &alertMode
		}
		if cmd.Flags().Changed("threshold") {
			d, err := decimal.NewFromString(alertThreshold)
			if err != nil {
				return fmt.Errorf("invalid --threshold value: %w", err)
			}
			update.Threshold = &d
		}
		update.Reset = alertReset

		return getApp().AlertSet(cmd.Context(), args[0], update)
	},
}

var alertListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alert settings for every currency",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().AlertList(cmd.Context(), alertEnabled)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyLimit < 0 {
			return fmt.Errorf("--limit cannot be negative")
		}
		return getApp().History(cmd.Context(), historyLimit)
	},
}

func init() {
	alertSetCmd.Flags().BoolVar(&alertEnable, "enable", false, "Enable the alert")
	alertSetCmd.Flags().BoolVar(&alertDisable, "disable", false, "Disable the alert")
	alertSetCmd.Flags().StringVar(&alertMode, "mode", "", "Threshold mode: upper, lower, band3, band5")
	alertSetCmd.Flags().StringVar(&alertThreshold, "threshold", "", "Threshold rate")
	alertSetCmd.Flags().BoolVar(&alertReset, "reset-cooldown", false, "Clear the last notification time")

	alertListCmd.Flags().BoolVar(&alertEnabled, "enabled", false, "Only list enabled alerts")

	alertCmd.AddCommand(alertGetCmd, alertSetCmd, alertListCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of notifications to display (0 for all)")
}
