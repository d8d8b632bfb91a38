package cli

import (
	"github.com/spf13/cobra"

	"fx-rate-alerts/internal/app"
)

var showCurrency string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display cached rates and day-over-day changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), app.ShowOptions{Currency: showCurrency})
	},
}

func init() {
	showCmd.Flags().StringVar(&showCurrency, "currency", "", "Only show this currency")
}
