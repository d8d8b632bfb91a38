package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fx-rate-alerts/internal/app"
	"fx-rate-alerts/internal/calendar"
)

var (
	backfillFrom            string
	backfillTo              string
	backfillDryRun          bool
	backfillIncludeWeekends bool
	backfillOverwrite       bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fetch dated rate history into local storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillFrom == "" || backfillTo == "" {
			return fmt.Errorf("--from and --to must be provided")
		}

		from, err := time.Parse(calendar.DateLayout, backfillFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}

		to, err := time.Parse(calendar.DateLayout, backfillTo)
		if err != nil {
			return fmt.Errorf("invalid --to value: %w", err)
		}

		if to.Before(from) {
			return fmt.Errorf("--from must not be after --to")
		}

		opts := app.BackfillOptions{
			From:            from,
			To:              to,
			DryRun:          backfillDryRun,
			IncludeWeekends: backfillIncludeWeekends,
			Overwrite:       backfillOverwrite,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "First date (YYYY-MM-DD, inclusive)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "Last date (YYYY-MM-DD, inclusive)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "List the dates without fetching")
	backfillCmd.Flags().BoolVar(&backfillIncludeWeekends, "include-weekends", false, "Also fetch Saturdays and Sundays")
	backfillCmd.Flags().BoolVar(&backfillOverwrite, "overwrite", false, "Refetch dates already stored")
}
