package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"fx-rate-alerts/internal/alerting"
	"fx-rate-alerts/internal/currency"
)

// AlertUpdate carries the fields an `alert set` call changes. Nil fields are kept.
type AlertUpdate struct {
	Enabled   *bool
	Mode      *string
	Threshold *decimal.Decimal
	Reset     bool
}

// Apply merges the update into cfg.
func (u AlertUpdate) Apply(cfg alerting.Config) (alerting.Config, error) {
	if u.Enabled != nil {
		cfg.Enabled = *u.Enabled
	}
	if u.Mode != nil {
		mode, err := alerting.ParseMode(*u.Mode)
		if err != nil {
			return cfg, err
		}
		cfg.Mode = mode
	}
	if u.Threshold != nil {
		cfg.Threshold = *u.Threshold
	}
	if u.Reset {
		cfg.LastNotifiedAt = nil
	}
	return cfg, nil
}

// AlertGet prints one currency's alert config.
func (a *App) AlertGet(ctx context.Context, code string) error {
	c, err := currency.Parse(code)
	if err != nil {
		return err
	}
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg, err := rt.engine.GetAlertConfig(ctx, c)
	if err != nil {
		return err
	}
	return a.printAlerts(os.Stdout, []currency.Code{c}, map[currency.Code]alerting.Config{c: cfg})
}

// AlertSet updates one currency's alert config and prints the result.
func (a *App) AlertSet(ctx context.Context, code string, update AlertUpdate) error {
	c, err := currency.Parse(code)
	if err != nil {
		return err
	}
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg, err := rt.engine.UpdateAlertConfig(ctx, c, update.Apply)
	if err != nil {
		return err
	}
	a.Logger.Info().Str("currency", c.String()).Bool("enabled", cfg.Enabled).Str("mode", string(cfg.Mode)).Str("threshold", cfg.Threshold.String()).Msg("alert config updated")
	return a.printAlerts(os.Stdout, []currency.Code{c}, map[currency.Code]alerting.Config{c: cfg})
}

// AlertList prints every currency's effective alert config.
func (a *App) AlertList(ctx context.Context, enabledOnly bool) error {
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	all, err := rt.alerts.List(ctx)
	if err != nil {
		return err
	}
	var codes []currency.Code
	for _, c := range currency.All() {
		if enabledOnly && !all[c].Enabled {
			continue
		}
		codes = append(codes, c)
	}
	return a.printAlerts(os.Stdout, codes, all)
}

func (a *App) printAlerts(w io.Writer, codes []currency.Code, cfgs map[currency.Code]alerting.Config) error {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Currency\tEnabled\tMode\tThreshold\tLast notified")
	for _, c := range codes {
		cfg := cfgs[c]
		last := "-"
		if cfg.LastNotifiedAt != nil {
			last = cfg.LastNotifiedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(writer, "%s\t%t\t%s\t%s\t%s\n", c, cfg.Enabled, cfg.Mode, formatDecimal(cfg.Threshold, 2), last)
	}
	return writer.Flush()
}

// History prints recent notifications, newest first.
func (a *App) History(ctx context.Context, limit int) error {
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	entries, err := rt.alerts.History(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stdout, "no notifications recorded")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time\tCurrency\tDirection\tObserved\tStale\tMessage")
	for _, e := range entries {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%t\t%s\n",
			e.CreatedAt.In(rt.cal.Location()).Format(time.RFC3339),
			e.Event.Currency,
			e.Event.Direction,
			formatDecimal(e.Event.ObservedValue, 2),
			e.Event.Stale,
			sanitizeInline(e.Event.Message),
		)
	}
	return writer.Flush()
}
