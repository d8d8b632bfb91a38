package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"fx-rate-alerts/internal/currency"
	"fx-rate-alerts/internal/engine"
	"fx-rate-alerts/internal/rates"
	"fx-rate-alerts/internal/tiered"
)

// Refresh runs one sync cycle and prints its outcome.
func (a *App) Refresh(ctx context.Context, force bool) error {
	if err := a.requireSource(); err != nil {
		return err
	}
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.engine.Refresh(ctx, force)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "cycle %s: %s", res.CycleID, res.Status)
	if res.Stale {
		fmt.Fprint(os.Stdout, " (serving cached data)")
	}
	if res.Cause != nil {
		fmt.Fprintf(os.Stdout, ": %s", sanitizeInline(res.Cause.Error()))
	}
	fmt.Fprintln(os.Stdout)
	if !res.HasData() {
		return nil
	}

	asOf := res.AsOf.In(rt.cal.Location()).Format(time.RFC3339)
	if res.AsOfEstimated {
		asOf += " (estimated)"
	}
	fmt.Fprintf(os.Stdout, "as of %s, baseline %s\n", asOf, orDash(res.Baseline))
	for _, ev := range res.Events {
		fmt.Fprintf(os.Stdout, "alert: %s\n", ev.Message)
	}
	return nil
}

// Show prints the current rate table with day-over-day changes.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	set, changes, err := rt.engine.Changes(ctx)
	if errors.Is(err, engine.ErrNoData) {
		fmt.Fprintln(os.Stdout, "no rates cached yet; run `fxwatcher refresh`")
		return nil
	}
	if err != nil {
		return err
	}

	codes := set.Codes()
	if opts.Currency != "" {
		code, err := currency.Parse(opts.Currency)
		if err != nil {
			return err
		}
		codes = []currency.Code{code}
	}

	now := time.Now()
	if err := a.printHeader(ctx, os.Stdout, rt, set, now); err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Currency\tUnit\tBuy\tSell\tMid\tChange\tChange%")
	for _, code := range codes {
		snap, ok := set.Get(code)
		if !ok {
			fmt.Fprintf(writer, "%s\t-\t-\t-\t-\t-\t-\n", code)
			continue
		}
		change, pct := "-", "-"
		if c, ok := changes[code]; ok {
			change = signed(c.Absolute)
			pct = signed(c.Percent)
		}
		fmt.Fprintf(writer, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			code,
			snap.Unit,
			formatDecimal(snap.Buy, 2),
			formatDecimal(snap.Sell, 2),
			formatDecimal(snap.Mid, 2),
			change,
			pct,
		)
	}
	return writer.Flush()
}

func (a *App) printHeader(ctx context.Context, w io.Writer, rt *runtime, set rates.Set, now time.Time) error {
	loc := rt.cal.Location()
	fresh := tiered.FreshnessOf(set, true, now, a.Config.FreshnessWindow())
	day := "trading day"
	if !rt.cal.IsTradingDay(set.AsOf) {
		day = "non-trading day"
	}
	fmt.Fprintf(w, "as of %s (%s, %s), fetched %s\n",
		set.AsOf.In(loc).Format(time.RFC3339), day, fresh, set.FetchedAt.In(loc).Format(time.RFC3339))

	var parts []string
	for _, kind := range []tiered.Kind{tiered.LastKnown, tiered.Baseline} {
		f, err := rt.engine.Freshness(ctx, kind)
		if err != nil {
			return err
		}
		parts = append(parts, fmt.Sprintf("%s=%s", kind, f))
	}
	st, err := rt.budget.Snapshot(ctx, now)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "tiers: %s; budget: %d/%d calls on %s\n\n",
		strings.Join(parts, " "), st.CallsToday, rt.budget.DailyCap(), st.DayKey)
	return nil
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}

func signed(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if d.IsPositive() {
		return "+" + s
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
