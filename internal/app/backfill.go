package app

import (
	"context"
	"errors"
	"time"

	"fx-rate-alerts/internal/budget"
	"fx-rate-alerts/internal/calendar"
	"fx-rate-alerts/internal/tiered"
)

// Backfill 按日期拉取历史汇率文档写入 dated 层，每次请求都计入调用预算。
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if a.Config.Source.HistoryURLTemplate == "" {
		return errors.New("source.history_url_template 未配置，无法回填")
	}

	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	dates := backfillDates(rt.cal, opts.From, opts.To, opts.IncludeWeekends)
	if len(dates) == 0 {
		return errors.New("回填范围为空，请检查 --from/--to")
	}
	if opts.DryRun {
		a.Logger.Warn().Strs("dates", dates).Msg("回填 dry-run：不会请求远端或写入存储")
		return nil
	}

	processed, skipped, failed := 0, 0, 0
	for _, date := range dates {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !opts.Overwrite {
			_, ok, err := rt.store.Read(ctx, tiered.Dated(date))
			if err != nil {
				return err
			}
			if ok {
				skipped++
				continue
			}
		}

		if _, err := rt.engine.FetchDated(ctx, date, time.Now()); err != nil {
			if errors.Is(err, budget.ErrDenied) {
				a.Logger.Error().Err(err).Str("date", date).Msg("调用预算已用尽，停止回填")
				return err
			}
			failed++
			a.Logger.Error().Err(err).Str("date", date).Msg("回填失败")
			continue
		}
		processed++
	}

	a.Logger.Info().Int("processed", processed).Int("skipped", skipped).Int("failed", failed).Msg("回填完成")
	if failed > 0 {
		return errors.New("部分日期回填失败，请检查日志")
	}
	return nil
}

// backfillDates lists date keys from from to to inclusive, skipping weekends unless asked.
func backfillDates(cal *calendar.Resolver, from, to time.Time, includeWeekends bool) []string {
	start := cal.Date(from)
	end := cal.Date(to)
	var out []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if !includeWeekends {
			switch d.Weekday() {
			case time.Saturday, time.Sunday:
				continue
			}
		}
		out = append(out, d.Format(calendar.DateLayout))
	}
	return out
}
