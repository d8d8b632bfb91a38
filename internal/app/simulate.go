package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"fx-rate-alerts/internal/alerting"
	"fx-rate-alerts/internal/currency"
)

// SimulateAlert 用给定汇率跑一次阈值判断，命中时通过已配置通道发送告警。
// The stored lastNotifiedAt is left untouched unless persist is set.
func (a *App) SimulateAlert(ctx context.Context, code string, value decimal.Decimal, persist bool) error {
	c, err := currency.Parse(code)
	if err != nil {
		return err
	}
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	cfg, err := rt.alerts.Get(ctx, c)
	if err != nil {
		return err
	}
	if !cfg.Enabled {
		return fmt.Errorf("%s 告警未启用", c)
	}

	now := time.Now()
	d := alerting.Evaluator{Cooldown: a.Config.Alerting.Cooldown}.Evaluate(cfg, value, now)
	if !d.Notify {
		fmt.Fprintf(os.Stdout, "%s %s: no notification (%s)\n", c, formatDecimal(value, 2), d.Reason)
		return nil
	}

	ev := alerting.NewEvent(c, cfg, d, value, now, false, nil)
	if persist {
		if err := rt.alerts.MarkNotified(ctx, c, now); err != nil {
			return err
		}
		if _, err := rt.alerts.AppendHistory(ctx, ev, now); err != nil {
			return err
		}
	}
	if err := rt.notifier.Notify(ctx, ev); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "sent: %s\n", ev.Message)
	return nil
}
