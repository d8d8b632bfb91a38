package alerting

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCooldown is the minimum spacing between two notifications for one currency.
const DefaultCooldown = 300 * time.Second

// Direction tells which side of the threshold the rate is on.
type Direction string

const (
	Above Direction = "above"
	Below Direction = "below"
)

var (
	band3Upper = decimal.RequireFromString("1.03")
	band3Lower = decimal.RequireFromString("0.97")
	band5Upper = decimal.RequireFromString("1.05")
	band5Lower = decimal.RequireFromString("0.95")
)

// Decision is the evaluator's verdict. Bound is the limit that was crossed.
type Decision struct {
	Notify    bool
	Direction Direction
	Bound     decimal.Decimal
	Reason    string
}

// Evaluator decides whether a rate warrants a notification. It never mutates the
// config; callers record LastNotifiedAt after acting on a Notify decision.
type Evaluator struct {
	Cooldown time.Duration
}

// Evaluate applies the default cooldown.
func Evaluate(cfg Config, current decimal.Decimal, now time.Time) Decision {
	return Evaluator{Cooldown: DefaultCooldown}.Evaluate(cfg, current, now)
}

// Evaluate compares current against cfg at now.
func (e Evaluator) Evaluate(cfg Config, current decimal.Decimal, now time.Time) Decision {
	if !cfg.Enabled {
		return Decision{Reason: "disabled"}
	}
	if cfg.LastNotifiedAt != nil && now.Sub(*cfg.LastNotifiedAt) < e.Cooldown {
		return Decision{Reason: "cooldown"}
	}

	t := cfg.Threshold
	switch cfg.Mode {
	case Upper:
		if current.GreaterThanOrEqual(t) {
			return Decision{Notify: true, Direction: Above, Bound: t, Reason: "upper"}
		}
	case Lower:
		if current.LessThanOrEqual(t) {
			return Decision{Notify: true, Direction: Below, Bound: t, Reason: "lower"}
		}
	case Band3Pct:
		return band(current, t.Mul(band3Upper), t.Mul(band3Lower), "band3")
	case Band5Pct:
		return band(current, t.Mul(band5Upper), t.Mul(band5Lower), "band5")
	}
	return Decision{Reason: "within"}
}

func band(current, upper, lower decimal.Decimal, reason string) Decision {
	switch {
	case current.GreaterThanOrEqual(upper):
		return Decision{Notify: true, Direction: Above, Bound: upper, Reason: reason}
	case current.LessThanOrEqual(lower):
		return Decision{Notify: true, Direction: Below, Bound: lower, Reason: reason}
	}
	return Decision{Reason: "within"}
}
