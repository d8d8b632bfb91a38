package rates

import (
	"github.com/shopspring/decimal"

	"fx-rate-alerts/internal/currency"
)

var hundred = decimal.NewFromInt(100)

// Change is the day-over-day movement of one currency's mid rate.
type Change struct {
	Absolute decimal.Decimal `json:"absoluteChange"`
	Percent  decimal.Decimal `json:"percentChange"`
	Baseline decimal.Decimal `json:"baselineValue"`
	Current  decimal.Decimal `json:"currentValue"`
}

// Compute returns the change for every currency present in both sets. Currencies
// missing from either side are omitted; a zero baseline yields a zero percentage.
func Compute(current, baseline Set) map[currency.Code]Change {
	out := make(map[currency.Code]Change, len(current.Rates))
	for code, cur := range current.Rates {
		base, ok := baseline.Rates[code]
		if !ok {
			continue
		}
		abs := cur.Mid.Sub(base.Mid)
		pct := decimal.Zero
		if !base.Mid.IsZero() {
			pct = abs.Div(base.Mid).Mul(hundred)
		}
		out[code] = Change{
			Absolute: abs,
			Percent:  pct,
			Baseline: base.Mid,
			Current:  cur.Mid,
		}
	}
	return out
}
