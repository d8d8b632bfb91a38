package rates

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fx-rate-alerts/internal/currency"
)

var two = decimal.NewFromInt(2)

// DecodeError reports a rate document that could not be turned into a Set.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode rates: %s: %v", e.Reason, e.Err)
	}
	return "decode rates: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

type record struct {
	CurrencyUnit string `json:"currencyUnit"`
	Buy          number `json:"buy"`
	Sell         number `json:"sell"`
	Mid          number `json:"mid"`
}

// number accepts JSON numbers and strings with thousands separators.
type number struct {
	value decimal.Decimal
	set   bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	s = strings.ReplaceAll(strings.Trim(s, `"`), ",", "")
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", s, err)
	}
	n.value, n.set = d, true
	return nil
}

// Decode parses a rate document into a Set stamped with asOf. Records with unknown
// currency units, unparseable numbers or no usable mid are returned in skipped rather
// than failing the set.
func Decode(payload []byte, asOf, fetchedAt time.Time, rawAsOf string) (Set, []string, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(payload, &raws); err != nil {
		return Set{}, nil, &DecodeError{Reason: "malformed json", Err: err}
	}
	if len(raws) == 0 {
		return Set{}, nil, &DecodeError{Reason: "empty rate table"}
	}

	snaps := make([]Snapshot, 0, len(raws))
	var skipped []string
	for _, raw := range raws {
		var r record
		if err := json.Unmarshal(raw, &r); err != nil {
			skipped = append(skipped, unitOf(raw))
			continue
		}
		code, unit, err := currency.NormalizeUnit(r.CurrencyUnit)
		if err != nil {
			skipped = append(skipped, r.CurrencyUnit)
			continue
		}
		mid := r.Mid.value
		if !r.Mid.set || mid.IsZero() {
			if !r.Buy.set || !r.Sell.set {
				skipped = append(skipped, r.CurrencyUnit)
				continue
			}
			mid = r.Buy.value.Add(r.Sell.value).Div(two)
		}
		snaps = append(snaps, Snapshot{
			Currency: code,
			Unit:     unit,
			Buy:      r.Buy.value,
			Sell:     r.Sell.value,
			Mid:      mid,
		})
	}
	if len(snaps) == 0 {
		return Set{}, skipped, &DecodeError{Reason: "no supported currencies in rate table"}
	}
	return NewSet(asOf, fetchedAt, rawAsOf, snaps), skipped, nil
}

// unitOf recovers the currency label of a record that failed to decode.
func unitOf(raw json.RawMessage) string {
	var head struct {
		CurrencyUnit string `json:"currencyUnit"`
	}
	if err := json.Unmarshal(raw, &head); err != nil || head.CurrencyUnit == "" {
		return "?"
	}
	return head.CurrencyUnit
}
