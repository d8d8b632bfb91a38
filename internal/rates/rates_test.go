package rates

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx-rate-alerts/internal/currency"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setOf(asOf time.Time, mids map[currency.Code]string) Set {
	snaps := make([]Snapshot, 0, len(mids))
	for code, mid := range mids {
		snaps = append(snaps, Snapshot{Currency: code, Unit: 1, Mid: dec(mid)})
	}
	return NewSet(asOf, asOf, asOf.Format(time.RFC3339), snaps)
}

func TestDecode(t *testing.T) {
	payload := []byte(`[
		{"currencyUnit":"USD","buy":"1,419.56","sell":"1,391.44","mid":"1,405.50","currencyName":"US Dollar"},
		{"currencyUnit":"JPY(100)","buy":912.1,"sell":894.0,"mid":903.05},
		{"currencyUnit":"EUR","buy":"1500","sell":"1480"},
		{"currencyUnit":"KRW","mid":"1"},
		{"currencyUnit":"GBP","buy":"1","mid":null}
	]`)
	asOf := time.Date(2024, 6, 10, 9, 0, 0, 0, time.FixedZone("KST", 9*3600))

	set, skipped, err := Decode(payload, asOf, asOf, "2024-06-10T09:00:00+09:00")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"KRW", "GBP"}, skipped)
	assert.Equal(t, []currency.Code{currency.EUR, currency.JPY, currency.USD}, set.Codes())

	usd, ok := set.Get(currency.USD)
	require.True(t, ok)
	assert.True(t, usd.Mid.Equal(dec("1405.50")))
	assert.True(t, usd.Buy.Equal(dec("1419.56")))

	jpy, _ := set.Get(currency.JPY)
	assert.Equal(t, 100, jpy.Unit)

	eur, _ := set.Get(currency.EUR)
	assert.True(t, eur.Mid.Equal(dec("1490")), "mid derived from buy/sell")

	for _, snap := range set.Rates {
		assert.Equal(t, "2024-06-10T09:00:00+09:00", snap.RawAsOf, "all entries share asOf")
	}
}

func TestDecodeSkipsRecordWithBadNumber(t *testing.T) {
	payload := []byte(`[
		{"currencyUnit":"USD","mid":"1405.00"},
		{"currencyUnit":"EUR","mid":"abc"},
		"oops"
	]`)
	asOf := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	set, skipped, err := Decode(payload, asOf, asOf, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"EUR", "?"}, skipped)
	assert.Equal(t, []currency.Code{currency.USD}, set.Codes())
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":     `<html>`,
		"empty":        `[]`,
		"unsupported":  `[{"currencyUnit":"KRW","mid":"1"}]`,
		"bad number":   `[{"currencyUnit":"USD","mid":"abc"}]`,
		"wrong object": `{"USD":1}`,
	}
	for name, body := range cases {
		_, _, err := Decode([]byte(body), time.Now(), time.Now(), "")
		var decErr *DecodeError
		assert.True(t, errors.As(err, &decErr), name)
	}
}

func TestComputeExactAbsoluteChange(t *testing.T) {
	now := time.Now()
	current := setOf(now, map[currency.Code]string{currency.USD: "1405.00", currency.EUR: "1500.10", currency.JPY: "900"})
	baseline := setOf(now.AddDate(0, 0, -3), map[currency.Code]string{currency.USD: "1390.00", currency.EUR: "1499.99", currency.GBP: "1700"})

	changes := Compute(current, baseline)
	require.Len(t, changes, 2, "only currencies present in both sets")

	usd := changes[currency.USD]
	assert.True(t, usd.Absolute.Equal(dec("15")), usd.Absolute.String())
	assert.Equal(t, "1.08", usd.Percent.StringFixed(2))
	assert.True(t, usd.Absolute.Equal(usd.Current.Sub(usd.Baseline)))

	eur := changes[currency.EUR]
	assert.True(t, eur.Absolute.Equal(dec("0.11")), "no float drift: %s", eur.Absolute)

	_, hasJPY := changes[currency.JPY]
	assert.False(t, hasJPY, "missing baseline must not default to zero")
}

func TestComputeZeroBaseline(t *testing.T) {
	now := time.Now()
	current := setOf(now, map[currency.Code]string{currency.USD: "10"})
	baseline := setOf(now, map[currency.Code]string{currency.USD: "0"})

	c := Compute(current, baseline)[currency.USD]
	assert.True(t, c.Percent.IsZero())
	assert.True(t, c.Absolute.Equal(dec("10")))
}

func TestComputeEmptyBaseline(t *testing.T) {
	current := setOf(time.Now(), map[currency.Code]string{currency.USD: "10"})
	assert.Empty(t, Compute(current, Set{}))
}
