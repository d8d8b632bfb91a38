// Package rates holds rate snapshots, decodes the remote rate document and computes
// day-over-day changes.
package rates

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fx-rate-alerts/internal/currency"
)

// ErrNoBaseline marks a currency whose day-over-day change cannot be computed.
var ErrNoBaseline = errors.New("rates: no baseline")

// Snapshot is one currency's quote from a single fetch. Mid is the comparison value.
type Snapshot struct {
	Currency currency.Code   `json:"currency"`
	Unit     int             `json:"unit"`
	Buy      decimal.Decimal `json:"buy"`
	Sell     decimal.Decimal `json:"sell"`
	Mid      decimal.Decimal `json:"mid"`
	RawAsOf  string          `json:"rawAsOf"`
}

// Set is a table of snapshots sharing one as-of timestamp. Treat it as immutable:
// later fetches produce a new Set.
type Set struct {
	AsOf      time.Time                  `json:"asOf"`
	FetchedAt time.Time                  `json:"fetchedAt"`
	Rates     map[currency.Code]Snapshot `json:"rates"`
}

// NewSet builds a Set and stamps every entry with the shared rawAsOf.
func NewSet(asOf, fetchedAt time.Time, rawAsOf string, snaps []Snapshot) Set {
	m := make(map[currency.Code]Snapshot, len(snaps))
	for _, s := range snaps {
		s.RawAsOf = rawAsOf
		m[s.Currency] = s
	}
	return Set{AsOf: asOf, FetchedAt: fetchedAt, Rates: m}
}

// Get returns the snapshot for code.
func (s Set) Get(code currency.Code) (Snapshot, bool) {
	snap, ok := s.Rates[code]
	return snap, ok
}

// Codes lists the currencies in the set in alphabetical order.
func (s Set) Codes() []currency.Code {
	out := make([]currency.Code, 0, len(s.Rates))
	for c := range s.Rates {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Empty reports whether the set carries no rates.
func (s Set) Empty() bool { return len(s.Rates) == 0 }
