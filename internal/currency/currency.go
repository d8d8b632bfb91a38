// Package currency enumerates the foreign currencies quoted against the local currency.
package currency

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Code identifies a supported currency.
type Code string

const (
	USD Code = "USD"
	EUR Code = "EUR"
	JPY Code = "JPY"
	CNH Code = "CNH"
	GBP Code = "GBP"
	CHF Code = "CHF"
	CAD Code = "CAD"
	AUD Code = "AUD"
	HKD Code = "HKD"
	SGD Code = "SGD"
	NZD Code = "NZD"
	THB Code = "THB"
	IDR Code = "IDR"
	SEK Code = "SEK"
	DKK Code = "DKK"
	NOK Code = "NOK"
	SAR Code = "SAR"
	AED Code = "AED"
	KWD Code = "KWD"
	BHD Code = "BHD"
	MYR Code = "MYR"
	BND Code = "BND"
)

var all = []Code{
	USD, EUR, JPY, CNH, GBP, CHF, CAD, AUD, HKD, SGD, NZD,
	THB, IDR, SEK, DKK, NOK, SAR, AED, KWD, BHD, MYR, BND,
}

var known = func() map[Code]struct{} {
	m := make(map[Code]struct{}, len(all))
	for _, c := range all {
		m[c] = struct{}{}
	}
	return m
}()

// unitPattern matches published units such as "JPY(100)" or "IDR (100)".
var unitPattern = regexp.MustCompile(`^([A-Za-z]{3})\s*(?:\((\d+)\))?$`)

// All returns the supported codes in display order.
func All() []Code {
	out := make([]Code, len(all))
	copy(out, all)
	return out
}

// Valid reports whether c is supported.
func (c Code) Valid() bool {
	_, ok := known[c]
	return ok
}

func (c Code) String() string { return string(c) }

// Parse resolves a user-supplied code.
func Parse(s string) (Code, error) {
	c := Code(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unsupported currency %q", s)
	}
	return c, nil
}

// NormalizeUnit strips the multiplier marker from a published currency unit and returns
// the base code and multiplier (1 when absent).
func NormalizeUnit(unit string) (Code, int, error) {
	m := unitPattern.FindStringSubmatch(strings.TrimSpace(unit))
	if m == nil {
		return "", 0, fmt.Errorf("unrecognised currency unit %q", unit)
	}
	code := Code(strings.ToUpper(m[1]))
	if !code.Valid() {
		return "", 0, fmt.Errorf("unsupported currency unit %q", unit)
	}
	multiplier := 1
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil || n <= 0 {
			return "", 0, fmt.Errorf("bad multiplier in currency unit %q", unit)
		}
		multiplier = n
	}
	return code, multiplier, nil
}
