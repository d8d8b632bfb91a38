package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fx-rate-alerts/internal/currency"
)

// Mode is the rule used to compare a rate with the configured threshold.
type Mode string

const (
	Upper    Mode = "upper"
	Lower    Mode = "lower"
	Band3Pct Mode = "band3"
	Band5Pct Mode = "band5"
)

// ParseMode accepts the canonical names plus a few aliases used on the command line.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upper", "above":
		return Upper, nil
	case "lower", "below":
		return Lower, nil
	case "band3", "band3pct", "3%":
		return Band3Pct, nil
	case "band5", "band5pct", "5%":
		return Band5Pct, nil
	}
	return "", fmt.Errorf("unknown alert mode %q", s)
}

// Config is the per-currency alert setting.
type Config struct {
	Enabled        bool            `json:"enabled"`
	Mode           Mode            `json:"mode"`
	Threshold      decimal.Decimal `json:"threshold"`
	LastNotifiedAt *time.Time      `json:"lastNotifiedAt,omitempty"`
}

// defaultThresholds are the fallback reference levels per currency. They only take
// effect once the user enables the alert.
var defaultThresholds = map[currency.Code]string{
	currency.USD: "1400",
	currency.EUR: "1500",
	currency.JPY: "950",
	currency.CNH: "195",
	currency.GBP: "1750",
	currency.CHF: "1550",
	currency.CAD: "1000",
	currency.AUD: "900",
	currency.HKD: "180",
	currency.SGD: "1050",
}

// DefaultConfig returns the configuration a currency starts with.
func DefaultConfig(code currency.Code) Config {
	threshold := decimal.Zero
	if v, ok := defaultThresholds[code]; ok {
		threshold = decimal.RequireFromString(v)
	}
	return Config{Enabled: false, Mode: Upper, Threshold: threshold}
}

// Validate rejects configurations the evaluator cannot use.
func (c Config) Validate() error {
	switch c.Mode {
	case Upper, Lower, Band3Pct, Band5Pct:
	default:
		return fmt.Errorf("unknown alert mode %q", c.Mode)
	}
	if c.Threshold.IsNegative() {
		return fmt.Errorf("threshold cannot be negative")
	}
	if c.Enabled && c.Threshold.IsZero() {
		return fmt.Errorf("enabled alert needs a threshold")
	}
	return nil
}
