package engine

import (
	"time"

	"fx-rate-alerts/internal/alerting"
	"fx-rate-alerts/internal/currency"
	"fx-rate-alerts/internal/rates"
	"fx-rate-alerts/internal/tiered"
)

// State is the position of the engine inside a sync cycle.
type State int

const (
	Idle State = iota
	Fetching
	Parsing
	Updating
	Evaluating
	Offline
)

func (s State) String() string {
	switch s {
	case Fetching:
		return "fetching"
	case Parsing:
		return "parsing"
	case Updating:
		return "updating"
	case Evaluating:
		return "evaluating"
	case Offline:
		return "offline"
	default:
		return "idle"
	}
}

// Status summarises how a cycle ended. Everything except StatusOK means the cycle
// served cached data.
type Status string

const (
	StatusOK           Status = "ok"
	StatusOffline      Status = "offline"
	StatusDecodeFailed Status = "decode_failed"
	StatusBudgetDenied Status = "budget_denied"
	StatusLocked       Status = "locked"
)

// Result describes one sync cycle.
type Result struct {
	CycleID       string
	Status        Status
	Stale         bool
	AsOf          time.Time
	AsOfEstimated bool
	Baseline      string
	Changes       map[currency.Code]rates.Change
	Events        []alerting.Event
	Skipped       []string
	Cause         error
}

// HasData reports whether the cycle had any rate set to evaluate.
func (r Result) HasData() bool { return !r.AsOf.IsZero() }

// Current is a currency's rate as served to callers.
type Current struct {
	Snapshot  rates.Snapshot
	AsOf      time.Time
	FetchedAt time.Time
	Tier      tiered.Kind
	Freshness tiered.Freshness
}
