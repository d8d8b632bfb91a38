package tiered

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fx-rate-alerts/internal/rates"
)

// Freshness distinguishes "no data yet" from "data present but old".
type Freshness int

const (
	Absent Freshness = iota
	Stale
	Fresh
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "absent"
	}
}

// FreshnessOf classifies a set by presence and age of its fetch time against window.
func FreshnessOf(set rates.Set, present bool, now time.Time, window time.Duration) Freshness {
	if !present {
		return Absent
	}
	if set.FetchedAt.IsZero() || now.Sub(set.FetchedAt) > window {
		return Stale
	}
	return Fresh
}

// Freshness reads label and classifies it.
func (s *Store) Freshness(ctx context.Context, label Label, now time.Time, window time.Duration) (Freshness, error) {
	set, ok, err := s.Read(ctx, label)
	if err != nil {
		return Absent, err
	}
	return FreshnessOf(set, ok, now, window), nil
}

func encode(set rates.Set) ([]byte, error) {
	raw, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("encode rate set: %w", err)
	}
	return raw, nil
}
