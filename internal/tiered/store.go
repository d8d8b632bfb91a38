// Package tiered keeps the live, last-known, baseline and dated-history rate tables.
package tiered

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fx-rate-alerts/internal/calendar"
	"fx-rate-alerts/internal/rates"
	"fx-rate-alerts/internal/storage"
)

// Kind names a tier.
type Kind string

const (
	Live      Kind = "live"
	LastKnown Kind = "lastKnown"
	Baseline  Kind = "baseline"
	DatedKind Kind = "dated"
)

const (
	keyPrefix   = "tier:"
	datedPrefix = keyPrefix + "dated:"
)

// Label addresses one tier slot. Date is set only for dated labels.
type Label struct {
	Kind Kind
	Date string
}

// Dated returns the dated-history label for date (YYYY-MM-DD).
func Dated(date string) Label { return Label{Kind: DatedKind, Date: date} }

// Of returns the label of a fixed tier.
func Of(kind Kind) Label { return Label{Kind: kind} }

func (l Label) String() string {
	if l.Kind == DatedKind {
		return fmt.Sprintf("dated(%s)", l.Date)
	}
	return string(l.Kind)
}

func (l Label) key() string {
	if l.Kind == DatedKind {
		return datedPrefix + l.Date
	}
	return keyPrefix + string(l.Kind)
}

// Promotion summarises what Promote changed.
type Promotion struct {
	Date              string
	BaselinePromoted  bool
	PreviousLastKnown string
}

// Store owns every tier. Live is held in process; the others are durable. Writes are
// serialized; reads may run concurrently.
type Store struct {
	kv     storage.KV
	cal    *calendar.Resolver
	logger zerolog.Logger

	writeMu sync.Mutex
	liveMu  sync.RWMutex
	live    *rates.Set
}

// New builds a Store on top of kv.
func New(kv storage.KV, cal *calendar.Resolver, logger zerolog.Logger) *Store {
	return &Store{kv: kv, cal: cal, logger: logger.With().Str("component", "tiered_store").Logger()}
}

// Read returns the set stored under label; ok is false when the tier is empty.
func (s *Store) Read(ctx context.Context, label Label) (rates.Set, bool, error) {
	if label.Kind == Live {
		s.liveMu.RLock()
		defer s.liveMu.RUnlock()
		if s.live == nil {
			return rates.Set{}, false, nil
		}
		return *s.live, true, nil
	}

	var set rates.Set
	if err := storage.GetJSON(ctx, s.kv, label.key(), &set); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return rates.Set{}, false, nil
		}
		return rates.Set{}, false, fmt.Errorf("read %s: %w", label, err)
	}
	return set, true, nil
}

// Write replaces the contents of one tier.
func (s *Store) Write(ctx context.Context, label Label, set rates.Set) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if label.Kind == Live {
		s.setLive(set)
		return nil
	}
	if err := storage.PutJSON(ctx, s.kv, label.key(), set); err != nil {
		return fmt.Errorf("write %s: %w", label, err)
	}
	return nil
}

func (s *Store) setLive(set rates.Set) {
	s.liveMu.Lock()
	s.live = &set
	s.liveMu.Unlock()
}

// Promote installs a freshly fetched set. In one atomic batch it records the set as the
// dated entry for its as-of date, moves lastKnown into baseline when lastKnown belongs
// to a different date, and makes the set the new lastKnown. Live is updated only after
// the batch is durable.
func (s *Store) Promote(ctx context.Context, set rates.Set) (Promotion, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	date := s.cal.DateKey(set.AsOf)
	promo := Promotion{Date: date}

	prev, ok, err := s.Read(ctx, Of(LastKnown))
	if err != nil {
		return promo, err
	}

	payload, err := encode(set)
	if err != nil {
		return promo, err
	}

	var batch storage.Batch
	batch.Put(Dated(date).key(), payload)
	if ok {
		promo.PreviousLastKnown = s.cal.DateKey(prev.AsOf)
		if promo.PreviousLastKnown != date {
			prevPayload, err := encode(prev)
			if err != nil {
				return promo, err
			}
			batch.Put(Of(Baseline).key(), prevPayload)
			promo.BaselinePromoted = true
		}
	}
	batch.Put(Of(LastKnown).key(), payload)

	if err := s.kv.Apply(ctx, &batch); err != nil {
		return promo, fmt.Errorf("promote tiers: %w", err)
	}
	s.setLive(set)

	s.logger.Debug().
		Str("date", date).
		Bool("baseline_promoted", promo.BaselinePromoted).
		Str("previous_last_known", promo.PreviousLastKnown).
		Msg("tiers promoted")
	return promo, nil
}

// DatedDates lists dated-history dates in ascending order.
func (s *Store) DatedDates(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, datedPrefix)
	if err != nil {
		return nil, fmt.Errorf("list dated tiers: %w", err)
	}
	dates := make([]string, 0, len(keys))
	for _, k := range keys {
		dates = append(dates, strings.TrimPrefix(k, datedPrefix))
	}
	return dates, nil
}

// PruneDated deletes dated entries whose date is more than days before today and
// returns how many were removed.
func (s *Store) PruneDated(ctx context.Context, today time.Time, days int) (int, error) {
	if days <= 0 {
		return 0, nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cutoff := s.cal.Date(today).AddDate(0, 0, -days).Format(calendar.DateLayout)
	dates, err := s.DatedDates(ctx)
	if err != nil {
		return 0, err
	}

	var batch storage.Batch
	for _, d := range dates {
		// YYYY-MM-DD sorts lexically in date order.
		if d < cutoff {
			batch.Delete(Dated(d).key())
		}
	}
	if batch.Len() == 0 {
		return 0, nil
	}
	if err := s.kv.Apply(ctx, &batch); err != nil {
		return 0, fmt.Errorf("prune dated tiers: %w", err)
	}
	s.logger.Debug().Int("removed", batch.Len()).Str("cutoff", cutoff).Msg("dated tiers pruned")
	return batch.Len(), nil
}

// Calendar exposes the resolver used for date keys.
func (s *Store) Calendar() *calendar.Resolver { return s.cal }
