// Package budget enforces the daily cap and minimum spacing of remote fetches.
package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fx-rate-alerts/internal/storage"
)

const stateKey = "budget:state"

// ErrDenied is matched by every *DeniedError.
var ErrDenied = errors.New("budget: call denied")

// Denial reasons.
const (
	ReasonDailyCap    = "daily_cap"
	ReasonMinInterval = "min_interval"
)

// DeniedError explains why an acquisition was refused.
type DeniedError struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *DeniedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("budget denied (%s), retry after %s", e.Reason, e.RetryAfter.Round(time.Second))
	}
	return fmt.Sprintf("budget denied (%s)", e.Reason)
}

func (e *DeniedError) Is(target error) bool { return target == ErrDenied }

// State is the persisted call counter.
type State struct {
	CallsToday int        `json:"callsToday"`
	LastCallAt *time.Time `json:"lastCallAt,omitempty"`
	DayKey     string     `json:"dayKey"`
}

// Options tune the budget.
type Options struct {
	DailyCap    int
	MinInterval time.Duration
	Location    *time.Location
}

// Budget gates remote fetch attempts. Safe for concurrent use. The persisted state is
// re-read on every check so processes sharing one store see each other's calls.
type Budget struct {
	mu     sync.Mutex
	kv     storage.KV
	opts   Options
	state  State
	logger zerolog.Logger
}

// New constructs a Budget persisted in kv.
func New(kv storage.KV, opts Options, logger zerolog.Logger) *Budget {
	if opts.DailyCap <= 0 {
		opts.DailyCap = 1000
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Budget{kv: kv, opts: opts, logger: logger.With().Str("component", "budget").Logger()}
}

func (b *Budget) dayKey(now time.Time) string {
	return now.In(b.opts.Location).Format("2006-01-02")
}

func (b *Budget) load(ctx context.Context) error {
	var st State
	if err := storage.GetJSON(ctx, b.kv, stateKey, &st); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load budget state: %w", err)
	}
	b.state = st
	return nil
}

// current returns the state as of now, with the counter reset on day rollover.
func (b *Budget) current(now time.Time) State {
	st := b.state
	if today := b.dayKey(now); st.DayKey != today {
		if st.DayKey != "" {
			b.logger.Debug().Str("previous_day", st.DayKey).Str("day", today).Msg("budget day rolled over")
		}
		st.CallsToday = 0
		st.DayKey = today
	}
	return st
}

// TryAcquire reports whether a fetch may start at now. A nil error means allowed. force
// skips the minimum interval check but never the daily cap.
func (b *Budget) TryAcquire(ctx context.Context, now time.Time, force bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.load(ctx); err != nil {
		return err
	}
	st := b.current(now)
	b.state = st

	if st.CallsToday >= b.opts.DailyCap {
		return &DeniedError{Reason: ReasonDailyCap}
	}
	if !force && st.LastCallAt != nil && b.opts.MinInterval > 0 {
		if elapsed := now.Sub(*st.LastCallAt); elapsed < b.opts.MinInterval {
			return &DeniedError{Reason: ReasonMinInterval, RetryAfter: b.opts.MinInterval - elapsed}
		}
	}
	return nil
}

// Record counts one network attempt made at now and persists the new state.
func (b *Budget) Record(ctx context.Context, now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.load(ctx); err != nil {
		return err
	}
	next := b.current(now)
	next.CallsToday++
	at := now
	next.LastCallAt = &at

	if err := storage.PutJSON(ctx, b.kv, stateKey, next); err != nil {
		return fmt.Errorf("persist budget state: %w", err)
	}
	b.state = next
	return nil
}

// Snapshot returns the state as it would be evaluated at now.
func (b *Budget) Snapshot(ctx context.Context, now time.Time) (State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.load(ctx); err != nil {
		return State{}, err
	}
	return b.current(now), nil
}

// DailyCap returns the configured cap.
func (b *Budget) DailyCap() int { return b.opts.DailyCap }
