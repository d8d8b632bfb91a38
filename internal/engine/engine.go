// Package engine runs sync cycles: budget check, fetch, decode, tier promotion, change
// computation and threshold evaluation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fx-rate-alerts/internal/alerting"
	"fx-rate-alerts/internal/budget"
	"fx-rate-alerts/internal/currency"
	"fx-rate-alerts/internal/fetcher"
	"fx-rate-alerts/internal/logging"
	"fx-rate-alerts/internal/metrics"
	"fx-rate-alerts/internal/rates"
	"fx-rate-alerts/internal/storage"
	"fx-rate-alerts/internal/tiered"
)

// ErrNoData is returned when no tier holds a rate set yet.
var ErrNoData = errors.New("engine: no rate data")

// Options tune the engine.
type Options struct {
	RetentionDays   int
	FreshnessWindow time.Duration
	Cooldown        time.Duration
	// RecoverBaseline fetches the dated history document when the baseline date is
	// missing locally.
	RecoverBaseline bool
	LockKey         int64
	Now             func() time.Time
}

// Engine owns no alert state of its own; every mutation goes through the tier store,
// the budget or the alert repository.
type Engine struct {
	store     *tiered.Store
	budget    *budget.Budget
	source    fetcher.RemoteSource
	alerts    *alerting.Repository
	notifier  alerting.Notifier
	evaluator alerting.Evaluator
	locker    storage.AdvisoryLocker
	opts      Options
	logger    zerolog.Logger

	cycleMu sync.Mutex
	// recoveryMisses maps a baseline date to the local day its remote recovery failed.
	// Guarded by cycleMu.
	recoveryMisses map[string]string

	stateMu sync.RWMutex
	state   State
}

// New wires an engine. notifier and locker may be nil.
func New(store *tiered.Store, b *budget.Budget, source fetcher.RemoteSource, alerts *alerting.Repository, notifier alerting.Notifier, locker storage.AdvisoryLocker, opts Options, logger zerolog.Logger) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = alerting.DefaultCooldown
	}
	if opts.FreshnessWindow <= 0 {
		opts.FreshnessWindow = 4 * time.Minute
	}
	return &Engine{
		store:     store,
		budget:    b,
		source:    source,
		alerts:    alerts,
		notifier:  notifier,
		evaluator: alerting.Evaluator{Cooldown: opts.Cooldown},
		locker:    locker,
		opts:      opts,
		logger:    logging.Component(logger, "engine"),

		recoveryMisses: map[string]string{},
	}
}

// State returns the current cycle state.
func (e *Engine) State() State {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.stateMu.Lock()
	prev := e.state
	e.state = s
	e.stateMu.Unlock()
	e.logger.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("state transition")
}

// Refresh runs one cycle. force bypasses the budget's minimum interval. The returned
// error is non-nil only when local storage fails; remote and decode failures show up
// as Result.Status.
func (e *Engine) Refresh(ctx context.Context, force bool) (Result, error) {
	unlock, proceed, err := e.acquireLock(ctx)
	if err != nil {
		return Result{}, err
	}
	if !proceed {
		e.logger.Debug().Msg("skip cycle because advisory lock held elsewhere")
		return Result{Status: StatusLocked}, nil
	}
	if unlock != nil {
		defer unlock()
	}

	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	defer e.setState(Idle)

	started := time.Now()
	res, err := e.cycle(ctx, force)
	if err != nil {
		metrics.ObserveCycle("error", started)
		return res, err
	}
	metrics.ObserveCycle(string(res.Status), started)
	e.observeFreshness(ctx)
	return res, nil
}

func (e *Engine) cycle(ctx context.Context, force bool) (Result, error) {
	now := e.opts.Now()
	res := Result{CycleID: uuid.NewString()}
	logger := e.logger.With().Str("cycle_id", res.CycleID).Bool("force", force).Logger()

	e.setState(Fetching)
	if err := e.budget.TryAcquire(ctx, now, force); err != nil {
		var denied *budget.DeniedError
		if errors.As(err, &denied) {
			metrics.BudgetDeniedTotal.WithLabelValues(denied.Reason).Inc()
			logger.Debug().Str("reason", denied.Reason).Msg("fetch skipped by call budget")
			return e.serveCached(ctx, res, StatusBudgetDenied, err, now)
		}
		return res, err
	}
	if err := e.budget.Record(ctx, now); err != nil {
		return res, err
	}
	e.observeBudget(ctx, now)

	payload, err := e.source.FetchRates(ctx)
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues(fetcher.KindOf(err).String()).Inc()
		logger.Warn().Err(err).Msg("rate fetch failed, serving last known data")
		e.setState(Offline)
		return e.serveCached(ctx, res, StatusOffline, err, now)
	}

	asOf, rawAsOf, err := e.source.FetchAsOf(ctx)
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues(fetcher.KindOf(err).String()).Inc()
		logger.Warn().Err(err).Msg("as-of fetch failed, using fetch time")
		asOf, rawAsOf = now, ""
		res.AsOfEstimated = true
	}

	e.setState(Parsing)
	set, skipped, err := rates.Decode(payload, asOf, now, rawAsOf)
	res.Skipped = skipped
	if len(skipped) > 0 {
		logger.Debug().Strs("units", skipped).Msg("unsupported currency units skipped")
	}
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues(fetcher.Malformed.String()).Inc()
		logger.Warn().Err(err).Msg("rate document rejected, serving last known data")
		e.setState(Offline)
		return e.serveCached(ctx, res, StatusDecodeFailed, err, now)
	}

	e.setState(Updating)
	promo, err := e.store.Promote(ctx, set)
	if err != nil {
		return res, err
	}
	if e.opts.RetentionDays > 0 {
		if _, err := e.store.PruneDated(ctx, set.AsOf, e.opts.RetentionDays); err != nil {
			logger.Error().Err(err).Msg("failed to prune dated history")
		}
	}

	e.setState(Evaluating)
	res.Status = StatusOK
	res.AsOf = set.AsOf
	if err := e.evaluate(ctx, &res, set, false, true, now); err != nil {
		return res, err
	}

	logger.Info().
		Time("as_of", set.AsOf).
		Bool("as_of_estimated", res.AsOfEstimated).
		Int("currencies", len(set.Rates)).
		Bool("baseline_promoted", promo.BaselinePromoted).
		Str("baseline", res.Baseline).
		Int("events", len(res.Events)).
		Msg("sync cycle completed")
	return res, nil
}

// serveCached evaluates lastKnown in place of a fresh fetch. Dated and baseline tiers
// are left untouched.
func (e *Engine) serveCached(ctx context.Context, res Result, status Status, cause error, now time.Time) (Result, error) {
	res.Status = status
	res.Stale = true
	res.Cause = cause

	last, ok, err := e.store.Read(ctx, tiered.Of(tiered.LastKnown))
	if err != nil {
		return res, err
	}
	if !ok {
		e.logger.Warn().Str("status", string(status)).Msg("no cached rates to serve")
		return res, nil
	}
	if _, live, err := e.store.Read(ctx, tiered.Of(tiered.Live)); err == nil && !live {
		if err := e.store.Write(ctx, tiered.Of(tiered.Live), last); err != nil {
			return res, err
		}
	}

	e.setState(Evaluating)
	res.AsOf = last.AsOf
	if err := e.evaluate(ctx, &res, last, true, false, now); err != nil {
		return res, err
	}
	return res, nil
}

// evaluate computes changes against the resolved baseline and runs the threshold rules.
// lastNotifiedAt is persisted before the event is dispatched.
func (e *Engine) evaluate(ctx context.Context, res *Result, current rates.Set, stale, allowRemote bool, now time.Time) error {
	baseline, label, ok, err := e.resolveBaseline(ctx, current, allowRemote, now)
	if err != nil {
		return err
	}
	if ok {
		res.Baseline = label.String()
		res.Changes = rates.Compute(current, baseline)
	} else {
		e.logger.Debug().Time("as_of", current.AsOf).Msg("no baseline available, changes suppressed")
		res.Changes = map[currency.Code]rates.Change{}
	}

	for _, code := range current.Codes() {
		snap := current.Rates[code]
		cfg, err := e.alerts.Get(ctx, code)
		if err != nil {
			return err
		}
		d := e.evaluator.Evaluate(cfg, snap.Mid, now)
		if !d.Notify {
			continue
		}

		var change *rates.Change
		if c, ok := res.Changes[code]; ok {
			change = &c
		}
		ev := alerting.NewEvent(code, cfg, d, snap.Mid, current.AsOf, stale, change)

		if err := e.alerts.MarkNotified(ctx, code, now); err != nil {
			return err
		}
		if e.notifier != nil {
			if err := e.notifier.Notify(ctx, ev); err != nil {
				e.logger.Error().Err(err).Str("currency", code.String()).Msg("failed to dispatch alert")
			}
		}
		if _, err := e.alerts.AppendHistory(ctx, ev, now); err != nil {
			e.logger.Error().Err(err).Str("currency", code.String()).Msg("failed to record alert history")
		}
		metrics.NotificationsTotal.WithLabelValues(code.String(), string(ev.Direction)).Inc()
		res.Events = append(res.Events, ev)
	}
	return nil
}

// resolveBaseline picks the comparison set for current: the dated candidates for its
// date, then a remote dated fetch when allowed, then the baseline tier, then lastKnown.
// Tiers recorded on current's own date are never used.
func (e *Engine) resolveBaseline(ctx context.Context, current rates.Set, allowRemote bool, now time.Time) (rates.Set, tiered.Label, bool, error) {
	cal := e.store.Calendar()
	currentDate := cal.DateKey(current.AsOf)
	candidates := cal.BaselineCandidates(current.AsOf)

	for _, d := range candidates {
		label := tiered.Dated(cal.DateKey(d))
		set, ok, err := e.store.Read(ctx, label)
		if err != nil {
			return rates.Set{}, label, false, err
		}
		if ok {
			return set, label, true, nil
		}
	}

	if allowRemote && e.opts.RecoverBaseline {
		date := cal.DateKey(candidates[len(candidates)-1])
		today := cal.DateKey(now)
		if e.recoveryMisses[date] == today {
			e.logger.Debug().Str("date", date).Msg("baseline recovery already failed today, skipping")
		} else {
			set, err := e.FetchDated(ctx, date, now)
			if err == nil {
				delete(e.recoveryMisses, date)
				return set, tiered.Dated(date), true, nil
			}
			if !errors.Is(err, budget.ErrDenied) {
				e.noteRecoveryMiss(date, today)
				e.logger.Warn().Err(err).Str("date", date).Msg("baseline recovery failed")
			}
		}
	}

	for _, kind := range []tiered.Kind{tiered.Baseline, tiered.LastKnown} {
		label := tiered.Of(kind)
		set, ok, err := e.store.Read(ctx, label)
		if err != nil {
			return rates.Set{}, label, false, err
		}
		if ok && cal.DateKey(set.AsOf) != currentDate {
			return set, label, true, nil
		}
	}
	return rates.Set{}, tiered.Label{}, false, nil
}

func (e *Engine) noteRecoveryMiss(date, today string) {
	for d, day := range e.recoveryMisses {
		if day != today {
			delete(e.recoveryMisses, d)
		}
	}
	e.recoveryMisses[date] = today
}

// FetchDated downloads the history document for date (YYYY-MM-DD) and stores it as
// dated(date). The call goes through the budget's daily cap.
func (e *Engine) FetchDated(ctx context.Context, date string, now time.Time) (rates.Set, error) {
	day, err := e.store.Calendar().ParseDate(date)
	if err != nil {
		return rates.Set{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	if err := e.budget.TryAcquire(ctx, now, true); err != nil {
		var denied *budget.DeniedError
		if errors.As(err, &denied) {
			metrics.BudgetDeniedTotal.WithLabelValues(denied.Reason).Inc()
		}
		return rates.Set{}, err
	}
	if err := e.budget.Record(ctx, now); err != nil {
		return rates.Set{}, err
	}

	payload, err := e.source.FetchDated(ctx, date)
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues(fetcher.KindOf(err).String()).Inc()
		return rates.Set{}, err
	}
	set, _, err := rates.Decode(payload, day, now, date)
	if err != nil {
		return rates.Set{}, err
	}
	if err := e.store.Write(ctx, tiered.Dated(date), set); err != nil {
		return rates.Set{}, err
	}
	e.logger.Info().Str("date", date).Int("currencies", len(set.Rates)).Msg("dated history stored")
	return set, nil
}

// CurrentSnapshot returns code's rate from live, falling back to lastKnown.
func (e *Engine) CurrentSnapshot(ctx context.Context, code currency.Code) (Current, error) {
	set, kind, err := e.currentSet(ctx)
	if err != nil {
		return Current{}, err
	}
	snap, ok := set.Get(code)
	if !ok {
		return Current{}, fmt.Errorf("%s: %w", code, ErrNoData)
	}
	fresh := tiered.FreshnessOf(set, true, e.opts.Now(), e.opts.FreshnessWindow)
	return Current{Snapshot: snap, AsOf: set.AsOf, FetchedAt: set.FetchedAt, Tier: kind, Freshness: fresh}, nil
}

// ChangeRecord recomputes code's day-over-day change from the stored tiers without
// touching the network.
func (e *Engine) ChangeRecord(ctx context.Context, code currency.Code) (rates.Change, error) {
	set, _, err := e.currentSet(ctx)
	if err != nil {
		return rates.Change{}, err
	}
	baseline, _, ok, err := e.resolveBaseline(ctx, set, false, e.opts.Now())
	if err != nil {
		return rates.Change{}, err
	}
	if !ok {
		return rates.Change{}, rates.ErrNoBaseline
	}
	change, ok := rates.Compute(set, baseline)[code]
	if !ok {
		return rates.Change{}, fmt.Errorf("%s: %w", code, rates.ErrNoBaseline)
	}
	return change, nil
}

// Changes recomputes every currency's change, keyed by code.
func (e *Engine) Changes(ctx context.Context) (rates.Set, map[currency.Code]rates.Change, error) {
	set, _, err := e.currentSet(ctx)
	if err != nil {
		return rates.Set{}, nil, err
	}
	baseline, _, ok, err := e.resolveBaseline(ctx, set, false, e.opts.Now())
	if err != nil {
		return set, nil, err
	}
	if !ok {
		return set, map[currency.Code]rates.Change{}, nil
	}
	return set, rates.Compute(set, baseline), nil
}

func (e *Engine) currentSet(ctx context.Context) (rates.Set, tiered.Kind, error) {
	for _, kind := range []tiered.Kind{tiered.Live, tiered.LastKnown} {
		set, ok, err := e.store.Read(ctx, tiered.Of(kind))
		if err != nil {
			return rates.Set{}, kind, err
		}
		if ok {
			return set, kind, nil
		}
	}
	return rates.Set{}, "", ErrNoData
}

// GetAlertConfig returns code's alert config or its default.
func (e *Engine) GetAlertConfig(ctx context.Context, code currency.Code) (alerting.Config, error) {
	return e.alerts.Get(ctx, code)
}

// SetAlertConfig validates and persists cfg.
func (e *Engine) SetAlertConfig(ctx context.Context, code currency.Code, cfg alerting.Config) error {
	return e.alerts.Set(ctx, code, cfg)
}

// UpdateAlertConfig applies fn to the stored config atomically with respect to other
// config writes in this process.
func (e *Engine) UpdateAlertConfig(ctx context.Context, code currency.Code, fn func(alerting.Config) (alerting.Config, error)) (alerting.Config, error) {
	return e.alerts.Update(ctx, code, fn)
}

// Freshness classifies one tier at the current time.
func (e *Engine) Freshness(ctx context.Context, kind tiered.Kind) (tiered.Freshness, error) {
	return e.store.Freshness(ctx, tiered.Of(kind), e.opts.Now(), e.opts.FreshnessWindow)
}

func (e *Engine) observeBudget(ctx context.Context, now time.Time) {
	st, err := e.budget.Snapshot(ctx, now)
	if err != nil {
		return
	}
	metrics.BudgetCallsToday.Set(float64(st.CallsToday))
}

func (e *Engine) observeFreshness(ctx context.Context) {
	for _, kind := range []tiered.Kind{tiered.Live, tiered.LastKnown, tiered.Baseline} {
		f, err := e.Freshness(ctx, kind)
		if err != nil {
			continue
		}
		metrics.TierFreshness.WithLabelValues(string(kind)).Set(float64(f))
	}
}

func (e *Engine) acquireLock(ctx context.Context) (func(), bool, error) {
	if e.opts.LockKey == 0 || e.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := e.locker.TryAdvisoryLock(ctx, e.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
