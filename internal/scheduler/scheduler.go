package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Trigger describes why a cycle runs.
type Trigger struct {
	At     time.Time
	Force  bool
	Reason string
}

// TickFunc is invoked once per cycle. Calls never overlap.
type TickFunc func(ctx context.Context, trigger Trigger) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	// Cron, when set, replaces Interval with a standard five-field cron schedule.
	Cron     string
	Location *time.Location
}

// Scheduler drives cycles on a fixed cadence plus ad hoc triggers. Triggers that arrive
// while a cycle is running are coalesced into a single follow-up cycle.
type Scheduler struct {
	opts     Options
	schedule cron.Schedule
	logger   zerolog.Logger

	mu           sync.Mutex
	pending      bool
	pendingForce bool
	reason       string
	wake         chan struct{}
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	s := &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		wake:   make(chan struct{}, 1),
	}
	if opts.Cron != "" {
		sched, err := cron.ParseStandard(opts.Cron)
		if err != nil {
			return nil, fmt.Errorf("parse cron %q: %w", opts.Cron, err)
		}
		s.schedule = sched
	} else if opts.Interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive")
	}
	return s, nil
}

// Trigger requests a cycle as soon as none is running. force is sticky across coalesced
// requests. It never blocks.
func (s *Scheduler) Trigger(force bool, reason string) {
	s.mu.Lock()
	s.pending = true
	s.pendingForce = s.pendingForce || force
	if s.reason == "" {
		s.reason = reason
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) takePending() (Trigger, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending {
		return Trigger{}, false
	}
	tr := Trigger{At: time.Now(), Force: s.pendingForce, Reason: s.reason}
	s.pending, s.pendingForce, s.reason = false, false, ""
	return tr, true
}

// Run blocks, invoking tick on schedule and on triggers until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := s.nextTick(time.Now())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.wake:
			timer.Stop()
			if tr, ok := s.takePending(); ok {
				s.execute(ctx, tick, tr)
			}
		case <-timer.C:
			s.execute(ctx, tick, Trigger{At: s.bucketStart(next), Reason: "schedule"})
			next = s.advance(next)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, tr Trigger) {
	s.logger.Info().Time("at", tr.At).Bool("force", tr.Force).Str("reason", tr.Reason).Msg("executing cycle")
	if err := tick(ctx, tr); err != nil {
		s.logger.Error().Err(err).Str("reason", tr.Reason).Msg("cycle execution failed")
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if s.schedule != nil {
		return s.schedule.Next(now.In(s.opts.Location))
	}
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) advance(prev time.Time) time.Time {
	if s.schedule != nil {
		return s.schedule.Next(prev)
	}
	return prev.Add(s.opts.Interval)
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	if s.schedule != nil || !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
