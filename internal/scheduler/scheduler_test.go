package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggersDuringCycleAreCoalesced(t *testing.T) {
	s, err := New(Options{Interval: time.Hour}, zerolog.Nop())
	require.NoError(t, err)

	started := make(chan Trigger, 10)
	release := make(chan struct{})
	tick := func(ctx context.Context, tr Trigger) error {
		started <- tr
		<-release
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, tick) }()

	s.Trigger(false, "manual")
	first := waitTrigger(t, started)
	assert.False(t, first.Force)
	assert.Equal(t, "manual", first.Reason)

	s.Trigger(false, "resume")
	s.Trigger(true, "manual")
	s.Trigger(false, "resume")
	release <- struct{}{}

	second := waitTrigger(t, started)
	assert.True(t, second.Force, "force survives coalescing")
	assert.Equal(t, "resume", second.Reason)
	release <- struct{}{}

	select {
	case tr := <-started:
		t.Fatalf("unexpected extra cycle %+v", tr)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestScheduledTickRuns(t *testing.T) {
	s, err := New(Options{Interval: 20 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)

	started := make(chan Trigger, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = s.Run(ctx, func(ctx context.Context, tr Trigger) error {
			started <- tr
			return nil
		})
	}()

	tr := waitTrigger(t, started)
	assert.Equal(t, "schedule", tr.Reason)
	assert.False(t, tr.Force)
}

func TestNextTickAlignment(t *testing.T) {
	s, err := New(Options{Interval: 2 * time.Minute, AlignToStart: true}, zerolog.Nop())
	require.NoError(t, err)

	now := time.Date(2024, 6, 10, 0, 3, 10, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 4, 0, 0, time.UTC), s.nextTick(now))
	assert.Equal(t, time.Date(2024, 6, 10, 0, 6, 0, 0, time.UTC), s.nextTick(time.Date(2024, 6, 10, 0, 4, 0, 0, time.UTC)))
}

func TestCronSchedule(t *testing.T) {
	s, err := New(Options{Cron: "*/5 9-16 * * 1-5"}, zerolog.Nop())
	require.NoError(t, err)

	friday := time.Date(2024, 6, 7, 16, 58, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC), s.nextTick(friday))

	_, err = New(Options{Cron: "not a cron"}, zerolog.Nop())
	assert.Error(t, err)
	_, err = New(Options{}, zerolog.Nop())
	assert.Error(t, err)
}

func waitTrigger(t *testing.T, ch <-chan Trigger) Trigger {
	t.Helper()
	select {
	case tr := <-ch:
		return tr
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cycle")
		return Trigger{}
	}
}
