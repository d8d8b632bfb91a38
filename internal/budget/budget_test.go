package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx-rate-alerts/internal/storage"
)

func newBudget(kv storage.KV, dailyCap int, interval time.Duration) *Budget {
	return New(kv, Options{DailyCap: dailyCap, MinInterval: interval, Location: time.UTC}, zerolog.Nop())
}

func TestDeniesCallAfterDailyCap(t *testing.T) {
	ctx := context.Background()
	b := newBudget(storage.NewMemory(), 3, 0)
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, b.TryAcquire(ctx, now, false), "call %d", i+1)
		require.NoError(t, b.Record(ctx, now))
		now = now.Add(time.Minute)
	}

	err := b.TryAcquire(ctx, now, false)
	require.True(t, errors.Is(err, ErrDenied))
	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, ReasonDailyCap, denied.Reason)

	assert.Error(t, b.TryAcquire(ctx, now, true), "force does not bypass the cap")
}

func TestDayRolloverResetsCounter(t *testing.T) {
	ctx := context.Background()
	b := newBudget(storage.NewMemory(), 1, 0)
	day1 := time.Date(2024, 6, 10, 23, 59, 0, 0, time.UTC)

	require.NoError(t, b.TryAcquire(ctx, day1, false))
	require.NoError(t, b.Record(ctx, day1))
	require.Error(t, b.TryAcquire(ctx, day1, false))

	day2 := day1.Add(2 * time.Minute)
	require.NoError(t, b.TryAcquire(ctx, day2, false))

	st, err := b.Snapshot(ctx, day2)
	require.NoError(t, err)
	assert.Equal(t, 0, st.CallsToday)
	assert.Equal(t, "2024-06-11", st.DayKey)
}

func TestMinIntervalAndForce(t *testing.T) {
	ctx := context.Background()
	b := newBudget(storage.NewMemory(), 100, time.Minute)
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, b.TryAcquire(ctx, now, false))
	require.NoError(t, b.Record(ctx, now))

	err := b.TryAcquire(ctx, now.Add(30*time.Second), false)
	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, ReasonMinInterval, denied.Reason)
	assert.Equal(t, 30*time.Second, denied.RetryAfter)

	assert.NoError(t, b.TryAcquire(ctx, now.Add(30*time.Second), true))
	assert.NoError(t, b.TryAcquire(ctx, now.Add(time.Minute), false))
}

func TestStatePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	first := newBudget(kv, 2, 0)
	require.NoError(t, first.Record(ctx, now))
	require.NoError(t, first.Record(ctx, now))

	second := newBudget(kv, 2, 0)
	assert.Error(t, second.TryAcquire(ctx, now, false))

	st, err := second.Snapshot(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, st.CallsToday)
	require.NotNil(t, st.LastCallAt)
	assert.True(t, st.LastCallAt.Equal(now))
}

func TestInstancesSharingStoreSeeEachOthersCalls(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	a := newBudget(kv, 3, time.Minute)
	b := newBudget(kv, 3, time.Minute)
	// Both instances read the store before either records.
	_, err := a.Snapshot(ctx, now)
	require.NoError(t, err)
	_, err = b.Snapshot(ctx, now)
	require.NoError(t, err)

	allowed := 0
	for i := 0; i < 4; i++ {
		cur := a
		if i%2 == 1 {
			cur = b
		}
		if err := cur.TryAcquire(ctx, now, true); err != nil {
			assert.True(t, errors.Is(err, ErrDenied))
			continue
		}
		require.NoError(t, cur.Record(ctx, now))
		allowed++
		now = now.Add(time.Second)
	}
	assert.Equal(t, 3, allowed)

	st, err := a.Snapshot(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 3, st.CallsToday)

	err = a.TryAcquire(ctx, now.Add(10*time.Second), false)
	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, ReasonDailyCap, denied.Reason)
}

type failingKV struct{ storage.KV }

func (failingKV) Apply(context.Context, *storage.Batch) error { return errors.New("disk full") }

func TestRecordDoesNotCommitWhenPersistFails(t *testing.T) {
	ctx := context.Background()
	b := newBudget(failingKV{storage.NewMemory()}, 5, 0)
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	require.Error(t, b.Record(ctx, now))
	st, err := b.Snapshot(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, st.CallsToday)
}
