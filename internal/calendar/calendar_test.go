package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seoul(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	return loc
}

func TestResolveBaselineDate(t *testing.T) {
	r, err := NewResolver(seoul(t), DefaultHolidays)
	require.NoError(t, err)

	cases := map[string]string{
		"2024-06-08": "2024-06-07", // Saturday
		"2024-06-09": "2024-06-07", // Sunday
		"2024-06-10": "2024-06-09", // Monday
		"2024-06-12": "2024-06-11", // Wednesday
		"2024-01-01": "2023-12-31", // Monday, year boundary
	}
	for today, want := range cases {
		d, err := r.ParseDate(today)
		require.NoError(t, err)
		got := r.ResolveBaselineDate(d)
		assert.Equal(t, want, got.Format(DateLayout), today)
		assert.Equal(t, got, r.ResolveBaselineDate(d.Add(13*time.Hour)), "idempotent within the day")
	}
}

func TestResolveBaselineWeekendNeverPointsAtWeekend(t *testing.T) {
	r, err := NewResolver(time.UTC, nil)
	require.NoError(t, err)
	sat := time.Date(2024, 6, 8, 10, 0, 0, 0, time.UTC)
	sun := sat.AddDate(0, 0, 1)
	assert.Equal(t, time.Friday, r.ResolveBaselineDate(sat).Weekday())
	assert.Equal(t, time.Friday, r.ResolveBaselineDate(sun).Weekday())
	assert.Equal(t, r.ResolveBaselineDate(sat), r.ResolveBaselineDate(sun))
}

func TestDateUsesResolverZone(t *testing.T) {
	r, err := NewResolver(seoul(t), nil)
	require.NoError(t, err)
	// 2024-06-09T20:00Z is already Monday in Seoul.
	utc := time.Date(2024, 6, 9, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-06-10", r.DateKey(utc))
}

func TestIsTradingDay(t *testing.T) {
	r, err := NewResolver(time.UTC, []string{"12-25"})
	require.NoError(t, err)

	assert.True(t, r.IsTradingDay(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)))
	assert.False(t, r.IsTradingDay(time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC)))
	assert.False(t, r.IsTradingDay(time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)))
	assert.True(t, r.IsHoliday(time.Date(2031, 12, 25, 0, 0, 0, 0, time.UTC)))
}

func TestNewResolverRejectsBadHoliday(t *testing.T) {
	_, err := NewResolver(time.UTC, []string{"13-40"})
	assert.Error(t, err)
}

func TestBaselineCandidates(t *testing.T) {
	r, err := NewResolver(time.UTC, nil)
	require.NoError(t, err)

	keys := func(ds []time.Time) []string {
		out := make([]string, 0, len(ds))
		for _, d := range ds {
			out = append(out, d.Format(DateLayout))
		}
		return out
	}

	monday := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"2024-06-07"}, keys(r.BaselineCandidates(monday)))

	wednesday := time.Date(2024, 6, 12, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"2024-06-11"}, keys(r.BaselineCandidates(wednesday)))

	sunday := time.Date(2024, 6, 9, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"2024-06-07"}, keys(r.BaselineCandidates(sunday)))

	saturday := time.Date(2024, 6, 8, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"2024-06-07"}, keys(r.BaselineCandidates(saturday)))
}
