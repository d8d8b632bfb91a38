package app

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx-rate-alerts/internal/alerting"
	"fx-rate-alerts/internal/calendar"
	"fx-rate-alerts/internal/config"
	"fx-rate-alerts/internal/currency"
	"fx-rate-alerts/internal/rates"
	"fx-rate-alerts/internal/storage"
	"fx-rate-alerts/internal/tiered"
)

func TestAlertUpdateApply(t *testing.T) {
	enabled := true
	mode := "band5"
	threshold := decimal.RequireFromString("1390")
	last := time.Now()

	cfg := alerting.DefaultConfig(currency.USD)
	cfg.LastNotifiedAt = &last

	got, err := AlertUpdate{Enabled: &enabled, Mode: &mode, Threshold: &threshold, Reset: true}.Apply(cfg)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Equal(t, alerting.Band5Pct, got.Mode)
	assert.True(t, got.Threshold.Equal(threshold))
	assert.Nil(t, got.LastNotifiedAt)

	kept, err := AlertUpdate{}.Apply(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg, kept)

	bad := "sideways"
	_, err = AlertUpdate{Mode: &bad}.Apply(cfg)
	assert.Error(t, err)
}

func TestBackfillDatesSkipsWeekends(t *testing.T) {
	cal, err := calendar.NewResolver(time.UTC, nil)
	require.NoError(t, err)

	from := time.Date(2024, 6, 6, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, []string{"2024-06-06", "2024-06-07", "2024-06-10", "2024-06-11"}, backfillDates(cal, from, to, false))
	assert.Len(t, backfillDates(cal, from, to, true), 6)
	assert.Empty(t, backfillDates(cal, to, from, true))
}

func TestDownsamplePointsKeepsEnds(t *testing.T) {
	points := make([]ratePoint, 10)
	for i := range points {
		points[i] = ratePoint{Mid: decimal.NewFromInt(int64(i))}
	}
	out := downsamplePoints(points, 4)
	require.Len(t, out, 4)
	assert.True(t, out[0].Mid.Equal(decimal.Zero))
	assert.True(t, out[3].Mid.Equal(decimal.NewFromInt(9)))
	assert.Len(t, downsamplePoints(points, 20), 10)
}

func TestCollectPointsAndCSV(t *testing.T) {
	ctx := context.Background()
	cal, err := calendar.NewResolver(time.UTC, nil)
	require.NoError(t, err)
	store := tiered.New(storage.NewMemory(), cal, zerolog.Nop())

	for i, mid := range []string{"1380", "1385", "1390"} {
		day := time.Date(2024, 6, 5+i, 0, 0, 0, 0, time.UTC)
		set := rates.NewSet(day, day, "", []rates.Snapshot{{
			Currency: currency.USD, Unit: 1,
			Buy: decimal.RequireFromString(mid), Sell: decimal.RequireFromString(mid), Mid: decimal.RequireFromString(mid),
		}})
		require.NoError(t, store.Write(ctx, tiered.Dated(cal.DateKey(day)), set))
	}

	from := time.Date(2024, 6, 6, 0, 0, 0, 0, time.UTC)
	points, err := collectPoints(ctx, store, cal, currency.USD, &from, nil)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.True(t, points[1].Mid.Equal(decimal.NewFromInt(1390)))

	none, err := collectPoints(ctx, store, cal, currency.EUR, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	path := filepath.Join(t.TempDir(), "out", "usd.csv")
	require.NoError(t, writePointsCSV(path, currency.USD, points))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"date", "currency", "unit", "buy", "sell", "mid"}, rows[0])
	assert.Equal(t, []string{"2024-06-07", "USD", "1", "1390", "1390", "1390"}, rows[2])
}

func TestNewNotifierChannels(t *testing.T) {
	a := NewApp(&config.Config{Alerting: config.AlertingConfig{Channels: []string{"log"}}}, zerolog.Nop())
	n, closer, err := a.newNotifier()
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.Len(t, n, 1)

	a.Config.Alerting.Channels = []string{"pager"}
	_, _, err = a.newNotifier()
	assert.Error(t, err)

	a.Config.Alerting.Channels = []string{"telegram"}
	_, _, err = a.newNotifier()
	assert.Error(t, err, "telegram without credentials")

	a.Config.Alerting.Channels = nil
	n, _, err = a.newNotifier()
	require.NoError(t, err)
	assert.Nil(t, n)
}
