// Package metrics exposes prometheus collectors for the sync loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxwatcher_sync_cycles_total",
			Help: "Sync cycles by outcome status",
		},
		[]string{"status"},
	)

	CycleDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fxwatcher_sync_cycle_duration_seconds",
			Help:    "Duration of sync cycles",
			Buckets: prometheus.DefBuckets,
		},
	)

	LastCycleTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fxwatcher_sync_last_cycle_timestamp",
			Help: "Unix timestamp of the last completed sync cycle",
		},
	)

	BudgetDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxwatcher_budget_denied_total",
			Help: "Fetch attempts refused by the call budget",
		},
		[]string{"reason"},
	)

	BudgetCallsToday = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fxwatcher_budget_calls_today",
			Help: "Remote calls recorded for the current day",
		},
	)

	FetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxwatcher_fetch_errors_total",
			Help: "Remote source failures by kind",
		},
		[]string{"kind"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxwatcher_notifications_total",
			Help: "Threshold notifications emitted per currency and direction",
		},
		[]string{"currency", "direction"},
	)

	TierFreshness = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fxwatcher_tier_freshness",
			Help: "Tier freshness: 0 absent, 1 stale, 2 fresh",
		},
		[]string{"tier"},
	)
)

// ObserveCycle records the outcome of one sync cycle.
func ObserveCycle(status string, startedAt time.Time) {
	CyclesTotal.WithLabelValues(status).Inc()
	CycleDurationSeconds.Observe(time.Since(startedAt).Seconds())
	LastCycleTimestamp.Set(float64(time.Now().Unix()))
}

// Handler serves the default registry.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
