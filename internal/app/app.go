package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"fx-rate-alerts/internal/alerting"
	"fx-rate-alerts/internal/budget"
	"fx-rate-alerts/internal/calendar"
	"fx-rate-alerts/internal/config"
	"fx-rate-alerts/internal/engine"
	"fx-rate-alerts/internal/fetcher"
	"fx-rate-alerts/internal/logging"
	"fx-rate-alerts/internal/metrics"
	"fx-rate-alerts/internal/scheduler"
	"fx-rate-alerts/internal/storage"
	"fx-rate-alerts/internal/tiered"
	"fx-rate-alerts/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app")}
}

// runtime is the set of components one command works with.
type runtime struct {
	kv       storage.KV
	cal      *calendar.Resolver
	budget   *budget.Budget
	store    *tiered.Store
	alerts   *alerting.Repository
	notifier alerting.Notifier
	engine   *engine.Engine
	closers  []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// open builds every component on top of the configured storage. Source URLs are only
// checked by commands that fetch.
func (a *App) open(ctx context.Context) (*runtime, error) {
	loc, err := a.Config.App.Location()
	if err != nil {
		return nil, err
	}
	cal, err := calendar.NewResolver(loc, a.Config.Calendar.Holidays)
	if err != nil {
		return nil, err
	}

	kv, err := storage.Open(ctx, a.Config.Storage, a.Logger)
	if err != nil {
		return nil, err
	}
	rt := &runtime{kv: kv, cal: cal}
	rt.closers = append(rt.closers, func() {
		if err := kv.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close storage")
		}
	})

	notifier, closeNotifier, err := a.newNotifier()
	if err != nil {
		rt.Close()
		return nil, err
	}
	if closeNotifier != nil {
		rt.closers = append(rt.closers, closeNotifier)
	}

	rt.notifier = notifier
	rt.budget = budget.New(kv, budget.Options{
		DailyCap:    a.Config.Budget.DailyCap,
		MinInterval: a.Config.Budget.MinInterval,
		Location:    loc,
	}, a.Logger)
	rt.store = tiered.New(kv, cal, a.Logger)
	rt.alerts = alerting.NewRepository(kv, a.Config.Storage.HistoryLimit)

	var locker storage.AdvisoryLocker
	if l, ok := kv.(storage.AdvisoryLocker); ok {
		locker = l
	}

	rt.engine = engine.New(rt.store, rt.budget, a.newSource(loc), rt.alerts, notifier, locker, engine.Options{
		RetentionDays:   a.Config.Storage.DatedRetentionDays,
		FreshnessWindow: a.Config.FreshnessWindow(),
		Cooldown:        a.Config.Alerting.Cooldown,
		RecoverBaseline: a.Config.Source.HistoryURLTemplate != "",
		LockKey:         a.Config.Scheduler.AdvisoryLockKey,
	}, a.Logger)
	return rt, nil
}

func (a *App) newSource(loc *time.Location) *fetcher.HTTP {
	ua := a.Config.Source.UserAgent
	if ua == "" {
		ua = version.UserAgent()
	}
	return fetcher.NewHTTP(fetcher.HTTPOptions{
		RatesURL:           a.Config.Source.RatesURL,
		AsOfURL:            a.Config.Source.AsOfURL,
		HistoryURLTemplate: a.Config.Source.HistoryURLTemplate,
		RequestTimeout:     a.Config.Source.RequestTimeout,
		TotalTimeout:       a.Config.Source.TotalTimeout,
		UserAgent:          ua,
		Location:           loc,
	}, a.Logger)
}

// newNotifier assembles the configured channels. Telegram and kafka are included when
// listed in alerting.channels or switched on by their own enabled flag.
func (a *App) newNotifier() (alerting.Notifier, func(), error) {
	cfg := a.Config.Alerting
	wanted := map[string]bool{}
	for _, ch := range cfg.Channels {
		wanted[ch] = true
	}
	wanted["telegram"] = wanted["telegram"] || cfg.Telegram.Enabled
	wanted["kafka"] = wanted["kafka"] || cfg.Kafka.Enabled

	var fanout alerting.Fanout
	var closer func()
	for ch := range wanted {
		switch ch {
		case "log", "telegram", "kafka":
		default:
			return nil, nil, fmt.Errorf("unknown alerting channel %q", ch)
		}
	}
	if wanted["log"] {
		fanout = append(fanout, alerting.NewLogNotifier(a.Logger))
	}
	if wanted["telegram"] {
		if cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == "" {
			return nil, nil, errors.New("telegram 通道需要 bot_token 与 chat_id")
		}
		fanout = append(fanout, alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, 10*time.Second, a.Logger))
	}
	if wanted["kafka"] {
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, nil, errors.New("kafka channel needs alerting.kafka.brokers")
		}
		k := alerting.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.WriteTimeout, a.Logger)
		fanout = append(fanout, k)
		closer = func() {
			if err := k.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("failed to close kafka writer")
			}
		}
	}
	if len(fanout) == 0 {
		return nil, closer, nil
	}
	return fanout, closer, nil
}

func (a *App) requireSource() error {
	if a.Config.Source.RatesURL == "" || a.Config.Source.AsOfURL == "" {
		return errors.New("source.rates_url and source.asof_url must be configured")
	}
	return nil
}

// Run executes the long-running sync service.
func (a *App) Run(ctx context.Context) error {
	if err := a.requireSource(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	loc, _ := a.Config.App.Location()
	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		Cron:         a.Config.Scheduler.Cron,
		Location:     loc,
	}, a.Logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(gctx, func(ctx context.Context, tr scheduler.Trigger) error {
			res, err := rt.engine.Refresh(ctx, tr.Force)
			if err != nil {
				return err
			}
			a.logResult(res, tr)
			return nil
		})
	})

	g.Go(func() error {
		watchResume(gctx, func() { sched.Trigger(true, "resume") })
		return nil
	})

	if addr := a.Config.Metrics.ListenAddr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			a.Logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	sched.Trigger(false, "startup")
	a.Logger.Info().Str("version", version.Version).Msg("starting sync service")

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("sync service stopped")
	return nil
}

func (a *App) logResult(res engine.Result, tr scheduler.Trigger) {
	evt := a.Logger.Info()
	if res.Status != engine.StatusOK && res.Status != engine.StatusBudgetDenied {
		evt = a.Logger.Warn()
	}
	evt.Str("cycle_id", res.CycleID).
		Str("status", string(res.Status)).
		Str("reason", tr.Reason).
		Bool("stale", res.Stale).
		Int("events", len(res.Events)).
		Msg("cycle finished")
}

// ExportOptions hold parameters for exporting dated history.
type ExportOptions struct {
	Currency  string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Currency string
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	From            time.Time
	To              time.Time
	DryRun          bool
	IncludeWeekends bool
	Overwrite       bool
}
