package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"price-move-alerts/internal/alerting"
	"price-move-alerts/internal/config"
	"price-move-alerts/internal/fetcher"
	"price-move-alerts/internal/scheduler"
	"price-move-alerts/internal/service"
	"price-move-alerts/internal/storage"
	"price-move-alerts/internal/threshold"
	"price-move-alerts/internal/tracking"
	"price-move-alerts/internal/watchlist"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newBinance() *fetcher.Binance {
	cfg := a.Config.Binance
	return fetcher.NewBinance(fetcher.BinanceOptions{
		BaseURL:       cfg.BaseURL,
		APIKey:        cfg.APIKey,
		SecretKey:     cfg.SecretKey,
		Timeout:       cfg.RequestTimeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryMin:      cfg.RetryMin,
		RetryMax:      cfg.RetryMax,
	}, a.Logger)
}

// newNotifier fans out to every configured channel. It returns nil when no
// channel is usable.
func (a *App) newNotifier() alerting.Notifier {
	var out alerting.Fanout
	for _, ch := range a.Config.Alerting.Channels {
		switch strings.ToLower(strings.TrimSpace(ch)) {
		case "log":
			out = append(out, alerting.NewLogNotifier(a.Logger))
		case "telegram":
			cfg := a.Config.Alerting.Telegram
			if !cfg.Enabled {
				a.Logger.Warn().Msg("telegram channel listed but alerting.telegram.enabled is false; skipping")
				continue
			}
			out = append(out, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, a.Config.Alerting.DeliveryTimeout, a.Logger))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (a *App) openStore(ctx context.Context) (storage.Repository, func(), error) {
	repo, err := storage.Open(ctx, a.Config.Storage, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	if repo == nil {
		return nil, nil, nil
	}
	return repo, repo.Close, nil
}

func (a *App) requireStore(ctx context.Context) (storage.Repository, func(), error) {
	repo, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if repo == nil {
		return nil, nil, errors.New("storage.driver is none; analytics are not persisted")
	}
	return repo, closeStore, nil
}

func (a *App) trackingOptions() tracking.Options {
	return tracking.Options{
		Duration:    a.Config.Tracking.Duration,
		Checkpoints: a.Config.Tracking.Checkpoints,
	}
}

func (a *App) library() *watchlist.Library {
	return watchlist.NewLibrary(a.Config.Watchlist.SavesDir)
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	policy, err := threshold.ParsePolicy(a.Config.Detector.CooldownPolicy)
	if err != nil {
		return err
	}

	mon, err := a.resolveMonitor(ctx, opts)
	if err != nil {
		return err
	}

	repo, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if repo == nil {
		a.Logger.Warn().Msg("storage.driver is none; alerts and summaries are not persisted")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		Immediate:    true,
	}, a.Logger)

	var (
		notifier   alerting.Notifier
		dispatcher *alerting.Dispatcher
	)
	if a.Config.Alerting.Enabled {
		if n := a.newNotifier(); n != nil {
			dispatcher = alerting.NewDispatcher(n, alerting.DispatcherOptions{
				QueueSize:       a.Config.Alerting.QueueSize,
				DeliveryTimeout: a.Config.Alerting.DeliveryTimeout,
			}, a.Logger)
			notifier = dispatcher
		} else {
			a.Logger.Warn().Msg("alerting enabled but no channel configured")
		}
	}

	svc, err := service.New(service.Options{
		Configs:         mon.Configs,
		Policy:          policy,
		Tracking:        a.trackingOptions(),
		Channels:        a.Config.Alerting.Channels,
		AlertsOn:        a.Config.Alerting.Enabled,
		NotifySummaries: a.Config.Alerting.NotifySummaries,
		LockKey:         a.Config.Scheduler.AdvisoryLockKey,
	}, sched, mon.Source, repo, notifier, a.Logger)
	if err != nil {
		return err
	}

	a.Logger.Info().Int("pairs", len(mon.Configs)).Bool("test_mode", mon.TestMode).Str("origin", mon.Origin).Msg("starting monitoring service")
	runErr := svc.Run(ctx)

	// stop accepting ticks, then flush sessions and queued notifications
	drainCtx, drainCancel := context.WithTimeout(context.Background(), a.drainTimeout())
	defer drainCancel()
	if summaries := svc.Shutdown(drainCtx, time.Now()); len(summaries) > 0 {
		a.Logger.Info().Int("sessions", len(summaries)).Msg("open tracking sessions finalized on shutdown")
	}
	if dispatcher != nil {
		if err := dispatcher.Close(drainCtx); err != nil {
			a.Logger.Warn().Err(err).Msg("pending notifications dropped")
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		a.Logger.Error().Err(runErr).Msg("service terminated with error")
		return runErr
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

func (a *App) drainTimeout() time.Duration {
	if d := a.Config.Alerting.DeliveryTimeout; d > 0 {
		return d
	}
	return 10 * time.Second
}

// RunOptions choose which pairs the run command monitors. At most one of
// Saved, Watchlist and Selection is expected; with none the configured
// watchlist path is used.
type RunOptions struct {
	Saved     string
	Watchlist string
	Selection string
	Uniform   UniformThresholds
	TestMode  bool
}

// UniformThresholds apply to every pair chosen with a selection expression.
type UniformThresholds struct {
	Lookback    time.Duration
	UpPct       float64
	DownPct     float64
	AlertOnUp   bool
	AlertOnDown bool
}

// Validate checks the thresholds before they are written to a watchlist.
func (u UniformThresholds) Validate() error {
	if u.Lookback <= 0 {
		return fmt.Errorf("--lookback must be greater than zero")
	}
	if u.UpPct <= 0 || u.DownPct <= 0 {
		return fmt.Errorf("--up and --down must be greater than zero")
	}
	return nil
}

// ExportOptions hold parameters for exporting a tracking session.
type ExportOptions struct {
	SessionID string
	PNGPath   string
	CSVPath   string
	MaxPoints int

	// All exports every session (optionally narrowed by Pair and Since) as a CSV table.
	All   bool
	Pair  string
	Since time.Duration
}

// ReportOptions configure the report command.
type ReportOptions struct {
	Pair   string
	Since  time.Duration
	Limit  int
	Alerts bool
}

// StatsOptions configure the stats command.
type StatsOptions struct {
	Pair  string
	Since time.Duration
}
