package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"price-move-alerts/internal/alerting"
	"price-move-alerts/internal/faults"
	"price-move-alerts/internal/fetcher"
	"price-move-alerts/internal/market"
	"price-move-alerts/internal/scheduler"
	"price-move-alerts/internal/storage"
	"price-move-alerts/internal/threshold"
	"price-move-alerts/internal/tracking"
	"price-move-alerts/internal/window"
)

var errMissingQuote = errors.New("no quote returned for pair")

// Options carry the monitoring setup resolved by the caller.
type Options struct {
	Configs         []market.WindowConfig
	Policy          threshold.Policy
	Tracking        tracking.Options
	Channels        []string
	AlertsOn        bool
	NotifySummaries bool
	LockKey         int64
}

// TickReport summarises what one polling tick did.
type TickReport struct {
	At        time.Time
	Ingested  int
	Skipped   int
	Alerts    []market.Alert
	Summaries []tracking.Summary
}

// Service runs the polling loop. It owns every per-pair map, so all updates of
// a pair happen on the scheduler goroutine.
type Service struct {
	scheduler *scheduler.Scheduler
	source    fetcher.PriceSource
	repo      storage.Repository
	notifier  alerting.Notifier
	locker    storage.AdvisoryLocker
	logger    zerolog.Logger

	opts      Options
	configs   []market.WindowConfig
	pairs     []string
	windows   *window.Tracker
	evaluator *threshold.Evaluator
	tracker   *tracking.Tracker
}

// New constructs the monitoring service. repo and notifier may be nil.
func New(opts Options, sched *scheduler.Scheduler, source fetcher.PriceSource, repo storage.Repository, notifier alerting.Notifier, logger zerolog.Logger) (*Service, error) {
	if source == nil {
		return nil, fmt.Errorf("price source not configured")
	}

	configs := make([]market.WindowConfig, 0, len(opts.Configs))
	for _, cfg := range opts.Configs {
		if cfg.Enabled {
			configs = append(configs, cfg)
		}
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("no enabled pairs to monitor")
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Pair < configs[j].Pair })

	windows := window.New()
	pairs := make([]string, 0, len(configs))
	for i, cfg := range configs {
		if i > 0 && configs[i-1].Pair == cfg.Pair {
			return nil, fmt.Errorf("pair %s configured twice", cfg.Pair)
		}
		if err := windows.Track(cfg.Pair, cfg.Lookback); err != nil {
			return nil, err
		}
		pairs = append(pairs, cfg.Pair)
	}

	var locker storage.AdvisoryLocker
	if l, ok := repo.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler: sched,
		source:    source,
		repo:      repo,
		notifier:  notifier,
		locker:    locker,
		logger:    logger.With().Str("component", "service").Logger(),
		opts:      opts,
		configs:   configs,
		pairs:     pairs,
		windows:   windows,
		evaluator: threshold.New(opts.Policy),
		tracker:   tracking.New(opts.Tracking),
	}, nil
}

// Pairs returns the monitored pairs, sorted.
func (s *Service) Pairs() []string {
	return append([]string(nil), s.pairs...)
}

// Run begins the polling loop and returns when ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	s.logger.Info().Strs("pairs", s.pairs).
		Str("policy", string(s.evaluator.Policy())).
		Dur("interval", s.scheduler.Interval()).
		Msg("monitoring started")
	return s.scheduler.Run(ctx, func(ctx context.Context, at time.Time) error {
		_, err := s.ProcessTick(ctx, at)
		return err
	})
}

// ProcessTick 执行单次轮询。
func (s *Service) ProcessTick(ctx context.Context, at time.Time) (TickReport, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return TickReport{At: at}, err
	}
	if !proceed {
		s.logger.Debug().Time("tick", at).Msg("skip tick because advisory lock held elsewhere")
		return TickReport{At: at}, nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeTick(ctx, at), nil
}

func (s *Service) executeTick(ctx context.Context, at time.Time) TickReport {
	report := TickReport{At: at}

	samples, err := s.source.FetchPrices(ctx, s.pairs)
	if err != nil {
		if !faults.IsSource(err) {
			err = &faults.SourceFault{Err: err}
		}
		s.logger.Warn().Err(err).Time("tick", at).Msg("price fetch failed, skipping tick")
		report.Skipped = len(s.configs)
	} else {
		for _, cfg := range s.configs {
			sample, ok := samples[cfg.Pair]
			if !ok {
				s.logger.Warn().Err(&faults.SourceFault{Pair: cfg.Pair, Err: errMissingQuote}).Msg("pair skipped this tick")
				report.Skipped++
				continue
			}
			s.processSample(ctx, cfg, sample, &report)
		}
	}

	for _, summary := range s.tracker.Expire(at) {
		s.handleSummary(ctx, summary)
		report.Summaries = append(report.Summaries, summary)
	}

	s.logger.Debug().Time("tick", at).
		Int("ingested", report.Ingested).
		Int("skipped", report.Skipped).
		Int("alerts", len(report.Alerts)).
		Int("tracking", len(s.tracker.Active())).
		Msg("tick processed")
	return report
}

func (s *Service) processSample(ctx context.Context, cfg market.WindowConfig, sample market.Sample, report *TickReport) {
	summary, finished, err := s.tracker.Observe(sample)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Str("pair", sample.Pair).Msg("sample ignored by tracking session")
	case finished:
		s.handleSummary(ctx, summary)
		report.Summaries = append(report.Summaries, summary)
	}

	if err := s.windows.Ingest(sample); err != nil {
		if faults.IsDataQuality(err) {
			s.logger.Warn().Err(err).Str("pair", sample.Pair).Msg("sample dropped")
		} else {
			s.logger.Error().Err(err).Str("pair", sample.Pair).Msg("failed to ingest sample")
		}
		report.Skipped++
		return
	}
	report.Ingested++

	alert, fired := s.evaluator.Evaluate(cfg, s.windows)
	if !fired {
		return
	}
	s.handleAlert(ctx, alert)
	report.Alerts = append(report.Alerts, alert)
}

func (s *Service) handleAlert(ctx context.Context, alert market.Alert) {
	opened := s.tracker.Open(alert)
	s.logger.Info().Str("pair", alert.Pair).
		Str("direction", string(alert.Direction)).
		Str("change_pct", alert.ChangePct.StringFixed(4)).
		Str("price", alert.TriggerPrice.String()).
		Bool("tracking_opened", opened).
		Msg(alert.String())

	if s.repo != nil {
		if _, err := s.repo.InsertAlert(ctx, storage.NewAlertRecord(alert, s.opts.Channels)); err != nil {
			s.logger.Error().Err(err).Str("pair", alert.Pair).Msg("failed to persist alert record")
		}
	}
	if s.opts.AlertsOn && s.notifier != nil {
		if err := s.notifier.Notify(ctx, alerting.AlertNotification(alert, s.opts.Channels)); err != nil {
			s.logger.Error().Err(err).Str("pair", alert.Pair).Msg("failed to dispatch alert")
		}
	}
}

func (s *Service) handleSummary(ctx context.Context, summary tracking.Summary) {
	s.logger.Info().Str("pair", summary.Pair).
		Str("session", summary.SessionID).
		Str("final_change_pct", summary.FinalChangePct.StringFixed(2)).
		Int("points", summary.DataPoints).
		Msg("tracking session finished")

	if s.repo != nil {
		if err := s.repo.SaveSummary(ctx, summary); err != nil {
			s.logger.Error().Err(err).Str("session", summary.SessionID).Msg("failed to persist tracking summary")
		}
	}
	if s.opts.AlertsOn && s.opts.NotifySummaries && s.notifier != nil {
		if err := s.notifier.Notify(ctx, alerting.SummaryNotification(summary, s.opts.Channels)); err != nil {
			s.logger.Error().Err(err).Str("session", summary.SessionID).Msg("failed to dispatch summary")
		}
	}
}

// Shutdown finalizes open tracking sessions at now so their partial analytics
// are kept.
func (s *Service) Shutdown(ctx context.Context, now time.Time) []tracking.Summary {
	summaries := s.tracker.FinalizeAll(now)
	for _, summary := range summaries {
		s.handleSummary(ctx, summary)
	}
	return summaries
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
