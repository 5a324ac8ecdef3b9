package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"price-move-alerts/internal/fetcher"
	"price-move-alerts/internal/market"
	"price-move-alerts/internal/service"
	"price-move-alerts/internal/threshold"
)

// SimulateOptions describe one synthetic price move.
type SimulateOptions struct {
	Pair         string
	From         decimal.Decimal
	To           decimal.Decimal
	ThresholdPct decimal.Decimal
	Lookback     time.Duration
}

// SimulateAlert 通过两个给定价格模拟一次告警流程，告警会真实发送到已配置的通道，但不会持久化。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}
	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}
	if !opts.From.IsPositive() || !opts.To.IsPositive() {
		return errors.New("--from and --to must be positive prices")
	}
	if !opts.ThresholdPct.IsPositive() {
		return errors.New("--threshold must be greater than zero")
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 5 * time.Minute
	}

	pair := strings.ToUpper(strings.TrimSpace(opts.Pair))
	cfg := market.WindowConfig{
		Pair:        pair,
		Lookback:    opts.Lookback,
		UpPct:       opts.ThresholdPct,
		DownPct:     opts.ThresholdPct,
		Enabled:     true,
		AlertOnUp:   true,
		AlertOnDown: true,
	}

	source := &staticSource{}
	svc, err := service.New(service.Options{
		Configs:  []market.WindowConfig{cfg},
		Policy:   threshold.PolicyAgeOut,
		Tracking: a.trackingOptions(),
		Channels: a.Config.Alerting.Channels,
		AlertsOn: true,
	}, nil, source, nil, notifier, a.Logger)
	if err != nil {
		return err
	}

	end := time.Now().UTC()
	start := end.Add(-opts.Lookback)

	source.set(market.NewSample(pair, start, opts.From))
	if _, err := svc.ProcessTick(ctx, start); err != nil {
		return err
	}
	source.set(market.NewSample(pair, end, opts.To))
	report, err := svc.ProcessTick(ctx, end)
	if err != nil {
		return err
	}

	if len(report.Alerts) == 0 {
		change := opts.To.Sub(opts.From).Div(opts.From).Shift(2)
		fmt.Fprintf(a.Out, "no alert: %s moved %s%%, threshold is %s%%\n", pair, change.StringFixed(2), opts.ThresholdPct.String())
		return nil
	}
	for _, alert := range report.Alerts {
		fmt.Fprintf(a.Out, "alert sent: %s\n", alert.String())
	}
	return nil
}

// staticSource returns whatever sample was set last.
type staticSource struct {
	sample market.Sample
}

func (s *staticSource) set(sample market.Sample) {
	s.sample = sample
}

func (s *staticSource) FetchPrices(_ context.Context, _ []string) (map[string]market.Sample, error) {
	return map[string]market.Sample{s.sample.Pair: s.sample}, nil
}

var _ fetcher.PriceSource = (*staticSource)(nil)
