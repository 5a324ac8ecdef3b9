package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"price-move-alerts/internal/fetcher"
	"price-move-alerts/internal/market"
	"price-move-alerts/internal/selection"
	"price-move-alerts/internal/watchlist"
)

// monitor is the resolved input of one run.
type monitor struct {
	Configs  []market.WindowConfig
	Source   fetcher.PriceSource
	TestMode bool
	Origin   string
}

func (a *App) resolveMonitor(ctx context.Context, opts RunOptions) (monitor, error) {
	var (
		result watchlist.Result
		origin string
		test   = opts.TestMode
	)

	switch {
	case opts.Selection != "":
		pairs, testMode, err := a.resolveSelection(ctx, opts.Selection)
		if err != nil {
			return monitor{}, err
		}
		if err := opts.Uniform.Validate(); err != nil {
			return monitor{}, err
		}
		u := opts.Uniform
		result = watchlist.Result{Entries: watchlist.Uniform(pairs, u.Lookback, u.UpPct, u.DownPct, u.AlertOnUp, u.AlertOnDown)}
		origin = "selection " + opts.Selection
		test = test || testMode
	case opts.Saved != "":
		res, err := a.library().Load(opts.Saved)
		if err != nil {
			return monitor{}, fmt.Errorf("load saved configuration %q: %w", opts.Saved, err)
		}
		result, origin = res, "saved "+opts.Saved
	default:
		path := opts.Watchlist
		if path == "" {
			path = a.Config.Watchlist.Path
		}
		res, err := watchlist.Load(path)
		if errors.Is(err, os.ErrNotExist) {
			return monitor{}, fmt.Errorf("watchlist %s not found; create one with `movewatch select`", path)
		}
		if err != nil {
			return monitor{}, err
		}
		result, origin = res, path
	}

	for _, fault := range result.Rejected {
		a.Logger.Warn().Err(fault).Str("origin", origin).Msg("watchlist entry rejected")
	}

	configs := result.WindowConfigs()
	if len(configs) == 0 {
		return monitor{}, fmt.Errorf("no enabled pairs in %s", origin)
	}

	pairs := make([]string, 0, len(configs))
	for _, cfg := range configs {
		pairs = append(pairs, cfg.Pair)
	}

	var source fetcher.PriceSource
	if test {
		source = fetcher.NewSynthetic(pairs)
	} else {
		source = a.newBinance()
	}

	return monitor{Configs: configs, Source: source, TestMode: test, Origin: origin}, nil
}

// resolveSelection maps an index expression to exchange symbols. The test
// token resolves without contacting the exchange.
func (a *App) resolveSelection(ctx context.Context, expr string) ([]string, bool, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, false, selection.ErrEmpty
	}
	if strings.EqualFold(strings.TrimSpace(expr), selection.TestToken) {
		return append([]string(nil), selection.TestPairs...), true, nil
	}

	symbols, err := a.newBinance().ListSymbols(ctx)
	if err != nil {
		return nil, false, err
	}
	sel, err := selection.Parse(expr, len(symbols))
	if err != nil {
		return nil, false, err
	}
	pairs, err := sel.Resolve(symbols)
	return pairs, false, err
}
