package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"price-move-alerts/internal/watchlist"
)

// SelectOptions configure the select command.
type SelectOptions struct {
	Expression string
	Uniform    UniformThresholds
	// Save stores the selection as a named configuration instead of the active watchlist.
	Save   string
	Output string
}

// PairsOptions configure the pairs listing.
type PairsOptions struct {
	Filter string
}

// Pairs prints the numbered futures symbols that selection indices refer to.
func (a *App) Pairs(ctx context.Context, opts PairsOptions) error {
	symbols, err := a.newBinance().ListSymbols(ctx)
	if err != nil {
		return err
	}

	filter := strings.ToUpper(strings.TrimSpace(opts.Filter))
	rows := make([][]string, 0, len(symbols))
	for i, symbol := range symbols {
		if filter != "" && !strings.Contains(symbol, filter) {
			continue
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), symbol})
	}
	if len(rows) == 0 {
		fmt.Fprintln(a.Out, "no symbols found")
		return nil
	}

	table := tablewriter.NewWriter(a.Out)
	table.SetHeader([]string{"#", "Pair"})
	table.SetColumnAlignment([]int{tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT})
	table.AppendBulk(rows)
	table.SetFooter([]string{"", fmt.Sprintf("%d of %d", len(rows), len(symbols))})
	table.Render()
	return nil
}

// Select resolves an index expression and writes the resulting watchlist.
func (a *App) Select(ctx context.Context, opts SelectOptions) error {
	if err := opts.Uniform.Validate(); err != nil {
		return err
	}
	pairs, testMode, err := a.resolveSelection(ctx, opts.Expression)
	if err != nil {
		return err
	}

	u := opts.Uniform
	entries := watchlist.Uniform(pairs, u.Lookback, u.UpPct, u.DownPct, u.AlertOnUp, u.AlertOnDown)

	var path string
	if opts.Save != "" {
		if path, err = a.library().Save(opts.Save, entries); err != nil {
			return err
		}
	} else {
		path = opts.Output
		if path == "" {
			path = a.Config.Watchlist.Path
		}
		if err := watchlist.Save(path, entries); err != nil {
			return err
		}
	}

	table := tablewriter.NewWriter(a.Out)
	table.SetHeader([]string{"Pair", "Lookback (s)", "Up %", "Down %", "Alert up", "Alert down"})
	for _, e := range entries {
		table.Append([]string{
			e.Pair,
			strconv.FormatFloat(e.LookbackSeconds, 'f', -1, 64),
			strconv.FormatFloat(e.UpThresholdPct, 'f', -1, 64),
			strconv.FormatFloat(e.DownThresholdPct, 'f', -1, 64),
			strconv.FormatBool(*e.AlertOnUp),
			strconv.FormatBool(*e.AlertOnDown),
		})
	}
	table.Render()

	if testMode {
		fmt.Fprintf(a.Out, "test pairs written to %s; run with --test to use synthetic prices\n", path)
		return nil
	}
	fmt.Fprintf(a.Out, "%d pairs written to %s\n", len(entries), path)
	return nil
}

// Configs lists the saved configurations.
func (a *App) Configs(_ context.Context) error {
	saved, err := a.library().List()
	if err != nil {
		return err
	}
	if len(saved) == 0 {
		fmt.Fprintf(a.Out, "no saved configurations in %s\n", a.Config.Watchlist.SavesDir)
		return nil
	}

	table := tablewriter.NewWriter(a.Out)
	table.SetHeader([]string{"#", "Name", "Pairs", "Status"})
	for i, info := range saved {
		status, pairs := "ok", strconv.Itoa(info.Pairs)
		if info.Corrupt {
			status, pairs = "corrupted", "-"
		}
		table.Append([]string{strconv.Itoa(i + 1), info.Name, pairs, status})
	}
	corrupt := lo.CountBy(saved, func(info watchlist.SavedInfo) bool { return info.Corrupt })
	table.SetFooter([]string{"", fmt.Sprintf("%d saved", len(saved)), "", fmt.Sprintf("%d corrupted", corrupt)})
	table.Render()
	return nil
}
