package app

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"price-move-alerts/internal/storage"
	"price-move-alerts/internal/tracking"
)

// Report prints finished tracking sessions, newest first.
func (a *App) Report(ctx context.Context, opts ReportOptions) error {
	repo, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.Alerts {
		return a.reportAlerts(ctx, repo, opts.Limit)
	}

	summaries, err := repo.ListSummaries(ctx, a.summaryFilter(opts.Pair, opts.Since, opts.Limit))
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Fprintln(a.Out, "no tracking sessions found")
		return nil
	}

	table := tablewriter.NewWriter(a.Out)
	table.SetHeader([]string{"Session", "Dir", "Trigger %", "Start", "Close", "Final %", "Max %", "Min %", "Vol", "Trend", "Points"})
	for _, s := range summaries {
		table.Append([]string{
			s.SessionID,
			string(s.Direction),
			formatDecimal(s.TriggerChangePct, 2),
			s.StartPrice.String(),
			s.ClosePrice.String(),
			formatDecimal(s.FinalChangePct, 2),
			formatDecimal(s.MaxChangePct, 2),
			formatDecimal(s.MinChangePct, 2),
			strconv.FormatFloat(s.Volatility, 'f', 3, 64),
			s.Trend,
			strconv.Itoa(s.DataPoints),
		})
	}
	table.Render()
	return nil
}

func (a *App) reportAlerts(ctx context.Context, repo storage.Repository, limit int) error {
	alerts, err := repo.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(a.Out, "no alerts found")
		return nil
	}

	table := tablewriter.NewWriter(a.Out)
	table.SetHeader([]string{"Time (UTC)", "Pair", "Dir", "Change %", "Threshold %", "Price", "Window", "Channels"})
	for _, rec := range alerts {
		table.Append([]string{
			rec.TriggeredAt.UTC().Format(time.RFC3339),
			rec.Pair,
			rec.Direction,
			formatDecimal(rec.ChangePct, 2),
			formatDecimal(rec.ThresholdPct, 2),
			rec.TriggerPrice.String(),
			rec.Lookback.String(),
			strings.Join(rec.Channels, ","),
		})
	}
	table.Render()
	return nil
}

// Stats prints per-pair aggregates of finished sessions.
func (a *App) Stats(ctx context.Context, opts StatsOptions) error {
	repo, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	summaries, err := repo.ListSummaries(ctx, a.summaryFilter(opts.Pair, opts.Since, 0))
	if err != nil {
		return err
	}

	groups := tracking.GroupByPair(summaries)
	if pair := strings.ToUpper(strings.TrimSpace(opts.Pair)); pair != "" {
		groups = map[string][]tracking.Summary{pair: groups[pair]}
	}
	pairs := lo.Keys(groups)
	sort.Strings(pairs)

	table := tablewriter.NewWriter(a.Out)
	table.SetHeader([]string{"Pair", "Alerts", "Up", "Down", "Avg trigger %", "Completed", "Avg final %", "Best %", "Worst %"})
	for _, pair := range pairs {
		st := tracking.Aggregate(pair, groups[pair])
		row := []string{
			st.Pair,
			strconv.Itoa(st.Total),
			strconv.Itoa(st.Up),
			strconv.Itoa(st.Down),
			strconv.FormatFloat(st.AvgTriggerPct, 'f', 2, 64),
			strconv.Itoa(st.Completed),
			"-", "-", "-",
		}
		if st.HasFinal() {
			row[6] = strconv.FormatFloat(st.AvgFinalPct, 'f', 2, 64)
			row[7] = strconv.FormatFloat(st.BestFinalPct, 'f', 2, 64)
			row[8] = strconv.FormatFloat(st.WorstFinalPct, 'f', 2, 64)
		}
		table.Append(row)
	}
	table.Render()
	return nil
}

// Prune deletes alert records older than the given age.
func (a *App) Prune(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return fmt.Errorf("--older-than must be greater than zero")
	}
	repo, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	cutoff := time.Now().UTC().Add(-olderThan)
	if err := repo.DeleteAlertsBefore(ctx, cutoff); err != nil {
		return err
	}
	a.Logger.Info().Time("cutoff", cutoff).Msg("old alert records pruned")
	return nil
}

func (a *App) summaryFilter(pair string, since time.Duration, limit int) storage.SummaryFilter {
	filter := storage.SummaryFilter{Pair: strings.ToUpper(strings.TrimSpace(pair)), Limit: limit}
	if since > 0 {
		filter.Since = time.Now().UTC().Add(-since)
	}
	return filter
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
