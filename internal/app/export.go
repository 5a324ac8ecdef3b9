package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"price-move-alerts/internal/storage"
	"price-move-alerts/internal/tracking"
)

// Export renders the price path of one tracking session as CSV and/or PNG.
// Without explicit paths both files are written to export.dir. With All set it
// writes every stored session as one CSV row instead.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.All {
		return a.exportSessions(ctx, opts)
	}
	if opts.SessionID == "" {
		return errors.New("--session or --all is required")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		base := filepath.Join(a.Config.Export.Dir, opts.SessionID)
		opts.CSVPath, opts.PNGPath = base+".csv", base+".png"
	}
	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	repo, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	summary, err := repo.GetSummary(ctx, opts.SessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("tracking session %s not found", opts.SessionID)
	}
	if err != nil {
		return err
	}
	if len(summary.Points) == 0 {
		a.Logger.Info().Str("session", summary.SessionID).Msg("session has no price points")
		return nil
	}

	points := downsamplePoints(summary.Points, opts.MaxPoints)
	a.Logger.Info().Int("total", len(summary.Points)).Int("exported", len(points)).Str("session", summary.SessionID).Msg("exporting session")

	if opts.CSVPath != "" {
		if err := writePointsCSV(opts.CSVPath, summary, points); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "csv written to %s\n", opts.CSVPath)
	}
	if opts.PNGPath != "" {
		if err := writePointsPNG(opts.PNGPath, summary, points); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "png written to %s\n", opts.PNGPath)
	}
	return nil
}

// exportSessions writes one CSV row per stored tracking session.
func (a *App) exportSessions(ctx context.Context, opts ExportOptions) error {
	if opts.SessionID != "" {
		return errors.New("--all cannot be combined with --session")
	}
	if opts.PNGPath != "" {
		return errors.New("--png is only available for a single session")
	}
	if opts.CSVPath == "" {
		opts.CSVPath = filepath.Join(a.Config.Export.Dir, "sessions.csv")
	}

	repo, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	summaries, err := repo.ListSummaries(ctx, a.summaryFilter(opts.Pair, opts.Since, 0))
	if err != nil {
		return err
	}
	if err := writeSessionsCSV(opts.CSVPath, summaries); err != nil {
		return err
	}
	a.Logger.Info().Int("sessions", len(summaries)).Str("path", opts.CSVPath).Msg("exported sessions")
	fmt.Fprintf(a.Out, "%d sessions written to %s\n", len(summaries), opts.CSVPath)
	return nil
}

func writeSessionsCSV(path string, summaries []tracking.Summary) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"session_id", "pair", "direction", "trigger_change_pct", "threshold_pct", "lookback_seconds",
		"start_time", "closed_at", "start_price", "min_price", "max_price", "close_price", "avg_price",
		"final_change_pct", "max_change_pct", "min_change_pct", "volatility", "variance", "trend", "data_points",
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, s := range summaries {
		record := []string{
			s.SessionID,
			s.Pair,
			string(s.Direction),
			s.TriggerChangePct.StringFixed(4),
			s.ThresholdPct.String(),
			strconv.FormatFloat(s.Lookback.Seconds(), 'f', -1, 64),
			s.StartTime.UTC().Format(time.RFC3339),
			s.ClosedAt.UTC().Format(time.RFC3339),
			s.StartPrice.String(),
			s.MinPrice.String(),
			s.MaxPrice.String(),
			s.ClosePrice.String(),
			s.AvgPrice.String(),
			s.FinalChangePct.StringFixed(4),
			s.MaxChangePct.StringFixed(4),
			s.MinChangePct.StringFixed(4),
			strconv.FormatFloat(s.Volatility, 'f', 6, 64),
			strconv.FormatFloat(s.Variance, 'f', 6, 64),
			s.Trend,
			strconv.Itoa(s.DataPoints),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func downsamplePoints(points []tracking.PricePoint, max int) []tracking.PricePoint {
	if max <= 1 || len(points) <= max {
		return points
	}

	result := make([]tracking.PricePoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writePointsCSV(path string, summary tracking.Summary, points []tracking.PricePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"time", "price", "change_pct"}); err != nil {
		return err
	}
	for _, p := range points {
		record := []string{
			p.Time.UTC().Format(time.RFC3339),
			p.Price.String(),
			changeFrom(summary, p).StringFixed(4),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writePointsPNG(path string, summary tracking.Summary, points []tracking.PricePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	prices := make([]float64, len(points))
	changes := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Time
		prices[i] = p.Price.InexactFloat64()
		changes[i] = changeFrom(summary, p).InexactFloat64()
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s %s %s%%", summary.Pair, summary.Direction, summary.TriggerChangePct.StringFixed(2)),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Price",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.4f")
			},
		},
		YAxisSecondary: chart.YAxis{
			Name: "Change (%)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    summary.Pair,
				XValues: x,
				YValues: prices,
			},
			chart.TimeSeries{
				Name:    "Change %",
				XValues: x,
				YValues: changes,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func changeFrom(summary tracking.Summary, p tracking.PricePoint) decimal.Decimal {
	if summary.StartPrice.IsZero() {
		return decimal.Zero
	}
	return p.Price.Sub(summary.StartPrice).Div(summary.StartPrice).Shift(2)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
