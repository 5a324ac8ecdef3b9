package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/xhit/go-str2duration/v2"

	"price-move-alerts/internal/app"
)

var (
	runSaved     string
	runWatchlist string
	runPairs     string
	runTest      bool
)

// uniformFlags are shared by run and select for expression-based selections.
type uniformFlags struct {
	lookback string
	up       float64
	down     float64
	noUp     bool
	noDown   bool
}

var runUniform uniformFlags

func (f *uniformFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.lookback, "lookback", "5m", "Lookback window for selected pairs (e.g. 90s, 5m, 1h)")
	cmd.Flags().Float64Var(&f.up, "up", 2, "Upward threshold in percent")
	cmd.Flags().Float64Var(&f.down, "down", 2, "Downward threshold in percent")
	cmd.Flags().BoolVar(&f.noUp, "no-up", false, "Do not alert on upward moves")
	cmd.Flags().BoolVar(&f.noDown, "no-down", false, "Do not alert on downward moves")
}

func (f *uniformFlags) thresholds() (app.UniformThresholds, error) {
	lookback, err := parseDuration(f.lookback)
	if err != nil {
		return app.UniformThresholds{}, err
	}
	return app.UniformThresholds{
		Lookback:    lookback,
		UpPct:       f.up,
		DownPct:     f.down,
		AlertOnUp:   !f.noUp,
		AlertOnDown: !f.noDown,
	}, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring service",
	Long: `Run polls prices for the chosen pairs on every tick, raises alerts when a
pair moves past its threshold within its lookback window and tracks the
price for a while after each alert.

Pairs come from --pairs (an index expression such as "1,3,5-8" or "t"),
from a saved configuration (--saved) or from the watchlist file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		set := 0
		for _, v := range []string{runSaved, runWatchlist, runPairs} {
			if v != "" {
				set++
			}
		}
		if set > 1 {
			return errors.New("use only one of --saved, --watchlist and --pairs")
		}

		opts := app.RunOptions{
			Saved:     runSaved,
			Watchlist: runWatchlist,
			Selection: runPairs,
			TestMode:  runTest,
		}
		if runPairs != "" {
			uniform, err := runUniform.thresholds()
			if err != nil {
				return err
			}
			opts.Uniform = uniform
		}
		return getApp().Run(cmd.Context(), opts)
	},
}

func init() {
	runCmd.Flags().StringVar(&runSaved, "saved", "", "Name of a saved configuration to monitor")
	runCmd.Flags().StringVar(&runWatchlist, "watchlist", "", "Path to a watchlist file (defaults to config)")
	runCmd.Flags().StringVar(&runPairs, "pairs", "", "Index expression selecting pairs from 'movewatch pairs'")
	runCmd.Flags().BoolVar(&runTest, "test", false, "Use synthetic prices instead of the exchange")
	runUniform.register(runCmd)
}

// parseDuration accepts Go durations plus day and week units.
func parseDuration(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := str2duration.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", v, err)
	}
	return d, nil
}
