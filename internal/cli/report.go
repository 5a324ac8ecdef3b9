package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"price-move-alerts/internal/app"
)

var (
	reportPair   string
	reportSince  string
	reportLimit  int
	reportAlerts bool

	statsPair  string
	statsSince string

	pruneOlderThan string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Display finished tracking sessions or recent alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if reportLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		since, err := parseDuration(reportSince)
		if err != nil {
			return err
		}
		return getApp().Report(cmd.Context(), app.ReportOptions{
			Pair:   reportPair,
			Since:  since,
			Limit:  reportLimit,
			Alerts: reportAlerts,
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate alert outcomes per pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, err := parseDuration(statsSince)
		if err != nil {
			return err
		}
		return getApp().Stats(cmd.Context(), app.StatsOptions{Pair: statsPair, Since: since})
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete alert records older than a given age",
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, err := parseDuration(pruneOlderThan)
		if err != nil {
			return err
		}
		return getApp().Prune(cmd.Context(), olderThan)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportPair, "pair", "", "Only show sessions of this pair")
	reportCmd.Flags().StringVar(&reportSince, "since", "", "Only show sessions started within this age (e.g. 12h, 7d)")
	reportCmd.Flags().IntVar(&reportLimit, "limit", 20, "Number of rows to display")
	reportCmd.Flags().BoolVar(&reportAlerts, "alerts", false, "Show raw alert records instead of sessions")

	statsCmd.Flags().StringVar(&statsPair, "pair", "", "Only aggregate this pair")
	statsCmd.Flags().StringVar(&statsSince, "since", "", "Only include sessions started within this age (e.g. 7d)")

	pruneCmd.Flags().StringVar(&pruneOlderThan, "older-than", "30d", "Age of the oldest alert record to keep")
}
