package cli

import (
	"github.com/spf13/cobra"

	"price-move-alerts/internal/app"
)

var (
	exportSession   string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
	exportAll       bool
	exportPair      string
	exportSince     string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a tracking session as CSV and/or PNG chart, or all sessions as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, err := parseDuration(exportSince)
		if err != nil {
			return err
		}
		return getApp().Export(cmd.Context(), app.ExportOptions{
			SessionID: exportSession,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
			All:       exportAll,
			Pair:      exportPair,
			Since:     since,
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSession, "session", "", "Tracking session id (see 'movewatch report')")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "Export every session as one CSV row each")
	exportCmd.Flags().StringVar(&exportPair, "pair", "", "With --all, only export sessions of this pair")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "With --all, only export sessions started within this age (e.g. 7d)")
}
