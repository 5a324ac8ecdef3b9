package cli

import (
	"github.com/spf13/cobra"

	"price-move-alerts/internal/app"
)

var (
	pairsFilter string

	selectSave    string
	selectOutput  string
	selectUniform uniformFlags
)

var pairsCmd = &cobra.Command{
	Use:   "pairs",
	Short: "List tradable futures pairs with their selection indices",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Pairs(cmd.Context(), app.PairsOptions{Filter: pairsFilter})
	},
}

var selectCmd = &cobra.Command{
	Use:   "select <expression>",
	Short: "Write a watchlist from an index expression such as 1,3,5-8",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uniform, err := selectUniform.thresholds()
		if err != nil {
			return err
		}
		return getApp().Select(cmd.Context(), app.SelectOptions{
			Expression: args[0],
			Uniform:    uniform,
			Save:       selectSave,
			Output:     selectOutput,
		})
	},
}

var configsCmd = &cobra.Command{
	Use:   "configs",
	Short: "List saved configurations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Configs(cmd.Context())
	},
}

func init() {
	pairsCmd.Flags().StringVar(&pairsFilter, "filter", "", "Only show pairs containing this text")

	selectCmd.Flags().StringVar(&selectSave, "save", "", "Save as a named configuration instead of the watchlist")
	selectCmd.Flags().StringVar(&selectOutput, "output", "", "Watchlist path to write (defaults to config)")
	selectUniform.register(selectCmd)
}
