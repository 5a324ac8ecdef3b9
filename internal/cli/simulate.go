package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"price-move-alerts/internal/app"
)

var (
	simulatePair      string
	simulateFrom      float64
	simulateTo        float64
	simulateThreshold float64
	simulateLookback  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次价格波动并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateFrom <= 0 || simulateTo <= 0 {
			return errors.New("--from 与 --to 必须大于 0")
		}
		lookback, err := parseDuration(simulateLookback)
		if err != nil {
			return err
		}

		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Pair:         simulatePair,
			From:         decimal.NewFromFloat(simulateFrom),
			To:           decimal.NewFromFloat(simulateTo),
			ThresholdPct: decimal.NewFromFloat(simulateThreshold),
			Lookback:     lookback,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePair, "pair", "BTCUSDT", "交易对")
	simulateCmd.Flags().Float64Var(&simulateFrom, "from", 0, "窗口起点价格")
	simulateCmd.Flags().Float64Var(&simulateTo, "to", 0, "当前价格")
	simulateCmd.Flags().Float64Var(&simulateThreshold, "threshold", 2, "涨跌阈值（百分比）")
	simulateCmd.Flags().StringVar(&simulateLookback, "lookback", "5m", "回看窗口")
}
