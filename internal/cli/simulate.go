package cli

import (
	"github.com/spf13/cobra"

	"btc-short-alerts/internal/app"
)

var (
	simulateKind  string
	simulatePrice string
	simulateEntry string
	simulateLow   string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次入场或平仓并通过已配置的渠道发送告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{
			Kind:  simulateKind,
			Price: simulatePrice,
			Entry: simulateEntry,
			Low:   simulateLow,
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateKind, "kind", "entry", "告警类型: entry, tp 或 sl")
	simulateCmd.Flags().StringVar(&simulatePrice, "price", "", "当前 BTC/USD 价格")
	simulateCmd.Flags().StringVar(&simulateEntry, "entry", "", "空单入场价 (tp/sl 必填)")
	simulateCmd.Flags().StringVar(&simulateLow, "low", "", "窗口最低价 (entry 可选, 默认按阈值推算)")
}
