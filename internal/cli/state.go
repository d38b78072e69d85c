package cli

import (
	"github.com/spf13/cobra"

	"btc-short-alerts/internal/app"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the persisted position and price history summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowState(cmd.OutOrStdout())
	},
}

var (
	resetAll bool
	resetYes bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "关闭当前空单,或使用 --all 清空全部状态",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ResetOptions{All: resetAll, Yes: resetYes}
		return getApp().Reset(opts, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "Also erase the retained price history")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Skip the confirmation prompt")
}
