package cli

import (
	"github.com/spf13/cobra"

	"btc-short-alerts/internal/app"
)

var (
	exportCSVPath  string
	exportPNGPath  string
	exportXLSXPath string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the retained price history as CSV, PNG chart and/or XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			CSVPath:  exportCSVPath,
			PNGPath:  exportPNGPath,
			XLSXPath: exportXLSXPath,
		}
		return getApp().Export(opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportXLSXPath, "xlsx", "", "Path to write XLSX workbook")
}
