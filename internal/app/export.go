package app

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"github.com/xuri/excelize/v2"

	"btc-short-alerts/internal/detector"
	"btc-short-alerts/internal/history"
	"btc-short-alerts/internal/state"
)

// Export renders the retained price history as CSV, PNG and/or XLSX.
func (a *App) Export(opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" && opts.XLSXPath == "" {
		return errors.New("at least one of --csv, --png or --xlsx must be provided")
	}

	doc := a.openStore().Load()
	samples := doc.History.Samples()
	if len(samples) == 0 {
		a.Logger.Info().Msg("no samples in history; nothing to export")
		return nil
	}
	levels := a.levels(doc)

	a.Logger.Info().Int("samples", len(samples)).Msg("exporting price history")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, samples); err != nil {
			return fmt.Errorf("export csv: %w", err)
		}
	}
	if opts.PNGPath != "" {
		if err := writeHistoryPNG(opts.PNGPath, samples, levels); err != nil {
			return fmt.Errorf("export png: %w", err)
		}
	}
	if opts.XLSXPath != "" {
		if err := writeHistoryXLSX(opts.XLSXPath, samples, levels); err != nil {
			return fmt.Errorf("export xlsx: %w", err)
		}
	}
	return nil
}

// level is a horizontal reference line on exports.
type level struct {
	Name  string
	Price decimal.Decimal
	Color drawing.Color
}

func (a *App) levels(doc state.Document) []level {
	var out []level
	if low, ok := doc.History.Low(); ok {
		out = append(out, level{Name: "Window low", Price: low, Color: chart.ColorBlue})
	}
	if doc.Position.IsOpen() {
		tp, sl, err := detector.New(a.Config.Strategy.Thresholds()).Targets(doc.Position.EntryPrice)
		out = append(out, level{Name: "Entry", Price: doc.Position.EntryPrice, Color: chart.ColorOrange})
		if err == nil {
			out = append(out,
				level{Name: "Take profit", Price: tp, Color: chart.ColorGreen},
				level{Name: "Stop loss", Price: sl, Color: chart.ColorRed},
			)
		}
	}
	return out
}

func writeHistoryCSV(path string, samples []history.Sample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"timestamp", "price_usd"}); err != nil {
		return err
	}
	for _, s := range samples {
		if err := writer.Write([]string{s.Time.UTC().Format(time.RFC3339Nano), s.Price.String()}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeHistoryPNG(path string, samples []history.Sample, levels []level) error {
	if len(samples) < 2 {
		return errors.New("at least two samples are needed to draw a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(samples))
	prices := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = s.Time
		prices[i] = s.Price.InexactFloat64()
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name:    "BTC/USD",
			XValues: x,
			YValues: prices,
			Style:   chart.Style{StrokeColor: chart.ColorBlack, StrokeWidth: 2},
		},
	}
	edges := []time.Time{x[0], x[len(x)-1]}
	for _, l := range levels {
		v := l.Price.InexactFloat64()
		series = append(series, chart.TimeSeries{
			Name:    fmt.Sprintf("%s %s", l.Name, l.Price.StringFixed(2)),
			XValues: edges,
			YValues: []float64{v, v},
			Style:   chart.Style{StrokeColor: l.Color, StrokeDashArray: []float64{6, 4}},
		})
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeMinuteValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (USD)",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func writeHistoryXLSX(path string, samples []history.Sample, levels []level) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	const historySheet, levelSheet = "History", "Levels"
	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(levelSheet); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := writeRow(f, historySheet, 1, "Timestamp (UTC)", "Price (USD)"); err != nil {
		return err
	}
	for i, s := range samples {
		price := s.Price.InexactFloat64()
		if err := writeRow(f, historySheet, i+2, s.Time.UTC().Format(time.RFC3339), price); err != nil {
			return err
		}
	}

	if err := writeRow(f, levelSheet, 1, "Level", "Price (USD)"); err != nil {
		return err
	}
	for i, l := range levels {
		if err := writeRow(f, levelSheet, i+2, l.Name, l.Price.InexactFloat64()); err != nil {
			return err
		}
	}

	for _, sheet := range []string{historySheet, levelSheet} {
		if err := f.SetCellStyle(sheet, "A1", "B1", bold); err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, "A", "B", 24); err != nil {
			return err
		}
	}

	return f.SaveAs(path)
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
