package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"btc-short-alerts/internal/detector"
	"btc-short-alerts/internal/position"
	"btc-short-alerts/internal/state"
)

// ShowState prints the persisted document without modifying it.
func (a *App) ShowState(out io.Writer) error {
	doc := a.openStore().Load()
	det := detector.New(a.Config.Strategy.Thresholds())

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "State file\t%s\n", a.Config.State.Path)

	if doc.Position.IsOpen() {
		tp, sl, _ := det.Targets(doc.Position.EntryPrice)
		fmt.Fprintf(writer, "Position\tSHORT OPEN\n")
		fmt.Fprintf(writer, "Entry price\t%s\n", doc.Position.EntryPrice.StringFixed(2))
		fmt.Fprintf(writer, "Entry time (UTC)\t%s\n", formatTime(doc.Position.EntryTime))
		fmt.Fprintf(writer, "Take profit\t%s\n", tp.StringFixed(2))
		fmt.Fprintf(writer, "Stop loss\t%s\n", sl.StringFixed(2))
	} else {
		fmt.Fprintf(writer, "Position\tFLAT\n")
	}

	fmt.Fprintf(writer, "History samples\t%d\n", doc.History.Len())
	if oldest, ok := doc.History.Oldest(); ok {
		newest, _ := doc.History.Newest()
		low, _ := doc.History.Low()
		fmt.Fprintf(writer, "Oldest (UTC)\t%s\n", formatTime(oldest.Time))
		fmt.Fprintf(writer, "Newest (UTC)\t%s\n", formatTime(newest.Time))
		fmt.Fprintf(writer, "Range\t%s of %s\n", doc.History.Span().Round(time.Second), doc.History.Lookback())
		fmt.Fprintf(writer, "Window low\t%s\n", low.StringFixed(2))
		fmt.Fprintf(writer, "Last price\t%s\n", newest.Price.StringFixed(2))
		if sig, err := det.Entry(newest.Price, doc.History); err == nil && sig.SpikePct.Valid {
			fmt.Fprintf(writer, "Spike vs low\t%s%% (entry at %s%%)\n", sig.SpikePct.Decimal.StringFixed(2), det.Thresholds().EntrySpikePct.String())
		}
	}

	return writer.Flush()
}

// Reset closes an open position, or with All wipes the document to defaults.
// Unless Yes is set the user must type "yes" on in.
func (a *App) Reset(opts ResetOptions, in io.Reader, out io.Writer) error {
	store := a.openStore()
	doc := store.Load()

	action := "close the open position (history is kept)"
	if opts.All {
		action = "erase the position and all price history"
	} else if !doc.Position.IsOpen() {
		fmt.Fprintln(out, "no open position; nothing to reset")
		return nil
	}

	if !opts.Yes {
		fmt.Fprintf(out, "This will %s in %s.\nType 'yes' to confirm: ", action, store.Path())
		answer, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read confirmation: %w", err)
		}
		if !strings.EqualFold(strings.TrimSpace(answer), "yes") {
			fmt.Fprintln(out, "aborted")
			return nil
		}
	}

	if opts.All {
		doc = state.NewDocument(a.Config.Strategy.Lookback)
	} else {
		doc.Position = position.NewFlat()
	}
	if err := store.Save(doc); err != nil {
		return err
	}

	a.Logger.Info().Bool("all", opts.All).Str("path", store.Path()).Msg("state reset")
	fmt.Fprintln(out, "state reset")
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(time.RFC3339)
}
