package alerting

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"btc-short-alerts/internal/detector"
)

// EntrySubject is the email subject of an entry alert.
func EntrySubject(alert EntryAlert) string {
	return fmt.Sprintf("🚨 BTC SHORT SIGNAL - %s%% Spike", alert.SpikePct.StringFixed(2))
}

// ExitSubject is the email subject of an exit alert.
func ExitSubject(alert ExitAlert) string {
	if alert.Kind == detector.ExitTakeProfit {
		return "✅ TAKE PROFIT"
	}
	return "🛑 STOP LOSS"
}

func renderEntryText(alert EntryAlert) string {
	b := strings.Builder{}
	b.WriteString("[BTC Short Entry Signal]\n")
	b.WriteString(fmt.Sprintf("Time: %s UTC\n", alert.At.UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("Spike: %s%% (threshold %s%%)\n", alert.SpikePct.StringFixed(2), alert.Thresholds.EntrySpikePct.String()))
	b.WriteString(fmt.Sprintf("6h Low: %s\n", formatUSD(alert.Low)))
	b.WriteString(fmt.Sprintf("Current: %s\n", formatUSD(alert.CurrentPrice)))
	b.WriteString(fmt.Sprintf("Entry: %s\n", formatUSD(alert.EntryPrice)))
	b.WriteString(fmt.Sprintf("Take profit: %s (-%s%%)\n", formatUSD(alert.TakeProfit), alert.Thresholds.TakeProfitPct.String()))
	b.WriteString(fmt.Sprintf("Stop loss: %s (+%s%%)\n", formatUSD(alert.StopLoss), alert.Thresholds.StopLossPct.String()))
	return b.String()
}

func renderExitText(alert ExitAlert) string {
	b := strings.Builder{}
	b.WriteString(fmt.Sprintf("[BTC Short %s]\n", alert.Kind.String()))
	b.WriteString(fmt.Sprintf("Time: %s UTC\n", alert.At.UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("Entry: %s\n", formatUSD(alert.EntryPrice)))
	b.WriteString(fmt.Sprintf("Exit: %s\n", formatUSD(alert.ExitPrice)))
	b.WriteString(fmt.Sprintf("P/L: %s%%\n", formatSigned(alert.PnLPct)))
	return b.String()
}

var (
	entryHTML = template.Must(template.New("entry").Parse(`<html>
  <body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <h2 style="color: #d32f2f;">🚨 Bitcoin Short Entry Signal</h2>
    <div style="background-color: #fff3cd; padding: 15px; border-left: 4px solid #ffc107; margin: 20px 0;">
      <h3 style="margin-top: 0;">Signal Details</h3>
      <p><strong>Spike Detected:</strong> {{.Spike}}%</p>
      <p><strong>6-Hour Low:</strong> {{.Low}}</p>
      <p><strong>Current Price:</strong> {{.Current}}</p>
    </div>
    <div style="background-color: #e7f3ff; padding: 15px; border-left: 4px solid #2196F3; margin: 20px 0;">
      <h3 style="margin-top: 0;">Position Details</h3>
      <p><strong>Suggested Entry Price:</strong> {{.Entry}}</p>
      <p><strong>Take Profit Target:</strong> {{.TakeProfit}} (-{{.TakeProfitPct}}%)</p>
      <p><strong>Stop Loss Target:</strong> {{.StopLoss}} (+{{.StopLossPct}}%)</p>
    </div>
    <p style="color: #666; font-size: 12px; margin-top: 30px;">Automated alert from btcwatcher.</p>
  </body>
</html>
`))

	exitHTML = template.Must(template.New("exit").Parse(`<html>
  <body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <h2 style="color: {{.Color}};">{{.Title}} Triggered</h2>
    <div style="background-color: {{.Background}}; padding: 15px; border-left: 4px solid {{.Color}}; margin: 20px 0;">
      <h3 style="margin-top: 0;">Position Closed</h3>
      <p><strong>Entry Price:</strong> {{.Entry}}</p>
      <p><strong>Exit Price:</strong> {{.Exit}}</p>
      <p><strong>P/L Percentage:</strong> <span style="color: {{.Color}}; font-weight: bold;">{{.PnL}}%</span></p>
    </div>
    <p style="color: #666; font-size: 12px; margin-top: 30px;">Automated alert from btcwatcher.</p>
  </body>
</html>
`))
)

func renderEntryHTML(alert EntryAlert) (string, error) {
	var buf bytes.Buffer
	err := entryHTML.Execute(&buf, map[string]string{
		"Spike":         alert.SpikePct.StringFixed(2),
		"Low":           formatUSD(alert.Low),
		"Current":       formatUSD(alert.CurrentPrice),
		"Entry":         formatUSD(alert.EntryPrice),
		"TakeProfit":    formatUSD(alert.TakeProfit),
		"TakeProfitPct": alert.Thresholds.TakeProfitPct.String(),
		"StopLoss":      formatUSD(alert.StopLoss),
		"StopLossPct":   alert.Thresholds.StopLossPct.String(),
	})
	if err != nil {
		return "", fmt.Errorf("render entry email: %w", err)
	}
	return buf.String(), nil
}

func renderExitHTML(alert ExitAlert) (string, error) {
	color, background := template.CSS("#f44336"), template.CSS("#ffebee")
	title := "🛑 " + string(alert.Kind)
	if alert.Kind == detector.ExitTakeProfit {
		color, background = "#4caf50", "#e8f5e9"
		title = "✅ " + string(alert.Kind)
	}

	var buf bytes.Buffer
	err := exitHTML.Execute(&buf, map[string]any{
		"Color":      color,
		"Background": background,
		"Title":      title,
		"Entry":      formatUSD(alert.EntryPrice),
		"Exit":       formatUSD(alert.ExitPrice),
		"PnL":        formatSigned(alert.PnLPct),
	})
	if err != nil {
		return "", fmt.Errorf("render exit email: %w", err)
	}
	return buf.String(), nil
}

// formatUSD renders d as $64,000.12.
func formatUSD(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}

	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return sign + "$" + grouped.String() + "." + frac
}

func formatSigned(d decimal.Decimal) string {
	if d.IsNegative() {
		return d.StringFixed(2)
	}
	return "+" + d.StringFixed(2)
}
