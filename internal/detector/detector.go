package detector

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"btc-short-alerts/internal/history"
)

// ErrInvalidInput is returned when a price used as input or divisor is not positive.
var ErrInvalidInput = errors.New("detector: invalid input")

var hundred = decimal.NewFromInt(100)

// ExitKind classifies an exit decision for an open short.
type ExitKind string

const (
	ExitNone       ExitKind = ""
	ExitTakeProfit ExitKind = "TP"
	ExitStopLoss   ExitKind = "SL"
)

// String renders the kind for logs and alerts.
func (k ExitKind) String() string {
	switch k {
	case ExitTakeProfit:
		return "TAKE PROFIT"
	case ExitStopLoss:
		return "STOP LOSS"
	default:
		return "NONE"
	}
}

// Thresholds holds the percentage triggers of the signal rule.
type Thresholds struct {
	EntrySpikePct decimal.Decimal
	TakeProfitPct decimal.Decimal
	StopLossPct   decimal.Decimal
}

// DefaultThresholds returns the 3.0% entry / 2.5% TP / 2.5% SL rule.
func DefaultThresholds() Thresholds {
	return Thresholds{
		EntrySpikePct: decimal.RequireFromString("3.0"),
		TakeProfitPct: decimal.RequireFromString("2.5"),
		StopLossPct:   decimal.RequireFromString("2.5"),
	}
}

// Validate rejects non-positive thresholds.
func (t Thresholds) Validate() error {
	if !t.EntrySpikePct.IsPositive() {
		return fmt.Errorf("%w: entry spike threshold must be positive", ErrInvalidInput)
	}
	if !t.TakeProfitPct.IsPositive() || t.TakeProfitPct.GreaterThanOrEqual(hundred) {
		return fmt.Errorf("%w: take profit threshold must be in (0, 100)", ErrInvalidInput)
	}
	if !t.StopLossPct.IsPositive() {
		return fmt.Errorf("%w: stop loss threshold must be positive", ErrInvalidInput)
	}
	return nil
}

// EntrySignal is the outcome of evaluating the spike rule. Low and SpikePct are
// only valid when the window held at least one sample.
type EntrySignal struct {
	Triggered bool
	Low       decimal.NullDecimal
	SpikePct  decimal.NullDecimal
}

// Detector evaluates entry and exit conditions. It holds no state beyond its
// thresholds.
type Detector struct {
	thresholds Thresholds
}

// New constructs a Detector.
func New(thresholds Thresholds) Detector {
	return Detector{thresholds: thresholds}
}

// Thresholds returns the configured triggers.
func (d Detector) Thresholds() Thresholds {
	return d.thresholds
}

// Entry reports whether current is a spike of at least EntrySpikePct above the
// window's low.
func (d Detector) Entry(current decimal.Decimal, window *history.Window) (EntrySignal, error) {
	if !current.IsPositive() {
		return EntrySignal{}, fmt.Errorf("%w: current price %s", ErrInvalidInput, current)
	}
	if window == nil {
		return EntrySignal{}, nil
	}

	low, ok := window.Low()
	if !ok {
		return EntrySignal{}, nil
	}
	if !low.IsPositive() {
		return EntrySignal{}, fmt.Errorf("%w: window low %s", ErrInvalidInput, low)
	}

	spike := ChangePct(low, current)
	return EntrySignal{
		Triggered: spike.GreaterThanOrEqual(d.thresholds.EntrySpikePct),
		Low:       decimal.NewNullDecimal(low),
		SpikePct:  decimal.NewNullDecimal(spike),
	}, nil
}

// Exit classifies current against the entry price of an open short. Both
// boundaries are inclusive.
func (d Detector) Exit(current, entry decimal.Decimal) (ExitKind, error) {
	if !current.IsPositive() {
		return ExitNone, fmt.Errorf("%w: current price %s", ErrInvalidInput, current)
	}
	if !entry.IsPositive() {
		return ExitNone, fmt.Errorf("%w: entry price %s", ErrInvalidInput, entry)
	}

	change := ChangePct(entry, current)
	switch {
	case change.LessThanOrEqual(d.thresholds.TakeProfitPct.Neg()):
		return ExitTakeProfit, nil
	case change.GreaterThanOrEqual(d.thresholds.StopLossPct):
		return ExitStopLoss, nil
	default:
		return ExitNone, nil
	}
}

// Targets derives the take-profit and stop-loss prices for an entry.
func (d Detector) Targets(entry decimal.Decimal) (takeProfit, stopLoss decimal.Decimal, err error) {
	if !entry.IsPositive() {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("%w: entry price %s", ErrInvalidInput, entry)
	}
	one := decimal.NewFromInt(1)
	takeProfit = entry.Mul(one.Sub(d.thresholds.TakeProfitPct.Div(hundred)))
	stopLoss = entry.Mul(one.Add(d.thresholds.StopLossPct.Div(hundred)))
	return takeProfit, stopLoss, nil
}

// ChangePct returns (to-from)/from*100. from must be positive.
func ChangePct(from, to decimal.Decimal) decimal.Decimal {
	return to.Sub(from).Div(from).Mul(hundred)
}

// ShortPnLPct is the realized return of a short opened at entry and closed at
// exit: positive when the price fell.
func ShortPnLPct(entry, exit decimal.Decimal) decimal.Decimal {
	return ChangePct(entry, exit).Neg()
}
