package position

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"btc-short-alerts/internal/detector"
	"btc-short-alerts/internal/history"
)

// Mode is the active variant of the position state.
type Mode string

const (
	Flat      Mode = "flat"
	ShortOpen Mode = "short_open"
)

// State is the simulated short position. EntryPrice and EntryTime are only
// meaningful while Mode is ShortOpen.
type State struct {
	Mode       Mode
	EntryPrice decimal.Decimal
	EntryTime  time.Time
}

// NewFlat returns the initial state.
func NewFlat() State {
	return State{Mode: Flat}
}

// NewShort opens a short at price.
func NewShort(price decimal.Decimal, at time.Time) (State, error) {
	if !price.IsPositive() {
		return State{}, fmt.Errorf("%w: entry price %s", detector.ErrInvalidInput, price)
	}
	return State{Mode: ShortOpen, EntryPrice: price, EntryTime: at}, nil
}

// IsOpen reports whether a short is open.
func (s State) IsOpen() bool {
	return s.Mode == ShortOpen
}

// Close returns the flat state, discarding entry fields.
func (s State) Close() State {
	return NewFlat()
}

// TransitionKind names what a Step did.
type TransitionKind string

const (
	TransitionNone  TransitionKind = "none"
	TransitionOpen  TransitionKind = "open"
	TransitionClose TransitionKind = "close"
)

// Transition describes the result of evaluating one sample. Fields not relevant
// to Kind are left zero.
type Transition struct {
	Kind TransitionKind
	From State
	To   State

	Price decimal.Decimal
	At    time.Time

	// populated while flat
	Entry detector.EntrySignal

	// populated on open
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal

	// populated while open
	Exit      detector.ExitKind
	ChangePct decimal.Decimal
	PnLPct    decimal.Decimal
}

// Changed reports whether the position moved between modes.
func (t Transition) Changed() bool {
	return t.Kind != TransitionNone
}

// Machine drives Flat <-> ShortOpen using a detector.
type Machine struct {
	detector detector.Detector
}

// NewMachine constructs a Machine.
func NewMachine(det detector.Detector) *Machine {
	return &Machine{detector: det}
}

// Detector exposes the rule set used by the machine.
func (m *Machine) Detector() detector.Detector {
	return m.detector
}

// Step evaluates sample against the current state. window is expected to already
// contain sample. The returned Transition's To field is the next state; the
// caller owns applying it.
func (m *Machine) Step(current State, sample history.Sample, window *history.Window) (Transition, error) {
	tr := Transition{
		Kind:  TransitionNone,
		From:  current,
		To:    current,
		Price: sample.Price,
		At:    sample.Time,
	}

	if current.IsOpen() {
		return m.stepOpen(tr)
	}
	return m.stepFlat(tr, window)
}

func (m *Machine) stepFlat(tr Transition, window *history.Window) (Transition, error) {
	sig, err := m.detector.Entry(tr.Price, window)
	if err != nil {
		return tr, fmt.Errorf("evaluate entry: %w", err)
	}
	tr.Entry = sig
	if !sig.Triggered {
		return tr, nil
	}

	next, err := NewShort(tr.Price, tr.At)
	if err != nil {
		return tr, err
	}
	tp, sl, err := m.detector.Targets(next.EntryPrice)
	if err != nil {
		return tr, fmt.Errorf("compute targets: %w", err)
	}

	tr.Kind = TransitionOpen
	tr.To = next
	tr.TakeProfit = tp
	tr.StopLoss = sl
	return tr, nil
}

func (m *Machine) stepOpen(tr Transition) (Transition, error) {
	entry := tr.From.EntryPrice
	kind, err := m.detector.Exit(tr.Price, entry)
	if err != nil {
		return tr, fmt.Errorf("evaluate exit: %w", err)
	}

	tr.ChangePct = detector.ChangePct(entry, tr.Price)
	tr.TakeProfit, tr.StopLoss, _ = m.detector.Targets(entry)
	if kind == detector.ExitNone {
		return tr, nil
	}

	tr.Kind = TransitionClose
	tr.To = tr.From.Close()
	tr.Exit = kind
	tr.PnLPct = detector.ShortPnLPct(entry, tr.Price)
	return tr, nil
}
