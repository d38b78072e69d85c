package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"btc-short-alerts/internal/detector"
)

// EntryAlert 描述一次做空入场信号。
type EntryAlert struct {
	CurrentPrice decimal.Decimal
	Low          decimal.Decimal
	SpikePct     decimal.Decimal
	EntryPrice   decimal.Decimal
	TakeProfit   decimal.Decimal
	StopLoss     decimal.Decimal
	Thresholds   detector.Thresholds
	At           time.Time
}

// ExitAlert 描述一次止盈或止损平仓。
type ExitAlert struct {
	Kind       detector.ExitKind
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	PnLPct     decimal.Decimal
	At         time.Time
}

// Notifier 定义告警输送接口。
type Notifier interface {
	NotifyEntry(ctx context.Context, alert EntryAlert) error
	NotifyExit(ctx context.Context, alert ExitAlert) error
}

// Named is implemented by notifiers that report a channel name.
type Named interface {
	Channel() string
}

// Multi fans an alert out to every channel. A failing channel does not prevent
// delivery on the others.
type Multi struct {
	notifiers []Notifier
}

// NewMulti combines notifiers. Nil entries are skipped.
func NewMulti(notifiers ...Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Len returns the number of channels.
func (m *Multi) Len() int {
	return len(m.notifiers)
}

// Channels lists channel names in delivery order.
func (m *Multi) Channels() []string {
	names := make([]string, 0, len(m.notifiers))
	for _, n := range m.notifiers {
		names = append(names, channelName(n))
	}
	return names
}

// NotifyEntry implements Notifier.
func (m *Multi) NotifyEntry(ctx context.Context, alert EntryAlert) error {
	return m.each(func(n Notifier) error { return n.NotifyEntry(ctx, alert) })
}

// NotifyExit implements Notifier.
func (m *Multi) NotifyExit(ctx context.Context, alert ExitAlert) error {
	return m.each(func(n Notifier) error { return n.NotifyExit(ctx, alert) })
}

func (m *Multi) each(send func(Notifier) error) error {
	if len(m.notifiers) == 0 {
		return errors.New("no alert channels configured")
	}
	var errs []error
	for _, n := range m.notifiers {
		if err := send(n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", channelName(n), err))
		}
	}
	return errors.Join(errs...)
}

func channelName(n Notifier) string {
	if named, ok := n.(Named); ok {
		return named.Channel()
	}
	return fmt.Sprintf("%T", n)
}

var _ Notifier = (*Multi)(nil)
