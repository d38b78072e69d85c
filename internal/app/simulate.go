package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"btc-short-alerts/internal/alerting"
	"btc-short-alerts/internal/detector"
	"btc-short-alerts/internal/fetcher"
	"btc-short-alerts/internal/history"
	"btc-short-alerts/internal/metrics"
	"btc-short-alerts/internal/position"
	"btc-short-alerts/internal/service"
	"btc-short-alerts/internal/state"
)

// SimulateAlert 通过给定价格跑一次完整周期, 经真实的告警渠道发送测试告警。
// The persisted state file is not read or written.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if err := a.Config.ValidateAlerting(); err != nil {
		return fmt.Errorf("alerting config: %w", err)
	}
	return a.simulate(ctx, opts, a.newNotifier())
}

func (a *App) simulate(ctx context.Context, opts SimulateOptions, notifier alerting.Notifier) error {
	price, err := parsePositive("--price", opts.Price)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	store := &memoryStore{doc: state.NewDocument(a.Config.Strategy.Lookback)}
	machine := a.newMachine()
	th := machine.Detector().Thresholds()

	var want position.TransitionKind
	switch strings.ToLower(opts.Kind) {
	case "entry":
		want = position.TransitionOpen
		low := price.Div(decimal.NewFromInt(1).Add(th.EntrySpikePct.Add(decimal.NewFromInt(1)).Div(decimal.NewFromInt(100))))
		if opts.Low != "" {
			if low, err = parsePositive("--low", opts.Low); err != nil {
				return err
			}
		}
		store.doc.History.Append(history.Sample{Time: now.Add(-time.Minute), Price: low})
	case "tp", "sl":
		want = position.TransitionClose
		entry, err := parsePositive("--entry", opts.Entry)
		if err != nil {
			return err
		}
		expected := detector.ExitTakeProfit
		if strings.EqualFold(opts.Kind, "sl") {
			expected = detector.ExitStopLoss
		}
		if kind, err := machine.Detector().Exit(price, entry); err != nil || kind != expected {
			return fmt.Errorf("price %s against entry %s does not trigger %s", price, entry, expected)
		}
		store.doc.Position, err = position.NewShort(entry, now.Add(-time.Hour))
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("--kind must be entry, tp or sl, got %q", opts.Kind)
	}

	feed := &staticFeed{quote: fetcher.Quote{Price: price, Time: now, Source: "simulated"}}
	svc := service.New(nil, feed, store, machine, notifier, metrics.New(), a.Logger)
	if err := svc.Cycle(ctx, now); err != nil {
		return err
	}

	doc := svc.Document()
	switch want {
	case position.TransitionOpen:
		if !doc.Position.IsOpen() {
			return fmt.Errorf("price %s is not a %s%% spike above %s; no entry alert sent", price, th.EntrySpikePct, store.low())
		}
	case position.TransitionClose:
		if doc.Position.IsOpen() {
			return fmt.Errorf("price %s does not reach the take profit or stop loss; no exit alert sent", price)
		}
	}
	a.Logger.Info().Str("kind", opts.Kind).Str("price", price.String()).Msg("simulated alert dispatched")
	return nil
}

func parsePositive(flag, raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Decimal{}, fmt.Errorf("%s is required", flag)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", flag, err)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, errors.New(flag + " must be positive")
	}
	return d, nil
}

type staticFeed struct {
	quote fetcher.Quote
}

func (s *staticFeed) FetchPrice(context.Context) (fetcher.Quote, error) {
	return s.quote, nil
}

type memoryStore struct {
	doc state.Document
}

func (m *memoryStore) Load() state.Document { return m.doc }

func (m *memoryStore) Save(doc state.Document) error {
	m.doc = doc
	return nil
}

func (m *memoryStore) low() string {
	if low, ok := m.doc.History.Low(); ok {
		return low.StringFixed(2)
	}
	return "n/a"
}

var _ fetcher.PriceFetcher = (*staticFeed)(nil)
var _ service.DocumentStore = (*memoryStore)(nil)
