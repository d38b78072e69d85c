package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"btc-short-alerts/internal/alerting"
	"btc-short-alerts/internal/detector"
	"btc-short-alerts/internal/fetcher"
	"btc-short-alerts/internal/history"
	"btc-short-alerts/internal/metrics"
	"btc-short-alerts/internal/position"
	"btc-short-alerts/internal/scheduler"
	"btc-short-alerts/internal/state"
)

// DocumentStore persists the monitor's state document.
type DocumentStore interface {
	Load() state.Document
	Save(doc state.Document) error
}

// Service orchestrates fetching, evaluation, persistence, and alerting. It owns
// the in-memory document, which governs even when a save fails.
type Service struct {
	scheduler *scheduler.Scheduler
	feed      fetcher.PriceFetcher
	store     DocumentStore
	machine   *position.Machine
	notifier  alerting.Notifier
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	doc    state.Document
	loaded bool
}

// New constructs the monitoring service.
func New(sched *scheduler.Scheduler, feed fetcher.PriceFetcher, store DocumentStore, machine *position.Machine, notifier alerting.Notifier, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		scheduler: sched,
		feed:      feed,
		store:     store,
		machine:   machine,
		notifier:  notifier,
		metrics:   m,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Run loads the document and begins the sampling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	s.ensureLoaded()
	s.logger.Info().
		Bool("position_open", s.doc.Position.IsOpen()).
		Int("history", s.doc.History.Len()).
		Msg("monitor state restored")
	return s.scheduler.Run(ctx, s.Cycle)
}

// Document returns the in-memory document.
func (s *Service) Document() state.Document {
	s.ensureLoaded()
	return s.doc
}

func (s *Service) ensureLoaded() {
	if !s.loaded {
		s.doc = s.store.Load()
		s.loaded = true
	}
}

// Cycle 执行单次采样: fetch, append, evaluate, persist, notify.
func (s *Service) Cycle(ctx context.Context, at time.Time) error {
	s.ensureLoaded()

	quote, err := s.feed.FetchPrice(ctx)
	if err != nil {
		s.metrics.FeedFailures.Inc()
		s.metrics.Cycles.WithLabelValues(metrics.ResultFeedFailure).Inc()
		s.logger.Warn().Err(err).Time("at", at).Msg("price unavailable; skipping cycle")
		return nil
	}

	sample := history.Sample{Time: quote.Time, Price: quote.Price}
	if sample.Time.IsZero() {
		sample.Time = at
	}
	s.doc.History.Append(sample)
	s.metrics.ObservePrice(sample.Price)

	result := metrics.ResultOK
	tr, stepErr := s.machine.Step(s.doc.Position, sample, s.doc.History)
	if stepErr != nil {
		result = metrics.ResultInternal
		event := s.logger.Error().Err(stepErr).Str("price", sample.Price.String())
		if errors.Is(stepErr, detector.ErrInvalidInput) {
			event = event.Bool("invalid_input", true)
		}
		event.Msg("signal evaluation failed; no transition")
	} else {
		s.doc.Position = tr.To
	}

	if err := s.store.Save(s.doc); err != nil {
		s.metrics.StateSaveFailures.Inc()
		s.logger.Error().Err(err).Msg("failed to persist state; continuing with in-memory state")
	}

	if stepErr == nil {
		s.dispatch(ctx, tr)
		s.logSummary(tr, quote.Source)
	}

	s.metrics.ObserveState(s.doc.Position.IsOpen(), s.doc.History.Len())
	s.metrics.Cycles.WithLabelValues(result).Inc()
	return nil
}

func (s *Service) dispatch(ctx context.Context, tr position.Transition) {
	var err error
	switch tr.Kind {
	case position.TransitionOpen:
		s.metrics.Signals.WithLabelValues("entry").Inc()
		err = s.notifier.NotifyEntry(ctx, alerting.EntryAlert{
			CurrentPrice: tr.Price,
			Low:          tr.Entry.Low.Decimal,
			SpikePct:     tr.Entry.SpikePct.Decimal,
			EntryPrice:   tr.To.EntryPrice,
			TakeProfit:   tr.TakeProfit,
			StopLoss:     tr.StopLoss,
			Thresholds:   s.machine.Detector().Thresholds(),
			At:           tr.At,
		})
	case position.TransitionClose:
		s.metrics.Signals.WithLabelValues(signalLabel(tr.Exit)).Inc()
		err = s.notifier.NotifyExit(ctx, alerting.ExitAlert{
			Kind:       tr.Exit,
			EntryPrice: tr.From.EntryPrice,
			ExitPrice:  tr.Price,
			PnLPct:     tr.PnLPct,
			At:         tr.At,
		})
	default:
		return
	}
	if err != nil {
		s.metrics.NotifyFailures.Inc()
		s.logger.Error().Err(err).Str("transition", string(tr.Kind)).Msg("failed to dispatch alert")
	}
}

func (s *Service) logSummary(tr position.Transition, source string) {
	base := s.logger.Info().
		Str("source", source).
		Str("price", tr.Price.StringFixed(2)).
		Int("history", s.doc.History.Len())

	switch tr.Kind {
	case position.TransitionOpen:
		base.Str("low", tr.Entry.Low.Decimal.StringFixed(2)).
			Str("spike_pct", tr.Entry.SpikePct.Decimal.StringFixed(2)).
			Str("take_profit", tr.TakeProfit.StringFixed(2)).
			Str("stop_loss", tr.StopLoss.StringFixed(2)).
			Msg("short entry signal; position opened")
	case position.TransitionClose:
		base.Str("exit", tr.Exit.String()).
			Str("entry_price", tr.From.EntryPrice.StringFixed(2)).
			Str("pnl_pct", tr.PnLPct.StringFixed(2)).
			Msg("position closed")
	default:
		if tr.From.IsOpen() {
			base.Str("entry_price", tr.From.EntryPrice.StringFixed(2)).
				Str("change_pct", tr.ChangePct.StringFixed(2)).
				Str("take_profit", tr.TakeProfit.StringFixed(2)).
				Str("stop_loss", tr.StopLoss.StringFixed(2)).
				Msg("position open; holding")
			return
		}
		warming := s.doc.History.Span() < s.doc.History.Lookback()
		if tr.Entry.SpikePct.Valid {
			base = base.Str("low", tr.Entry.Low.Decimal.StringFixed(2)).
				Str("spike_pct", tr.Entry.SpikePct.Decimal.StringFixed(2))
		}
		if warming {
			base.Dur("span", s.doc.History.Span()).Msg("building price history; no signal")
			return
		}
		base.Msg("no signal")
	}
}

func signalLabel(kind detector.ExitKind) string {
	if kind == detector.ExitTakeProfit {
		return "tp"
	}
	return "sl"
}

var _ DocumentStore = (*state.Store)(nil)
