package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Cycle results recorded in btcwatcher_cycles_total.
const (
	ResultOK          = "ok"
	ResultFeedFailure = "feed_failure"
	ResultInternal    = "internal_error"
)

// Metrics holds the monitor's collectors.
type Metrics struct {
	registry *prometheus.Registry

	Cycles            *prometheus.CounterVec
	FeedFailures      prometheus.Counter
	Signals           *prometheus.CounterVec
	StateSaveFailures prometheus.Counter
	NotifyFailures    prometheus.Counter
	LastPrice         prometheus.Gauge
	PositionOpen      prometheus.Gauge
	HistorySamples    prometheus.Gauge
}

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry:          prometheus.NewRegistry(),
		Cycles:            prometheus.NewCounterVec(prometheus.CounterOpts{Name: "btcwatcher_cycles_total", Help: "Monitoring cycles by result"}, []string{"result"}),
		FeedFailures:      prometheus.NewCounter(prometheus.CounterOpts{Name: "btcwatcher_feed_failures_total", Help: "Cycles skipped because no provider returned a price"}),
		Signals:           prometheus.NewCounterVec(prometheus.CounterOpts{Name: "btcwatcher_signals_total", Help: "Position transitions by kind (entry, tp, sl)"}, []string{"kind"}),
		StateSaveFailures: prometheus.NewCounter(prometheus.CounterOpts{Name: "btcwatcher_state_save_failures_total", Help: "Failed writes of the state document"}),
		NotifyFailures:    prometheus.NewCounter(prometheus.CounterOpts{Name: "btcwatcher_notify_failures_total", Help: "Alerts that could not be delivered on at least one channel"}),
		LastPrice:         prometheus.NewGauge(prometheus.GaugeOpts{Name: "btcwatcher_last_price", Help: "Last observed BTC/USD price"}),
		PositionOpen:      prometheus.NewGauge(prometheus.GaugeOpts{Name: "btcwatcher_position_open", Help: "1 while a simulated short is open"}),
		HistorySamples:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "btcwatcher_history_samples", Help: "Samples retained in the lookback window"}),
	}
	m.registry.MustRegister(
		m.Cycles, m.FeedFailures, m.Signals, m.StateSaveFailures,
		m.NotifyFailures, m.LastPrice, m.PositionOpen, m.HistorySamples,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObservePrice sets the last price gauge.
func (m *Metrics) ObservePrice(price decimal.Decimal) {
	f, _ := price.Float64()
	m.LastPrice.Set(f)
}

// ObserveState records the position and window size after a cycle.
func (m *Metrics) ObserveState(open bool, samples int) {
	if open {
		m.PositionOpen.Set(1)
	} else {
		m.PositionOpen.Set(0)
	}
	m.HistorySamples.Set(float64(samples))
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	logger = logger.With().Str("component", "metrics").Logger()

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	logger.Info().Str("listen", ln.Addr().String()).Msg("metrics endpoint listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("metrics shutdown")
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
