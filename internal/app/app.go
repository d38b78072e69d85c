package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"btc-short-alerts/internal/alerting"
	"btc-short-alerts/internal/config"
	"btc-short-alerts/internal/detector"
	"btc-short-alerts/internal/fetcher"
	"btc-short-alerts/internal/metrics"
	"btc-short-alerts/internal/position"
	"btc-short-alerts/internal/scheduler"
	"btc-short-alerts/internal/service"
	"btc-short-alerts/internal/state"
	"btc-short-alerts/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFeed() (*fetcher.Chain, error) {
	feed := a.Config.Feed
	providers := make([]fetcher.Provider, 0, len(feed.Providers))
	for _, name := range feed.Providers {
		switch name {
		case "coingecko":
			providers = append(providers, fetcher.NewCoinGecko(fetcher.CoinGeckoOptions{
				BaseURL:    feed.CoinGecko.BaseURL,
				CoinID:     feed.CoinGecko.CoinID,
				VsCurrency: feed.CoinGecko.VsCurrency,
				Timeout:    feed.RequestTimeout,
				UserAgent:  feed.UserAgent,
			}, a.Logger))
		case "binance":
			providers = append(providers, fetcher.NewBinance(fetcher.BinanceOptions{
				BaseURL:   feed.Binance.BaseURL,
				Symbol:    feed.Binance.Symbol,
				Timeout:   feed.RequestTimeout,
				UserAgent: feed.UserAgent,
			}, a.Logger))
		case "chainlink":
			providers = append(providers, fetcher.NewChainlink(fetcher.ChainlinkOptions{
				RPCURL:       feed.Chainlink.RPCURL,
				FeedAddress:  feed.Chainlink.FeedAddress,
				Timeout:      feed.RequestTimeout,
				MaxStaleness: feed.Chainlink.MaxStaleness,
			}, a.Logger))
		default:
			return nil, fmt.Errorf("unknown price provider %q", name)
		}
	}

	return fetcher.NewChain(providers, fetcher.RetryOptions{
		Attempts:  feed.Retry.Attempts,
		BaseDelay: feed.Retry.BaseDelay,
		MaxDelay:  feed.Retry.MaxDelay,
	}, a.Logger), nil
}

func (a *App) newNotifier() *alerting.Multi {
	var notifiers []alerting.Notifier
	if cfg := a.Config.Alerting.Email; cfg.Enabled {
		notifiers = append(notifiers, alerting.NewEmailNotifier(alerting.EmailOptions{
			Host:       cfg.Host,
			Port:       cfg.Port,
			Username:   cfg.Username,
			Password:   cfg.Password,
			From:       cfg.From,
			Recipients: cfg.Recipients,
			Timeout:    cfg.Timeout,
		}, a.Logger))
	}
	if cfg := a.Config.Alerting.Telegram; cfg.Enabled {
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger))
	}
	return alerting.NewMulti(notifiers...)
}

func (a *App) newMachine() *position.Machine {
	return position.NewMachine(detector.New(a.Config.Strategy.Thresholds()))
}

func (a *App) openStore() *state.Store {
	return state.NewStore(a.Config.State.Path, a.Config.Strategy.Lookback, a.Logger)
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	if err := a.Config.ValidateAlerting(); err != nil {
		return fmt.Errorf("alerting config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := a.Logger.With().Str("run_id", uuid.NewString()).Logger()

	feed, err := a.newFeed()
	if err != nil {
		return err
	}
	notifier := a.newNotifier()
	m := metrics.New()

	if a.Config.Metrics.Enabled {
		go func() {
			if err := m.Serve(ctx, a.Config.Metrics.Listen, logger); err != nil {
				logger.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, logger)

	store := state.NewStore(a.Config.State.Path, a.Config.Strategy.Lookback, logger)
	th := a.Config.Strategy.Thresholds()
	svc := service.New(sched, feed, store, a.newMachine(), notifier, m, logger)

	logger.Info().
		Str("version", version.Version).
		Strs("providers", feed.Providers()).
		Strs("channels", notifier.Channels()).
		Dur("interval", a.Config.Scheduler.Interval).
		Dur("lookback", a.Config.Strategy.Lookback).
		Str("entry_spike_pct", th.EntrySpikePct.String()).
		Str("take_profit_pct", th.TakeProfitPct.String()).
		Str("stop_loss_pct", th.StopLossPct.String()).
		Str("state_path", store.Path()).
		Msg("starting monitoring service")

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	logger.Info().Msg("monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting the retained price history.
type ExportOptions struct {
	CSVPath  string
	PNGPath  string
	XLSXPath string
}

// ResetOptions configure the reset command.
type ResetOptions struct {
	All bool
	Yes bool
}

// SimulateOptions configure a test alert.
type SimulateOptions struct {
	Kind  string
	Price string
	Entry string
	Low   string
}
