package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const binanceTickerPath = "/api/v3/ticker/price"

// BinanceOptions parameterise the Binance provider.
type BinanceOptions struct {
	BaseURL   string
	Symbol    string
	Timeout   time.Duration
	UserAgent string
}

// Binance reads the last traded price of a spot symbol.
type Binance struct {
	opts    BinanceOptions
	logger  zerolog.Logger
	client  *resty.Client
	baseURL string
}

// NewBinance constructs a Binance provider.
func NewBinance(opts BinanceOptions, logger zerolog.Logger) *Binance {
	if opts.Symbol == "" {
		opts.Symbol = "BTCUSDT"
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}

	return &Binance{
		opts:    opts,
		logger:  logger.With().Str("component", "binance_fetcher").Logger(),
		client:  newRestClient(opts.Timeout, opts.UserAgent),
		baseURL: baseURL,
	}
}

// Name implements Provider.
func (b *Binance) Name() string { return "binance" }

type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// FetchPrice implements Provider.
func (b *Binance) FetchPrice(ctx context.Context) (Quote, error) {
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", b.opts.Symbol).
		Get(b.baseURL + binanceTickerPath)
	if err != nil {
		return Quote{}, fmt.Errorf("request binance ticker: %w", err)
	}
	if resp.IsError() {
		return Quote{}, parseHTTPError("binance", resp.StatusCode(), resp.Body())
	}

	var ticker tickerResponse
	if err := json.Unmarshal(resp.Body(), &ticker); err != nil {
		return Quote{}, fmt.Errorf("decode binance response: %w", err)
	}
	if ticker.Price == "" {
		return Quote{}, fmt.Errorf("binance response missing price for %s", b.opts.Symbol)
	}
	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return Quote{}, fmt.Errorf("parse binance price: %w", err)
	}

	b.logger.Debug().Str("symbol", ticker.Symbol).Str("price", price.String()).Msg("binance quote")
	return Quote{Price: price, Time: time.Now().UTC(), Source: b.Name()}, nil
}

var _ Provider = (*Binance)(nil)
