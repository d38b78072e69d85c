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

const (
	defaultRequestTimeout = 10 * time.Second
	defaultUserAgent      = "btcwatcher/1.0"

	coinGeckoPricePath = "/simple/price"
)

// CoinGeckoOptions parameterise the CoinGecko provider.
type CoinGeckoOptions struct {
	BaseURL    string
	CoinID     string
	VsCurrency string
	Timeout    time.Duration
	UserAgent  string
}

// CoinGecko reads the spot price from the public simple/price endpoint.
type CoinGecko struct {
	opts    CoinGeckoOptions
	logger  zerolog.Logger
	client  *resty.Client
	baseURL string
}

// NewCoinGecko constructs a CoinGecko provider.
func NewCoinGecko(opts CoinGeckoOptions, logger zerolog.Logger) *CoinGecko {
	if opts.CoinID == "" {
		opts.CoinID = "bitcoin"
	}
	if opts.VsCurrency == "" {
		opts.VsCurrency = "usd"
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	return &CoinGecko{
		opts:    opts,
		logger:  logger.With().Str("component", "coingecko_fetcher").Logger(),
		client:  newRestClient(opts.Timeout, opts.UserAgent),
		baseURL: baseURL,
	}
}

// Name implements Provider.
func (c *CoinGecko) Name() string { return "coingecko" }

// FetchPrice implements Provider.
func (c *CoinGecko) FetchPrice(ctx context.Context) (Quote, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ids":           c.opts.CoinID,
			"vs_currencies": c.opts.VsCurrency,
		}).
		Get(c.baseURL + coinGeckoPricePath)
	if err != nil {
		return Quote{}, fmt.Errorf("request coingecko price: %w", err)
	}
	if resp.IsError() {
		return Quote{}, parseHTTPError("coingecko", resp.StatusCode(), resp.Body())
	}

	// {"bitcoin":{"usd":64000.12}}
	var payload map[string]map[string]json.Number
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return Quote{}, fmt.Errorf("decode coingecko response: %w", err)
	}
	raw, ok := payload[c.opts.CoinID][c.opts.VsCurrency]
	if !ok {
		return Quote{}, fmt.Errorf("coingecko response missing %s/%s", c.opts.CoinID, c.opts.VsCurrency)
	}
	price, err := decimal.NewFromString(raw.String())
	if err != nil {
		return Quote{}, fmt.Errorf("parse coingecko price: %w", err)
	}

	c.logger.Debug().Str("price", price.String()).Msg("coingecko quote")
	return Quote{Price: price, Time: time.Now().UTC(), Source: c.Name()}, nil
}

func newRestClient(timeout time.Duration, userAgent string) *resty.Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	ua := strings.TrimSpace(userAgent)
	if ua == "" {
		ua = defaultUserAgent
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	client.SetHeader("User-Agent", ua)
	return client
}

type apiError struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"msg"`
	Status  struct {
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

func parseHTTPError(source string, status int, payload []byte) error {
	var body apiError
	if err := json.Unmarshal(payload, &body); err == nil {
		switch {
		case body.Status.ErrorMessage != "":
			return fmt.Errorf("%s api error (%d): %s", source, status, body.Status.ErrorMessage)
		case body.Message != "":
			return fmt.Errorf("%s api error (%d): %s", source, status, body.Message)
		case len(body.Error) > 0 && string(body.Error) != "null":
			return fmt.Errorf("%s api error (%d): %s", source, status, strings.Trim(string(body.Error), `"`))
		}
	}
	if text := strings.TrimSpace(string(payload)); text != "" {
		return fmt.Errorf("%s api error (%d): %s", source, status, text)
	}
	return fmt.Errorf("%s api error (%d)", source, status)
}

var _ Provider = (*CoinGecko)(nil)
