package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrAllProvidersFailed is returned by Chain when no provider produced a price.
var ErrAllProvidersFailed = errors.New("all price providers failed")

// Quote is a single BTC/USD observation.
type Quote struct {
	Price  decimal.Decimal
	Time   time.Time
	Source string
}

// PriceFetcher retrieves the current BTC/USD spot price.
type PriceFetcher interface {
	FetchPrice(ctx context.Context) (Quote, error)
}

// Provider is a named PriceFetcher performing a single request per call.
type Provider interface {
	PriceFetcher
	Name() string
}

// RetryOptions bound how often each provider is tried.
type RetryOptions struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Chain tries providers in order, retrying each with exponential backoff.
type Chain struct {
	providers []Provider
	retry     RetryOptions
	logger    zerolog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewChain constructs a Chain over providers.
func NewChain(providers []Provider, retry RetryOptions, logger zerolog.Logger) *Chain {
	if retry.Attempts <= 0 {
		retry.Attempts = 1
	}
	return &Chain{
		providers: providers,
		retry:     retry,
		logger:    logger.With().Str("component", "price_chain").Logger(),
		sleep:     sleepContext,
	}
}

// Providers returns the configured provider names in order.
func (c *Chain) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// FetchPrice returns the first valid quote.
func (c *Chain) FetchPrice(ctx context.Context) (Quote, error) {
	if len(c.providers) == 0 {
		return Quote{}, fmt.Errorf("%w: no providers configured", ErrAllProvidersFailed)
	}

	var lastErr error
	for _, p := range c.providers {
		for attempt := 1; attempt <= c.retry.Attempts; attempt++ {
			q, err := c.fetchOnce(ctx, p)
			if err == nil {
				return q, nil
			}
			lastErr = fmt.Errorf("%s: %w", p.Name(), err)
			if ctx.Err() != nil {
				return Quote{}, fmt.Errorf("%w: %w", ErrAllProvidersFailed, lastErr)
			}

			c.logger.Warn().
				Err(err).
				Str("provider", p.Name()).
				Int("attempt", attempt).
				Int("attempts", c.retry.Attempts).
				Msg("price fetch failed")

			if attempt == c.retry.Attempts {
				break
			}
			if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
				return Quote{}, fmt.Errorf("%w: %w", ErrAllProvidersFailed, lastErr)
			}
		}
	}
	return Quote{}, fmt.Errorf("%w: %w", ErrAllProvidersFailed, lastErr)
}

func (c *Chain) fetchOnce(ctx context.Context, p Provider) (Quote, error) {
	q, err := p.FetchPrice(ctx)
	if err != nil {
		return Quote{}, err
	}
	if !q.Price.IsPositive() {
		return Quote{}, fmt.Errorf("non-positive price %s", q.Price)
	}
	if q.Source == "" {
		q.Source = p.Name()
	}
	if q.Time.IsZero() {
		q.Time = time.Now().UTC()
	}
	return q, nil
}

// backoff returns base * 2^(attempt-1), capped at MaxDelay when set.
func (c *Chain) backoff(attempt int) time.Duration {
	d := c.retry.BaseDelay
	if d <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if c.retry.MaxDelay > 0 && d >= c.retry.MaxDelay {
			return c.retry.MaxDelay
		}
	}
	if c.retry.MaxDelay > 0 && d > c.retry.MaxDelay {
		return c.retry.MaxDelay
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ PriceFetcher = (*Chain)(nil)
