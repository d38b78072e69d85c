package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultChainlinkFeed is the BTC/USD aggregator proxy on Ethereum mainnet.
const DefaultChainlinkFeed = "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c"

const aggregatorABIJSON = `[
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}
]`

var aggregatorABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorABI = parsed
}

// ChainlinkOptions parameterise the on-chain provider.
type ChainlinkOptions struct {
	RPCURL       string
	FeedAddress  string
	Timeout      time.Duration
	MaxStaleness time.Duration
}

// Chainlink reads the BTC/USD answer from a Chainlink aggregator via Ethereum RPC.
type Chainlink struct {
	opts      ChainlinkOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	decimals  *uint8
	clientMux sync.Mutex
}

// NewChainlink builds a new on-chain provider.
func NewChainlink(opts ChainlinkOptions, logger zerolog.Logger) *Chainlink {
	if opts.FeedAddress == "" {
		opts.FeedAddress = DefaultChainlinkFeed
	}
	return &Chainlink{opts: opts, logger: logger.With().Str("component", "chainlink_fetcher").Logger()}
}

// Name implements Provider.
func (c *Chainlink) Name() string { return "chainlink" }

// FetchPrice implements Provider.
func (c *Chainlink) FetchPrice(ctx context.Context) (Quote, error) {
	if c.opts.RPCURL == "" {
		return Quote{}, errors.New("ethereum rpc url not configured")
	}
	if !common.IsHexAddress(c.opts.FeedAddress) {
		return Quote{}, fmt.Errorf("invalid chainlink feed address %q", c.opts.FeedAddress)
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("dial ethereum rpc: %w", err)
	}
	addr := common.HexToAddress(c.opts.FeedAddress)

	scale, err := c.feedDecimals(ctx, client, addr)
	if err != nil {
		return Quote{}, err
	}

	outputs, err := c.call(ctx, client, addr, "latestRoundData")
	if err != nil {
		return Quote{}, err
	}
	if len(outputs) != 5 {
		return Quote{}, errors.New("unexpected latestRoundData response")
	}
	answer, ok := outputs[1].(*big.Int)
	if !ok {
		return Quote{}, errors.New("failed to decode latestRoundData answer")
	}
	updatedAt, ok := outputs[3].(*big.Int)
	if !ok {
		return Quote{}, errors.New("failed to decode latestRoundData updatedAt")
	}

	updated := time.Unix(updatedAt.Int64(), 0).UTC()
	if c.opts.MaxStaleness > 0 {
		if age := time.Since(updated); age > c.opts.MaxStaleness {
			return Quote{}, fmt.Errorf("chainlink round is stale: updated %s ago", age.Round(time.Second))
		}
	}

	price := decimal.NewFromBigInt(answer, -int32(scale))
	c.logger.Debug().Str("price", price.String()).Time("updated_at", updated).Msg("chainlink quote")
	return Quote{Price: price, Time: time.Now().UTC(), Source: c.Name()}, nil
}

func (c *Chainlink) feedDecimals(ctx context.Context, client *ethclient.Client, addr common.Address) (uint8, error) {
	c.clientMux.Lock()
	cached := c.decimals
	c.clientMux.Unlock()
	if cached != nil {
		return *cached, nil
	}

	outputs, err := c.call(ctx, client, addr, "decimals")
	if err != nil {
		return 0, err
	}
	if len(outputs) != 1 {
		return 0, errors.New("unexpected decimals response")
	}
	scale, ok := outputs[0].(uint8)
	if !ok {
		return 0, errors.New("failed to decode decimals output")
	}

	c.clientMux.Lock()
	c.decimals = &scale
	c.clientMux.Unlock()
	return scale, nil
}

func (c *Chainlink) call(ctx context.Context, client *ethclient.Client, addr common.Address, method string) ([]any, error) {
	payload, err := aggregatorABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	outputs, err := aggregatorABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return outputs, nil
}

func (c *Chainlink) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

var _ Provider = (*Chainlink)(nil)
