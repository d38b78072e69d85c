package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"btc-short-alerts/internal/detector"
	"btc-short-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	State     StateConfig     `mapstructure:"state"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// StateConfig locates the persisted document.
type StateConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulerConfig governs sampling cadence.
type SchedulerConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// StrategyConfig holds the signal rule, percentages expressed as e.g. 3.0 for 3%.
type StrategyConfig struct {
	Lookback      time.Duration `mapstructure:"lookback"`
	EntrySpikePct float64       `mapstructure:"entry_spike_pct"`
	TakeProfitPct float64       `mapstructure:"take_profit_pct"`
	StopLossPct   float64       `mapstructure:"stop_loss_pct"`
}

// Thresholds converts the strategy percentages for the detector.
func (s StrategyConfig) Thresholds() detector.Thresholds {
	return detector.Thresholds{
		EntrySpikePct: decimal.NewFromFloat(s.EntrySpikePct),
		TakeProfitPct: decimal.NewFromFloat(s.TakeProfitPct),
		StopLossPct:   decimal.NewFromFloat(s.StopLossPct),
	}
}

// FeedConfig selects and tunes price providers.
type FeedConfig struct {
	Providers      []string        `mapstructure:"providers"`
	RequestTimeout time.Duration   `mapstructure:"request_timeout"`
	UserAgent      string          `mapstructure:"user_agent"`
	Retry          RetryConfig     `mapstructure:"retry"`
	CoinGecko      CoinGeckoConfig `mapstructure:"coingecko"`
	Binance        BinanceConfig   `mapstructure:"binance"`
	Chainlink      ChainlinkConfig `mapstructure:"chainlink"`
}

// RetryConfig bounds per-provider retries.
type RetryConfig struct {
	Attempts  int           `mapstructure:"attempts"`
	BaseDelay time.Duration `mapstructure:"base_delay"`
	MaxDelay  time.Duration `mapstructure:"max_delay"`
}

// CoinGeckoConfig captures CoinGecko connectivity.
type CoinGeckoConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	CoinID     string `mapstructure:"coin_id"`
	VsCurrency string `mapstructure:"vs_currency"`
}

// BinanceConfig captures Binance connectivity.
type BinanceConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Symbol  string `mapstructure:"symbol"`
}

// ChainlinkConfig covers on-chain data access.
type ChainlinkConfig struct {
	RPCURL       string        `mapstructure:"rpc_url"`
	FeedAddress  string        `mapstructure:"feed_address"`
	MaxStaleness time.Duration `mapstructure:"max_staleness"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Email    EmailConfig    `mapstructure:"email"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// EmailConfig 描述 SMTP 告警参数。
type EmailConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	From       string        `mapstructure:"from"`
	Recipients []string      `mapstructure:"recipients"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MetricsConfig controls the prometheus listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// KnownProviders lists the accepted feed.providers values.
var KnownProviders = []string{"coingecko", "binance", "chainlink"}

// Load builds configuration from a .env file, file, environment, and defaults.
func Load(path string) (*Config, error) {
	// an absent .env is normal; real environment variables win
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("BTCWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "btcwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.caller", false)

	v.SetDefault("state.path", "state.json")

	v.SetDefault("scheduler.interval", "60s")
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("strategy.lookback", "6h")
	v.SetDefault("strategy.entry_spike_pct", 3.0)
	v.SetDefault("strategy.take_profit_pct", 2.5)
	v.SetDefault("strategy.stop_loss_pct", 2.5)

	v.SetDefault("feed.providers", []string{"coingecko", "binance"})
	v.SetDefault("feed.request_timeout", "10s")
	v.SetDefault("feed.user_agent", "btcwatcher/1.0")
	v.SetDefault("feed.retry.attempts", 3)
	v.SetDefault("feed.retry.base_delay", "1s")
	v.SetDefault("feed.retry.max_delay", "8s")
	v.SetDefault("feed.coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("feed.coingecko.coin_id", "bitcoin")
	v.SetDefault("feed.coingecko.vs_currency", "usd")
	v.SetDefault("feed.binance.base_url", "https://api.binance.com")
	v.SetDefault("feed.binance.symbol", "BTCUSDT")
	v.SetDefault("feed.chainlink.rpc_url", "")
	v.SetDefault("feed.chainlink.feed_address", "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c")
	v.SetDefault("feed.chainlink.max_staleness", "1h")

	// email is on by default when the legacy Gmail credentials are present
	v.SetDefault("alerting.email.enabled", os.Getenv("GMAIL_USER") != "")
	v.SetDefault("alerting.email.host", "smtp.gmail.com")
	v.SetDefault("alerting.email.port", 587)
	v.SetDefault("alerting.email.username", "")
	v.SetDefault("alerting.email.password", "")
	v.SetDefault("alerting.email.from", "")
	v.SetDefault("alerting.email.recipients", []string{})
	v.SetDefault("alerting.email.timeout", "30s")

	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9090")
}

// bindLegacyEnv maps the variable names used by earlier deployments. The prefixed
// name takes precedence.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"alerting.email.username": {"BTCWATCHER_ALERTING_EMAIL_USERNAME", "GMAIL_USER"},
		"alerting.email.password": {"BTCWATCHER_ALERTING_EMAIL_PASSWORD", "GMAIL_APP_PASSWORD"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// normalise trims list values and folds in the legacy ALERT_EMAIL_n recipients.
func (c *Config) normalise() {
	c.Feed.Providers = cleanList(c.Feed.Providers, true)

	recipients := cleanList(c.Alerting.Email.Recipients, false)
	if len(recipients) == 0 {
		recipients = cleanList([]string{os.Getenv("ALERT_EMAIL_1"), os.Getenv("ALERT_EMAIL_2")}, false)
	}
	c.Alerting.Email.Recipients = recipients

	if c.Alerting.Email.From == "" {
		c.Alerting.Email.From = c.Alerting.Email.Username
	}
}

func cleanList(values []string, lower bool) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if lower {
			v = strings.ToLower(v)
		}
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.State.Path) == "" {
		return fmt.Errorf("state.path must be set")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.StartupDelay < 0 {
		return fmt.Errorf("scheduler.startup_delay cannot be negative")
	}
	if c.Strategy.Lookback <= 0 {
		return fmt.Errorf("strategy.lookback must be greater than zero")
	}
	if err := c.Strategy.Thresholds().Validate(); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	if len(c.Feed.Providers) == 0 {
		return fmt.Errorf("feed.providers must list at least one provider")
	}
	for _, p := range c.Feed.Providers {
		if !slices.Contains(KnownProviders, p) {
			return fmt.Errorf("feed.providers: unknown provider %q (known: %s)", p, strings.Join(KnownProviders, ", "))
		}
		if p == "chainlink" && c.Feed.Chainlink.RPCURL == "" {
			return fmt.Errorf("feed.chainlink.rpc_url 必须配置 (chainlink provider enabled)")
		}
	}
	if c.Feed.Retry.Attempts < 1 {
		return fmt.Errorf("feed.retry.attempts must be at least 1")
	}
	if c.Feed.Retry.BaseDelay < 0 || c.Feed.Retry.MaxDelay < 0 {
		return fmt.Errorf("feed.retry delays cannot be negative")
	}
	if c.Feed.RequestTimeout <= 0 {
		return fmt.Errorf("feed.request_timeout must be greater than zero")
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Listen) == "" {
		return fmt.Errorf("metrics.listen must be set when metrics are enabled")
	}
	return nil
}

// ValidateAlerting checks that at least one alert channel is usable. Only the
// monitor requires it.
func (c *Config) ValidateAlerting() error {
	email, tg := c.Alerting.Email, c.Alerting.Telegram
	if !email.Enabled && !tg.Enabled {
		return fmt.Errorf("no alert channel enabled: set alerting.email.enabled or alerting.telegram.enabled")
	}
	if email.Enabled {
		if email.Username == "" || email.Password == "" {
			return fmt.Errorf("alerting.email.username 和 alerting.email.password 必须配置 (or GMAIL_USER / GMAIL_APP_PASSWORD)")
		}
		if len(email.Recipients) == 0 {
			return fmt.Errorf("alerting.email.recipients 必须至少包含一个地址 (or ALERT_EMAIL_1)")
		}
		if email.Port <= 0 {
			return fmt.Errorf("alerting.email.port must be greater than zero")
		}
	}
	if tg.Enabled {
		if tg.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if tg.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}
