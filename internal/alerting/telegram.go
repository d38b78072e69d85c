package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *resty.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Channel implements Named.
func (n *TelegramNotifier) Channel() string { return "telegram" }

// NotifyEntry implements Notifier.
func (n *TelegramNotifier) NotifyEntry(ctx context.Context, alert EntryAlert) error {
	if err := n.send(ctx, renderEntryText(alert)); err != nil {
		return err
	}
	n.logger.Info().Time("at", alert.At).
		Str("entry_price", alert.EntryPrice.String()).
		Str("spike_pct", alert.SpikePct.StringFixed(2)).
		Msg("入场告警已发送 (Telegram)")
	return nil
}

// NotifyExit implements Notifier.
func (n *TelegramNotifier) NotifyExit(ctx context.Context, alert ExitAlert) error {
	if err := n.send(ctx, renderExitText(alert)); err != nil {
		return err
	}
	n.logger.Info().Time("at", alert.At).
		Str("kind", string(alert.Kind)).
		Str("pnl_pct", alert.PnLPct.StringFixed(2)).
		Msg("平仓告警已发送 (Telegram)")
	return nil
}

// send 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id": n.chatID,
			"text":    text,
		}).
		Post(url)
	if err != nil {
		return fmt.Errorf("send telegram request: %s", n.redact(err.Error()))
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode())
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}
	return nil
}

// redact strips the bot token from transport errors, which quote the URL.
func (n *TelegramNotifier) redact(msg string) string {
	if n.botToken == "" {
		return msg
	}
	return strings.ReplaceAll(msg, n.botToken, "***")
}

var _ Notifier = (*TelegramNotifier)(nil)
