package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

// EmailOptions parameterise the SMTP notifier.
type EmailOptions struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
	Timeout    time.Duration
}

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// EmailNotifier 通过 SMTP (STARTTLS + PLAIN) 发送 HTML 邮件。
type EmailNotifier struct {
	opts      EmailOptions
	logger    zerolog.Logger
	newSender func() (mailSender, error)
}

// NewEmailNotifier constructs an EmailNotifier. The SMTP connection is opened per
// alert.
func NewEmailNotifier(opts EmailOptions, logger zerolog.Logger) *EmailNotifier {
	if opts.Host == "" {
		opts.Host = "smtp.gmail.com"
	}
	if opts.Port <= 0 {
		opts.Port = 587
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.From == "" {
		opts.From = opts.Username
	}

	n := &EmailNotifier{
		opts:   opts,
		logger: logger.With().Str("component", "alert_email").Logger(),
	}
	n.newSender = n.dial
	return n
}

// Channel implements Named.
func (n *EmailNotifier) Channel() string { return "email" }

// NotifyEntry implements Notifier.
func (n *EmailNotifier) NotifyEntry(ctx context.Context, alert EntryAlert) error {
	body, err := renderEntryHTML(alert)
	if err != nil {
		return err
	}
	return n.send(ctx, EntrySubject(alert), body, renderEntryText(alert))
}

// NotifyExit implements Notifier.
func (n *EmailNotifier) NotifyExit(ctx context.Context, alert ExitAlert) error {
	body, err := renderExitHTML(alert)
	if err != nil {
		return err
	}
	return n.send(ctx, ExitSubject(alert), body, renderExitText(alert))
}

func (n *EmailNotifier) send(ctx context.Context, subject, html, text string) error {
	msg, err := n.buildMessage(subject, html, text)
	if err != nil {
		return err
	}

	sender, err := n.newSender()
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info().
		Str("subject", subject).
		Int("recipients", len(n.opts.Recipients)).
		Msg("告警已发送 (Email)")
	return nil
}

func (n *EmailNotifier) buildMessage(subject, html, text string) (*mail.Msg, error) {
	recipients := make([]string, 0, len(n.opts.Recipients))
	for _, r := range n.opts.Recipients {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	if len(recipients) == 0 {
		return nil, errors.New("no email recipients configured")
	}

	msg := mail.NewMsg()
	if err := msg.From(n.opts.From); err != nil {
		return nil, fmt.Errorf("set email sender: %w", err)
	}
	if err := msg.To(recipients...); err != nil {
		return nil, fmt.Errorf("set email recipients: %w", err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextHTML, html)
	msg.AddAlternativeString(mail.TypeTextPlain, text)
	return msg, nil
}

func (n *EmailNotifier) dial() (mailSender, error) {
	return mail.NewClient(n.opts.Host,
		mail.WithPort(n.opts.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(n.opts.Username),
		mail.WithPassword(n.opts.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(n.opts.Timeout),
	)
}

var _ Notifier = (*EmailNotifier)(nil)
